package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                      "/",
		"/metrics":                              "/metrics",
		"/v1/applications/abc":                  "/v1/applications/:id",
		"/v1/applications/abc/actions":          "/v1/applications/:id/actions",
		"/v1/applications/abc/history":          "/v1/applications/:id/history",
		"/v1/applications/abc/progress?limit=5": "/v1/applications/:id/progress",
		"/v1/roles/abc":                         "/v1/roles/:id",
		"/v1/roles/abc/permissions":             "/v1/roles/:id/permissions",
		"/v1/users/abc/assignments":             "/v1/users/:id/assignments",
		"/v1/users/abc/assignments/r1":          "/v1/users/:id/assignments/:role_id",
		"/v1/applications/abc/extra":            "/v1/applications/abc/extra",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
