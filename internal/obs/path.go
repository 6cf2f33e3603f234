package obs

import "strings"

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded. Unknown paths pass through untouched.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "v1" {
		return path
	}

	switch segments[1] {
	case "applications":
		if len(segments) == 3 {
			return "/v1/applications/:id"
		}
		if len(segments) == 4 {
			switch segments[3] {
			case "actions", "history", "progress", "signatures", "initialize":
				return "/v1/applications/:id/" + segments[3]
			}
		}
	case "roles":
		if len(segments) == 3 {
			return "/v1/roles/:id"
		}
		if len(segments) == 4 && segments[3] == "permissions" {
			return "/v1/roles/:id/permissions"
		}
	case "users":
		if len(segments) == 3 {
			return "/v1/users/:id"
		}
		if len(segments) == 4 && segments[3] == "assignments" {
			return "/v1/users/:id/assignments"
		}
		if len(segments) == 5 && segments[3] == "assignments" {
			return "/v1/users/:id/assignments/:role_id"
		}
	}
	return path
}
