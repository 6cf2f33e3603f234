package auth

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	t.Setenv("PARCFLOW_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken("user-42", []string{"Patrimoine", "patrimoine", "DCRTCT"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	// Case matters: Patrimoine and patrimoine are distinct roles.
	if !slices.Contains(claims.Roles, "Patrimoine") || !slices.Contains(claims.Roles, "patrimoine") {
		t.Fatalf("roles were not preserved verbatim: %v", claims.Roles)
	}
	if len(claims.Roles) != 3 {
		t.Fatalf("expected 3 roles, got %v", claims.Roles)
	}
}

func TestParseRejectsTampered(t *testing.T) {
	t.Setenv("PARCFLOW_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken("user-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseAndValidate(token + "x"); err == nil {
		t.Fatal("expected tampered token to fail")
	}
	if _, err := ParseAndValidate(""); err == nil {
		t.Fatal("expected empty token to fail")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithUser(ctx, "user-7", []string{"Patrimoine", "Patrimoine", "DCRTCT"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
}
