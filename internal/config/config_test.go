package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARCFLOW_HTTP_ADDR", "")
	t.Setenv("PARCFLOW_LOCKOUT_THRESHOLD", "")
	t.Setenv("PARCFLOW_LOCKOUT_DURATION_MS", "")
	t.Setenv("PARCFLOW_SIGNATURE_HASH", "")
	t.Setenv("PARCFLOW_CERT_VALIDITY_DAYS", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr: %s", c.HTTPAddr)
	}
	if c.LockoutThreshold != 5 {
		t.Fatalf("unexpected lockout threshold: %d", c.LockoutThreshold)
	}
	if c.LockoutDuration != 30*time.Minute {
		t.Fatalf("unexpected lockout duration: %v", c.LockoutDuration)
	}
	if c.SignatureHashAlgorithm != HashSHA256 {
		t.Fatalf("unexpected hash algorithm: %s", c.SignatureHashAlgorithm)
	}
	if c.CertValidityDays != 365 {
		t.Fatalf("unexpected cert validity: %d", c.CertValidityDays)
	}
}

func TestLoadOverridesAndErrors(t *testing.T) {
	t.Setenv("PARCFLOW_LOCKOUT_THRESHOLD", "3")
	t.Setenv("PARCFLOW_LOCKOUT_DURATION_MS", "60000")
	t.Setenv("PARCFLOW_CERT_VALIDITY_DAYS", "30")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LockoutThreshold != 3 {
		t.Fatalf("unexpected threshold: %d", c.LockoutThreshold)
	}
	if c.LockoutDuration != time.Minute {
		t.Fatalf("unexpected duration: %v", c.LockoutDuration)
	}
	if c.CertValidityDays != 30 {
		t.Fatalf("unexpected validity: %d", c.CertValidityDays)
	}

	t.Setenv("PARCFLOW_SIGNATURE_HASH", "MD5")
	t.Setenv("PARCFLOW_LOCKOUT_THRESHOLD", "zero")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad values")
	}
}
