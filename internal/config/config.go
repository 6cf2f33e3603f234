package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env; no business logic reads raw environment variables.
type Config struct {
	HTTPAddr string
	PGDSN    string

	// Failed-login escalation.
	LockoutThreshold int
	LockoutDuration  time.Duration

	// Signature subsystem.
	SignatureHashAlgorithm string
	CertValidityDays       int
}

const (
	defaultHTTPAddr         = ":8080"
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 30 * time.Minute
	defaultCertValidityDays = 365

	// SHA256 is the only recognised signature hash algorithm.
	HashSHA256 = "SHA256"
)

// Load reads configuration from the environment, accumulating parse errors so
// a misconfigured process reports everything at once.
func Load() (Config, error) {
	c := Config{
		HTTPAddr:               defaultHTTPAddr,
		LockoutThreshold:       defaultLockoutThreshold,
		LockoutDuration:        defaultLockoutDuration,
		SignatureHashAlgorithm: HashSHA256,
		CertValidityDays:       defaultCertValidityDays,
	}
	var parseErrs []error

	if v := strings.TrimSpace(os.Getenv("PARCFLOW_HTTP_ADDR")); v != "" {
		c.HTTPAddr = v
	}
	c.PGDSN = strings.TrimSpace(os.Getenv("PARCFLOW_PG_DSN"))

	if v := strings.TrimSpace(os.Getenv("PARCFLOW_LOCKOUT_THRESHOLD")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			parseErrs = append(parseErrs, fmt.Errorf("PARCFLOW_LOCKOUT_THRESHOLD: expected positive integer, got %q", v))
		} else {
			c.LockoutThreshold = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("PARCFLOW_LOCKOUT_DURATION_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			parseErrs = append(parseErrs, fmt.Errorf("PARCFLOW_LOCKOUT_DURATION_MS: expected positive integer, got %q", v))
		} else {
			c.LockoutDuration = time.Duration(n) * time.Millisecond
		}
	}

	if v := strings.TrimSpace(os.Getenv("PARCFLOW_SIGNATURE_HASH")); v != "" {
		if !strings.EqualFold(v, HashSHA256) {
			parseErrs = append(parseErrs, fmt.Errorf("PARCFLOW_SIGNATURE_HASH: unsupported algorithm %q", v))
		} else {
			c.SignatureHashAlgorithm = HashSHA256
		}
	}

	if v := strings.TrimSpace(os.Getenv("PARCFLOW_CERT_VALIDITY_DAYS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			parseErrs = append(parseErrs, fmt.Errorf("PARCFLOW_CERT_VALIDITY_DAYS: expected positive integer, got %q", v))
		} else {
			c.CertValidityDays = n
		}
	}

	if len(parseErrs) > 0 {
		return Config{}, errors.Join(parseErrs...)
	}
	return c, nil
}
