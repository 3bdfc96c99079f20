// Package config validates and loads process-level environment
// configuration for the quiz lobby server, the way the teacher's
// internal/v1/config package validates its own required variables up
// front and fails fast with a combined error list.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the server.
type Config struct {
	// BindAddr is overridden by the first CLI argument if present.
	BindAddr string

	// JWTSecret signs and verifies session tokens (Component C).
	JWTSecret string

	// TLSEnabled turns on the optional TLS listener.
	TLSEnabled  bool
	TLSPKCS12   string // path to a PKCS#12 identity bundle
	TLSPassword string // PKCS#12 bundle passphrase

	LogDir   string
	LogLevel string
	GoEnv    string

	// OTELCollectorAddr, when non-empty, enables trace export (Component J).
	OTELCollectorAddr string
}

// FromEnv validates all required environment variables and returns a
// Config. Errors are combined so a misconfigured deployment reports every
// problem in one pass rather than one env var at a time.
func FromEnv(getenv func(string) string) (*Config, error) {
	var errs []string
	cfg := &Config{
		BindAddr: "127.0.0.1:9001",
		LogDir:   "log",
		LogLevel: "info",
		GoEnv:    "production",
	}

	cfg.JWTSecret = getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	if v := getenv("BIND_ADDR"); v != "" {
		if !isValidHostPort(v) {
			errs = append(errs, fmt.Sprintf("BIND_ADDR must be in format 'host:port' (got %q)", v))
		} else {
			cfg.BindAddr = v
		}
	}

	cfg.TLSEnabled = getenv("TLS_ENABLED") == "true"
	if cfg.TLSEnabled {
		cfg.TLSPKCS12 = getenv("TLS_PKCS12_PATH")
		if cfg.TLSPKCS12 == "" {
			errs = append(errs, "TLS_PKCS12_PATH is required when TLS_ENABLED=true")
		}
		cfg.TLSPassword = getenv("TLS_PKCS12_PASSWORD")
	}

	if v := getenv("LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("GO_ENV"); v != "" {
		cfg.GoEnv = v
	}

	cfg.OTELCollectorAddr = getenv("OTEL_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

// ParseBindAddrArg applies the process's optional first CLI argument as
// the bind address override (spec.md §6 "Process surface").
func (c *Config) ParseBindAddrArg(args []string) {
	if len(args) > 1 && args[1] != "" {
		c.BindAddr = args[1]
	}
}

// isValidHostPort reports whether addr looks like "host:port" with a
// numeric, in-range port. Kept for parity with the teacher's validation
// style even though BindAddr itself is optional.
func isValidHostPort(addr string) bool {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return false
	}
	port, err := strconv.Atoi(addr[idx+1:])
	return err == nil && port >= 1 && port <= 65535
}
