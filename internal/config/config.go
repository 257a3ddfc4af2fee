// Package config reads the handful of environment variables that
// configure the gateway, per spec.md §6.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Mode selects which guest invocation protocol the gateway speaks.
type Mode int

const (
	// ModeCGI drives guests through the classic CGI convention.
	ModeCGI Mode = iota
	// ModeLambda drives guests through the event-driven Lambda convention.
	ModeLambda
)

func (m Mode) String() string {
	if m == ModeLambda {
		return "lambda"
	}
	return "cgi"
}

// Config is the gateway's entire configuration surface.
type Config struct {
	Mode Mode

	// ListenAddr is the address net/http.Server binds to.
	ListenAddr string

	// CacheRoot is the module cache's root directory.
	CacheRoot string

	// LogLevel configures the server's own structured logs.
	LogLevel string

	// GuestLogLevel configures the severity guest stdout/stderr lines are
	// forwarded at.
	GuestLogLevel string

	// GuestTimeout bounds a single guest invocation; zero disables the
	// bound entirely (spec.md §9: "no deadline is applied by default").
	GuestTimeout time.Duration

	// MaxBodyBytes caps the request body the gateway will read before
	// handing it to a guest.
	MaxBodyBytes int64
}

const (
	defaultListenAddr    = "0.0.0.0:9000"
	defaultLogLevel      = "info"
	defaultGuestLogLevel = "info"
	defaultMaxBodyBytes  = 10 << 20 // 10 MiB
)

// FromEnv builds a Config from the process environment, applying
// defaults for anything unset.
func FromEnv() Config {
	cfg := Config{
		Mode:          ModeCGI,
		ListenAddr:    defaultListenAddr,
		CacheRoot:     defaultCacheRoot(),
		LogLevel:      defaultLogLevel,
		GuestLogLevel: defaultGuestLogLevel,
		MaxBodyBytes:  defaultMaxBodyBytes,
	}

	if os.Getenv("WGI_MODE") == "lambda" {
		cfg.Mode = ModeLambda
	}
	if v := os.Getenv("WCGI_CACHE_DIR"); v != "" {
		cfg.CacheRoot = v
	}
	if v := os.Getenv("WCGI_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("WCGI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WCGI_GUEST_LOG_LEVEL"); v != "" {
		cfg.GuestLogLevel = v
	}
	if v := os.Getenv("WCGI_GUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.GuestTimeout = d
		}
	}

	return cfg
}

func defaultCacheRoot() string {
	if v := os.Getenv("WCGI_CACHE_DIR"); v != "" {
		return v
	}
	return filepath.Join(os.TempDir(), "wcgi")
}
