// Package gotrue adapts a GoTrue-compatible auth endpoint (Supabase and
// friends) to authsync.IdentitySource.
package gotrue

import (
	"net/http"
	"strings"
	"time"
)

// Config holds endpoint and verification configuration.
type Config struct {
	// BaseURL is the auth endpoint root, e.g.
	// "https://xyz.supabase.co/auth/v1".
	BaseURL string

	// AnonKey is the public API key sent with every request.
	AnonKey string

	// JWKSURL enables local signature verification of access tokens. When
	// empty, claims are read without verification; the endpoint remains the
	// authority either way.
	JWKSURL string

	// RefreshLeeway is how long before expiry the background refresh fires.
	// Default 30s.
	RefreshLeeway time.Duration

	// HTTPClient overrides the transport. Default: 10s timeout client.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, anonKey string) Config {
	return Config{
		BaseURL:       baseURL,
		AnonKey:       anonKey,
		RefreshLeeway: 30 * time.Second,
	}
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
}
