package authsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthChangeEvent categorizes notifications emitted by an IdentitySource.
type AuthChangeEvent string

const (
	// EventInitialSession is the synthetic replay a provider emits to new
	// subscribers. The Synchronizer ignores it; Start already performed the
	// equivalent work.
	EventInitialSession AuthChangeEvent = "INITIAL_SESSION"
	// EventSignedIn fires after a successful sign in.
	EventSignedIn AuthChangeEvent = "SIGNED_IN"
	// EventSignedOut fires after sign out or session invalidation.
	EventSignedOut AuthChangeEvent = "SIGNED_OUT"
	// EventTokenRefreshed fires when the access token is rotated for the
	// same identity.
	EventTokenRefreshed AuthChangeEvent = "TOKEN_REFRESHED"
	// EventUserUpdated fires when provider-side identity attributes change.
	EventUserUpdated AuthChangeEvent = "USER_UPDATED"
)

// AuthChangeHandler receives identity change notifications. session is nil
// for signed-out events.
type AuthChangeHandler func(event AuthChangeEvent, session *Session)

// SignUpResult is the provider response to a registration attempt. A nil
// Session with a non-zero CreatedAt means the provider returned an identity
// without credentials, which callers must classify (new account pending
// confirmation vs. pre-existing account).
type SignUpResult struct {
	Subject   uuid.UUID
	Email     string
	Session   *Session
	CreatedAt int64 // unix millis of identity creation, 0 when unknown
}

// IdentitySource is the external identity provider contract consumed by the
// Synchronizer.
type IdentitySource interface {
	// CurrentSession returns the active session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)

	// SignInWithPassword authenticates and establishes a session. State
	// changes are delivered through OnAuthChange, not the return value.
	SignInWithPassword(ctx context.Context, email, password string) error

	// SignUp registers a new identity. Metadata is stored provider-side and
	// seeds the profile row (full_name etc).
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)

	// SignOut invalidates the current session.
	SignOut(ctx context.Context) error

	// OnAuthChange subscribes to the change stream. The returned func
	// removes the subscription.
	OnAuthChange(handler AuthChangeHandler) (unsubscribe func())
}

// ProfileStore is the keyed record store that owns user_profiles.
type ProfileStore interface {
	// GetByID returns the profile for a subject id, or a not-found error
	// (see IsProfileNotFound).
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)

	// Update applies partial changes and returns the stored record.
	Update(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*Profile, error)

	// Seed inserts a minimal profile row. Used only for orphaned-identity
	// repair.
	Seed(ctx context.Context, profile *Profile) (*Profile, error)
}

// NopLogger discards everything. Useful for providers embedded in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHSYNC "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
