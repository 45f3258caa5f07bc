package authsync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the read-only cached copy of the credential bundle issued by
// the identity provider. It is replaced wholesale on refresh and cleared on
// sign out; the Synchronizer never mutates one in place.
type Session struct {
	Subject      uuid.UUID  `json:"subject,omitempty"`
	Email        string     `json:"email,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the access token is past its expiry at the given
// instant. Sessions without an expiry never expire locally.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}

// Clone returns a copy safe to hand to subscribers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.IssuedAt != nil {
		t := *s.IssuedAt
		cp.IssuedAt = &t
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

func (s Session) String() string {
	expiresAt := "<nil>"
	if s.ExpiresAt != nil {
		expiresAt = s.ExpiresAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("subject=%s email=%s exp=%s", s.Subject, s.Email, expiresAt)
}
