package authsync

import "github.com/google/uuid"

// ResolvedUser is the merged view of session identity plus profile. It
// exists if and only if both a valid session and a matching profile exist.
type ResolvedUser struct {
	ID      uuid.UUID `json:"id,omitempty"`
	Email   string    `json:"email,omitempty"`
	Profile *Profile  `json:"profile,omitempty"`
}

// Clone returns a copy safe to hand to subscribers.
func (u *ResolvedUser) Clone() *ResolvedUser {
	if u == nil {
		return nil
	}
	return &ResolvedUser{
		ID:      u.ID,
		Email:   u.Email,
		Profile: u.Profile.Clone(),
	}
}

// Snapshot is the eventually-consistent read-only view published by the
// Synchronizer. While Loading is true no decision has been made yet and
// callers must not act on User or Session.
type Snapshot struct {
	User    *ResolvedUser `json:"user,omitempty"`
	Session *Session      `json:"session,omitempty"`
	Loading bool          `json:"loading"`
}

// Authenticated reports whether a settled, fully resolved identity is
// available.
func (s Snapshot) Authenticated() bool {
	return !s.Loading && s.User != nil && s.Session != nil
}

// Role returns the resolved role, or "" while unresolved.
func (s Snapshot) Role() Role {
	if s.User == nil || s.User.Profile == nil {
		return ""
	}
	return s.User.Profile.Role
}
