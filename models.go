package authsync

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the application-owned role stored on a profile
type Role string

const (
	// RoleLoanOfficer scores and submits loan applications
	RoleLoanOfficer Role = "loan_officer"
	// RoleRiskManager additionally manages the portfolio views
	RoleRiskManager Role = "risk_manager"
)

// Profile is the application record keyed by the identity provider's
// subject id. One row per subject, or none (orphaned identity).
type Profile struct {
	bun.BaseModel `bun:"table:user_profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName      string     `bun:"full_name" json:"full_name,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureRole backfills the default role on records created before roles
// were mandatory.
func (p *Profile) EnsureRole() {
	if p.Role == "" {
		p.Role = RoleLoanOfficer
	}
}

// Clone returns a deep copy so published snapshots never alias store rows.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.CreatedAt != nil {
		t := *p.CreatedAt
		cp.CreatedAt = &t
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		cp.UpdatedAt = &t
	}
	return &cp
}

// ProfileChanges carries the mutable subset of a profile for partial
// updates. Nil fields are left untouched.
type ProfileChanges struct {
	FullName *string `json:"full_name,omitempty"`
	Role     *Role   `json:"role,omitempty"`
}

// Empty reports whether the change set would be a no-op.
func (c ProfileChanges) Empty() bool {
	return c.FullName == nil && c.Role == nil
}
