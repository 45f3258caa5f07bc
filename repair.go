package authsync

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SeedProfileMessage requests creation of a minimal profile row for an
// identity that finished signup without one.
type SeedProfileMessage struct {
	Subject  uuid.UUID `json:"subject"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name,omitempty"`
	Role     Role      `json:"role,omitempty"`
}

func (m SeedProfileMessage) Type() string { return "profile.seed" }

// SeedProfileHandler executes SeedProfileMessage against a ProfileStore.
type SeedProfileHandler struct {
	Profiles ProfileStore
	Timeout  time.Duration
}

func (h *SeedProfileHandler) Execute(ctx context.Context, msg SeedProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation,
			"context cancelled during profile seed")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *SeedProfileHandler) execute(ctx context.Context, msg SeedProfileMessage) error {
	if h.Profiles == nil {
		return goerrors.New("profile store is required", goerrors.CategoryValidation)
	}
	if msg.Subject == uuid.Nil {
		return goerrors.New("subject is required", goerrors.CategoryValidation)
	}

	role := msg.Role
	if role == "" {
		role = RoleLoanOfficer
	}
	if !role.IsValid() {
		return goerrors.New("unknown role for profile seed", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": role})
	}

	timeout := h.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	profile := &Profile{
		ID:       msg.Subject,
		Email:    msg.Email,
		FullName: msg.FullName,
		Role:     role,
	}

	if _, err := h.Profiles.Seed(ctx, profile); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not seed profile")
	}

	return nil
}
