package authsync

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SignUpOutcome classifies a successful registration for caller-visible
// messaging.
type SignUpOutcome struct {
	Subject uuid.UUID `json:"subject,omitempty"`
	// IsNewUser is false only when the provider response was ambiguous and
	// classified as a pre-existing account.
	IsNewUser bool `json:"is_new_user"`
	// ConfirmationRequired means the account exists but cannot sign in until
	// the email verification link is followed.
	ConfirmationRequired bool `json:"confirmation_required"`
}

type signInInput struct {
	Email    string
	Password string
}

func (r signInInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
	)
}

// SignIn delegates to the identity provider. Synchronizer state is not
// mutated here: the provider's SIGNED_IN event is the single channel for
// state transitions. The returned error is a value for display, never a
// panic.
func (s *Synchronizer) SignIn(ctx context.Context, email, password string) error {
	if err := (signInInput{Email: email, Password: password}).Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sign in input").
			WithTextCode(TextCodeInvalidCredentials)
	}

	sctx, cancel := context.WithTimeout(ctx, s.config.SessionTimeout)
	defer cancel()

	if err := s.source.SignInWithPassword(sctx, email, password); err != nil {
		s.logger.Debug("sign in rejected for %s: %v", email, err)
		return err
	}
	return nil
}

// SignUp registers a new identity and classifies the provider response:
//   - a session means an auto-confirmed new account
//   - no session plus a fresh identity means confirmation is pending
//   - no session plus an identity older than the configured window, or with
//     no creation time at all, means the response is not clearly a new
//     account; the provider obfuscates duplicates, so both get the "check
//     your email or sign in" classification rather than a silent new-user
//     success
func (s *Synchronizer) SignUp(ctx context.Context, email, password, fullName string) (*SignUpOutcome, error) {
	if err := (signInInput{Email: email, Password: password}).Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sign up input").
			WithTextCode(TextCodeInvalidCredentials)
	}

	var metadata map[string]any
	if fullName != "" {
		metadata = map[string]any{"full_name": fullName}
	}

	sctx, cancel := context.WithTimeout(ctx, s.config.SessionTimeout)
	defer cancel()

	result, err := s.source.SignUp(sctx, email, password, metadata)
	if err != nil {
		s.logger.Debug("sign up rejected for %s: %v", email, err)
		return nil, err
	}
	if result == nil {
		return nil, WrapTransport(nil, "provider returned no sign up result")
	}

	if result.Session != nil {
		return &SignUpOutcome{Subject: result.Subject, IsNewUser: true}, nil
	}

	// no creation time means we cannot tell a fresh account from an old one
	if result.CreatedAt <= 0 {
		return nil, ErrDuplicateIdentity
	}
	if time.Since(time.UnixMilli(result.CreatedAt)) > s.config.DuplicateIdentityWindow {
		return nil, ErrDuplicateIdentity
	}

	return &SignUpOutcome{
		Subject:              result.Subject,
		IsNewUser:            true,
		ConfirmationRequired: true,
	}, nil
}

// SignOut delegates to the provider; local state clears when the SIGNED_OUT
// event arrives, not here.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, s.config.SessionTimeout)
	defer cancel()

	if err := s.source.SignOut(sctx); err != nil {
		return WrapTransport(err, "sign out failed")
	}
	return nil
}

// UpdateProfile writes through to the store and forces a re-resolution so
// the next published snapshot reflects the stored record.
func (s *Synchronizer) UpdateProfile(ctx context.Context, changes ProfileChanges) error {
	if changes.Empty() {
		return nil
	}
	if changes.Role != nil && !changes.Role.IsValid() {
		return goerrors.New("unknown role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": *changes.Role})
	}

	s.mu.Lock()
	user := s.user
	s.mu.Unlock()
	if user == nil {
		return ErrNoActiveSession
	}

	qctx, cancel := context.WithTimeout(ctx, s.config.ProfileTimeout)
	defer cancel()

	if _, err := s.profiles.Update(qctx, user.ID, changes); err != nil {
		if IsProfileNotFound(err) {
			return err
		}
		return WrapTransport(err, "profile update failed")
	}

	s.mu.Lock()
	if s.closed || s.session == nil || s.session.Subject != user.ID {
		// signed out (or switched identity) while the update was in flight;
		// the event stream owns state now
		s.mu.Unlock()
		return nil
	}
	s.startResolutionLocked(s.session.Clone())
	s.publishLocked()
	return nil
}
