package authsync

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// resolve runs one resolution cycle off the caller's goroutine. Completion,
// and with it the in-flight guard release, is deferred so no exit path can
// skip it — including a panicking collaborator.
func (s *Synchronizer) resolve(ctx context.Context, token uint64, session *Session) {
	defer s.wg.Done()

	var (
		user *ResolvedUser
		err  error
	)
	defer func() { s.complete(ctx, token, user, err) }()

	user, err = s.fetchUser(ctx, session)
}

// fetchUser re-validates the session, queries the profile store, and merges
// the result into a ResolvedUser.
func (s *Synchronizer) fetchUser(ctx context.Context, session *Session) (*ResolvedUser, error) {
	// the session may have been signed out (or swapped to another subject)
	// between the event that started this cycle and now; resolving a profile
	// for a dead identity would publish stale security-relevant state
	sctx, cancel := context.WithTimeout(ctx, s.config.SessionTimeout)
	current, err := s.source.CurrentSession(sctx)
	cancel()
	if err != nil {
		return nil, WrapTransport(err, "session re-check before profile query failed")
	}
	if current == nil || current.Subject != session.Subject {
		return nil, ErrIdentityMismatch
	}

	profile, err := s.fetchProfile(ctx, session.Subject)
	if err != nil && IsProfileNotFound(err) && s.config.RepairOrphans {
		profile, err = s.repairOrphan(ctx, session)
	}
	if err != nil {
		return nil, err
	}

	profile = profile.Clone()
	profile.EnsureRole()

	return &ResolvedUser{
		ID:      session.Subject,
		Email:   session.Email,
		Profile: profile,
	}, nil
}

// fetchProfile queries the store with a bounded retry: a missing row right
// after signup usually means the provider-side trigger that creates
// user_profiles has not fired yet. Transport failures are permanent; only
// not-found is retried, within the configured attempt and delay caps.
func (s *Synchronizer) fetchProfile(ctx context.Context, subject uuid.UUID) (*Profile, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.ProfileRetryInitialWait
	policy.MaxInterval = s.config.ProfileRetryMaxWait
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() (*Profile, error) {
		attempt++

		qctx, cancel := context.WithTimeout(ctx, s.config.ProfileTimeout)
		defer cancel()

		profile, err := s.profiles.GetByID(qctx, subject)
		if err == nil {
			return profile, nil
		}

		if IsProfileNotFound(err) {
			s.logger.Debug("profile for %s not found (attempt %d)", subject, attempt)
			return nil, ErrProfileNotFound
		}

		return nil, backoff.Permanent(WrapTransport(err, "profile query failed"))
	}

	return backoff.RetryWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, s.config.ProfileRetryAttempts), ctx),
	)
}

// repairOrphan is the opt-in compensating step for a half-finished signup:
// the identity exists but the profile row never materialized. It seeds a
// minimal row and reads it back.
func (s *Synchronizer) repairOrphan(ctx context.Context, session *Session) (*Profile, error) {
	s.logger.Warn("seeding repair profile for orphaned subject %s", session.Subject)

	handler := &SeedProfileHandler{Profiles: s.profiles, Timeout: s.config.ProfileTimeout}
	msg := SeedProfileMessage{
		Subject: session.Subject,
		Email:   session.Email,
		Role:    s.config.RepairRole,
	}
	if err := handler.Execute(ctx, msg); err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, s.config.ProfileTimeout)
	defer cancel()

	profile, err := s.profiles.GetByID(qctx, session.Subject)
	if err != nil {
		return nil, WrapTransport(err, "profile read-back after repair failed")
	}
	return profile, nil
}
