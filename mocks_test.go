package authsync_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/crediq/authsync"
)

// stubSource is a controllable IdentitySource. Tests set the current session
// directly and push events through Emit.
type stubSource struct {
	mu         sync.Mutex
	current    *authsync.Session
	currentErr error
	// sessionDelay slows CurrentSession to widen race windows.
	sessionDelay time.Duration

	signInErr    error
	signUpResult *authsync.SignUpResult
	signUpErr    error
	signOutErr   error

	handlers map[int]authsync.AuthChangeHandler
	nextID   int

	currentCalls int
	signInCalls  int
	signOutCalls int
}

func newStubSource() *stubSource {
	return &stubSource{handlers: map[int]authsync.AuthChangeHandler{}}
}

func (s *stubSource) setSession(session *authsync.Session) {
	s.mu.Lock()
	s.current = session.Clone()
	s.mu.Unlock()
}

func (s *stubSource) CurrentSession(ctx context.Context) (*authsync.Session, error) {
	s.mu.Lock()
	s.currentCalls++
	delay := s.sessionDelay
	session := s.current.Clone()
	err := s.currentErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return session, err
}

func (s *stubSource) SignInWithPassword(ctx context.Context, email, password string) error {
	s.mu.Lock()
	s.signInCalls++
	err := s.signInErr
	s.mu.Unlock()
	return err
}

func (s *stubSource) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*authsync.SignUpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signUpResult, s.signUpErr
}

func (s *stubSource) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.signOutCalls++
	err := s.signOutErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.setSession(nil)
	s.Emit(authsync.EventSignedOut, nil)
	return nil
}

func (s *stubSource) OnAuthChange(handler authsync.AuthChangeHandler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

// Emit pushes an event to every subscriber, updating the stored current
// session to stay consistent with the TOCTOU re-check.
func (s *stubSource) Emit(event authsync.AuthChangeEvent, session *authsync.Session) {
	s.mu.Lock()
	if event != authsync.EventInitialSession {
		s.current = session.Clone()
	}
	handlers := make([]authsync.AuthChangeHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(event, session.Clone())
	}
}

func (s *stubSource) sessionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCalls
}

// stubProfiles is an in-memory ProfileStore with per-subject artificial
// latency and call counting.
type stubProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*authsync.Profile
	// delays holds per-subject latency applied before returning, ignoring
	// context cancellation so stale completions actually complete.
	delays map[uuid.UUID]time.Duration
	// notFoundFirst makes the first N lookups per subject miss, simulating
	// the provider-side trigger that creates the row after signup.
	notFoundFirst map[uuid.UUID]int
	getErr        error

	getCalls  map[uuid.UUID]int
	seedCalls int
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{
		profiles:      map[uuid.UUID]*authsync.Profile{},
		delays:        map[uuid.UUID]time.Duration{},
		notFoundFirst: map[uuid.UUID]int{},
		getCalls:      map[uuid.UUID]int{},
	}
}

func (s *stubProfiles) put(p *authsync.Profile) {
	s.mu.Lock()
	s.profiles[p.ID] = p.Clone()
	s.mu.Unlock()
}

func (s *stubProfiles) GetByID(ctx context.Context, id uuid.UUID) (*authsync.Profile, error) {
	s.mu.Lock()
	s.getCalls[id]++
	delay := s.delays[id]
	miss := s.getCalls[id] <= s.notFoundFirst[id]
	profile := s.profiles[id].Clone()
	err := s.getErr
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if miss || profile == nil {
		return nil, authsync.ErrProfileNotFound
	}
	return profile, nil
}

func (s *stubProfiles) Update(ctx context.Context, id uuid.UUID, changes authsync.ProfileChanges) (*authsync.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := s.profiles[id]
	if profile == nil {
		return nil, authsync.ErrProfileNotFound
	}
	if changes.FullName != nil {
		profile.FullName = *changes.FullName
	}
	if changes.Role != nil {
		profile.Role = *changes.Role
	}
	return profile.Clone(), nil
}

func (s *stubProfiles) Seed(ctx context.Context, profile *authsync.Profile) (*authsync.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seedCalls++
	if _, exists := s.profiles[profile.ID]; !exists {
		s.profiles[profile.ID] = profile.Clone()
	}
	return s.profiles[profile.ID].Clone(), nil
}

func (s *stubProfiles) calls(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[id]
}

// MockProfileStore is a testify mock for expectation-style tests.
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetByID(ctx context.Context, id uuid.UUID) (*authsync.Profile, error) {
	args := m.Called(ctx, id)
	profile, _ := args.Get(0).(*authsync.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) Update(ctx context.Context, id uuid.UUID, changes authsync.ProfileChanges) (*authsync.Profile, error) {
	args := m.Called(ctx, id, changes)
	profile, _ := args.Get(0).(*authsync.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) Seed(ctx context.Context, profile *authsync.Profile) (*authsync.Profile, error) {
	args := m.Called(ctx, profile)
	stored, _ := args.Get(0).(*authsync.Profile)
	return stored, args.Error(1)
}

func testSession(subject uuid.UUID, email string) *authsync.Session {
	now := time.Now()
	expires := now.Add(time.Hour)
	return &authsync.Session{
		Subject:     subject,
		Email:       email,
		AccessToken: "token-" + uuid.NewString(),
		IssuedAt:    &now,
		ExpiresAt:   &expires,
	}
}

func testProfile(subject uuid.UUID, email string, role authsync.Role) *authsync.Profile {
	return &authsync.Profile{
		ID:    subject,
		Email: email,
		Role:  role,
	}
}

func fastConfig() authsync.Config {
	cfg := authsync.DefaultConfig()
	cfg.SessionTimeout = time.Second
	cfg.ProfileTimeout = time.Second
	cfg.ProfileRetryAttempts = 2
	cfg.ProfileRetryInitialWait = 5 * time.Millisecond
	cfg.ProfileRetryMaxWait = 20 * time.Millisecond
	return cfg
}
