package authsync

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Synchronizer drives the protocol that keeps the cached session and the
// resolved user consistent with the identity provider and the profile store.
// Construct one per process with New, call Start once, and tear it down with
// Close. All state transitions flow through the identity change stream;
// callers never mutate state directly.
type Synchronizer struct {
	source   IdentitySource
	profiles ProfileStore
	config   Config
	logger   Logger

	mu       sync.Mutex
	notifyMu sync.Mutex

	session *Session
	user    *ResolvedUser
	loading bool

	// seq is the current resolution token: every identity change bumps it,
	// and every asynchronous resumption compares against it to detect
	// staleness. It replaces per-fetch boolean guards.
	seq      uint64
	inflight *resolution

	started bool
	closed  bool

	listeners  map[int]func(Snapshot)
	nextListen int

	// pubSeq numbers publications under mu; delivered (guarded by notifyMu)
	// drops a publication that lost the delivery race to a newer one
	pubSeq    uint64
	delivered uint64

	unsub     func()
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// resolution tracks the single in-flight profile fetch.
type resolution struct {
	subject uuid.UUID
	seq     uint64
	cancel  context.CancelFunc
}

// New creates a Synchronizer. The zero Config takes defaults; see Config for
// the knobs.
func New(source IdentitySource, profiles ProfileStore, cfg Config) (*Synchronizer, error) {
	if source == nil {
		return nil, goerrors.New("identity source is required", goerrors.CategoryValidation)
	}
	if profiles == nil {
		return nil, goerrors.New("profile store is required", goerrors.CategoryValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Synchronizer{
		source:    source,
		profiles:  profiles,
		config:    cfg.withDefaults(),
		logger:    defLogger{},
		loading:   true,
		listeners: map[int]func(Snapshot){},
	}, nil
}

func (s *Synchronizer) WithLogger(logger Logger) *Synchronizer {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Start performs the initial session lookup, kicks off profile resolution
// when a session is present, and subscribes to the identity change stream
// for the life of the Synchronizer. A failing session lookup is not an
// error: it surfaces as the signed-out state.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return goerrors.New("synchronizer is closed", goerrors.CategoryOperation)
	}
	if s.started {
		s.mu.Unlock()
		return goerrors.New("synchronizer already started", goerrors.CategoryOperation)
	}
	s.started = true
	s.loading = true
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	token := s.seq
	s.mu.Unlock()

	// subscribe before the session lookup so a login racing with startup is
	// never lost; the seq check below discards our lookup if an event beat us
	unsub := s.source.OnAuthChange(s.handleAuthChange)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, s.config.SessionTimeout)
	session, err := s.source.CurrentSession(sctx)
	cancel()

	s.mu.Lock()
	if s.closed || s.seq != token {
		s.mu.Unlock()
		return nil
	}

	if err != nil {
		s.logger.Warn("initial session lookup failed, starting signed out: %v", err)
		session = nil
	}

	if session == nil {
		s.session = nil
		s.user = nil
		s.loading = false
		s.publishLocked()
		return nil
	}

	s.logger.Debug("restored session for subject %s", session.Subject)
	s.session = session.Clone()
	s.startResolutionLocked(session.Clone())
	s.publishLocked()
	return nil
}

// handleAuthChange is the single entry point for provider notifications.
func (s *Synchronizer) handleAuthChange(event AuthChangeEvent, session *Session) {
	if event == EventInitialSession {
		// Start already did this work; acting on the replay would race a
		// redundant resolution against the initial one
		s.logger.Debug("ignoring initial session replay")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if session == nil {
		s.seq++
		if s.inflight != nil {
			s.inflight.cancel()
			s.inflight = nil
		}
		s.session = nil
		s.user = nil
		s.loading = false
		s.logger.Debug("signed out (%s)", event)
		s.publishLocked()
		return
	}

	// at most one in-flight fetch per subject: a second event for the same
	// identity rides on the existing resolution
	if s.inflight != nil && s.inflight.subject == session.Subject {
		s.session = session.Clone()
		s.publishLocked()
		return
	}

	// token rotation for the already-resolved identity swaps the session
	// only; sign-in and user-updated events re-fetch because the role can
	// change server side
	if event == EventTokenRefreshed && !s.loading && s.user != nil && s.user.ID == session.Subject {
		s.session = session.Clone()
		s.publishLocked()
		return
	}

	s.session = session.Clone()
	s.startResolutionLocked(session.Clone())
	s.publishLocked()
}

// startResolutionLocked supersedes any in-flight resolution and begins a new
// cycle for the given session. Callers must hold mu.
func (s *Synchronizer) startResolutionLocked(session *Session) {
	s.seq++
	token := s.seq

	if s.inflight != nil {
		s.inflight.cancel()
	}

	rctx, cancel := context.WithCancel(s.runCtx)
	s.inflight = &resolution{subject: session.Subject, seq: token, cancel: cancel}
	s.loading = true

	s.wg.Add(1)
	go s.resolve(rctx, token, session)
}

// complete publishes the outcome of a resolution cycle, unless a newer cycle
// superseded it. The in-flight guard is released here on every path.
func (s *Synchronizer) complete(ctx context.Context, token uint64, user *ResolvedUser, err error) {
	s.mu.Lock()

	if s.inflight != nil && s.inflight.seq == token {
		s.inflight.cancel()
		s.inflight = nil
	}

	if s.closed || token != s.seq {
		s.mu.Unlock()
		s.logger.Debug("discarding stale resolution result (token=%d current=%d)", token, s.seq)
		return
	}

	switch {
	case err == nil:
		s.user = user
	case IsProfileNotFound(err):
		s.logger.Info("subject has no profile record, publishing signed-in-without-profile as nil user")
		s.user = nil
	case IsIdentityMismatch(err):
		s.logger.Debug("session changed mid-resolution, clearing user")
		s.user = nil
	case ctx.Err() != nil:
		s.logger.Debug("resolution canceled: %v", ctx.Err())
		s.user = nil
	default:
		s.logger.Error("profile resolution failed: %v", err)
		s.user = nil
	}

	s.loading = false
	s.publishLocked()
}

// Snapshot returns the current read-only state. Loading true means no
// decision has been made yet.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) snapshotLocked() Snapshot {
	return Snapshot{
		User:    s.user.Clone(),
		Session: s.session.Clone(),
		Loading: s.loading,
	}
}

// OnChange registers a listener invoked with each published snapshot, in
// publication order. Listeners may call Snapshot, should return quickly, and
// must not reenter methods that publish (the actions, Close). The returned
// func unsubscribes.
func (s *Synchronizer) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// WaitSettled blocks until loading is false (or ctx expires) and returns the
// settled snapshot.
func (s *Synchronizer) WaitSettled(ctx context.Context) (Snapshot, error) {
	settled := make(chan Snapshot, 1)
	var once sync.Once

	unsub := s.OnChange(func(snap Snapshot) {
		if !snap.Loading {
			once.Do(func() { settled <- snap })
		}
	})
	defer unsub()

	if snap := s.Snapshot(); !snap.Loading {
		return snap, nil
	}

	select {
	case snap := <-settled:
		return snap, nil
	case <-ctx.Done():
		return s.Snapshot(), goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation,
			"timed out waiting for auth state to settle")
	}
}

// publishLocked delivers the current state to listeners in state order.
// Callers must hold mu; it is released before notifyMu is taken, so a
// listener is always free to call Snapshot. Ordering is kept by numbering
// publications under mu: a publication that loses the delivery race to a
// newer one is dropped instead of delivered stale.
func (s *Synchronizer) publishLocked() {
	s.pubSeq++
	pub := s.pubSeq
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if pub <= s.delivered {
		return
	}
	s.delivered = pub

	for _, fn := range listeners {
		fn(snap)
	}
}

// Close unsubscribes from the change stream, cancels any in-flight
// resolution, and waits for background work to drain. Idempotent.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	if s.inflight != nil {
		s.inflight.cancel()
		s.inflight = nil
	}
	cancel := s.runCancel
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}
