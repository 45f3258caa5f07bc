// Package local is an in-memory IdentitySource for development and tests.
// It mirrors the observable behavior of a hosted provider: password
// verification, email confirmation gating, obfuscated duplicate signups, and
// the change-event stream.
package local

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crediq/authsync"
)

// Config holds provider behavior knobs.
type Config struct {
	// SigningKey signs the HS256 access tokens.
	SigningKey string

	// Issuer is stamped into minted tokens. Default "authsync-local".
	Issuer string

	// TokenTTL is the access token lifetime. Default 1h.
	TokenTTL time.Duration

	// AutoConfirm skips the email confirmation step on signup.
	AutoConfirm bool
}

type account struct {
	id           uuid.UUID
	email        string
	passwordHash string
	fullName     string
	confirmed    bool
	createdAt    time.Time
}

// Provider implements authsync.IdentitySource entirely in memory.
type Provider struct {
	config Config
	logger authsync.Logger

	mu       sync.Mutex
	accounts map[string]*account
	current  *authsync.Session
	handlers map[int]authsync.AuthChangeHandler
	nextID   int
}

var _ authsync.IdentitySource = (*Provider)(nil)

// New creates an empty provider.
func New(cfg Config) *Provider {
	if cfg.Issuer == "" {
		cfg.Issuer = "authsync-local"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}

	return &Provider{
		config:   cfg,
		logger:   authsync.NopLogger{},
		accounts: map[string]*account{},
		handlers: map[int]authsync.AuthChangeHandler{},
	}
}

func (p *Provider) WithLogger(logger authsync.Logger) *Provider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Register seeds a confirmed account without emitting events. Test and dev
// bootstrap only.
func (p *Provider) Register(email, password, fullName string) (uuid.UUID, error) {
	acct, err := p.newAccount(email, password, fullName, true)
	if err != nil {
		return uuid.Nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[acct.email]; exists {
		return uuid.Nil, authsync.ErrDuplicateIdentity
	}
	p.accounts[acct.email] = acct
	return acct.id, nil
}

// CurrentSession returns the active session, or nil when signed out.
func (p *Provider) CurrentSession(ctx context.Context) (*authsync.Session, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "session lookup cancelled")
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Clone(), nil
}

// SignInWithPassword verifies credentials and establishes a session. State
// reaches subscribers through the SIGNED_IN event.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "sign in cancelled")
	default:
	}

	p.mu.Lock()
	acct, ok := p.accounts[normalizeEmail(email)]
	if !ok {
		p.mu.Unlock()
		return authsync.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.passwordHash), []byte(password)); err != nil {
		p.mu.Unlock()
		return authsync.ErrInvalidCredentials
	}
	if !acct.confirmed {
		p.mu.Unlock()
		return authsync.ErrConfirmationRequired
	}

	session, err := p.mintSessionLocked(acct)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.current = session
	p.mu.Unlock()

	p.emit(authsync.EventSignedIn, session)
	return nil
}

// SignUp registers an identity. A duplicate email returns the provider-style
// obfuscated response: the existing identity with its original creation
// time, no session, no error.
func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*authsync.SignUpResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "sign up cancelled")
	default:
	}

	fullName, _ := metadata["full_name"].(string)

	acct, err := p.newAccount(email, password, fullName, p.config.AutoConfirm)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.accounts[acct.email]; ok {
		p.mu.Unlock()
		return &authsync.SignUpResult{
			Subject:   existing.id,
			Email:     existing.email,
			CreatedAt: existing.createdAt.UnixMilli(),
		}, nil
	}
	p.accounts[acct.email] = acct

	result := &authsync.SignUpResult{
		Subject:   acct.id,
		Email:     acct.email,
		CreatedAt: acct.createdAt.UnixMilli(),
	}

	if !acct.confirmed {
		p.mu.Unlock()
		return result, nil
	}

	session, err := p.mintSessionLocked(acct)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.current = session
	result.Session = session.Clone()
	p.mu.Unlock()

	p.emit(authsync.EventSignedIn, session)
	return result, nil
}

// SignOut clears the session and notifies subscribers.
func (p *Provider) SignOut(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "sign out cancelled")
	default:
	}

	p.mu.Lock()
	hadSession := p.current != nil
	p.current = nil
	p.mu.Unlock()

	if hadSession {
		p.emit(authsync.EventSignedOut, nil)
	}
	return nil
}

// OnAuthChange subscribes. Matching hosted-provider behavior, the current
// state is replayed to the new subscriber as INITIAL_SESSION.
func (p *Provider) OnAuthChange(handler authsync.AuthChangeHandler) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler
	replay := p.current.Clone()
	p.mu.Unlock()

	handler(authsync.EventInitialSession, replay)

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

// Confirm marks an account's email as verified.
func (p *Provider) Confirm(email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[normalizeEmail(email)]
	if !ok {
		return goerrors.New("no such account", goerrors.CategoryNotFound).
			WithMetadata(map[string]any{"email": email})
	}
	acct.confirmed = true
	return nil
}

// Refresh rotates the current access token and emits TOKEN_REFRESHED.
func (p *Provider) Refresh() error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return authsync.ErrNoActiveSession
	}
	acct := p.accountBySubjectLocked(p.current.Subject)
	if acct == nil {
		p.mu.Unlock()
		return authsync.ErrNoActiveSession
	}
	session, err := p.mintSessionLocked(acct)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.current = session
	p.mu.Unlock()

	p.emit(authsync.EventTokenRefreshed, session)
	return nil
}

func (p *Provider) emit(event authsync.AuthChangeEvent, session *authsync.Session) {
	p.mu.Lock()
	handlers := make([]authsync.AuthChangeHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(event, session.Clone())
	}
}

// newAccount hashes the password and derives a stable subject id from the
// email, so repeated dev bootstraps keep their ids.
func (p *Provider) newAccount(email, password, fullName string, confirmed bool) (*account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, authsync.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}

	return &account{
		id:           id,
		email:        email,
		passwordHash: string(hash),
		fullName:     fullName,
		confirmed:    confirmed,
		createdAt:    time.Now(),
	}, nil
}

func (p *Provider) accountBySubjectLocked(subject uuid.UUID) *account {
	for _, acct := range p.accounts {
		if acct.id == subject {
			return acct
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
