package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/crediq/authsync"
)

// Provider implements authsync.IdentitySource against a GoTrue endpoint. It
// owns the cached session, rotates it before expiry, and fans provider
// events out to subscribers.
type Provider struct {
	config     Config
	httpClient *http.Client
	logger     authsync.Logger
	verifier   *tokenVerifier

	mu           sync.Mutex
	current      *authsync.Session
	refreshToken string
	refreshTimer *time.Timer
	handlers     map[int]authsync.AuthChangeHandler
	nextID       int
	closed       bool
}

var _ authsync.IdentitySource = (*Provider)(nil)

// New creates the provider. When cfg.JWKSURL is set the JWKS is fetched
// eagerly so token verification failures surface at construction.
func New(cfg Config) (*Provider, error) {
	if cfg.baseURL() == "" {
		return nil, goerrors.New("gotrue: base URL is required", goerrors.CategoryValidation)
	}
	if cfg.RefreshLeeway == 0 {
		cfg.RefreshLeeway = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	verifier, err := newTokenVerifier(cfg.JWKSURL)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
		logger:     authsync.NopLogger{},
		verifier:   verifier,
		handlers:   map[int]authsync.AuthChangeHandler{},
	}, nil
}

func (p *Provider) WithLogger(logger authsync.Logger) *Provider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// CurrentSession returns the cached session, refreshing it synchronously
// when it is past (or within leeway of) expiry.
func (p *Provider) CurrentSession(ctx context.Context) (*authsync.Session, error) {
	p.mu.Lock()
	session := p.current.Clone()
	refreshToken := p.refreshToken
	p.mu.Unlock()

	if session == nil {
		return nil, nil
	}
	if !session.Expired(time.Now().Add(p.config.RefreshLeeway)) {
		return session, nil
	}
	if refreshToken == "" {
		return nil, nil
	}

	refreshed, err := p.refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return refreshed.Clone(), nil
}

// SignInWithPassword performs the password grant and emits SIGNED_IN.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	var resp tokenResponse
	err := p.do(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}

	session, err := p.sessionFromTokenResponse(&resp)
	if err != nil {
		return err
	}

	p.setSession(session, resp.RefreshToken)
	p.emit(authsync.EventSignedIn, session)
	return nil
}

// SignUp registers an identity. GoTrue returns a bare user object (no
// session) both for fresh unconfirmed accounts and for duplicates; the
// result carries the identity creation time so the caller can classify.
func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*authsync.SignUpResult, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var resp signUpResponse
	if err := p.do(ctx, http.MethodPost, "/signup", "", body, &resp); err != nil {
		return nil, err
	}

	result, session, err := p.signUpResult(&resp)
	if err != nil {
		return nil, err
	}

	if session != nil {
		p.setSession(session, resp.RefreshToken)
		p.emit(authsync.EventSignedIn, session)
	}
	return result, nil
}

// SignOut revokes the session endpoint-side, then clears local state and
// emits SIGNED_OUT. A revocation transport failure still signs out locally:
// the cached credentials are gone either way.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := ""
	if p.current != nil {
		token = p.current.AccessToken
	}
	p.mu.Unlock()

	if token != "" {
		if err := p.do(ctx, http.MethodPost, "/logout", token, nil, nil); err != nil {
			p.logger.Warn("gotrue: remote logout failed: %v", err)
		}
	}

	p.clearSession()
	p.emit(authsync.EventSignedOut, nil)
	return nil
}

// OnAuthChange subscribes to the change stream. The current state replays to
// the new subscriber as INITIAL_SESSION.
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

// Close stops the background refresh and releases the JWKS refresher.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	p.mu.Unlock()

	if p.verifier != nil {
		p.verifier.Close()
	}
	return nil
}

// refresh exchanges the refresh token and emits TOKEN_REFRESHED. A rejected
// refresh token ends the session.
func (p *Provider) refresh(ctx context.Context, refreshToken string) (*authsync.Session, error) {
	var resp tokenResponse
	err := p.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		if isAuthRejection(err) {
			p.logger.Info("gotrue: refresh token rejected, signing out")
			p.clearSession()
			p.emit(authsync.EventSignedOut, nil)
			return nil, nil
		}
		return nil, err
	}

	session, err := p.sessionFromTokenResponse(&resp)
	if err != nil {
		return nil, err
	}

	p.setSession(session, resp.RefreshToken)
	p.emit(authsync.EventTokenRefreshed, session)
	return session, nil
}

func (p *Provider) setSession(session *authsync.Session, refreshToken string) {
	p.mu.Lock()
	p.current = session.Clone()
	p.refreshToken = refreshToken
	p.scheduleRefreshLocked(session)
	p.mu.Unlock()
}

func (p *Provider) clearSession() {
	p.mu.Lock()
	p.current = nil
	p.refreshToken = ""
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	p.mu.Unlock()
}

// scheduleRefreshLocked arms the rotation timer for leeway before expiry.
// Callers must hold mu.
func (p *Provider) scheduleRefreshLocked(session *authsync.Session) {
	if p.refreshTimer != nil {
		p.refreshTimer.Stop()
		p.refreshTimer = nil
	}
	if p.closed || session == nil || session.ExpiresAt == nil || p.refreshToken == "" {
		return
	}

	wait := time.Until(session.ExpiresAt.Add(-p.config.RefreshLeeway))
	if wait < time.Second {
		wait = time.Second
	}

	token := p.refreshToken
	p.refreshTimer = time.AfterFunc(wait, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := p.refresh(ctx, token); err != nil {
			p.logger.Warn("gotrue: background token refresh failed: %v", err)
		}
	})
}

func (p *Provider) emit(event authsync.AuthChangeEvent, session *authsync.Session) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	handlers := make([]authsync.AuthChangeHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(event, session.Clone())
	}
}

// do performs one JSON request against the endpoint. A bearer token
// overrides the anon key for authenticated routes.
func (p *Provider) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "gotrue: failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.baseURL()+path, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "gotrue: failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	if p.config.AnonKey != "" {
		req.Header.Set("apikey", p.config.AnonKey)
	}
	token := bearer
	if token == "" {
		token = p.config.AnonKey
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return authsync.WrapTransport(err, "gotrue: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return authsync.WrapTransport(err, "gotrue: failed to read response")
	}

	if resp.StatusCode >= 400 {
		return classifyAPIError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return authsync.WrapTransport(err, "gotrue: failed to decode response")
		}
	}
	return nil
}

// apiError is the union of GoTrue error body shapes across versions.
type apiError struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// classifyAPIError maps endpoint rejections onto the shared taxonomy so
// callers can branch without inspecting provider-specific strings.
func classifyAPIError(status int, raw []byte) error {
	var body apiError
	_ = json.Unmarshal(raw, &body)

	text := body.text()
	if text == "" {
		text = fmt.Sprintf("gotrue: request failed with status %d", status)
	}
	lower := strings.ToLower(text)

	switch {
	case body.ErrorCode == "user_already_exists" || strings.Contains(lower, "already registered"):
		return authsync.ErrDuplicateIdentity
	case body.ErrorCode == "email_not_confirmed" || strings.Contains(lower, "not confirmed"):
		return authsync.ErrConfirmationRequired
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return goerrors.New(text, goerrors.CategoryAuth).
			WithTextCode(authsync.TextCodeInvalidCredentials).
			WithCode(goerrors.CodeUnauthorized)
	case status == http.StatusUnprocessableEntity:
		return goerrors.New(text, goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	default:
		return authsync.WrapTransport(
			goerrors.New(text, goerrors.CategoryInternal),
			"gotrue: request rejected")
	}
}

func isAuthRejection(err error) bool {
	return authsync.IsInvalidCredentials(err) || authsync.IsConfirmationRequired(err)
}
