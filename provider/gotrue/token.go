package gotrue

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/crediq/authsync"
)

// tokenResponse is the session payload returned by the password and refresh
// grants.
type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int64   `json:"expires_in"`
	ExpiresAt    int64   `json:"expires_at"`
	RefreshToken string  `json:"refresh_token"`
	User         apiUser `json:"user"`
}

// signUpResponse is either session shaped (auto-confirm on) or a bare user
// object (confirmation pending, or an obfuscated duplicate).
type signUpResponse struct {
	tokenResponse
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at"`
}

type apiUser struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// sessionFromTokenResponse builds the cached Session, preferring verified
// claims over response-body fields when a verifier is configured.
func (p *Provider) sessionFromTokenResponse(resp *tokenResponse) (*authsync.Session, error) {
	if resp == nil || resp.AccessToken == "" {
		return nil, authsync.WrapTransport(nil, "gotrue: token response missing access token")
	}

	claims, err := p.verifier.claims(resp.AccessToken)
	if err != nil {
		return nil, err
	}

	rawSubject := resp.User.ID
	if rawSubject == "" {
		rawSubject = claims.Subject
	}
	subject, err := uuid.Parse(rawSubject)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "gotrue: subject is not a uuid")
	}

	email := resp.User.Email
	if email == "" {
		email = claims.Email
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.ExpiresAt > 0 {
		expiresAt = time.Unix(resp.ExpiresAt, 0)
	} else if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &authsync.Session{
		Subject:      subject,
		Email:        email,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IssuedAt:     &now,
		ExpiresAt:    &expiresAt,
	}, nil
}

// signUpResult maps the two signup response shapes onto the classification
// inputs the Synchronizer expects.
func (p *Provider) signUpResult(resp *signUpResponse) (*authsync.SignUpResult, *authsync.Session, error) {
	if resp.AccessToken != "" {
		session, err := p.sessionFromTokenResponse(&resp.tokenResponse)
		if err != nil {
			return nil, nil, err
		}

		result := &authsync.SignUpResult{
			Subject: session.Subject,
			Email:   session.Email,
			Session: session.Clone(),
		}
		if resp.User.CreatedAt != nil {
			result.CreatedAt = resp.User.CreatedAt.UnixMilli()
		}
		return result, session, nil
	}

	subject, err := uuid.Parse(resp.ID)
	if err != nil {
		return nil, nil, authsync.WrapTransport(err, "gotrue: signup response has no usable identity")
	}

	result := &authsync.SignUpResult{
		Subject: subject,
		Email:   resp.Email,
	}
	if resp.CreatedAt != nil {
		result.CreatedAt = resp.CreatedAt.UnixMilli()
	}
	return result, nil, nil
}

// tokenVerifier reads access-token claims, verifying signatures against the
// JWKS when configured.
type tokenVerifier struct {
	jwks *keyfunc.JWKS
}

func newTokenVerifier(jwksURL string) (*tokenVerifier, error) {
	if jwksURL == "" {
		return &tokenVerifier{}, nil
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "gotrue: failed to fetch JWKS")
	}
	return &tokenVerifier{jwks: jwks}, nil
}

func (v *tokenVerifier) claims(token string) (*accessClaims, error) {
	claims := &accessClaims{}

	if v == nil || v.jwks == nil {
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(token, claims); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "gotrue: malformed access token")
		}
		return claims, nil
	}

	if _, err := jwt.ParseWithClaims(token, claims, v.jwks.Keyfunc); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "gotrue: access token failed verification")
	}
	return claims, nil
}

func (v *tokenVerifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}
