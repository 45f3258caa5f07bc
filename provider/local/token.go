package local

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/crediq/authsync"
)

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// mintSessionLocked issues an HS256 access token for the account. Callers
// must hold mu.
func (p *Provider) mintSessionLocked(acct *account) (*authsync.Session, error) {
	now := time.Now()
	expiresAt := now.Add(p.config.TokenTTL)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.config.Issuer,
			Subject:   acct.id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email: acct.email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(p.config.SigningKey))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}

	return &authsync.Session{
		Subject:      acct.id,
		Email:        acct.email,
		AccessToken:  signed,
		RefreshToken: uuid.NewString(),
		IssuedAt:     &now,
		ExpiresAt:    &expiresAt,
	}, nil
}
