// Package auth verifies and issues HMAC-signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

type tokenClaims struct {
	Role     domain.Role `json:"role"`
	Username string      `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWT(secret []byte, issuer string) *JWT {
	return &JWT{secret: secret, issuer: issuer, now: time.Now}
}

// Verify checks the signature, expiry and issuer of token.
func (a *JWT) Verify(_ context.Context, token string) (core.Claims, error) {
	var tc tokenClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return core.Claims{}, domain.ErrTokenExpired
		}
		return core.Claims{}, domain.Wrap(domain.KindAuth, "invalid token", err)
	}
	if a.issuer != "" && !tc.VerifyIssuer(a.issuer, true) {
		return core.Claims{}, domain.Wrap(domain.KindAuth, "invalid token", errors.New("issuer mismatch"))
	}
	if tc.Subject == "" {
		return core.Claims{}, domain.ErrBadCredentials
	}
	c := core.Claims{UserID: domain.UserID(tc.Subject), Role: tc.Role, Username: tc.Username}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c, nil
}

// Issue signs a token for u valid for ttl. It backs local development and
// tests; production tokens come from the identity provider.
func (a *JWT) Issue(u domain.User, ttl time.Duration) (string, error) {
	now := a.now()
	tc := tokenClaims{
		Role:     u.Role,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(u.ID),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(a.secret)
}
