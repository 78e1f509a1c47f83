package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Lectern/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

var host = domain.User{ID: "u-1", Username: "Ms Frizzle", Role: domain.RoleHost}

func TestVerify_IssuedToken(t *testing.T) {
	a := NewJWT([]byte("k"), "lectern")
	tok, err := a.Issue(host, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c, err := a.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.UserID != host.ID || c.Role != domain.RoleHost || c.Username != host.Username {
		t.Errorf("claims = %+v", c)
	}
	if c.ExpiresAt.IsZero() {
		t.Error("ExpiresAt not set")
	}
}

func TestVerify_Rejections(t *testing.T) {
	a := NewJWT([]byte("k"), "lectern")
	other := NewJWT([]byte("other"), "lectern")
	foreign := NewJWT([]byte("k"), "someone-else")
	good, _ := a.Issue(host, time.Hour)
	wrongKey, _ := other.Issue(host, time.Hour)
	wrongIssuer, _ := foreign.Issue(host, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"wrong key", wrongKey},
		{"wrong issuer", wrongIssuer},
		{"alg none", none},
		{"truncated", good[:len(good)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(context.Background(), tt.token)
			if domain.KindOf(err) != domain.KindAuth {
				t.Errorf("kind = %q (%v), want auth", domain.KindOf(err), err)
			}
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	a := NewJWT([]byte("k"), "")
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _ := a.Issue(host, time.Hour)
	if _, err := a.Verify(context.Background(), tok); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}
