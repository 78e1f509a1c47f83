package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionName     = "LecternSession"
	sessionTokenKey = "token"
	claimsKey       = "claims"
)

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// AuthMiddleware accepts a Bearer token, falling back to the token held in
// the cookie session.
func AuthMiddleware(auth core.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if v, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
				token = v
			}
		}
		if token == "" {
			abortWithError(c, domain.Errorf(domain.KindAuth, "authentication required"))
			return
		}
		claims, err := auth.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func callerOf(c *gin.Context) core.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(core.Claims)
	return claims
}

type sessionRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	UserID    domain.UserID `json:"userId"`
	Role      domain.Role   `json:"role"`
	Username  string        `json:"username,omitempty"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// createSession stores a verified token in the cookie session so browser
// clients need not send a header.
func (h *handlers) createSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		abortWithError(c, domain.ErrMissingField)
		return
	}
	claims, err := h.auth.Verify(c.Request.Context(), req.Token)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s := sessions.Default(c)
	s.Set(sessionTokenKey, req.Token)
	if err := s.Save(); err != nil {
		abortWithError(c, domain.Wrap(domain.KindInternal, "save session", err))
		return
	}
	c.JSON(http.StatusOK, sessionResponse{UserID: claims.UserID, Role: claims.Role, Username: claims.Username, ExpiresAt: claims.ExpiresAt})
}

func (h *handlers) deleteSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := s.Save(); err != nil {
		abortWithError(c, domain.Wrap(domain.KindInternal, "save session", err))
		return
	}
	c.Status(http.StatusNoContent)
}
