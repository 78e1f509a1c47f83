package http

import (
	"net/http"

	"github.com/dkeye/Lectern/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var statusByKind = map[domain.Kind]int{
	domain.KindAuth:          http.StatusUnauthorized,
	domain.KindAuthorization: http.StatusForbidden,
	domain.KindNotFound:      http.StatusNotFound,
	domain.KindValidation:    http.StatusBadRequest,
	domain.KindConflict:      http.StatusConflict,
	domain.KindStorage:       http.StatusBadGateway,
	domain.KindStreamTimeout: http.StatusGatewayTimeout,
	domain.KindInternal:      http.StatusInternalServerError,
}

func statusOf(err error) int {
	if s, ok := statusByKind[domain.KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// abortWithError writes {"error": kind, "message": msg}.
func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", status).Msg("request failed")
	c.AbortWithStatusJSON(status, gin.H{"error": domain.KindOf(err), "message": domain.Message(err)})
}
