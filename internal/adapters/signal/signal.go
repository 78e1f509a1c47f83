// Package signal is the realtime channel adapter: a gorilla WebSocket per
// client, admitted from a base64 credential bundle and dispatched by the
// message "type" field.
package signal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Lectern/internal/app/orch"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReadLimit  = 32 << 10
	DefaultSendBuffer = 64
	writeWait         = 5 * time.Second
)

type Options struct {
	ReadLimit  int64
	SendBuffer int
	ICE        webrtc.Configuration
	// PrivateRequests bounds request-private-conversation per user.
	PrivateRequests *RateLimiter
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	opts Options
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.PrivateRequests == nil {
		opts.PrivateRequests = NewRateLimiter(3, 30*time.Second)
	}
	return &SignalWSController{Orch: o, opts: opts}
}

// wsSignalConn implements core.SignalConnection. Frames are queued and
// written by a single writePump, so per-recipient order is send order.
type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops the write pump; the socket itself is closed once the pump
// has flushed what was queued.
func (c *wsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// DecodeCredentials parses the base64 JSON admission bundle. Both standard
// and URL-safe alphabets are accepted, padded or not.
func DecodeCredentials(raw string) (core.Credentials, error) {
	var creds core.Credentials
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return creds, domain.ErrBadCredentials
	}
	var data []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err = enc.DecodeString(raw); err == nil {
			break
		}
	}
	if err != nil {
		return creds, domain.Wrap(domain.KindAuth, "malformed auth bundle", err)
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, domain.Wrap(domain.KindAuth, "malformed auth bundle", err)
	}
	if creds.Token == "" || creds.UserID == "" || creds.MeetingID == "" {
		return creds, domain.ErrBadCredentials
	}
	return creds, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and admits the channel. A refused
// admission is reported as an error frame before the socket closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	sid := core.SessionID(uuid.NewString())
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Logger()

	creds, err := DecodeCredentials(c.Query("auth"))
	if err == nil {
		var sess core.MemberSession
		conn := &wsSignalConn{conn: ws, send: make(chan core.Frame, ctl.opts.SendBuffer)}
		sessCtx, cancel := context.WithCancel(ctx)
		sess, err = ctl.Orch.Admit(sessCtx, sid, conn, creds, cancel)
		if err == nil {
			logger.Info().Str("user", string(sess.Meta().UserID())).Str("meeting", string(creds.MeetingID)).Msg("channel admitted")
			cl := &client{sid: sid, conn: conn, ctx: sessCtx, meta: sess.Meta()}
			go ctl.writePump(sessCtx, conn)
			go ctl.readPump(sessCtx, cl)
			return
		}
		cancel()
	}
	logger.Warn().Err(err).Msg("admission refused")
	ctl.refuse(ws, err)
}

func (ctl *SignalWSController) refuse(ws *websocket.Conn, err error) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if b, merr := json.Marshal(orch.NewErrorEvent(err)); merr == nil {
		_ = ws.WriteMessage(websocket.TextMessage, b)
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(domain.KindOf(err)))
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = ws.Close()
}
