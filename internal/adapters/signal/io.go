package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// client is the per-channel state the read pump carries into handlers.
type client struct {
	sid  core.SessionID
	conn *wsSignalConn
	ctx  context.Context
	meta core.Identity
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	defer func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.drain()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.write(data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *wsSignalConn) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// drain flushes frames queued before the session was removed, such as the
// final meeting-ended notice.
func (c *wsSignalConn) drain() {
	for {
		select {
		case data, ok := <-c.send:
			if !ok || c.write(data) != nil {
				return
			}
		default:
			return
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cl.sid)
		cl.conn.Close()
	}()

	ws := cl.conn.conn
	ws.SetReadLimit(ctl.opts.ReadLimit)
	ws.SetPongHandler(func(string) error {
		ctl.Orch.Touch(cl.sid, false)
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent) {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closed by peer")
			} else {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(cl, data)
	}
}
