package sfu

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RelayManager owns one relay per speaking session.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[core.SessionID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[core.SessionID]*Relay),
	}
}

// StartRelay creates a relay for the speaker and starts its loop. An older
// relay of the same speaker is stopped.
func (m *RelayManager) StartRelay(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "sfu.relay").
		Str("sid", string(sid)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(sid, track, cancel)

	m.mu.Lock()
	if old, ok := m.relays[sid]; ok {
		logger.Info().Msg("replacing existing relay for sid")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[sid] = relay
	m.mu.Unlock()

	logger.Info().Str("codec", track.Codec().MimeType).Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
}

// Subscribe attaches a local copy of the speaker's track to the listener's
// connection. A muted subscription is attached but forwards nothing.
func (m *RelayManager) Subscribe(src, dst core.SessionID, mc core.MediaConnection, track *webrtc.TrackRemote, muted bool) error {
	if mc == nil || mc.IsClosed() {
		return nil
	}
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	local, err := webrtc.NewTrackLocalStaticRTP(track.Codec().RTPCodecCapability, track.ID(), string(src))
	if err != nil {
		return err
	}
	sender, err := mc.AddLocalTrack(local)
	if err != nil {
		return err
	}
	go drainRTCP(sender, src, dst)
	relay.AddOutTrack(dst, NewOutTrack(local, sender, muted))
	log.Debug().Str("module", "sfu.relay").Str("src", string(src)).Str("dst", string(dst)).Bool("muted", muted).Msg("subscribed")
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender, src, dst core.SessionID) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "sfu.relay").Str("src", string(src)).Str("dst", string(dst)).Msg("rtcp reader stopped")
			}
			return
		}
	}
}

// SetMuted pauses or resumes forwarding from src to dst.
func (m *RelayManager) SetMuted(src, dst core.SessionID, muted bool) {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(dst); ok {
		ot.SetMuted(muted)
	}
}

// MarkSubscriberDelete stops forwarding src to dst.
func (m *RelayManager) MarkSubscriberDelete(src, dst core.SessionID) {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(dst); ok {
		ot.MarkDelete()
	}
}

// Unsubscribe removes dst from every relay it listens to.
func (m *RelayManager) Unsubscribe(dst core.SessionID) {
	m.mu.RLock()
	relays := make([]*Relay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.mu.RUnlock()
	for _, r := range relays {
		if ot, ok := r.outTrack(dst); ok {
			ot.MarkDelete()
		}
	}
}

// StopRelay stops a speaker's relay and removes it from the manager.
func (m *RelayManager) StopRelay(src core.SessionID) {
	m.mu.Lock()
	relay, ok := m.relays[src]
	if ok {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
}

func (m *RelayManager) HasRelay(sid core.SessionID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[sid]
	return ok
}

// SrcTrack returns the remote track a speaker's relay reads from.
func (m *RelayManager) SrcTrack(sid core.SessionID) (*webrtc.TrackRemote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[sid]
	if !ok {
		return nil, false
	}
	return relay.Src, true
}

// Listeners returns who receives src's audio.
func (m *RelayManager) Listeners(src core.SessionID) []core.SessionID {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return relay.Listeners()
}
