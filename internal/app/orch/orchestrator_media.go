package orch

import (
	"context"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const mediaLookupTimeout = 5 * time.Second

type SFUDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type SFUCandidate struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// BindMediaHandlers routes the callbacks of a server-side peer connection
// back to the session that owns it.
func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, sid, track)
	})
	mc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if sess, ok := o.Registry.Get(sid); ok {
			o.sendTo(sess, SFUCandidate{Type: MsgSFUCandidate, Candidate: ci.Candidate, SDPMid: ci.SDPMid, SDPMLineIndex: ci.SDPMLineIndex})
		}
	})
	mc.OnNegotiationNeeded(func() { o.renegotiate(sid, mc) })
	mc.OnClosed(func() { o.OnMediaDisconnect(sid, mc) })
}

// renegotiate sends a server offer after subscriber tracks changed.
func (o *Orchestrator) renegotiate(sid core.SessionID, mc core.MediaConnection) {
	sess, ok := o.Registry.Get(sid)
	if !ok || sess.Media() != mc || mc.IsClosed() {
		return
	}
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "orch.media").Str("sid", string(sid)).Msg("renegotiation offer")
		return
	}
	o.sendTo(sess, SFUDescription{Type: MsgSFUOffer, SDP: offer.SDP})
}

// OnMediaDisconnect cleans up after mc, unless the session already moved
// to a newer connection.
func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID, mc core.MediaConnection) {
	if sess, ok := o.Registry.Get(sid); ok && sess.Media() != mc {
		return
	}
	o.cleanupMedia(sid)
}

// pendingTrack is a remote track that arrived before its session joined.
type pendingTrack struct {
	ctx   context.Context
	mc    core.MediaConnection
	track *webrtc.TrackRemote
}

func (o *Orchestrator) holdTrack(sid core.SessionID, p pendingTrack) {
	o.mu.Lock()
	o.pending[sid] = p
	o.mu.Unlock()
}

func (o *Orchestrator) takePending(sid core.SessionID) (pendingTrack, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[sid]
	delete(o.pending, sid)
	return p, ok
}

func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	o.takePending(sid)
	if sess, ok := o.Registry.Get(sid); ok {
		o.releaseMedia(sess)
		return
	}
	if o.Relays != nil {
		o.Relays.StopRelay(sid)
		o.Relays.Unsubscribe(sid)
	}
}

// releaseMedia stops relaying to and from sess and closes its connection.
// The connection is detached first so its close callback finds nothing.
func (o *Orchestrator) releaseMedia(sess core.MemberSession) {
	if o.Relays != nil {
		o.Relays.StopRelay(sess.ID())
		o.Relays.Unsubscribe(sess.ID())
	}
	if mc := sess.Media(); mc != nil {
		sess.UpdateMedia(nil)
		mc.Close()
	}
}

// audible reports whether src's relayed audio reaches dst. The host is
// heard by everyone in broadcast mode and only by the private participant
// in private mode. Students are only ever heard by the host.
func (o *Orchestrator) audible(m *domain.Meeting, src, dst domain.UserID) bool {
	if src == dst || o.isMuted(m.ID, src) {
		return false
	}
	if !m.IsHost(src) {
		return m.IsHost(dst)
	}
	if m.PrivateMode.IsActive {
		return dst == m.PrivateMode.ParticipantID
	}
	return true
}

func (o *Orchestrator) meeting(id domain.MeetingID) (*domain.Meeting, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), mediaLookupTimeout)
	defer cancel()
	m, err := o.Meetings.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch.media").Str("meeting", string(id)).Msg("meeting lookup")
		return nil, false
	}
	return m, true
}

// OnTrack starts relaying a joined session's track and subscribes every
// other joined session with media to it. A track from a session that has
// not joined yet is held and started by OnMediaReady after the join.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	sess, ok := o.Registry.Get(sid)
	if !ok || sess.Media() == nil {
		log.Info().Str("module", "orch.media").Str("sid", string(sid)).Msg("track without a session, ignored")
		return
	}
	if !o.isJoined(sid) {
		o.holdTrack(sid, pendingTrack{ctx: ctx, mc: sess.Media(), track: track})
		log.Info().Str("module", "orch.media").Str("sid", string(sid)).Msg("track held until join")
		return
	}
	o.startTrack(ctx, sess, track)
}

func (o *Orchestrator) startTrack(ctx context.Context, sess core.MemberSession, track *webrtc.TrackRemote) {
	sid := sess.ID()
	meta := sess.Meta()
	m, ok := o.meeting(meta.MeetingID)
	if !ok {
		return
	}
	o.Relays.StartRelay(ctx, sid, track)

	for _, peer := range o.Registry.Resolve(meta.MeetingID) {
		if peer.ID() == sid || !o.isJoined(peer.ID()) {
			continue
		}
		pc := peer.Media()
		if pc == nil {
			continue
		}
		muted := !o.audible(m, meta.UserID(), peer.Meta().UserID())
		if err := o.Relays.Subscribe(sid, peer.ID(), pc, track, muted); err != nil {
			log.Error().Err(err).Str("module", "orch.media").Str("src", string(sid)).Str("dst", string(peer.ID())).Msg("subscribe")
		}
	}
}

// OnMediaReady subscribes sid to every relay already running in its
// meeting and starts a track it sent before joining. It runs after join
// and after each media attach.
func (o *Orchestrator) OnMediaReady(sid core.SessionID) {
	if o.Relays == nil {
		return
	}
	sess, err := o.authorize(sid)
	if err != nil {
		return
	}
	mc := sess.Media()
	if mc == nil {
		return
	}
	meta := sess.Meta()
	m, ok := o.meeting(meta.MeetingID)
	if !ok {
		return
	}
	for _, peer := range o.Registry.Resolve(meta.MeetingID) {
		if peer.ID() == sid {
			continue
		}
		src, ok := o.Relays.SrcTrack(peer.ID())
		if !ok {
			continue
		}
		muted := !o.audible(m, peer.Meta().UserID(), meta.UserID())
		if err := o.Relays.Subscribe(peer.ID(), sid, mc, src, muted); err != nil {
			log.Error().Err(err).Str("module", "orch.media").Str("src", string(peer.ID())).Str("dst", string(sid)).Msg("subscribe")
		}
	}

	// Held tracks of a replaced or closed connection are stale.
	if p, ok := o.takePending(sid); ok && p.mc == mc && !mc.IsClosed() {
		o.startTrack(p.ctx, sess, p.track)
	}
}

// applyAudioPolicy re-evaluates every relayed pair of the meeting after a
// mode or mute change.
func (o *Orchestrator) applyAudioPolicy(m *domain.Meeting) {
	if o.Relays == nil {
		return
	}
	sessions := o.Registry.Resolve(m.ID)
	for _, src := range sessions {
		if !o.Relays.HasRelay(src.ID()) {
			continue
		}
		for _, dst := range sessions {
			if dst.ID() == src.ID() {
				continue
			}
			o.Relays.SetMuted(src.ID(), dst.ID(), !o.audible(m, src.Meta().UserID(), dst.Meta().UserID()))
		}
	}
}
