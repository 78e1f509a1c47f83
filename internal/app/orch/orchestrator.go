// Package orch relays signaling and audio-control messages between the
// sessions of a meeting and applies meeting lifecycle events to them.
package orch

import (
	"context"
	"sync"

	"github.com/dkeye/Lectern/internal/app"
	"github.com/dkeye/Lectern/internal/app/lifecycle"
	"github.com/dkeye/Lectern/internal/app/recording"
	"github.com/dkeye/Lectern/internal/app/sfu"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry   *app.Registry
	Meetings   *lifecycle.Service
	Recordings *recording.Pipeline
	Policy     app.Policy
	Relays     *sfu.RelayManager

	mu      sync.RWMutex
	muted   map[domain.MeetingID]domain.UserSet
	joined  map[core.SessionID]struct{}
	pending map[core.SessionID]pendingTrack
}

// New wires o as the registry's removal listener and the lifecycle's observer.
func New(reg *app.Registry, meetings *lifecycle.Service, recs *recording.Pipeline, policy app.Policy, relays *sfu.RelayManager) *Orchestrator {
	o := &Orchestrator{
		Registry:   reg,
		Meetings:   meetings,
		Recordings: recs,
		Policy:     policy,
		Relays:     relays,
		muted:      make(map[domain.MeetingID]domain.UserSet),
		joined:     make(map[core.SessionID]struct{}),
		pending:    make(map[core.SessionID]pendingTrack),
	}
	reg.OnRemove(o.onSessionRemoved)
	meetings.Observe(o)
	return o
}

// Admit binds a new channel to its meeting and acknowledges it. Channels
// for unknown or finished meetings are refused.
func (o *Orchestrator) Admit(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	creds core.Credentials,
	cancel context.CancelFunc,
) (core.MemberSession, error) {
	m, err := o.Meetings.Get(ctx, creds.MeetingID)
	if err != nil {
		return nil, err
	}
	switch m.Status {
	case domain.StatusEnded, domain.StatusCancelled, domain.StatusArchived:
		return nil, domain.ErrNotJoinable
	}
	sess, err := o.Registry.Admit(ctx, sid, conn, creds, cancel)
	if err != nil {
		return nil, err
	}
	if sess.Meta().IsHost() && !m.IsHost(sess.Meta().UserID()) {
		_, _ = o.Registry.Remove(sid)
		return nil, domain.ErrNotHost
	}
	meta := sess.Meta()
	o.sendTo(sess, ConnectionAck{
		Type:      MsgConnectionAck,
		Status:    "connected",
		ChannelID: sid,
		UserID:    meta.UserID(),
		MeetingID: meta.MeetingID,
		Role:      meta.User.Role,
	})
	return sess, nil
}

// Disconnect is called by the transport when a channel goes away.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	_, _ = o.Registry.Remove(sid)
}

// Touch records a liveness acknowledgment and answers pings.
func (o *Orchestrator) Touch(sid core.SessionID, reply bool) {
	o.Registry.Touch(sid)
	if !reply {
		return
	}
	if sess, ok := o.Registry.Get(sid); ok {
		o.sendTo(sess, struct {
			Type string `json:"type"`
		}{MsgPong})
	}
}

func (o *Orchestrator) session(sid core.SessionID) (core.MemberSession, error) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// authorize returns the session of sid when its user has joined the meeting.
func (o *Orchestrator) authorize(sid core.SessionID) (core.MemberSession, error) {
	sess, err := o.session(sid)
	if err != nil {
		return nil, err
	}
	if !o.isJoined(sid) {
		return nil, domain.ErrNotMember
	}
	return sess, nil
}

// markJoined flags every session of u in the meeting as joined or not.
func (o *Orchestrator) markJoined(id domain.MeetingID, u domain.UserID, joined bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sess := range o.Registry.Resolve(id) {
		if sess.Meta().UserID() != u {
			continue
		}
		if joined {
			o.joined[sess.ID()] = struct{}{}
		} else {
			delete(o.joined, sess.ID())
		}
	}
}

func (o *Orchestrator) isJoined(sid core.SessionID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.joined[sid]
	return ok
}

func (o *Orchestrator) forgetSession(sid core.SessionID) {
	o.mu.Lock()
	delete(o.joined, sid)
	delete(o.pending, sid)
	o.mu.Unlock()
}

func (o *Orchestrator) sendTo(sess core.MemberSession, v any) {
	f, ok := encode(v)
	if !ok {
		return
	}
	if err := sess.Signal().TrySend(f); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Msg("directed send dropped")
	}
}

// SendError reports err to one channel only.
func (o *Orchestrator) SendError(sid core.SessionID, err error) {
	if sess, ok := o.Registry.Get(sid); ok {
		o.sendTo(sess, NewErrorEvent(err))
	}
}

// publish fans v out to every session of the meeting except from, then
// applies the backpressure policy to recipients that could not keep up.
func (o *Orchestrator) publish(id domain.MeetingID, from core.SessionID, v any) core.PublishResult {
	g, ok := o.Registry.Group(id)
	if !ok {
		return core.PublishResult{}
	}
	f, ok := encode(v)
	if !ok {
		return core.PublishResult{}
	}
	res := g.Broadcast(from, f)
	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(g, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow.ID())).Str("meeting", string(id)).Msg("kicking slow consumer")
			_, _ = o.Registry.Evict(slow.ID(), app.RemoveKicked)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
	return res
}

// fromUser picks the session to exclude when notifying about u.
func (o *Orchestrator) fromUser(id domain.MeetingID, u domain.UserID) core.SessionID {
	if sess, err := o.Registry.ResolveUser(id, u); err == nil {
		return sess.ID()
	}
	return ""
}

func (o *Orchestrator) snapshot(m *domain.Meeting) *MeetingSnapshot {
	snap := &MeetingSnapshot{
		Participants:       m.Participants,
		ActiveParticipants: m.ActiveParticipants,
	}
	if g, ok := o.Registry.Group(m.ID); ok {
		snap.Online = g.MembersSnapshot()
	}
	return snap
}

func (o *Orchestrator) isMuted(id domain.MeetingID, u domain.UserID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.muted[id].Contains(u)
}

func (o *Orchestrator) setMuted(id domain.MeetingID, u domain.UserID, muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if muted {
		o.muted[id] = o.muted[id].Add(u)
		return
	}
	o.muted[id] = o.muted[id].Remove(u)
	if len(o.muted[id]) == 0 {
		delete(o.muted, id)
	}
}

func (o *Orchestrator) forgetMeeting(id domain.MeetingID) {
	o.mu.Lock()
	delete(o.muted, id)
	o.mu.Unlock()
}
