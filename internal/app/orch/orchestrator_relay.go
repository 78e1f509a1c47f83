package orch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

// Signal delivers an opaque WebRTC signal to one user of the same meeting.
func (o *Orchestrator) Signal(sid core.SessionID, target domain.UserID, signal json.RawMessage) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	dst, err := o.Registry.ResolveUser(meta.MeetingID, target)
	if err != nil {
		return err
	}
	o.sendTo(dst, SignalRelay{Type: MsgWebRTCSignal, SenderID: meta.UserID(), MeetingID: meta.MeetingID, Signal: signal})
	return nil
}

// privateTarget returns the participant of an active private mode.
func (o *Orchestrator) privateTarget(ctx context.Context, id domain.MeetingID) (domain.UserID, bool) {
	m, err := o.Meetings.Get(ctx, id)
	if err != nil || !m.PrivateMode.IsActive {
		return "", false
	}
	return m.PrivateMode.ParticipantID, true
}

// StartBroadcastAudio announces a host audio stream to the meeting.
func (o *Orchestrator) StartBroadcastAudio(sid core.SessionID) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	if !meta.IsHost() {
		return domain.ErrNotHost
	}
	o.publish(meta.MeetingID, sid, AudioFrame{Type: MsgAudioStreamStart, UserID: meta.UserID(), Role: meta.User.Role, Timestamp: time.Now().UnixMilli()})
	return nil
}

// AudioStream relays a host audio frame. While private mode is active the
// frame only reaches the private participant.
func (o *Orchestrator) AudioStream(ctx context.Context, sid core.SessionID, data json.RawMessage) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	if !meta.IsHost() {
		return domain.ErrNotHost
	}
	frame := AudioFrame{Type: MsgAudioBroadcast, UserID: meta.UserID(), Role: meta.User.Role, Data: data, Timestamp: time.Now().UnixMilli()}
	if target, ok := o.privateTarget(ctx, meta.MeetingID); ok {
		dst, err := o.Registry.ResolveUser(meta.MeetingID, target)
		if err != nil {
			return nil
		}
		frame.IsPrivate = true
		o.sendTo(dst, frame)
		return nil
	}
	o.publish(meta.MeetingID, sid, frame)
	return nil
}

// PrivateAudio relays audio between the host and one student: a host names
// the student, a student always reaches the host.
func (o *Orchestrator) PrivateAudio(sid core.SessionID, target domain.UserID, data json.RawMessage) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	if o.isMuted(meta.MeetingID, meta.UserID()) {
		return nil
	}
	var dst core.MemberSession
	if meta.IsHost() {
		if target == "" {
			return domain.ErrMissingField
		}
		dst, err = o.Registry.ResolveUser(meta.MeetingID, target)
	} else {
		dst, err = o.Registry.ResolveHost(meta.MeetingID)
	}
	if err != nil {
		return err
	}
	o.sendTo(dst, AudioFrame{Type: MsgPrivateStream, UserID: meta.UserID(), Role: meta.User.Role, IsPrivate: true, Data: data, Timestamp: time.Now().UnixMilli()})
	return nil
}

// SwitchMode toggles private audio. The mode-changed notification follows
// from the lifecycle event.
func (o *Orchestrator) SwitchMode(ctx context.Context, sid core.SessionID, mode string, target domain.UserID) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	var private bool
	switch mode {
	case "private":
		private = true
	case "broadcast", "public":
	default:
		return domain.ErrBadMode
	}
	meta := sess.Meta()
	_, err = o.Meetings.SetPrivateMode(ctx, meta.MeetingID, meta.UserID(), private, target)
	return err
}

// RequestPrivate is an advisory student request, it changes no state.
func (o *Orchestrator) RequestPrivate(ctx context.Context, sid core.SessionID) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	if meta.IsHost() {
		return domain.ErrNotStudent
	}
	m, err := o.Meetings.Get(ctx, meta.MeetingID)
	if err != nil {
		return err
	}
	o.publish(meta.MeetingID, sid, PrivateConversation{Type: MsgPrivateRequested, HostID: m.HostID, StudentID: meta.UserID()})
	return nil
}

// AcceptPrivate is the host's explicit start of a private conversation
// with student.
func (o *Orchestrator) AcceptPrivate(ctx context.Context, sid core.SessionID, student domain.UserID) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	if student == "" {
		return domain.ErrMissingField
	}
	m, err := o.Meetings.SetPrivateMode(ctx, meta.MeetingID, meta.UserID(), true, student)
	if err != nil {
		return err
	}
	o.publish(meta.MeetingID, "", PrivateConversation{Type: MsgPrivateStarted, HostID: m.HostID, StudentID: student})
	return nil
}

// EndPrivate returns the meeting to broadcast mode. It is refused when no
// private conversation is active.
func (o *Orchestrator) EndPrivate(ctx context.Context, sid core.SessionID) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	before, err := o.Meetings.Get(ctx, meta.MeetingID)
	if err != nil {
		return err
	}
	if !before.IsHost(meta.UserID()) {
		return domain.ErrNotHost
	}
	if !before.PrivateMode.IsActive {
		return domain.ErrBadTransition
	}
	if _, err := o.Meetings.SetPrivateMode(ctx, meta.MeetingID, meta.UserID(), false, ""); err != nil {
		return err
	}
	o.publish(meta.MeetingID, "", PrivateConversation{Type: MsgPrivateEnded, HostID: before.HostID, StudentID: before.PrivateMode.ParticipantID})
	return nil
}

// SetParticipantMuted is a host control; it also silences the
// participant's server-relayed audio.
func (o *Orchestrator) SetParticipantMuted(ctx context.Context, sid core.SessionID, participant domain.UserID, muted bool) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	if !meta.IsHost() {
		return domain.ErrNotHost
	}
	if participant == "" {
		return domain.ErrMissingField
	}
	o.setMuted(meta.MeetingID, participant, muted)
	typ := MsgParticipantUnmuted
	if muted {
		typ = MsgParticipantMuted
	}
	o.publish(meta.MeetingID, sid, MuteEvent{Type: typ, ParticipantID: participant, By: meta.UserID()})
	if m, err := o.Meetings.Get(ctx, meta.MeetingID); err == nil {
		o.applyAudioPolicy(m)
	}
	return nil
}

func (o *Orchestrator) AudioStatus(sid core.SessionID, active bool) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	o.publish(meta.MeetingID, "", AudioStatus{Type: MsgParticipantAudio, UserID: meta.UserID(), Role: meta.User.Role, IsActive: active})
	return nil
}

// RecordingNotice re-broadcasts a host's recording state change as is.
func (o *Orchestrator) RecordingNotice(sid core.SessionID, kind string, payload json.RawMessage) error {
	sess, err := o.authorize(sid)
	if err != nil {
		return err
	}
	meta := sess.Meta()
	if !meta.IsHost() {
		return domain.ErrNotHost
	}
	switch kind {
	case MsgRecordingStarted, MsgRecordingEnded, MsgPrivateRecStarted, MsgPrivateRecEnded:
	default:
		return domain.ErrBadMode
	}
	o.publish(meta.MeetingID, sid, RecordingNotice{Type: kind, MeetingID: meta.MeetingID, Payload: payload})
	log.Debug().Str("module", "orch").Str("meeting", string(meta.MeetingID)).Str("kind", kind).Msg("recording notice relayed")
	return nil
}

// Participants returns the online members of the channel's meeting.
func (o *Orchestrator) Participants(sid core.SessionID) ([]core.MemberDTO, error) {
	sess, err := o.session(sid)
	if err != nil {
		return nil, err
	}
	g, ok := o.Registry.Group(sess.Meta().MeetingID)
	if !ok {
		return nil, nil
	}
	return g.MembersSnapshot(), nil
}
