package orch

import (
	"context"
	"time"

	"github.com/dkeye/Lectern/internal/app"
	"github.com/dkeye/Lectern/internal/app/lifecycle"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinMeeting adds the channel's user to the meeting's participant sets.
// The resulting notification is sent by OnMeetingEvent.
func (o *Orchestrator) JoinMeeting(ctx context.Context, sid core.SessionID) (*domain.Meeting, error) {
	sess, err := o.session(sid)
	if err != nil {
		return nil, err
	}
	meta := sess.Meta()
	m, err := o.Meetings.Join(ctx, meta.MeetingID, meta.UserID())
	if err != nil {
		return nil, err
	}
	o.OnMediaReady(sid)
	return m, nil
}

// LeaveMeeting removes the user from the meeting. The channel stays open.
func (o *Orchestrator) LeaveMeeting(ctx context.Context, sid core.SessionID) (*domain.Meeting, error) {
	sess, err := o.session(sid)
	if err != nil {
		return nil, err
	}
	meta := sess.Meta()
	o.cleanupMedia(sid)
	return o.Meetings.Leave(ctx, meta.MeetingID, meta.UserID())
}

// onSessionRemoved runs for every registry removal. The user only goes
// offline when no other session of theirs remains in the meeting.
func (o *Orchestrator) onSessionRemoved(sess core.MemberSession, reason app.RemoveReason) {
	o.forgetSession(sess.ID())
	o.releaseMedia(sess)
	if reason == app.RemoveTerminated {
		return
	}
	meta := sess.Meta()
	if _, err := o.Registry.ResolveUser(meta.MeetingID, meta.UserID()); err == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m, err := o.Meetings.Disconnect(ctx, meta.MeetingID, meta.UserID())
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("meeting", string(meta.MeetingID)).Str("user", string(meta.UserID())).Msg("disconnect update failed")
	}
	ev := ParticipantEvent{
		Type:      MsgParticipantLeft,
		UserID:    meta.UserID(),
		Role:      meta.User.Role,
		Reason:    string(reason),
		Timestamp: time.Now(),
	}
	if m != nil {
		ev.Meeting = o.snapshot(m)
	}
	o.publish(meta.MeetingID, "", ev)
}

// OnMeetingEvent turns persisted lifecycle transitions into notifications,
// whichever surface triggered them.
func (o *Orchestrator) OnMeetingEvent(ctx context.Context, ev lifecycle.Event) {
	m := ev.Meeting
	switch ev.Kind {
	case lifecycle.EventActivated:
		o.publish(m.ID, "", MeetingStatus{Type: MsgMeetingActivated, Meeting: m.ID, Status: m.Status, StartTime: m.StartTime})
	case lifecycle.EventPaused:
		o.publish(m.ID, "", MeetingStatus{Type: MsgMeetingPaused, Meeting: m.ID, Status: m.Status})
	case lifecycle.EventEnded, lifecycle.EventCancelled:
		o.terminate(ctx, m)
	case lifecycle.EventJoined:
		u := ev.Actor
		o.markJoined(m.ID, u, true)
		pe := ParticipantEvent{Type: MsgParticipantJoined, UserID: u, Timestamp: time.Now(), Meeting: o.snapshot(m)}
		if sess, err := o.Registry.ResolveUser(m.ID, u); err == nil {
			pe.Username = sess.Meta().User.Username
			pe.Role = sess.Meta().User.Role
		}
		o.publish(m.ID, o.fromUser(m.ID, u), pe)
	case lifecycle.EventLeft:
		o.markJoined(m.ID, ev.Actor, false)
		o.publish(m.ID, "", ParticipantEvent{Type: MsgParticipantLeft, UserID: ev.Actor, Reason: "left", Timestamp: time.Now(), Meeting: o.snapshot(m)})
	case lifecycle.EventModeChanged:
		mc := ModeChanged{Type: MsgModeChanged, Mode: "broadcast", HostID: m.HostID}
		if m.PrivateMode.IsActive {
			mc.Mode = "private"
			mc.ParticipantID = m.PrivateMode.ParticipantID
		}
		o.publish(m.ID, "", mc)
		o.applyAudioPolicy(m)
	case lifecycle.EventChatStarted:
		o.publish(m.ID, "", RecordingNotice{
			Type:        MsgPrivateRecStarted,
			MeetingID:   m.ID,
			RecordingID: m.ActivePrivateChat.RecordingID,
			StudentID:   m.ActivePrivateChat.StudentID,
		})
	case lifecycle.EventChatEnded:
		o.publish(m.ID, "", RecordingNotice{Type: MsgPrivateRecEnded, MeetingID: m.ID})
	case lifecycle.EventCreated, lifecycle.EventArchived:
	}
}

// terminate notifies every session of an ended meeting, finalizes its open
// recordings and detaches all of its sessions.
func (o *Orchestrator) terminate(ctx context.Context, m *domain.Meeting) {
	if o.Recordings != nil {
		o.Recordings.EndAllForMeeting(ctx, m.ID)
	}
	ev := MeetingEnded{Type: MsgMeetingEnded, Meeting: m.ID, Reason: m.EndReason, Message: m.EndReason.Message(), EndTime: m.EndTime}
	if m.Status == domain.StatusCancelled {
		ev.Message = "Meeting cancelled"
	}
	o.publish(m.ID, "", ev)

	sessions := o.Registry.Resolve(m.ID)
	for _, sess := range sessions {
		_, _ = o.Registry.Evict(sess.ID(), app.RemoveTerminated)
	}
	o.forgetMeeting(m.ID)
	log.Info().Str("module", "orch").Str("meeting", string(m.ID)).Str("reason", string(m.EndReason)).Int("detached", len(sessions)).Msg("meeting terminated")
}

// StartPrivateChat opens the private recording first so the meeting never
// points at a recording that does not exist.
func (o *Orchestrator) StartPrivateChat(ctx context.Context, id domain.MeetingID, caller, student domain.UserID) (*domain.Meeting, *domain.Recording, error) {
	rec, err := o.Recordings.StartPrivate(ctx, id, caller, student)
	if err != nil {
		return nil, nil, err
	}
	m, err := o.Meetings.StartPrivateChat(ctx, id, caller, student, rec.ID)
	if err != nil {
		if _, ferr := o.Recordings.EndRecording(ctx, rec.ID, caller); ferr != nil {
			log.Error().Err(ferr).Str("module", "orch").Str("recording", string(rec.ID)).Msg("finalize orphan private recording")
		}
		return nil, nil, err
	}
	return m, rec, nil
}

// EndPrivateChat clears the private chat and finalizes its recording.
func (o *Orchestrator) EndPrivateChat(ctx context.Context, id domain.MeetingID, caller domain.UserID) (*domain.Meeting, *domain.Recording, error) {
	m, prev, err := o.Meetings.EndPrivateChat(ctx, id, caller)
	if err != nil {
		return nil, nil, err
	}
	if prev.RecordingID == "" {
		return m, nil, nil
	}
	rec, err := o.Recordings.EndRecording(ctx, prev.RecordingID, caller)
	return m, rec, err
}
