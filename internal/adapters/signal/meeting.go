package signal

import (
	"time"

	"github.com/dkeye/Lectern/internal/app/orch"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

func handleJoin(ctl *SignalWSController, cl *client, _ []byte) error {
	m, err := ctl.Orch.JoinMeeting(cl.ctx, cl.sid)
	if err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("meeting", string(m.ID)).Msg("join")
	ctl.reply(cl, orch.ParticipantEvent{
		Type:      orch.MsgMeetingJoined,
		UserID:    cl.meta.UserID(),
		Username:  cl.meta.User.Username,
		Role:      cl.meta.User.Role,
		Timestamp: time.Now(),
		Meeting:   snapshotOf(ctl, m),
	})
	return nil
}

// handleLeave leaves the meeting; the channel itself stays open.
func handleLeave(ctl *SignalWSController, cl *client, _ []byte) error {
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("leave")
	_, err := ctl.Orch.LeaveMeeting(cl.ctx, cl.sid)
	return err
}

func handleSwitchMode(ctl *SignalWSController, cl *client, data []byte) error {
	var p switchModeMsg
	if err := decode(InSwitchMode, data, &p); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	return ctl.Orch.SwitchMode(cl.ctx, cl.sid, p.Mode, p.TargetUserID)
}

func handleRequestPrivate(ctl *SignalWSController, cl *client, _ []byte) error {
	if !ctl.opts.PrivateRequests.Allow(cl.meta.UserID()) {
		return errTooManyRequests
	}
	return ctl.Orch.RequestPrivate(cl.ctx, cl.sid)
}

func handleAcceptPrivate(ctl *SignalWSController, cl *client, data []byte) error {
	var p acceptPrivateMsg
	if err := decode(InAcceptPrivate, data, &p); err != nil {
		return err
	}
	if p.StudentID == "" {
		return domain.ErrMissingField
	}
	return ctl.Orch.AcceptPrivate(cl.ctx, cl.sid, p.StudentID)
}

func handleEndPrivate(ctl *SignalWSController, cl *client, _ []byte) error {
	return ctl.Orch.EndPrivate(cl.ctx, cl.sid)
}

func snapshotOf(ctl *SignalWSController, m *domain.Meeting) *orch.MeetingSnapshot {
	snap := &orch.MeetingSnapshot{Participants: m.Participants, ActiveParticipants: m.ActiveParticipants}
	if g, ok := ctl.Orch.Registry.Group(m.ID); ok {
		snap.Online = g.MembersSnapshot()
	}
	return snap
}
