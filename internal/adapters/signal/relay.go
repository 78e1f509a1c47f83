package signal

import (
	"github.com/dkeye/Lectern/internal/app/orch"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
)

func handleWebRTCSignal(ctl *SignalWSController, cl *client, data []byte) error {
	var p webrtcSignalMsg
	if err := decode(InWebRTCSignal, data, &p); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	return ctl.Orch.Signal(cl.sid, p.TargetID, p.Signal)
}

func handleBroadcastAudio(ctl *SignalWSController, cl *client, _ []byte) error {
	return ctl.Orch.StartBroadcastAudio(cl.sid)
}

func handleAudioStream(ctl *SignalWSController, cl *client, data []byte) error {
	var p audioMsg
	if err := decode(InAudioStream, data, &p); err != nil {
		return err
	}
	if len(p.AudioData) == 0 {
		return domain.ErrMissingField
	}
	return ctl.Orch.AudioStream(cl.ctx, cl.sid, p.AudioData)
}

func handlePrivateAudio(ctl *SignalWSController, cl *client, data []byte) error {
	var p audioMsg
	if err := decode(InPrivateAudio, data, &p); err != nil {
		return err
	}
	if len(p.AudioData) == 0 {
		return domain.ErrMissingField
	}
	return ctl.Orch.PrivateAudio(cl.sid, p.TargetUserID, p.AudioData)
}

func handleMute(muted bool) handlerFunc {
	kind := InUnmute
	if muted {
		kind = InMute
	}
	return func(ctl *SignalWSController, cl *client, data []byte) error {
		var p muteMsg
		if err := decode(kind, data, &p); err != nil {
			return err
		}
		return ctl.Orch.SetParticipantMuted(cl.ctx, cl.sid, p.ParticipantID, muted)
	}
}

func handleAudioStatus(ctl *SignalWSController, cl *client, data []byte) error {
	var p audioStatusMsg
	if err := decode(InAudioStatus, data, &p); err != nil {
		return err
	}
	return ctl.Orch.AudioStatus(cl.sid, p.IsActive)
}

func handleRecordingNotice(kind string) handlerFunc {
	return func(ctl *SignalWSController, cl *client, data []byte) error {
		var p recordingNoticeMsg
		if err := decode(kind, data, &p); err != nil {
			return err
		}
		return ctl.Orch.RecordingNotice(cl.sid, kind, p.Data)
	}
}

func handleGetParticipants(ctl *SignalWSController, cl *client, _ []byte) error {
	members, err := ctl.Orch.Participants(cl.sid)
	if err != nil {
		return err
	}
	if members == nil {
		members = []core.MemberDTO{}
	}
	ctl.reply(cl, struct {
		Type         string           `json:"type"`
		Participants []core.MemberDTO `json:"participants"`
	}{orch.MsgParticipantsSnapshot, members})
	return nil
}

// reply sends v to the requesting channel only.
func (ctl *SignalWSController) reply(cl *client, v any) {
	if sess, ok := ctl.Orch.Registry.Get(cl.sid); ok {
		if b, ok := encodeFrame(v); ok {
			_ = sess.Signal().TrySend(b)
		}
	}
}
