package signal

import (
	"encoding/json"

	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

type handlerFunc func(ctl *SignalWSController, cl *client, data []byte) error

// handlers is the closed set of inbound kinds.
var handlers = map[string]handlerFunc{
	InJoinMeeting:      handleJoin,
	InLeaveMeeting:     handleLeave,
	InWebRTCSignal:     handleWebRTCSignal,
	InBroadcastAudio:   handleBroadcastAudio,
	InAudioStream:      handleAudioStream,
	InPrivateAudio:     handlePrivateAudio,
	InSwitchMode:       handleSwitchMode,
	InRequestPrivate:   handleRequestPrivate,
	InAcceptPrivate:    handleAcceptPrivate,
	InEndPrivate:       handleEndPrivate,
	InMute:             handleMute(true),
	InUnmute:           handleMute(false),
	InAudioStatus:      handleAudioStatus,
	InRecordingStarted: handleRecordingNotice(InRecordingStarted),
	InRecordingEnded:   handleRecordingNotice(InRecordingEnded),
	InPrivateRecStart:  handleRecordingNotice(InPrivateRecStart),
	InPrivateRecEnd:    handleRecordingNotice(InPrivateRecEnd),
	InGetParticipants:  handleGetParticipants,
	InPing:             handlePing,
	InPong:             handlePong,
	InSFUOffer:         handleSFUOffer,
	InSFUAnswer:        handleSFUAnswer,
	InSFUCandidate:     handleSFUCandidate,
}

var (
	errUnknownKind = domain.Errorf(domain.KindValidation, "unknown message type")
	errBadEnvelope = domain.Errorf(domain.KindValidation, "message must be a JSON object with a type")
)

// handleSignal dispatches one inbound frame. Failures go back to the
// sender only.
func (ctl *SignalWSController) handleSignal(cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Msg("bad envelope")
		ctl.Orch.SendError(cl.sid, errBadEnvelope)
		return
	}
	h, ok := handlers[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.Orch.SendError(cl.sid, errUnknownKind)
		return
	}
	if err := h(ctl, cl, data); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("type", env.Type).Msg("handler rejected message")
		ctl.Orch.SendError(cl.sid, err)
	}
}
