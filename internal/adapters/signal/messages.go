package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Lectern/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Inbound message kinds. Anything else is rejected at the boundary.
const (
	InJoinMeeting      = "join-meeting"
	InLeaveMeeting     = "leave-meeting"
	InWebRTCSignal     = "webrtc-signal"
	InBroadcastAudio   = "broadcast-audio"
	InAudioStream      = "audio-stream"
	InPrivateAudio     = "private-audio-stream"
	InSwitchMode       = "switch-mode"
	InRequestPrivate   = "request-private-conversation"
	InAcceptPrivate    = "accept-private-conversation"
	InEndPrivate       = "end-private-conversation"
	InMute             = "mute-participant"
	InUnmute           = "unmute-participant"
	InAudioStatus      = "audio-status-change"
	InRecordingStarted = "recording-started"
	InRecordingEnded   = "recording-ended"
	InPrivateRecStart  = "private-recording-started"
	InPrivateRecEnd    = "private-recording-ended"
	InGetParticipants  = "get-participants"
	InPing             = "ping"
	InPong             = "pong"
	InSFUOffer         = "sfu-offer"
	InSFUAnswer        = "sfu-answer"
	InSFUCandidate     = "sfu-candidate"
)

func badPayload(kind string, err error) error {
	return domain.Wrap(domain.KindValidation, fmt.Sprintf("malformed %s payload", kind), err)
}

func decode(kind string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return badPayload(kind, err)
	}
	return nil
}

type webrtcSignalMsg struct {
	TargetID domain.UserID   `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

// validate accepts a session description or an ICE candidate, the two
// shapes a browser peer connection produces.
func (m *webrtcSignalMsg) validate() error {
	if m.TargetID == "" || len(m.Signal) == 0 {
		return domain.ErrMissingField
	}
	var probe struct {
		Type      *string `json:"type"`
		SDP       *string `json:"sdp"`
		Candidate *string `json:"candidate"`
	}
	if err := json.Unmarshal(m.Signal, &probe); err != nil {
		return badPayload(InWebRTCSignal, err)
	}
	switch {
	case probe.SDP != nil:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(m.Signal, &sd); err != nil {
			return badPayload(InWebRTCSignal, err)
		}
	case probe.Candidate != nil:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(m.Signal, &ci); err != nil {
			return badPayload(InWebRTCSignal, err)
		}
	default:
		return badPayload(InWebRTCSignal, fmt.Errorf("signal is neither a description nor a candidate"))
	}
	return nil
}

type audioMsg struct {
	TargetUserID domain.UserID   `json:"targetUserId"`
	AudioData    json.RawMessage `json:"audioData"`
}

type switchModeMsg struct {
	Mode         string        `json:"mode"`
	TargetUserID domain.UserID `json:"targetUserId"`
}

func (m *switchModeMsg) validate() error {
	switch m.Mode {
	case "private":
		if m.TargetUserID == "" {
			return domain.ErrMissingField
		}
	case "broadcast", "public":
	default:
		return domain.ErrBadMode
	}
	return nil
}

type acceptPrivateMsg struct {
	StudentID domain.UserID `json:"studentId"`
}

type muteMsg struct {
	ParticipantID domain.UserID `json:"participantId"`
}

type audioStatusMsg struct {
	IsActive bool `json:"isActive"`
}

type recordingNoticeMsg struct {
	Data json.RawMessage `json:"data"`
}

type sfuDescriptionMsg struct {
	SDP string `json:"sdp"`
}

type sfuCandidateMsg struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

func (m sfuCandidateMsg) init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex}
}
