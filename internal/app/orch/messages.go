package orch

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

// Outbound notification kinds.
const (
	MsgConnectionAck        = "connection-ack"
	MsgPong                 = "pong"
	MsgError                = "error"
	MsgMeetingJoined        = "meeting-joined"
	MsgParticipantJoined    = "participant-joined"
	MsgParticipantLeft      = "participant-left"
	MsgMeetingActivated     = "meeting-activated"
	MsgMeetingPaused        = "meeting-paused"
	MsgMeetingEnded         = "meeting-ended"
	MsgModeChanged          = "mode-changed"
	MsgPrivateRequested     = "private-conversation-requested"
	MsgPrivateStarted       = "private-conversation-started"
	MsgPrivateEnded         = "private-conversation-ended"
	MsgWebRTCSignal         = "webrtc-signal"
	MsgAudioStreamStart     = "audio-stream-start"
	MsgAudioBroadcast       = "audio-broadcast"
	MsgPrivateStream        = "private-stream-data"
	MsgParticipantMuted     = "participant-muted"
	MsgParticipantUnmuted   = "participant-unmuted"
	MsgParticipantAudio     = "participant-audio-status"
	MsgRecordingStarted     = "recording-started"
	MsgRecordingEnded       = "recording-ended"
	MsgPrivateRecStarted    = "private-recording-started"
	MsgPrivateRecEnded      = "private-recording-ended"
	MsgSFUAnswer            = "sfu-answer"
	MsgSFUOffer             = "sfu-offer"
	MsgSFUCandidate         = "sfu-candidate"
	MsgParticipantsSnapshot = "participants"
)

type ConnectionAck struct {
	Type      string           `json:"type"`
	Status    string           `json:"status"`
	ChannelID core.SessionID   `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
	MeetingID domain.MeetingID `json:"meetingId"`
	Role      domain.Role      `json:"role"`
}

type ParticipantEvent struct {
	Type      string           `json:"type"`
	UserID    domain.UserID    `json:"userId"`
	Username  string           `json:"username,omitempty"`
	Role      domain.Role      `json:"role,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Meeting   *MeetingSnapshot `json:"meetingData,omitempty"`
}

type MeetingSnapshot struct {
	Participants       domain.UserSet   `json:"participants"`
	ActiveParticipants domain.UserSet   `json:"activeParticipants"`
	Online             []core.MemberDTO `json:"online"`
}

type MeetingEnded struct {
	Type    string           `json:"type"`
	Meeting domain.MeetingID `json:"meetingId"`
	Reason  domain.EndReason `json:"reason"`
	Message string           `json:"message"`
	EndTime *time.Time       `json:"endTime"`
}

type MeetingStatus struct {
	Type      string               `json:"type"`
	Meeting   domain.MeetingID     `json:"meetingId"`
	Status    domain.MeetingStatus `json:"status"`
	StartTime *time.Time           `json:"startTime,omitempty"`
}

type ModeChanged struct {
	Type          string        `json:"type"`
	Mode          string        `json:"mode"`
	HostID        domain.UserID `json:"hostId"`
	ParticipantID domain.UserID `json:"participantId,omitempty"`
}

type PrivateConversation struct {
	Type      string        `json:"type"`
	HostID    domain.UserID `json:"hostId"`
	StudentID domain.UserID `json:"studentId"`
}

type SignalRelay struct {
	Type      string           `json:"type"`
	SenderID  domain.UserID    `json:"senderId"`
	MeetingID domain.MeetingID `json:"meetingId"`
	Signal    json.RawMessage  `json:"signal"`
}

type AudioFrame struct {
	Type      string          `json:"type"`
	UserID    domain.UserID   `json:"userId"`
	Role      domain.Role     `json:"role"`
	IsPrivate bool            `json:"isPrivate,omitempty"`
	Data      json.RawMessage `json:"audioData,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type MuteEvent struct {
	Type          string        `json:"type"`
	ParticipantID domain.UserID `json:"participantId"`
	By            domain.UserID `json:"by"`
}

type AudioStatus struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Role     domain.Role   `json:"role"`
	IsActive bool          `json:"isActive"`
}

type RecordingNotice struct {
	Type        string             `json:"type"`
	MeetingID   domain.MeetingID   `json:"meetingId"`
	RecordingID domain.RecordingID `json:"recordingId,omitempty"`
	StudentID   domain.UserID      `json:"studentId,omitempty"`
	Payload     json.RawMessage    `json:"data,omitempty"`
}

type ErrorEvent struct {
	Type    string      `json:"type"`
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: MsgError, Kind: domain.KindOf(err), Message: domain.Message(err)}
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode notification")
		return nil, false
	}
	return b, true
}
