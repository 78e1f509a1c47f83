package domain

import (
	"time"
)

const (
	DefaultMaxDuration     = 5 * time.Hour
	DefaultMaxParticipants = 50
)

type MeetingID string

type MeetingStatus string

const (
	StatusCreated   MeetingStatus = "created"
	StatusActive    MeetingStatus = "active"
	StatusPaused    MeetingStatus = "paused"
	StatusEnded     MeetingStatus = "ended"
	StatusCancelled MeetingStatus = "cancelled"
	StatusArchived  MeetingStatus = "archived"
)

type EndReason string

const (
	EndHostEnded        EndReason = "host_ended"
	EndDurationExceeded EndReason = "duration_exceeded"
)

// Message returns the text sent to clients in meeting-ended notifications.
func (r EndReason) Message() string {
	switch r {
	case EndHostEnded:
		return "Host ended the meeting"
	case EndDurationExceeded:
		return "Maximum duration exceeded"
	}
	return string(r)
}

type PrivateMode struct {
	IsActive      bool   `json:"isActive"`
	ParticipantID UserID `gorm:"size:64" json:"participantId,omitempty"`
}

type PrivateChat struct {
	IsActive    bool        `json:"isActive"`
	StudentID   UserID      `gorm:"size:64" json:"studentId,omitempty"`
	StartTime   *time.Time  `json:"startTime,omitempty"`
	RecordingID RecordingID `gorm:"size:36" json:"recordingId,omitempty"`
}

// Meeting is a single versioned document. Mutating methods only touch the
// in-memory value; callers persist it.
type Meeting struct {
	ID                 MeetingID     `gorm:"primaryKey;size:36" json:"id"`
	HostID             UserID        `gorm:"size:64;not null;index" json:"hostId"`
	Topic              string        `gorm:"not null" json:"topic"`
	Status             MeetingStatus `gorm:"size:16;not null;index" json:"status"`
	Participants       UserSet       `gorm:"serializer:json" json:"participants"`
	ActiveParticipants UserSet       `gorm:"serializer:json" json:"activeParticipants"`
	PrivateMode        PrivateMode   `gorm:"embedded;embeddedPrefix:private_mode_" json:"privateMode"`
	ActivePrivateChat  PrivateChat   `gorm:"embedded;embeddedPrefix:private_chat_" json:"activePrivateChat"`
	MaxDuration        time.Duration `gorm:"not null" json:"maxDuration"`
	MaxParticipants    int           `gorm:"not null" json:"maxParticipants"`
	StartTime          *time.Time    `json:"startTime,omitempty"`
	EndTime            *time.Time    `json:"endTime,omitempty"`
	EndReason          EndReason     `gorm:"size:32" json:"endReason,omitempty"`
	Version            int           `gorm:"not null" json:"version"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func NewMeeting(id MeetingID, hostID UserID, topic string, now time.Time) (*Meeting, error) {
	if hostID == "" || topic == "" {
		return nil, ErrMissingField
	}
	return &Meeting{
		ID:                 id,
		HostID:             hostID,
		Topic:              topic,
		Status:             StatusCreated,
		Participants:       UserSet{},
		ActiveParticipants: UserSet{},
		MaxDuration:        DefaultMaxDuration,
		MaxParticipants:    DefaultMaxParticipants,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (m *Meeting) IsHost(u UserID) bool { return m.HostID == u }

// IsMember reports whether u may act inside the meeting: the host or anyone
// who joined and has not left.
func (m *Meeting) IsMember(u UserID) bool {
	return m.IsHost(u) || m.Participants.Contains(u) || m.ActiveParticipants.Contains(u)
}

func (m *Meeting) Joinable() bool {
	return m.Status == StatusCreated || m.Status == StatusActive
}

// Expired reports whether an active meeting ran longer than MaxDuration,
// measured from StartTime or CreatedAt when StartTime was never set.
func (m *Meeting) Expired(now time.Time) bool {
	if m.Status != StatusActive {
		return false
	}
	from := m.CreatedAt
	if m.StartTime != nil {
		from = *m.StartTime
	}
	return now.Sub(from) > m.MaxDuration
}

// Archivable reports whether an ended meeting's EndTime is older than after.
func (m *Meeting) Archivable(now time.Time, after time.Duration) bool {
	return m.Status == StatusEnded && m.EndTime != nil && now.Sub(*m.EndTime) > after
}

// Activate moves created or paused meetings to active. StartTime is set once.
func (m *Meeting) Activate(caller UserID, now time.Time) error {
	if !m.IsHost(caller) {
		return ErrNotHost
	}
	switch m.Status {
	case StatusActive:
		return ErrAlreadyActive
	case StatusCreated, StatusPaused:
	default:
		return ErrBadTransition
	}
	m.Status = StatusActive
	if m.StartTime == nil {
		t := now
		m.StartTime = &t
	}
	return nil
}

func (m *Meeting) Pause(caller UserID) error {
	if !m.IsHost(caller) {
		return ErrNotHost
	}
	if m.Status != StatusActive {
		return ErrBadTransition
	}
	m.Status = StatusPaused
	return nil
}

func (m *Meeting) Cancel(caller UserID, now time.Time) error {
	if !m.IsHost(caller) {
		return ErrNotHost
	}
	if m.Status != StatusCreated {
		return ErrBadTransition
	}
	m.Status = StatusCancelled
	t := now
	m.EndTime = &t
	return nil
}

// End terminates the meeting on behalf of the host. A host ending a meeting
// that already overran MaxDuration records duration_exceeded instead.
func (m *Meeting) End(caller UserID, now time.Time) error {
	if !m.IsHost(caller) {
		return ErrNotHost
	}
	if m.Status != StatusActive && m.Status != StatusPaused {
		return ErrBadTransition
	}
	reason := EndHostEnded
	if m.StartTime != nil && now.Sub(*m.StartTime) > m.MaxDuration {
		reason = EndDurationExceeded
	}
	m.terminate(reason, now)
	return nil
}

// ForceEnd terminates an expired meeting. It is a no-op error when the
// meeting no longer qualifies, so repeated sweeps do nothing.
func (m *Meeting) ForceEnd(now time.Time) error {
	if !m.Expired(now) {
		return ErrBadTransition
	}
	m.terminate(EndDurationExceeded, now)
	return nil
}

func (m *Meeting) terminate(reason EndReason, now time.Time) {
	t := now
	m.Status = StatusEnded
	m.EndTime = &t
	m.EndReason = reason
	m.ActiveParticipants = UserSet{}
	m.PrivateMode = PrivateMode{}
	m.ActivePrivateChat = PrivateChat{}
}

func (m *Meeting) Archive(now time.Time, after time.Duration) error {
	if !m.Archivable(now, after) {
		return ErrBadTransition
	}
	m.Status = StatusArchived
	return nil
}

// Join adds u to the active set, and to participants when u is not the host.
// Nothing changes when the join is rejected.
func (m *Meeting) Join(u UserID) error {
	if !m.Joinable() {
		return ErrNotJoinable
	}
	if !m.IsHost(u) && !m.Participants.Contains(u) {
		if len(m.Participants)+1 > m.MaxParticipants {
			return ErrCapacity
		}
		m.Participants = m.Participants.Add(u)
	}
	m.ActiveParticipants = m.ActiveParticipants.Add(u)
	return nil
}

func (m *Meeting) Leave(u UserID) {
	m.ActiveParticipants = m.ActiveParticipants.Remove(u)
	if !m.IsHost(u) {
		m.Participants = m.Participants.Remove(u)
	}
	if m.PrivateMode.IsActive && m.PrivateMode.ParticipantID == u {
		m.PrivateMode = PrivateMode{}
	}
}

// SetPrivateMode switches between broadcast and private audio. Only one
// private target may be active at a time.
func (m *Meeting) SetPrivateMode(caller UserID, private bool, participant UserID) error {
	if !m.IsHost(caller) {
		return ErrNotHost
	}
	if !private {
		m.PrivateMode = PrivateMode{}
		return nil
	}
	if participant == "" {
		return ErrMissingField
	}
	if m.Status != StatusActive {
		return ErrNotJoinable
	}
	if m.PrivateMode.IsActive {
		return ErrPrivateInProgress
	}
	m.PrivateMode = PrivateMode{IsActive: true, ParticipantID: participant}
	return nil
}

func (m *Meeting) StartPrivateChat(caller, student UserID, rec RecordingID, now time.Time) error {
	if !m.IsHost(caller) {
		return ErrNotHost
	}
	if student == "" {
		return ErrMissingField
	}
	if m.Status != StatusActive {
		return ErrNotJoinable
	}
	if m.ActivePrivateChat.IsActive {
		return ErrPrivateChatActive
	}
	t := now
	m.ActivePrivateChat = PrivateChat{IsActive: true, StudentID: student, StartTime: &t, RecordingID: rec}
	return nil
}

// EndPrivateChat clears the private chat and returns the state it had.
func (m *Meeting) EndPrivateChat(caller UserID) (PrivateChat, error) {
	if !m.IsHost(caller) {
		return PrivateChat{}, ErrNotHost
	}
	if !m.ActivePrivateChat.IsActive {
		return PrivateChat{}, ErrNoPrivateChat
	}
	prev := m.ActivePrivateChat
	m.ActivePrivateChat = PrivateChat{}
	return prev, nil
}

// Validate checks the invariants that must hold before every save.
func (m *Meeting) Validate() error {
	if len(m.Participants) > m.MaxParticipants {
		return ErrCapacity
	}
	if m.StartTime != nil && m.EndTime != nil && m.EndReason != EndDurationExceeded {
		if m.EndTime.Sub(*m.StartTime) > m.MaxDuration {
			return ErrDuration
		}
	}
	return nil
}
