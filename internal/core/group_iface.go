package core

import "github.com/dkeye/Lectern/internal/domain"

// PublishResult reports delivery stats/backpressure to the relay.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
}

// Group is the fan-out set of sessions bound to one meeting.
// It owns the membership set but never touches transport resources.
type Group interface {
	MeetingID() domain.MeetingID
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Sessions() []MemberSession

	AddMember(ms MemberSession)
	// RemoveMember drops sid and reports whether it was present.
	RemoveMember(sid SessionID) bool
	// ByUser returns the authoritative session of u in this meeting.
	ByUser(u domain.UserID) (MemberSession, bool)
	// Host returns the authoritative session of a host in this meeting.
	Host() (MemberSession, bool)

	// Broadcast sends data to every member except from, in member order.
	Broadcast(from SessionID, data Frame) PublishResult
}

type GroupInfo struct {
	MeetingID   domain.MeetingID `json:"meetingId"`
	MemberCount int              `json:"memberCount"`
}
