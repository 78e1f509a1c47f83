package core

import "github.com/dkeye/Lectern/internal/domain"

// SessionID identifies one open realtime channel.
type SessionID string

// Identity is what admission established about the peer on a channel.
type Identity struct {
	User      domain.User
	MeetingID domain.MeetingID
}

func (i Identity) UserID() domain.UserID { return i.User.ID }
func (i Identity) IsHost() bool          { return i.User.Role == domain.RoleHost }

// MemberSession binds an admitted identity and its transport endpoints.
// This is what a meeting group stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Meta() Identity
	Signal() SignalConnection
	Media() MediaConnection
	UpdateMedia(MediaConnection) MemberSession
}
