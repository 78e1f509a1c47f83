package app

import "github.com/dkeye/Lectern/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a recipient whose outbound buffer was
// full during fan-out.
type Policy interface {
	OnBackPressure(group core.Group, member core.MemberSession) BackpressureAction
}

// SimplePolicy disconnects slow consumers.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.Group, core.MemberSession) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops the frame for the slow recipient and keeps it connected.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(core.Group, core.MemberSession) BackpressureAction {
	return DropFrame
}

// PolicyByName maps a config value to a Policy. Unknown names fall back to
// SimplePolicy.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return TolerantPolicy{}
	}
	return SimplePolicy{}
}
