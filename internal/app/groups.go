package app

import (
	"sync"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
)

// GroupIndex owns one core.Group per meeting with live sessions.
type GroupIndex struct {
	mu     sync.RWMutex
	groups map[domain.MeetingID]core.Group
}

func NewGroupIndex() *GroupIndex {
	return &GroupIndex{groups: make(map[domain.MeetingID]core.Group)}
}

func (x *GroupIndex) GetOrCreate(id domain.MeetingID) core.Group {
	x.mu.RLock()
	g, ok := x.groups[id]
	x.mu.RUnlock()
	if ok {
		return g
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if g, ok = x.groups[id]; ok {
		return g
	}
	g = core.NewGroup(id)
	x.groups[id] = g
	return g
}

func (x *GroupIndex) Get(id domain.MeetingID) (core.Group, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	g, ok := x.groups[id]
	return g, ok
}

// DropIfEmpty forgets the group of id once its last member left.
func (x *GroupIndex) DropIfEmpty(id domain.MeetingID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if g, ok := x.groups[id]; ok && g.MemberCount() == 0 {
		delete(x.groups, id)
	}
}

func (x *GroupIndex) List() []core.GroupInfo {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]core.GroupInfo, 0, len(x.groups))
	for id, g := range x.groups {
		out = append(out, core.GroupInfo{MeetingID: id, MemberCount: g.MemberCount()})
	}
	return out
}
