package core

import (
	"sync"

	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

// groupImpl is a threadsafe in-memory meeting group.
// It never closes adapter-owned resources.
type groupImpl struct {
	meetingID domain.MeetingID
	mu        sync.RWMutex
	order     []SessionID
	bySID     map[SessionID]MemberSession
	byUser    map[domain.UserID]SessionID
}

func NewGroup(id domain.MeetingID) Group {
	return &groupImpl{
		meetingID: id,
		bySID:     make(map[SessionID]MemberSession),
		byUser:    make(map[domain.UserID]SessionID),
	}
}

func (g *groupImpl) MeetingID() domain.MeetingID { return g.meetingID }

func (g *groupImpl) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.bySID)
}

// AddMember binds ms. A newer session of the same user becomes the
// authoritative one for that user; the older session stays in the group.
func (g *groupImpl) AddMember(ms MemberSession) {
	sid := ms.ID()
	u := ms.Meta().UserID()
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.bySID[sid]; !ok {
		g.order = append(g.order, sid)
	}
	g.bySID[sid] = ms
	g.byUser[u] = sid
	log.Info().Str("module", "core.group").Str("meeting", string(g.meetingID)).Str("sid", string(sid)).Str("user", string(u)).Msg("member added")
}

func (g *groupImpl) RemoveMember(sid SessionID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms, ok := g.bySID[sid]
	if !ok {
		return false
	}
	delete(g.bySID, sid)
	for i, s := range g.order {
		if s == sid {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	u := ms.Meta().UserID()
	if g.byUser[u] == sid {
		delete(g.byUser, u)
		// Fall back to the newest remaining session of the same user.
		for i := len(g.order) - 1; i >= 0; i-- {
			if other := g.bySID[g.order[i]]; other.Meta().UserID() == u {
				g.byUser[u] = other.ID()
				break
			}
		}
	}
	log.Info().Str("module", "core.group").Str("meeting", string(g.meetingID)).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (g *groupImpl) ByUser(u domain.UserID) (MemberSession, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sid, ok := g.byUser[u]
	if !ok {
		return nil, false
	}
	return g.bySID[sid], true
}

func (g *groupImpl) Host() (MemberSession, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i := len(g.order) - 1; i >= 0; i-- {
		ms := g.bySID[g.order[i]]
		if ms.Meta().IsHost() && g.byUser[ms.Meta().UserID()] == ms.ID() {
			return ms, true
		}
	}
	return nil, false
}

func (g *groupImpl) Sessions() []MemberSession {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]MemberSession, 0, len(g.order))
	for _, sid := range g.order {
		out = append(out, g.bySID[sid])
	}
	return out
}

func (g *groupImpl) Broadcast(from SessionID, data Frame) PublishResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range g.order {
		if sid == from {
			continue
		}
		m := g.bySID[sid]
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.group").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// MembersSnapshot lists one entry per user, from the authoritative session.
func (g *groupImpl) MembersSnapshot() []MemberDTO {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]MemberDTO, 0, len(g.byUser))
	for _, sid := range g.order {
		ms := g.bySID[sid]
		u := ms.Meta().User
		if g.byUser[u.ID] != sid {
			continue
		}
		out = append(out, MemberDTO{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	return out
}
