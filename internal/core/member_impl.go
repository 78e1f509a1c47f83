package core

import "sync"

// memberSession implements MemberSession by pairing identity + transport.
type memberSession struct {
	id     SessionID
	meta   Identity
	signal SignalConnection

	mu    sync.RWMutex
	media MediaConnection
}

func NewMemberSession(id SessionID, meta Identity, signal SignalConnection) MemberSession {
	return &memberSession{id: id, meta: meta, signal: signal}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Meta() Identity           { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }

func (m *memberSession) Media() MediaConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.media
}

// UpdateMedia swaps the media connection. The previous one is not closed.
func (m *memberSession) UpdateMedia(mc MediaConnection) MemberSession {
	m.mu.Lock()
	m.media = mc
	m.mu.Unlock()
	return m
}
