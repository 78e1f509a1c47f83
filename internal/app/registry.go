package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLivenessInterval = 10 * time.Second
	DefaultLivenessTimeout  = 30 * time.Second
)

type RemoveReason string

const (
	RemoveDisconnect RemoveReason = "disconnect"
	RemoveTimeout    RemoveReason = "timeout"
	RemoveTerminated RemoveReason = "terminated"
	RemoveKicked     RemoveReason = "kicked"
)

// errStillAlive refuses a timeout eviction for a channel that acknowledged
// after the sweep took its snapshot.
var errStillAlive = domain.Errorf(domain.KindConflict, "session acknowledged since liveness check")

type sessionEntry struct {
	Session    core.MemberSession
	LastSeenAt time.Time
	LastPingAt time.Time
	Cancel     context.CancelFunc
}

// RemoveFunc observes every session that leaves the registry.
type RemoveFunc func(sess core.MemberSession, reason RemoveReason)

// Registry maps open channels to admitted sessions and groups them by
// meeting. It is the only owner of session state in the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	groups   *GroupIndex

	auth    core.Authenticator
	now     func() time.Time
	timeout time.Duration
	probe   core.Frame

	lmu      sync.RWMutex
	onRemove []RemoveFunc
}

type RegistryOption func(*Registry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func WithLivenessTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithProbe sets the frame sent to every channel on each liveness tick.
func WithProbe(f core.Frame) RegistryOption {
	return func(r *Registry) { r.probe = f }
}

func NewRegistry(auth core.Authenticator, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		groups:   NewGroupIndex(),
		auth:     auth,
		now:      time.Now,
		timeout:  DefaultLivenessTimeout,
		probe:    core.Frame(`{"type":"ping"}`),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnRemove registers fn to run after a session has been removed.
func (r *Registry) OnRemove(fn RemoveFunc) {
	r.lmu.Lock()
	r.onRemove = append(r.onRemove, fn)
	r.lmu.Unlock()
}

// Admit verifies creds and binds conn as a new session. cancel stops the
// adapter's pumps; it is invoked when the session is removed.
func (r *Registry) Admit(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	creds core.Credentials,
	cancel context.CancelFunc,
) (core.MemberSession, error) {
	if creds.Token == "" || creds.UserID == "" || creds.MeetingID == "" {
		return nil, domain.ErrBadCredentials
	}
	claims, err := r.auth.Verify(ctx, creds.Token)
	if err != nil {
		if domain.KindOf(err) != domain.KindAuth {
			err = domain.Wrap(domain.KindAuth, "token rejected", err)
		}
		return nil, err
	}
	if claims.UserID != "" && claims.UserID != creds.UserID {
		return nil, domain.ErrBadCredentials
	}
	role := creds.Role
	if claims.Role != "" {
		role = claims.Role
	}
	if !role.Valid() {
		return nil, domain.ErrBadCredentials
	}
	name := creds.Username
	if name == "" {
		name = claims.Username
	}
	user, err := domain.NewUser(creds.UserID, name, role)
	if err != nil {
		return nil, domain.Wrap(domain.KindAuth, "invalid identity", err)
	}

	sess := core.NewMemberSession(sid, core.Identity{User: *user, MeetingID: creds.MeetingID}, conn)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		Session:    sess,
		LastSeenAt: now,
		LastPingAt: now,
		Cancel:     cancel,
	}
	r.groups.GetOrCreate(creds.MeetingID).AddMember(sess)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user.ID)).Str("meeting", string(creds.MeetingID)).Msg("admitted session")
	return sess, nil
}

// Touch records a liveness acknowledgment. Unknown channels are ignored.
func (r *Registry) Touch(sid core.SessionID) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.LastSeenAt = now
		e.LastPingAt = now
	}
}

func (r *Registry) Get(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// LastSeen returns the time of the last acknowledgment on sid.
func (r *Registry) LastSeen(sid core.SessionID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.LastSeenAt, true
	}
	return time.Time{}, false
}

// Resolve returns every session bound to meeting id.
func (r *Registry) Resolve(id domain.MeetingID) []core.MemberSession {
	g, ok := r.groups.Get(id)
	if !ok {
		return nil
	}
	return g.Sessions()
}

// Group returns the fan-out group of meeting id.
func (r *Registry) Group(id domain.MeetingID) (core.Group, bool) {
	return r.groups.Get(id)
}

// ResolveUser returns the authoritative session of u in meeting id.
func (r *Registry) ResolveUser(id domain.MeetingID, u domain.UserID) (core.MemberSession, error) {
	if g, ok := r.groups.Get(id); ok {
		if ms, ok := g.ByUser(u); ok {
			return ms, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r *Registry) ResolveHost(id domain.MeetingID) (core.MemberSession, error) {
	if g, ok := r.groups.Get(id); ok {
		if ms, ok := g.Host(); ok {
			return ms, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

// Remove detaches sid and returns its session for cleanup notification.
func (r *Registry) Remove(sid core.SessionID) (core.MemberSession, error) {
	return r.remove(sid, RemoveDisconnect)
}

// Evict removes sid for reason and closes its channel.
func (r *Registry) Evict(sid core.SessionID, reason RemoveReason) (core.MemberSession, error) {
	sess, err := r.remove(sid, reason)
	if err != nil {
		return nil, err
	}
	sess.Signal().Close()
	return sess, nil
}

// remove deletes sid under the lock, so concurrent callers observe exactly
// one successful removal. A timeout removal re-checks staleness under the
// same lock.
func (r *Registry) remove(sid core.SessionID, reason RemoveReason) (core.MemberSession, error) {
	now := r.now()
	r.mu.Lock()
	e, ok := r.sessions[sid]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	if reason == RemoveTimeout && now.Sub(e.LastSeenAt) < r.timeout {
		r.mu.Unlock()
		return nil, errStillAlive
	}
	delete(r.sessions, sid)
	meetingID := e.Session.Meta().MeetingID
	if g, ok := r.groups.Get(meetingID); ok {
		g.RemoveMember(sid)
		r.groups.DropIfEmpty(meetingID)
	}
	r.mu.Unlock()

	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("reason", string(reason)).Msg("removed session")

	r.lmu.RLock()
	listeners := append([]RemoveFunc(nil), r.onRemove...)
	r.lmu.RUnlock()
	for _, fn := range listeners {
		fn(e.Session, reason)
	}
	return e.Session, nil
}

// Heartbeat is one liveness tick: channels silent for at least the timeout
// are evicted and closed, every other channel receives a probe.
func (r *Registry) Heartbeat() []core.MemberSession {
	now := r.now()
	var stale []core.SessionID
	var alive []core.MemberSession

	r.mu.RLock()
	for sid, e := range r.sessions {
		if now.Sub(e.LastSeenAt) >= r.timeout {
			stale = append(stale, sid)
			continue
		}
		alive = append(alive, e.Session)
	}
	r.mu.RUnlock()

	evicted := make([]core.MemberSession, 0, len(stale))
	for _, sid := range stale {
		if sess, err := r.Evict(sid, RemoveTimeout); err == nil {
			evicted = append(evicted, sess)
		}
	}
	for _, sess := range alive {
		_ = sess.Signal().TrySend(r.probe)
	}
	if len(evicted) > 0 {
		log.Info().Str("module", "app.registry").Int("evicted", len(evicted)).Int("alive", len(alive)).Msg("liveness sweep")
	}
	return evicted
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Groups() []core.GroupInfo { return r.groups.List() }
