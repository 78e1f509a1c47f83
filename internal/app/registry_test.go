package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/core/mock"
	"github.com/dkeye/Lectern/internal/domain"
	"go.uber.org/mock/gomock"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed int32
}

func (c *fakeConn) TrySend(f core.Frame) error {
	if atomic.LoadInt32(&c.closed) > 0 {
		return core.ErrChannelClosed
	}
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() { atomic.AddInt32(&c.closed, 1) }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T) (*Registry, *mock.MockAuthenticator, *testClock) {
	t.Helper()
	ctrl := gomock.NewController(t)
	auth := mock.NewMockAuthenticator(ctrl)
	clk := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewRegistry(auth, WithClock(clk.Now)), auth, clk
}

func creds(user domain.UserID, role domain.Role) core.Credentials {
	return core.Credentials{Token: "tok-" + string(user), UserID: user, MeetingID: "m1", Role: role, Username: string(user)}
}

func TestRegistry_AdmitRejectsBadToken(t *testing.T) {
	r, auth, _ := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), "tok-s1").Return(core.Claims{}, errors.New("signature invalid"))

	_, err := r.Admit(context.Background(), "c1", &fakeConn{}, creds("s1", domain.RoleStudent), nil)
	if domain.KindOf(err) != domain.KindAuth {
		t.Fatalf("KindOf(err) = %q, want auth", domain.KindOf(err))
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}
}

func TestRegistry_AdmitRejectsMismatchedUser(t *testing.T) {
	r, auth, _ := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(core.Claims{UserID: "someone-else"}, nil)

	_, err := r.Admit(context.Background(), "c1", &fakeConn{}, creds("s1", domain.RoleStudent), nil)
	if !errors.Is(err, domain.ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}

func TestRegistry_AdmitMissingFieldsSkipsVerify(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	c := creds("s1", domain.RoleStudent)
	c.MeetingID = ""
	if _, err := r.Admit(context.Background(), "c1", &fakeConn{}, c, nil); !errors.Is(err, domain.ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}

func TestRegistry_AdmitUsesClaimRole(t *testing.T) {
	r, auth, _ := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(core.Claims{UserID: "s1", Role: domain.RoleStudent}, nil)

	sess, err := r.Admit(context.Background(), "c1", &fakeConn{}, creds("s1", domain.RoleHost), nil)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if sess.Meta().IsHost() {
		t.Error("claimed host role must not override the token role")
	}
}

func TestRegistry_ResolveAndRemove(t *testing.T) {
	r, auth, _ := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(core.Claims{}, nil).Times(2)
	ctx := context.Background()
	if _, err := r.Admit(ctx, "c1", &fakeConn{}, creds("host", domain.RoleHost), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Admit(ctx, "c2", &fakeConn{}, creds("s1", domain.RoleStudent), nil); err != nil {
		t.Fatal(err)
	}

	if got := len(r.Resolve("m1")); got != 2 {
		t.Errorf("Resolve len = %d, want 2", got)
	}
	if host, err := r.ResolveHost("m1"); err != nil || host.ID() != "c1" {
		t.Errorf("ResolveHost = %v, %v", host, err)
	}
	if _, err := r.ResolveUser("m1", "nobody"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("ResolveUser err = %v, want ErrSessionNotFound", err)
	}

	var removed []core.SessionID
	r.OnRemove(func(s core.MemberSession, reason RemoveReason) {
		removed = append(removed, s.ID())
	})
	if _, err := r.Remove("c2"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.Remove("c2"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second Remove err = %v, want ErrSessionNotFound", err)
	}
	if len(removed) != 1 || removed[0] != "c2" {
		t.Errorf("removed = %v, want [c2]", removed)
	}
	if got := len(r.Resolve("m1")); got != 1 {
		t.Errorf("Resolve len after remove = %d, want 1", got)
	}
}

func TestRegistry_ReconnectLastWriterWins(t *testing.T) {
	r, auth, _ := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(core.Claims{}, nil).Times(2)
	ctx := context.Background()
	_, _ = r.Admit(ctx, "c1", &fakeConn{}, creds("s1", domain.RoleStudent), nil)
	_, _ = r.Admit(ctx, "c2", &fakeConn{}, creds("s1", domain.RoleStudent), nil)

	got, err := r.ResolveUser("m1", "s1")
	if err != nil || got.ID() != "c2" {
		t.Fatalf("ResolveUser = %v, %v; want c2", got, err)
	}
	if r.Count() != 2 {
		t.Errorf("stale session should stay registered until it times out, Count = %d", r.Count())
	}
}

func TestRegistry_HeartbeatEvictsOnceAfterTimeout(t *testing.T) {
	r, auth, clk := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(core.Claims{}, nil).Times(2)
	ctx := context.Background()
	silent := &fakeConn{}
	chatty := &fakeConn{}
	var canceled int32
	_, _ = r.Admit(ctx, "c1", silent, creds("s1", domain.RoleStudent), func() { atomic.AddInt32(&canceled, 1) })
	_, _ = r.Admit(ctx, "c2", chatty, creds("s2", domain.RoleStudent), nil)

	var reasons []RemoveReason
	r.OnRemove(func(_ core.MemberSession, reason RemoveReason) { reasons = append(reasons, reason) })

	for i := 0; i < 2; i++ {
		clk.Advance(10 * time.Second)
		r.Touch("c2")
		if ev := r.Heartbeat(); len(ev) != 0 {
			t.Fatalf("tick %d evicted %d sessions early", i, len(ev))
		}
	}
	if silent.count() != 2 {
		t.Errorf("silent channel probes = %d, want 2", silent.count())
	}

	clk.Advance(10 * time.Second)
	r.Touch("c2")
	ev := r.Heartbeat()
	if len(ev) != 1 || ev[0].ID() != "c1" {
		t.Fatalf("evicted = %v, want [c1]", ev)
	}
	if atomic.LoadInt32(&silent.closed) != 1 {
		t.Errorf("silent channel closed %d times, want 1", silent.closed)
	}
	if atomic.LoadInt32(&canceled) != 1 {
		t.Errorf("cancel called %d times, want 1", canceled)
	}

	clk.Advance(10 * time.Second)
	r.Touch("c2")
	if ev := r.Heartbeat(); len(ev) != 0 {
		t.Errorf("second sweep evicted %d, want 0", len(ev))
	}
	if len(reasons) != 1 || reasons[0] != RemoveTimeout {
		t.Errorf("reasons = %v, want [timeout]", reasons)
	}
	if _, ok := r.Get("c2"); !ok {
		t.Error("acknowledging channel must stay registered")
	}
}

func TestRegistry_TimeoutEvictionRechecksLiveness(t *testing.T) {
	r, auth, clk := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(core.Claims{}, nil)
	conn := &fakeConn{}
	_, _ = r.Admit(context.Background(), "c1", conn, creds("s1", domain.RoleStudent), nil)

	// A sweep that saw c1 as stale must not evict it once it acknowledged.
	clk.Advance(31 * time.Second)
	r.Touch("c1")
	if _, err := r.Evict("c1", RemoveTimeout); !errors.Is(err, errStillAlive) {
		t.Fatalf("Evict = %v, want errStillAlive", err)
	}
	if _, ok := r.Get("c1"); !ok {
		t.Fatal("acknowledged channel was removed")
	}
	if atomic.LoadInt32(&conn.closed) != 0 {
		t.Error("acknowledged channel was closed")
	}

	clk.Advance(30 * time.Second)
	if _, err := r.Evict("c1", RemoveTimeout); err != nil {
		t.Fatalf("Evict after silence: %v", err)
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}
}

func TestRegistry_ConcurrentRemoveIsExactlyOnce(t *testing.T) {
	r, auth, _ := newTestRegistry(t)
	auth.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(core.Claims{}, nil)
	_, _ = r.Admit(context.Background(), "c1", &fakeConn{}, creds("s1", domain.RoleStudent), nil)

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Evict("c1", RemoveKicked); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful removals = %d, want 1", ok)
	}
}
