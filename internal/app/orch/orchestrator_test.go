package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Lectern/internal/app"
	"github.com/dkeye/Lectern/internal/app/lifecycle"
	"github.com/dkeye/Lectern/internal/app/sfu"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/pion/webrtc/v4"
)

type memMeetings struct {
	mu   sync.Mutex
	docs map[domain.MeetingID]domain.Meeting
}

func (s *memMeetings) Create(_ context.Context, m *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Version = 1
	s.docs[m.ID] = *m
	return nil
}

func (s *memMeetings) Get(_ context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrMeetingNotFound
	}
	m.Participants = append(domain.UserSet{}, m.Participants...)
	m.ActiveParticipants = append(domain.UserSet{}, m.ActiveParticipants...)
	return &m, nil
}

func (s *memMeetings) Save(_ context.Context, m *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[m.ID].Version != m.Version {
		return domain.ErrVersionConflict
	}
	m.Version++
	s.docs[m.ID] = *m
	return nil
}

func (s *memMeetings) ListByStatus(_ context.Context, st domain.MeetingStatus) ([]*domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Meeting
	for _, m := range s.docs {
		if m.Status == st {
			cp := m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// tokenAuth accepts any token equal to the user id it claims.
type tokenAuth struct{}

func (tokenAuth) Verify(_ context.Context, token string) (core.Claims, error) {
	if token == "" || token == "bad" {
		return core.Claims{}, domain.ErrBadCredentials
	}
	return core.Claims{UserID: domain.UserID(token)}, nil
}

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// types returns the type field of every frame received so far and clears
// the buffer.
func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	c.frames = nil
	return out
}

func (c *fakeConn) last(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return false
	}
	return json.Unmarshal(c.frames[len(c.frames)-1], v) == nil
}

type harness struct {
	o       *Orchestrator
	store   *memMeetings
	meeting *domain.Meeting
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, time.Now)
}

func newHarnessAt(t *testing.T, now func() time.Time) *harness {
	t.Helper()
	store := &memMeetings{docs: make(map[domain.MeetingID]domain.Meeting)}
	svc := lifecycle.NewService(store, lifecycle.DefaultOptions(), now)
	reg := app.NewRegistry(tokenAuth{})
	h := &harness{o: New(reg, svc, nil, app.SimplePolicy{}, nil), store: store}
	ctx := context.Background()
	m, err := svc.Create(ctx, domain.User{ID: "host", Username: "Teacher", Role: domain.RoleHost}, "Physics")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m, err = svc.Activate(ctx, m.ID, "host"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	h.meeting = m
	return h
}

func (h *harness) admit(t *testing.T, user string, role domain.Role) (core.SessionID, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	sid := core.SessionID("sid-" + user)
	creds := core.Credentials{Token: user, UserID: domain.UserID(user), MeetingID: h.meeting.ID, Role: role, Username: user}
	if _, err := h.o.Admit(context.Background(), sid, conn, creds, nil); err != nil {
		t.Fatalf("Admit(%s): %v", user, err)
	}
	return sid, conn
}

func (h *harness) join(t *testing.T, sid core.SessionID) {
	t.Helper()
	if _, err := h.o.JoinMeeting(context.Background(), sid); err != nil {
		t.Fatalf("JoinMeeting(%s): %v", sid, err)
	}
}

func equalTypes(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAdmit_AckOnly(t *testing.T) {
	h := newHarness(t)
	_, hostConn := h.admit(t, "host", domain.RoleHost)
	_, sConn := h.admit(t, "s1", domain.RoleStudent)

	if got := sConn.types(); !equalTypes(got, MsgConnectionAck) {
		t.Errorf("student frames = %v, want [connection-ack]", got)
	}
	if got := hostConn.types(); !equalTypes(got, MsgConnectionAck) {
		t.Errorf("host frames = %v, want only its own ack", got)
	}
}

func TestAdmit_Refusals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	creds := core.Credentials{Token: "s1", UserID: "s1", MeetingID: "missing", Role: domain.RoleStudent, Username: "s1"}
	if _, err := h.o.Admit(ctx, "a", &fakeConn{}, creds, nil); !errors.Is(err, domain.ErrMeetingNotFound) {
		t.Errorf("unknown meeting err = %v", err)
	}

	creds = core.Credentials{Token: "intruder", UserID: "intruder", MeetingID: h.meeting.ID, Role: domain.RoleHost, Username: "x"}
	if _, err := h.o.Admit(ctx, "b", &fakeConn{}, creds, nil); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("foreign host err = %v, want ErrNotHost", err)
	}
	if h.o.Registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", h.o.Registry.Count())
	}

	if _, err := h.o.Meetings.End(ctx, h.meeting.ID, "host"); err != nil {
		t.Fatalf("End: %v", err)
	}
	creds = core.Credentials{Token: "s1", UserID: "s1", MeetingID: h.meeting.ID, Role: domain.RoleStudent, Username: "s1"}
	if _, err := h.o.Admit(ctx, "c", &fakeConn{}, creds, nil); !errors.Is(err, domain.ErrNotJoinable) {
		t.Errorf("ended meeting err = %v, want ErrNotJoinable", err)
	}
}

func TestRelayRequiresJoin(t *testing.T) {
	h := newHarness(t)
	sid, _ := h.admit(t, "s1", domain.RoleStudent)
	err := h.o.Signal(sid, "host", json.RawMessage(`{"sdp":"x"}`))
	if !errors.Is(err, domain.ErrNotMember) {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}
	h.join(t, sid)
	if err := h.o.AudioStatus(sid, true); err != nil {
		t.Fatalf("AudioStatus after join: %v", err)
	}
}

func TestJoin_NotifiesOthers(t *testing.T) {
	h := newHarness(t)
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	h.join(t, hostSID)
	sid, sConn := h.admit(t, "s1", domain.RoleStudent)
	hostConn.types()
	sConn.types()

	h.join(t, sid)
	if got := hostConn.types(); !equalTypes(got, MsgParticipantJoined) {
		t.Errorf("host frames = %v, want [participant-joined]", got)
	}
	if got := sConn.types(); len(got) != 0 {
		t.Errorf("joiner frames = %v, want none", got)
	}
}

func TestSignal_DirectedOnly(t *testing.T) {
	h := newHarness(t)
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	s1, c1 := h.admit(t, "s1", domain.RoleStudent)
	s2, c2 := h.admit(t, "s2", domain.RoleStudent)
	for _, sid := range []core.SessionID{hostSID, s1, s2} {
		h.join(t, sid)
	}
	hostConn.types()
	c1.types()
	c2.types()

	if err := h.o.Signal(s1, "host", json.RawMessage(`{"type":"offer"}`)); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	var got SignalRelay
	if !hostConn.last(&got) || got.SenderID != "s1" || got.Type != MsgWebRTCSignal {
		t.Errorf("host got %+v", got)
	}
	if n := len(c2.types()); n != 0 {
		t.Errorf("bystander received %d frames", n)
	}
	if err := h.o.Signal(s1, "nobody", nil); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("unknown target err = %v", err)
	}
}

func TestAudioStream_PrivateModeTargetsParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hostSID, _ := h.admit(t, "host", domain.RoleHost)
	s1, c1 := h.admit(t, "s1", domain.RoleStudent)
	s2, c2 := h.admit(t, "s2", domain.RoleStudent)
	for _, sid := range []core.SessionID{hostSID, s1, s2} {
		h.join(t, sid)
	}

	if err := h.o.AudioStream(ctx, hostSID, json.RawMessage(`"AAAA"`)); err != nil {
		t.Fatalf("AudioStream: %v", err)
	}
	if got := c1.types(); got[len(got)-1] != MsgAudioBroadcast {
		t.Errorf("s1 frames = %v", got)
	}
	c2.types()

	if err := h.o.AcceptPrivate(ctx, hostSID, "s1"); err != nil {
		t.Fatalf("AcceptPrivate: %v", err)
	}
	if got := c2.types(); !equalTypes(got, MsgModeChanged, MsgPrivateStarted) {
		t.Errorf("s2 frames = %v, want mode-changed then private-conversation-started", got)
	}
	c1.types()

	if err := h.o.AudioStream(ctx, hostSID, json.RawMessage(`"BBBB"`)); err != nil {
		t.Fatalf("AudioStream: %v", err)
	}
	var frame AudioFrame
	if !c1.last(&frame) || !frame.IsPrivate {
		t.Errorf("s1 frame = %+v, want private audio", frame)
	}
	if got := c2.types(); len(got) != 0 {
		t.Errorf("s2 heard private audio: %v", got)
	}

	if err := h.o.SwitchMode(ctx, hostSID, "private", "s2"); !errors.Is(err, domain.ErrPrivateInProgress) {
		t.Errorf("second private err = %v, want ErrPrivateInProgress", err)
	}
	if err := h.o.EndPrivate(ctx, hostSID); err != nil {
		t.Fatalf("EndPrivate: %v", err)
	}
	if got := c2.types(); !equalTypes(got, MsgModeChanged, MsgPrivateEnded) {
		t.Errorf("s2 frames after end = %v", got)
	}
}

func TestHostOnlyOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sid, _ := h.admit(t, "s1", domain.RoleStudent)
	h.join(t, sid)

	if err := h.o.AudioStream(ctx, sid, nil); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("AudioStream err = %v", err)
	}
	if err := h.o.SwitchMode(ctx, sid, "private", "s1"); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("SwitchMode err = %v", err)
	}
	if err := h.o.SetParticipantMuted(ctx, sid, "s1", true); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("mute err = %v", err)
	}
	if err := h.o.RecordingNotice(sid, MsgRecordingStarted, nil); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("recording notice err = %v", err)
	}
	if err := h.o.SwitchMode(ctx, sid, "loud", ""); !errors.Is(err, domain.ErrBadMode) {
		t.Errorf("bad mode err = %v", err)
	}
}

func TestPrivateAudio_StudentReachesHost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	s1, _ := h.admit(t, "s1", domain.RoleStudent)
	h.join(t, hostSID)
	h.join(t, s1)
	hostConn.types()

	if err := h.o.PrivateAudio(s1, "", json.RawMessage(`"x"`)); err != nil {
		t.Fatalf("PrivateAudio: %v", err)
	}
	if got := hostConn.types(); !equalTypes(got, MsgPrivateStream) {
		t.Errorf("host frames = %v", got)
	}

	if err := h.o.SetParticipantMuted(ctx, hostSID, "s1", true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if err := h.o.PrivateAudio(s1, "", json.RawMessage(`"x"`)); err != nil {
		t.Fatalf("PrivateAudio muted: %v", err)
	}
	if got := hostConn.types(); len(got) != 0 {
		t.Errorf("muted student reached host: %v", got)
	}
}

func TestDisconnect_KeepsParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	s1, _ := h.admit(t, "s1", domain.RoleStudent)
	h.join(t, hostSID)
	h.join(t, s1)
	hostConn.types()

	h.o.Disconnect(s1)
	if got := hostConn.types(); !equalTypes(got, MsgParticipantLeft) {
		t.Errorf("host frames = %v", got)
	}
	m, _ := h.o.Meetings.Get(ctx, h.meeting.ID)
	if m.ActiveParticipants.Contains("s1") || !m.Participants.Contains("s1") {
		t.Errorf("after disconnect participants=%v active=%v", m.Participants, m.ActiveParticipants)
	}
}

func TestDisconnect_SecondSessionKeepsUserOnline(t *testing.T) {
	h := newHarness(t)
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	h.join(t, hostSID)
	conn := &fakeConn{}
	creds := core.Credentials{Token: "s1", UserID: "s1", MeetingID: h.meeting.ID, Role: domain.RoleStudent, Username: "s1"}
	if _, err := h.o.Admit(context.Background(), "old", conn, creds, nil); err != nil {
		t.Fatal(err)
	}
	newSID, _ := h.admit(t, "s1", domain.RoleStudent)
	hostConn.types()

	h.o.Disconnect("old")
	if got := hostConn.types(); len(got) != 0 {
		t.Errorf("host frames = %v, want none while %s is online", got, newSID)
	}
}

func TestEndMeeting_DetachesEveryone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	s1, c1 := h.admit(t, "s1", domain.RoleStudent)
	h.join(t, hostSID)
	h.join(t, s1)
	c1.types()

	if _, err := h.o.Meetings.End(ctx, h.meeting.ID, "host"); err != nil {
		t.Fatalf("End: %v", err)
	}
	var ended MeetingEnded
	if !c1.last(&ended) || ended.Type != MsgMeetingEnded || ended.Reason != domain.EndHostEnded {
		t.Errorf("student last frame = %+v", ended)
	}
	if !c1.isClosed() || !hostConn.isClosed() {
		t.Error("channels left open after meeting end")
	}
	if h.o.Registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", h.o.Registry.Count())
	}
}

func TestLeaveMeeting_KeepsChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	s1, c1 := h.admit(t, "s1", domain.RoleStudent)
	h.join(t, hostSID)
	h.join(t, s1)
	hostConn.types()

	m, err := h.o.LeaveMeeting(ctx, s1)
	if err != nil {
		t.Fatalf("LeaveMeeting: %v", err)
	}
	if m.Participants.Contains("s1") {
		t.Errorf("student still in participants: %v", m.Participants)
	}
	if got := hostConn.types(); !equalTypes(got, MsgParticipantLeft) {
		t.Errorf("host frames = %v", got)
	}
	if c1.isClosed() {
		t.Error("leave closed the channel")
	}
	if err := h.o.AudioStatus(s1, true); !errors.Is(err, domain.ErrNotMember) {
		t.Errorf("relay after leave err = %v, want ErrNotMember", err)
	}
}

func TestAudible(t *testing.T) {
	h := newHarness(t)
	m := *h.meeting
	cases := []struct {
		name     string
		private  domain.UserID
		src, dst domain.UserID
		want     bool
	}{
		{"host to student", "", "host", "s1", true},
		{"student to host", "", "s1", "host", true},
		{"student to student", "", "s1", "s2", false},
		{"private host to target", "s1", "host", "s1", true},
		{"private host to other", "s1", "host", "s2", false},
		{"self", "", "host", "host", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mm := m
			mm.PrivateMode = domain.PrivateMode{IsActive: tc.private != "", ParticipantID: tc.private}
			if got := h.o.audible(&mm, tc.src, tc.dst); got != tc.want {
				t.Errorf("audible(%s, %s) = %v, want %v", tc.src, tc.dst, got, tc.want)
			}
		})
	}
}

// fakeMedia is a media connection that only tracks whether it is closed.
type fakeMedia struct {
	mu     sync.Mutex
	closed bool
}

func (m *fakeMedia) Start(context.Context) error { return nil }

func (m *fakeMedia) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *fakeMedia) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMedia) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (m *fakeMedia) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}, nil
}

func (m *fakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}, nil
}

func (m *fakeMedia) ApplyAnswer(webrtc.SessionDescription) error { return nil }
func (m *fakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}
func (m *fakeMedia) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}
func (m *fakeMedia) OnNegotiationNeeded(func()) {}
func (m *fakeMedia) OnClosed(func()) {}

func (m *fakeMedia) AddLocalTrack(*webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return nil, errors.New("no local tracks")
}

// attachMedia gives sid a fake media connection and returns it.
func (h *harness) attachMedia(t *testing.T, sid core.SessionID) *fakeMedia {
	t.Helper()
	sess, ok := h.o.Registry.Get(sid)
	if !ok {
		t.Fatalf("no session %s", sid)
	}
	mc := &fakeMedia{}
	sess.UpdateMedia(mc)
	return mc
}

// deadTrackCtx lets a relay start without reading from its track.
func deadTrackCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestOnTrack_BeforeJoinStartsAfterJoin(t *testing.T) {
	h := newHarness(t)
	h.o.Relays = sfu.NewRelayManager()
	s1, _ := h.admit(t, "s1", domain.RoleStudent)
	h.attachMedia(t, s1)

	h.o.OnTrack(deadTrackCtx(), s1, &webrtc.TrackRemote{})
	if h.o.Relays.HasRelay(s1) {
		t.Fatal("relay started before join")
	}

	h.join(t, s1)
	if !h.o.Relays.HasRelay(s1) {
		t.Error("track sent before join was never relayed")
	}
}

func TestOnTrack_HeldTrackDroppedWithItsConnection(t *testing.T) {
	h := newHarness(t)
	h.o.Relays = sfu.NewRelayManager()
	s1, _ := h.admit(t, "s1", domain.RoleStudent)
	h.attachMedia(t, s1)
	h.o.OnTrack(deadTrackCtx(), s1, &webrtc.TrackRemote{})

	// A renegotiated connection replaces the one that carried the track.
	h.attachMedia(t, s1)
	h.join(t, s1)
	if h.o.Relays.HasRelay(s1) {
		t.Error("relay started for a track of a replaced connection")
	}
}

func TestEndPrivate_RequiresActivePrivateMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hostSID, _ := h.admit(t, "host", domain.RoleHost)
	s1, c1 := h.admit(t, "s1", domain.RoleStudent)
	h.join(t, hostSID)
	h.join(t, s1)
	c1.types()

	if err := h.o.EndPrivate(ctx, hostSID); !errors.Is(err, domain.ErrBadTransition) {
		t.Errorf("EndPrivate in broadcast = %v, want ErrBadTransition", err)
	}
	if got := c1.types(); len(got) != 0 {
		t.Errorf("student frames = %v, want none", got)
	}

	if err := h.o.AcceptPrivate(ctx, hostSID, "s1"); err != nil {
		t.Fatalf("AcceptPrivate: %v", err)
	}
	if err := h.o.EndPrivate(ctx, s1); !errors.Is(err, domain.ErrNotHost) {
		t.Errorf("student EndPrivate = %v, want ErrNotHost", err)
	}
	c1.types()
	if err := h.o.EndPrivate(ctx, hostSID); err != nil {
		t.Fatalf("EndPrivate: %v", err)
	}
	var ended PrivateConversation
	if !c1.last(&ended) || ended.Type != MsgPrivateEnded || ended.StudentID != "s1" {
		t.Errorf("student last frame = %+v", ended)
	}
}

func TestExpireOverdue_DetachesEveryone(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	h := newHarnessAt(t, clock)
	ctx := context.Background()
	hostSID, hostConn := h.admit(t, "host", domain.RoleHost)
	s1, c1 := h.admit(t, "s1", domain.RoleStudent)
	s2, c2 := h.admit(t, "s2", domain.RoleStudent)
	for _, sid := range []core.SessionID{hostSID, s1, s2} {
		h.join(t, sid)
	}

	mu.Lock()
	now = now.Add(5*time.Hour + 10*time.Minute)
	mu.Unlock()

	n, err := h.o.Meetings.ExpireOverdue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ExpireOverdue = %d, %v", n, err)
	}
	for name, c := range map[string]*fakeConn{"s1": c1, "s2": c2} {
		var ended MeetingEnded
		if !c.last(&ended) || ended.Type != MsgMeetingEnded || ended.Reason != domain.EndDurationExceeded {
			t.Errorf("%s last frame = %+v", name, ended)
		}
		if !c.isClosed() {
			t.Errorf("%s channel left open", name)
		}
	}
	if !hostConn.isClosed() {
		t.Error("host channel left open")
	}
	if h.o.Registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", h.o.Registry.Count())
	}
	m, _ := h.o.Meetings.Get(ctx, h.meeting.ID)
	if m.Status != domain.StatusEnded || m.EndReason != domain.EndDurationExceeded {
		t.Errorf("meeting = %s/%s", m.Status, m.EndReason)
	}
}
