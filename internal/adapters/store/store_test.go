package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Lectern/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// every pooled connection would otherwise get its own empty database
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newMeeting(t *testing.T, s *Meetings, id domain.MeetingID) *domain.Meeting {
	t.Helper()
	m, err := domain.NewMeeting(id, "host", "Chemistry", t0)
	if err != nil {
		t.Fatalf("NewMeeting: %v", err)
	}
	if err := s.Create(context.Background(), m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return m
}

func TestConnect_UnknownDriver(t *testing.T) {
	if _, err := Connect("oracle", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMeetings_RoundTrip(t *testing.T) {
	s := NewMeetings(openTestDB(t))
	ctx := context.Background()
	m := newMeeting(t, s, "m1")
	if m.Version != 1 {
		t.Fatalf("Version = %d, want 1", m.Version)
	}

	if err := m.Activate("host", t0); err != nil {
		t.Fatal(err)
	}
	if err := m.Join("s1"); err != nil {
		t.Fatal(err)
	}
	m.PrivateMode = domain.PrivateMode{IsActive: true, ParticipantID: "s1"}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if m.Version != 2 {
		t.Errorf("Version after save = %d, want 2", m.Version)
	}

	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
	if !got.Participants.Contains("s1") || !got.ActiveParticipants.Contains("s1") {
		t.Errorf("participants = %v / %v", got.Participants, got.ActiveParticipants)
	}
	if !got.PrivateMode.IsActive || got.PrivateMode.ParticipantID != "s1" {
		t.Errorf("PrivateMode = %+v", got.PrivateMode)
	}
	if got.MaxDuration != domain.DefaultMaxDuration {
		t.Errorf("MaxDuration = %v", got.MaxDuration)
	}
	if got.StartTime == nil || !got.StartTime.Equal(t0) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, t0)
	}
}

func TestMeetings_StaleSaveConflicts(t *testing.T) {
	s := NewMeetings(openTestDB(t))
	ctx := context.Background()
	newMeeting(t, s, "m1")

	a, _ := s.Get(ctx, "m1")
	b, _ := s.Get(ctx, "m1")
	_ = a.Join("s1")
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("first save: %v", err)
	}
	_ = b.Join("s2")
	err := s.Save(ctx, b)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale save err = %v, want ErrVersionConflict", err)
	}
	if b.Version != 1 {
		t.Errorf("failed save changed Version to %d", b.Version)
	}
	got, _ := s.Get(ctx, "m1")
	if got.Participants.Contains("s2") {
		t.Error("stale write was applied")
	}
}

func TestMeetings_NotFound(t *testing.T) {
	s := NewMeetings(openTestDB(t))
	ctx := context.Background()
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, domain.ErrMeetingNotFound) {
		t.Errorf("Get err = %v", err)
	}
	m, _ := domain.NewMeeting("ghost", "host", "x", t0)
	m.Version = 1
	if err := s.Save(ctx, m); !errors.Is(err, domain.ErrMeetingNotFound) {
		t.Errorf("Save err = %v, want ErrMeetingNotFound", err)
	}
}

func TestMeetings_ListByStatus(t *testing.T) {
	s := NewMeetings(openTestDB(t))
	ctx := context.Background()
	newMeeting(t, s, "a")
	b := newMeeting(t, s, "b")
	_ = b.Activate("host", t0)
	if err := s.Save(ctx, b); err != nil {
		t.Fatal(err)
	}

	active, err := s.ListByStatus(ctx, domain.StatusActive)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(active) != 1 || active[0].ID != "b" {
		t.Errorf("active = %v", active)
	}
}

func newRecording(id domain.RecordingID, created time.Time) *domain.Recording {
	return &domain.Recording{
		ID:        id,
		MeetingID: "m1",
		HostID:    "host",
		StreamKey: "recordings/m1/host-" + string(id) + ".webm",
		FileURL:   "m1/host-" + string(id) + ".webm",
		Status:    domain.RecordingActive,
		StartTime: created,
		CreatedAt: created,
	}
}

func TestRecordings_Lifecycle(t *testing.T) {
	s := NewRecordings(openTestDB(t))
	ctx := context.Background()
	r := newRecording("r1", t0)
	r.IsPrivateConversation = true
	r.StudentID = "s1"
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FileURL != "recordings/m1/host-r1.webm" {
		t.Errorf("FileURL = %q", got.FileURL)
	}
	if !got.CanAccess("s1") || !got.CanAccess("host") || got.CanAccess("s2") {
		t.Errorf("AccessibleTo = %v", got.AccessibleTo)
	}

	got.Complete(got.StreamKey, 4096, "webm", "audio/webm", t0.Add(time.Minute))
	if err := s.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, _ := s.Get(ctx, "r1")
	if again.Status != domain.RecordingCompleted || again.Metadata.Size != 4096 {
		t.Errorf("after save = %q size %d", again.Status, again.Metadata.Size)
	}

	if err := s.Save(ctx, r); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("stale save err = %v", err)
	}

	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "r1"); !errors.Is(err, domain.ErrRecordingNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
}

func TestRecordings_Listing(t *testing.T) {
	s := NewRecordings(openTestDB(t))
	ctx := context.Background()
	for i, age := range []time.Duration{96 * time.Hour, 80 * time.Hour, time.Hour} {
		r := newRecording(domain.RecordingID([]string{"old", "older", "new"}[i]), t0.Add(-age))
		if err := s.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	expired, err := s.ListCreatedBefore(ctx, t0.Add(-domain.RecordingRetention))
	if err != nil {
		t.Fatalf("ListCreatedBefore: %v", err)
	}
	if len(expired) != 2 {
		t.Errorf("expired = %d, want 2", len(expired))
	}

	all, err := s.ListByMeeting(ctx, "m1")
	if err != nil {
		t.Fatalf("ListByMeeting: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("by meeting = %d, want 3", len(all))
	}
}
