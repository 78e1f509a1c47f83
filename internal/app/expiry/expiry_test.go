package expiry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Lectern/internal/core"
)

type fakeMeetings struct {
	expired, archived atomic.Int32
	err               error
}

func (f *fakeMeetings) ExpireOverdue(context.Context) (int, error) {
	f.expired.Add(1)
	return 1, f.err
}

func (f *fakeMeetings) ArchiveEnded(context.Context) (int, error) {
	f.archived.Add(1)
	return 0, nil
}

type fakeRecordings struct{ purged atomic.Int32 }

func (f *fakeRecordings) Purge(context.Context) (int, error) {
	f.purged.Add(1)
	return 2, nil
}

type fakeLiveness struct{ ticks atomic.Int32 }

func (f *fakeLiveness) Heartbeat() []core.MemberSession {
	f.ticks.Add(1)
	return nil
}

func TestNew_RejectsBadSpec(t *testing.T) {
	specs := DefaultSpecs()
	specs.Meetings = "not a cron expr"
	if _, err := New(specs, &fakeMeetings{}, nil, nil); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestNew_RegistersEnabledJobs(t *testing.T) {
	tests := []struct {
		name  string
		specs Specs
		want  int
	}{
		{"all", DefaultSpecs(), 4},
		{"no archive", Specs{Meetings: "*/5 * * * *", Recordings: "0 2 * * *", Liveness: time.Second}, 3},
		{"liveness off", Specs{Meetings: "@hourly", Recordings: "@daily", Archive: "@daily"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.specs, &fakeMeetings{}, &fakeRecordings{}, &fakeLiveness{})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := len(s.cron.Entries()); got != tt.want {
				t.Errorf("entries = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunOnce_RunsEverySweepAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	m := &fakeMeetings{err: boom}
	r := &fakeRecordings{}
	s, err := New(DefaultSpecs(), m, r, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if m.expired.Load() != 1 || m.archived.Load() != 1 || r.purged.Load() != 1 {
		t.Errorf("runs = %d/%d/%d, want 1/1/1", m.expired.Load(), m.archived.Load(), r.purged.Load())
	}
}

func TestLivenessTicks(t *testing.T) {
	l := &fakeLiveness{}
	s, err := New(Specs{Liveness: 20 * time.Millisecond}, nil, nil, l)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	deadline := time.Now().Add(3 * time.Second)
	for l.ticks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	if l.ticks.Load() == 0 {
		t.Fatal("liveness job never ran")
	}
}
