// Package expiry runs the periodic reconciling sweeps: forced meeting end,
// recording retention, meeting archival and channel liveness.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// parser accepts standard 5-field expressions and descriptors like @every.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const DefaultJobTimeout = 2 * time.Minute

type MeetingSweeper interface {
	ExpireOverdue(ctx context.Context) (int, error)
	ArchiveEnded(ctx context.Context) (int, error)
}

type RecordingSweeper interface {
	Purge(ctx context.Context) (int, error)
}

type LivenessChecker interface {
	Heartbeat() []core.MemberSession
}

// Specs holds one cron expression per sweep. An empty expression disables
// that sweep.
type Specs struct {
	Meetings   string
	Recordings string
	Archive    string
	Liveness   time.Duration
}

func DefaultSpecs() Specs {
	return Specs{
		Meetings:   "*/5 * * * *",
		Recordings: "0 2 * * *",
		Archive:    "0 1 * * *",
		Liveness:   10 * time.Second,
	}
}

type Scheduler struct {
	cron       *cron.Cron
	meetings   MeetingSweeper
	recordings RecordingSweeper
	liveness   LivenessChecker
	timeout    time.Duration
	logger     zerolog.Logger
}

// cronLogger adapts zerolog to cron's logger so skipped runs are visible.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}

// New registers every enabled sweep. Any nil sweeper skips its job.
func New(specs Specs, meetings MeetingSweeper, recordings RecordingSweeper, liveness LivenessChecker) (*Scheduler, error) {
	logger := log.With().Str("module", "expiry").Logger()
	cl := cronLogger{l: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		meetings:   meetings,
		recordings: recordings,
		liveness:   liveness,
		timeout:    DefaultJobTimeout,
		logger:     logger,
	}

	type job struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}
	var jobs []job
	if meetings != nil {
		jobs = append(jobs,
			job{"meetings", specs.Meetings, meetings.ExpireOverdue},
			job{"archive", specs.Archive, meetings.ArchiveEnded},
		)
	}
	if recordings != nil {
		jobs = append(jobs, job{"recordings", specs.Recordings, recordings.Purge})
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.run)); err != nil {
			return nil, fmt.Errorf("schedule %s sweep %q: %w", j.name, j.spec, err)
		}
	}
	if liveness != nil && specs.Liveness > 0 {
		s.cron.Schedule(cron.Every(specs.Liveness), cron.FuncJob(s.heartbeat))
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) (int, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.runOne(ctx, name, run)
	}
}

func (s *Scheduler) runOne(ctx context.Context, name string, run func(context.Context) (int, error)) error {
	start := time.Now()
	n, err := run(ctx)
	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("sweep", name).Int("affected", n).Dur("took", time.Since(start)).Msg("sweep finished")
	return err
}

func (s *Scheduler) heartbeat() {
	s.liveness.Heartbeat()
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out with sweeps still running")
	}
}

// RunOnce executes every sweep once in order and joins their errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	if s.meetings != nil {
		errs = append(errs,
			s.runOne(ctx, "meetings", s.meetings.ExpireOverdue),
			s.runOne(ctx, "archive", s.meetings.ArchiveEnded),
		)
	}
	if s.recordings != nil {
		errs = append(errs, s.runOne(ctx, "recordings", s.recordings.Purge))
	}
	return errors.Join(errs...)
}
