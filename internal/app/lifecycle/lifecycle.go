// Package lifecycle owns the meeting state machine on top of a versioned
// document store.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxSaveAttempts bounds the read-modify-write retries on version conflicts.
const MaxSaveAttempts = 3

type EventKind string

const (
	EventCreated     EventKind = "created"
	EventActivated   EventKind = "activated"
	EventPaused      EventKind = "paused"
	EventCancelled   EventKind = "cancelled"
	EventEnded       EventKind = "ended"
	EventArchived    EventKind = "archived"
	EventJoined      EventKind = "joined"
	EventLeft        EventKind = "left"
	EventModeChanged EventKind = "mode_changed"
	EventChatStarted EventKind = "private_chat_started"
	EventChatEnded   EventKind = "private_chat_ended"
)

// Event is emitted after a transition has been persisted.
type Event struct {
	Kind    EventKind
	Meeting *domain.Meeting
	Actor   domain.UserID
}

type Observer interface {
	OnMeetingEvent(ctx context.Context, ev Event)
}

type Options struct {
	MaxDuration     time.Duration
	MaxParticipants int
	ArchiveAfter    time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxDuration:     domain.DefaultMaxDuration,
		MaxParticipants: domain.DefaultMaxParticipants,
		ArchiveAfter:    24 * time.Hour,
	}
}

type Service struct {
	store  core.MeetingStore
	opts   Options
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.RWMutex
	observers []Observer
}

func NewService(store core.MeetingStore, opts Options, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:  store,
		opts:   opts,
		now:    now,
		logger: log.With().Str("module", "app.lifecycle").Logger(),
	}
}

func (s *Service) Observe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *Service) emit(ctx context.Context, kind EventKind, m *domain.Meeting, actor domain.UserID) {
	s.mu.RLock()
	obs := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	ev := Event{Kind: kind, Meeting: m, Actor: actor}
	for _, o := range obs {
		o.OnMeetingEvent(ctx, ev)
	}
}

// Create registers a new meeting hosted by caller.
func (s *Service) Create(ctx context.Context, caller domain.User, topic string) (*domain.Meeting, error) {
	if caller.Role != domain.RoleHost {
		return nil, domain.ErrNotHost
	}
	m, err := domain.NewMeeting(domain.MeetingID(uuid.NewString()), caller.ID, topic, s.now())
	if err != nil {
		return nil, err
	}
	if s.opts.MaxDuration > 0 {
		m.MaxDuration = s.opts.MaxDuration
	}
	if s.opts.MaxParticipants > 0 {
		m.MaxParticipants = s.opts.MaxParticipants
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, domain.Wrap(domain.KindInternal, "create meeting", err)
	}
	s.logger.Info().Str("meeting", string(m.ID)).Str("host", string(caller.ID)).Msg("meeting created")
	s.emit(ctx, EventCreated, m, caller.ID)
	return m, nil
}

func (s *Service) Get(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	return s.store.Get(ctx, id)
}

// mutate re-reads the document before every attempt so guards are checked
// against the state the save will actually replace. Guard errors return
// without saving.
func (s *Service) mutate(ctx context.Context, id domain.MeetingID, fn func(m *domain.Meeting, now time.Time) error) (*domain.Meeting, error) {
	var lastErr error
	for attempt := 0; attempt < MaxSaveAttempts; attempt++ {
		m, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if err := fn(m, now); err != nil {
			return nil, err
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		m.UpdatedAt = now
		err = s.store.Save(ctx, m)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, domain.Wrap(domain.KindInternal, "save meeting", err)
		}
		lastErr = err
		s.logger.Debug().Str("meeting", string(id)).Int("attempt", attempt+1).Msg("version conflict, retrying")
	}
	return nil, lastErr
}

func (s *Service) Activate(ctx context.Context, id domain.MeetingID, caller domain.UserID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, now time.Time) error {
		return m.Activate(caller, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("meeting", string(id)).Msg("meeting activated")
	s.emit(ctx, EventActivated, m, caller)
	return m, nil
}

func (s *Service) Pause(ctx context.Context, id domain.MeetingID, caller domain.UserID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, _ time.Time) error {
		return m.Pause(caller)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventPaused, m, caller)
	return m, nil
}

func (s *Service) Cancel(ctx context.Context, id domain.MeetingID, caller domain.UserID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, now time.Time) error {
		return m.Cancel(caller, now)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventCancelled, m, caller)
	return m, nil
}

// End terminates the meeting on behalf of its host.
func (s *Service) End(ctx context.Context, id domain.MeetingID, caller domain.UserID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, now time.Time) error {
		return m.End(caller, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("meeting", string(id)).Str("reason", string(m.EndReason)).Msg("meeting ended")
	s.emit(ctx, EventEnded, m, caller)
	return m, nil
}

// ForceEnd ends an active meeting that overran its max duration.
func (s *Service) ForceEnd(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, now time.Time) error {
		return m.ForceEnd(now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("meeting", string(id)).Msg("meeting force-ended, duration exceeded")
	s.emit(ctx, EventEnded, m, "")
	return m, nil
}

func (s *Service) Archive(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, now time.Time) error {
		return m.Archive(now, s.opts.ArchiveAfter)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventArchived, m, "")
	return m, nil
}

// Join adds u to the meeting. The joinable status is re-checked on the
// freshly read document, so a join racing a forced end is rejected.
func (s *Service) Join(ctx context.Context, id domain.MeetingID, u domain.UserID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, _ time.Time) error {
		return m.Join(u)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventJoined, m, u)
	return m, nil
}

// Leave removes u from the active set, and from participants unless u hosts.
func (s *Service) Leave(ctx context.Context, id domain.MeetingID, u domain.UserID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, _ time.Time) error {
		m.Leave(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventLeft, m, u)
	return m, nil
}

// Disconnect drops u from the active set only; participants keep u so a
// reconnect does not count against capacity again.
func (s *Service) Disconnect(ctx context.Context, id domain.MeetingID, u domain.UserID) (*domain.Meeting, error) {
	return s.mutate(ctx, id, func(m *domain.Meeting, _ time.Time) error {
		m.ActiveParticipants = m.ActiveParticipants.Remove(u)
		return nil
	})
}

func (s *Service) SetPrivateMode(ctx context.Context, id domain.MeetingID, caller domain.UserID, private bool, participant domain.UserID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, _ time.Time) error {
		return m.SetPrivateMode(caller, private, participant)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("meeting", string(id)).Bool("private", private).Str("participant", string(participant)).Msg("mode changed")
	s.emit(ctx, EventModeChanged, m, caller)
	return m, nil
}

func (s *Service) StartPrivateChat(ctx context.Context, id domain.MeetingID, caller, student domain.UserID, rec domain.RecordingID) (*domain.Meeting, error) {
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, now time.Time) error {
		return m.StartPrivateChat(caller, student, rec, now)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventChatStarted, m, caller)
	return m, nil
}

// EndPrivateChat clears the private chat and returns the cleared state.
func (s *Service) EndPrivateChat(ctx context.Context, id domain.MeetingID, caller domain.UserID) (*domain.Meeting, domain.PrivateChat, error) {
	var prev domain.PrivateChat
	m, err := s.mutate(ctx, id, func(m *domain.Meeting, _ time.Time) error {
		var err error
		prev, err = m.EndPrivateChat(caller)
		return err
	})
	if err != nil {
		return nil, domain.PrivateChat{}, err
	}
	s.emit(ctx, EventChatEnded, m, caller)
	return m, prev, nil
}

// ExpireOverdue force-ends every active meeting past its max duration.
// Failures are logged and the sweep continues; they are returned joined.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	active, err := s.store.ListByStatus(ctx, domain.StatusActive)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "list active meetings", err)
	}
	now := s.now()
	var errs []error
	ended := 0
	for _, m := range active {
		if !m.Expired(now) {
			continue
		}
		if _, err := s.ForceEnd(ctx, m.ID); err != nil {
			if errors.Is(err, domain.ErrBadTransition) {
				continue
			}
			s.logger.Error().Err(err).Str("meeting", string(m.ID)).Msg("force end failed")
			errs = append(errs, err)
			continue
		}
		ended++
	}
	return ended, errors.Join(errs...)
}

// ArchiveEnded archives meetings whose end is older than ArchiveAfter.
func (s *Service) ArchiveEnded(ctx context.Context) (int, error) {
	ended, err := s.store.ListByStatus(ctx, domain.StatusEnded)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "list ended meetings", err)
	}
	now := s.now()
	var errs []error
	n := 0
	for _, m := range ended {
		if !m.Archivable(now, s.opts.ArchiveAfter) {
			continue
		}
		if _, err := s.Archive(ctx, m.ID); err != nil {
			if errors.Is(err, domain.ErrBadTransition) {
				continue
			}
			s.logger.Error().Err(err).Str("meeting", string(m.ID)).Msg("archive failed")
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
