// Package recording streams recorded audio into durable storage and keeps
// the Recording documents in step with it.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxSaveAttempts = 3

type Options struct {
	BufferChunks  int
	WriteTimeout  time.Duration
	MaxChunkBytes int
	Retention     time.Duration
	Format        string
	ContentType   string
	URLTTL        time.Duration
}

func DefaultOptions() Options {
	return Options{
		BufferChunks:  16,
		WriteTimeout:  5 * time.Second,
		MaxChunkBytes: 10 << 20,
		Retention:     domain.RecordingRetention,
		Format:        "webm",
		ContentType:   "audio/webm",
		URLTTL:        time.Hour,
	}
}

// MeetingReader is the part of the meeting lifecycle the pipeline needs.
type MeetingReader interface {
	Get(ctx context.Context, id domain.MeetingID) (*domain.Meeting, error)
}

// Playback is a time-limited read reference to a recording.
type Playback struct {
	ID          domain.RecordingID     `json:"id"`
	URL         string                 `json:"url"`
	Live        bool                   `json:"live"`
	Status      domain.RecordingStatus `json:"status"`
	ContentType string                 `json:"contentType"`
	Title       string                 `json:"title"`
	Duration    float64                `json:"duration"`
	ExpiresAt   time.Time              `json:"expiresAt"`
}

type Pipeline struct {
	store    core.RecordingStore
	blobs    core.BlobStore
	meetings MeetingReader
	opts     Options
	now      func() time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	streams map[domain.RecordingID]*openStream
}

type openStream struct {
	*stream
	meetingID domain.MeetingID
	writers   domain.UserSet

	// Set under Pipeline.mu by the finalize call that owns the stream.
	// finished closes once its save has landed and result is final.
	finalizing bool
	finished   chan struct{}
	result     *domain.Recording
}

func NewPipeline(store core.RecordingStore, blobs core.BlobStore, meetings MeetingReader, opts Options, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:    store,
		blobs:    blobs,
		meetings: meetings,
		opts:     opts,
		now:      now,
		logger:   log.With().Str("module", "app.recording").Logger(),
		streams:  make(map[domain.RecordingID]*openStream),
	}
}

// StartRecording opens a storage stream for a full-meeting recording.
func (p *Pipeline) StartRecording(ctx context.Context, meetingID domain.MeetingID, caller domain.UserID) (*domain.Recording, error) {
	return p.start(ctx, meetingID, caller, "")
}

// StartPrivate opens a recording readable only by the host and student.
func (p *Pipeline) StartPrivate(ctx context.Context, meetingID domain.MeetingID, caller, student domain.UserID) (*domain.Recording, error) {
	if student == "" {
		return nil, domain.ErrMissingField
	}
	return p.start(ctx, meetingID, caller, student)
}

func (p *Pipeline) start(ctx context.Context, meetingID domain.MeetingID, caller, student domain.UserID) (*domain.Recording, error) {
	m, err := p.meetings.Get(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !m.IsHost(caller) {
		return nil, domain.ErrNotHost
	}
	if m.Status != domain.StatusActive {
		return nil, domain.ErrNotJoinable
	}

	id := domain.RecordingID(uuid.NewString())
	key := fmt.Sprintf("%s%s/%s-%s.%s", domain.RecordingKeyPrefix, meetingID, caller, id, p.opts.Format)
	w, err := p.blobs.Create(ctx, key, p.opts.ContentType)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "open storage stream", err)
	}

	now := p.now()
	rec := &domain.Recording{
		ID:                    id,
		MeetingID:             meetingID,
		HostID:                m.HostID,
		StudentID:             student,
		StreamKey:             key,
		Status:                domain.RecordingActive,
		StartTime:             now,
		IsPrivateConversation: student != "",
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		w.Abort(err)
		return nil, err
	}
	if err := p.store.Create(ctx, rec); err != nil {
		w.Abort(err)
		return nil, domain.Wrap(domain.KindInternal, "create recording", err)
	}

	writers := domain.UserSet{m.HostID}
	if student != "" {
		writers = writers.Add(student)
	}
	p.mu.Lock()
	p.streams[id] = &openStream{
		stream:    newStream(id, w, p.opts.BufferChunks, p.opts.WriteTimeout),
		meetingID: meetingID,
		writers:   writers,
		finished:  make(chan struct{}),
	}
	p.mu.Unlock()

	p.logger.Info().Str("recording", string(id)).Str("meeting", string(meetingID)).Str("key", key).Bool("private", rec.IsPrivateConversation).Msg("recording started")
	return rec, nil
}

func (p *Pipeline) lookup(ctx context.Context, id domain.RecordingID) (*openStream, error) {
	p.mu.Lock()
	s, ok := p.streams[id]
	finalizing := ok && s.finalizing
	p.mu.Unlock()
	if finalizing {
		return nil, domain.ErrRecordingNotActive
	}
	if ok {
		return s, nil
	}
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			return nil, domain.ErrStreamNotFound
		}
		return nil, err
	}
	if rec.Status != domain.RecordingActive {
		return nil, domain.ErrRecordingNotActive
	}
	return nil, domain.ErrStreamNotFound
}

// WriteChunk appends chunk to the recording's stream and returns the number
// of bytes accepted. A saturated stream is waited on for at most the write
// timeout, after which the chunk is rejected and nothing is counted.
func (p *Pipeline) WriteChunk(ctx context.Context, id domain.RecordingID, caller domain.UserID, chunk []byte) (int, error) {
	if len(chunk) == 0 {
		return 0, domain.ErrEmptyChunk
	}
	if p.opts.MaxChunkBytes > 0 && len(chunk) > p.opts.MaxChunkBytes {
		return 0, domain.ErrChunkTooLarge
	}
	s, err := p.lookup(ctx, id)
	if err != nil {
		return 0, err
	}
	if !s.writers.Contains(caller) {
		return 0, domain.ErrNotHost
	}
	n, err := s.write(append([]byte(nil), chunk...))
	if err != nil {
		p.logger.Warn().Err(err).Str("recording", string(id)).Int("size", len(chunk)).Msg("chunk rejected")
		return 0, err
	}
	p.logger.Debug().Str("recording", string(id)).Int("size", n).Int64("total", s.written.Load()).Msg("chunk written")
	return n, nil
}

// BytesWritten reports the bytes accepted so far by an open stream.
func (p *Pipeline) BytesWritten(id domain.RecordingID) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.streams[id]
	if !ok {
		return 0, false
	}
	return s.written.Load(), true
}

// EndRecording closes the stream and finalizes the object. On failure the
// recording is marked failed and a storage error is returned along with it.
func (p *Pipeline) EndRecording(ctx context.Context, id domain.RecordingID, caller domain.UserID) (*domain.Recording, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.CanAccess(caller) || (caller != rec.HostID && !rec.IsPrivateConversation) {
		return nil, domain.ErrNotHost
	}
	return p.finalize(ctx, id)
}

// finalize ends the stream once. A call that finds the stream already being
// finalized waits for that result and reports the recording as not active.
func (p *Pipeline) finalize(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	p.mu.Lock()
	s, ok := p.streams[id]
	owner := ok && !s.finalizing
	if owner {
		s.finalizing = true
	}
	p.mu.Unlock()

	if ok && !owner {
		select {
		case <-s.finished:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.result == nil {
			return p.store.Get(ctx, id)
		}
		return s.result, domain.ErrRecordingNotActive
	}

	if !ok {
		rec, err := p.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.Status != domain.RecordingActive {
			return rec, domain.ErrRecordingNotActive
		}
		// The process that owned the stream is gone.
		cause := errors.New("stream lost")
		rec, err = p.save(ctx, id, func(r *domain.Recording, now time.Time) {
			if r.Status == domain.RecordingActive {
				r.Fail(cause.Error(), now)
			}
		})
		if err != nil {
			return nil, err
		}
		if rec.Status != domain.RecordingFailed {
			return rec, domain.ErrRecordingNotActive
		}
		return rec, domain.Wrap(domain.KindStorage, "finalize recording", cause)
	}

	defer func() {
		p.mu.Lock()
		delete(p.streams, id)
		p.mu.Unlock()
		close(s.finished)
	}()

	var obj core.BlobObject
	werr := s.close()
	if werr != nil {
		s.w.Abort(werr)
	} else {
		obj, werr = s.w.Commit()
	}
	written := s.written.Load()

	rec, err := p.save(ctx, id, func(r *domain.Recording, now time.Time) {
		if r.Status != domain.RecordingActive {
			return
		}
		if werr != nil {
			r.Fail(werr.Error(), now)
			return
		}
		size := obj.Size
		if size == 0 {
			size = written
		}
		r.Complete(obj.Key, size, p.opts.Format, p.opts.ContentType, now)
	})
	if err != nil {
		return nil, err
	}
	s.result = rec
	if werr != nil {
		p.logger.Error().Err(werr).Str("recording", string(id)).Int64("written", written).Msg("recording failed")
		return rec, domain.Wrap(domain.KindStorage, "finalize recording", werr)
	}
	p.logger.Info().Str("recording", string(id)).Int64("written", written).Int64("size", rec.Metadata.Size).Float64("duration", rec.Duration).Msg("recording completed")
	return rec, nil
}

func (p *Pipeline) save(ctx context.Context, id domain.RecordingID, fn func(r *domain.Recording, now time.Time)) (*domain.Recording, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		rec, err := p.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		now := p.now()
		fn(rec, now)
		rec.UpdatedAt = now
		rec.Normalize()
		err = p.store.Save(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, domain.Wrap(domain.KindInternal, "save recording", err)
		}
		lastErr = err
	}
	return nil, lastErr
}

// EndAllForMeeting finalizes every open stream of a meeting.
func (p *Pipeline) EndAllForMeeting(ctx context.Context, meetingID domain.MeetingID) []*domain.Recording {
	p.mu.Lock()
	var ids []domain.RecordingID
	for id, s := range p.streams {
		if s.meetingID == meetingID {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()

	out := make([]*domain.Recording, 0, len(ids))
	for _, id := range ids {
		rec, err := p.finalize(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrRecordingNotActive) {
			p.logger.Error().Err(err).Str("recording", string(id)).Msg("finalize on meeting end")
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Shutdown finalizes every open stream.
func (p *Pipeline) Shutdown(ctx context.Context) {
	p.mu.Lock()
	ids := make([]domain.RecordingID, 0, len(p.streams))
	for id := range p.streams {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		if _, err := p.finalize(ctx, id); err != nil && !errors.Is(err, domain.ErrRecordingNotActive) {
			p.logger.Error().Err(err).Str("recording", string(id)).Msg("finalize on shutdown")
		}
	}
}

// Get returns the recording when caller may access it.
func (p *Pipeline) Get(ctx context.Context, id domain.RecordingID, caller domain.UserID) (*domain.Recording, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.CanAccess(caller) {
		return nil, domain.ErrNoAccess
	}
	return rec, nil
}

// GetPlaybackReference returns a signed reference to the recording object,
// or to the stream still being written when the recording is live.
func (p *Pipeline) GetPlaybackReference(ctx context.Context, id domain.RecordingID, caller domain.UserID) (*Playback, error) {
	rec, err := p.Get(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	live := rec.Status == domain.RecordingActive
	key := rec.ObjectKey()
	if !live {
		ok, err := p.blobs.Exists(ctx, key)
		if err != nil {
			return nil, domain.Wrap(domain.KindStorage, "check recording object", err)
		}
		if !ok {
			p.logger.Warn().Str("recording", string(id)).Str("key", key).Msg("orphaned recording")
			return nil, domain.ErrOrphanedRecording
		}
	}
	url, err := p.blobs.SignedURL(ctx, key, p.opts.URLTTL)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "sign recording url", err)
	}

	topic := "Recording"
	if m, err := p.meetings.Get(ctx, rec.MeetingID); err == nil && m.Topic != "" {
		topic = m.Topic
	}
	contentType := rec.Metadata.ContentType
	if contentType == "" {
		contentType = p.opts.ContentType
	}
	return &Playback{
		ID:          rec.ID,
		URL:         url,
		Live:        live,
		Status:      rec.Status,
		ContentType: contentType,
		Title:       fmt.Sprintf("%s - %s", topic, rec.StartTime.Format(time.RFC1123)),
		Duration:    rec.Duration,
		ExpiresAt:   p.now().Add(p.opts.URLTTL),
	}, nil
}

// Purge deletes recordings past retention, object first and record second.
// A failed object delete keeps the record so the next run retries it.
func (p *Pipeline) Purge(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.opts.Retention)
	recs, err := p.store.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, "list expired recordings", err)
	}
	var errs []error
	n := 0
	for _, rec := range recs {
		if rec.Status == domain.RecordingActive {
			if fin, err := p.finalize(ctx, rec.ID); fin != nil {
				rec = fin
			} else if err != nil {
				p.logger.Error().Err(err).Str("recording", string(rec.ID)).Msg("finalize before purge")
			}
		}
		if err := p.blobs.Delete(ctx, rec.ObjectKey()); err != nil {
			p.logger.Error().Err(err).Str("recording", string(rec.ID)).Msg("delete recording object")
			errs = append(errs, domain.Wrap(domain.KindStorage, "delete object "+rec.ObjectKey(), err))
			continue
		}
		if err := p.store.Delete(ctx, rec.ID); err != nil {
			p.logger.Error().Err(err).Str("recording", string(rec.ID)).Msg("delete recording record")
			errs = append(errs, err)
			continue
		}
		n++
	}
	if n > 0 {
		p.logger.Info().Int("deleted", n).Time("cutoff", cutoff).Msg("purged recordings")
	}
	return n, errors.Join(errs...)
}
