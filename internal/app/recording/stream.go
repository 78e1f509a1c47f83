package recording

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Lectern/internal/core"
	"github.com/dkeye/Lectern/internal/domain"
)

// stream is the in-process side of one open recording. Chunks pass through
// a bounded queue to a single pump goroutine that writes them to storage,
// so the queue capacity is the backpressure threshold.
type stream struct {
	id      domain.RecordingID
	w       core.BlobWriter
	queue   chan []byte
	done    chan struct{}
	timeout time.Duration

	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	chunks  atomic.Int64

	errMu sync.Mutex
	err   error
}

func newStream(id domain.RecordingID, w core.BlobWriter, buffer int, timeout time.Duration) *stream {
	s := &stream{
		id:      id,
		w:       w,
		queue:   make(chan []byte, buffer),
		done:    make(chan struct{}),
		timeout: timeout,
	}
	go s.pump()
	return s
}

func (s *stream) pump() {
	defer close(s.done)
	for chunk := range s.queue {
		if s.failed() != nil {
			continue
		}
		if _, err := s.w.Write(chunk); err != nil {
			s.setErr(err)
		}
	}
}

func (s *stream) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *stream) failed() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// write enqueues chunk, waiting for the pump to drain when the queue is
// full. Only a drain or the timeout ends the wait. Bytes count as written
// once enqueued.
func (s *stream) write(chunk []byte) (int, error) {
	if err := s.failed(); err != nil {
		return 0, domain.Wrap(domain.KindStorage, "storage write failed", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, domain.ErrStreamClosed
	}
	select {
	case s.queue <- chunk:
	default:
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		select {
		case s.queue <- chunk:
		case <-timer.C:
			return 0, domain.ErrStreamTimeout
		}
	}
	s.written.Add(int64(len(chunk)))
	s.chunks.Add(1)
	return len(chunk), nil
}

// close stops accepting chunks and waits for the pump to flush the queue.
// It returns the first storage error the pump hit.
func (s *stream) close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return s.failed()
}
