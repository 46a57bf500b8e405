package store

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultDebounce is the coalescing window for snapshot writes.
	DefaultDebounce = time.Second

	saveAttempts     = 3
	saveBackoffStart = 100 * time.Millisecond
)

// Saver coalesces bursts of store mutations into one deferred snapshot
// write. The behavior is a single pending-flush flag plus one timer: the
// first Schedule call in a window arms the timer, later calls within the
// window are absorbed.
//
// Write failures are retried with backoff and otherwise swallowed with a
// warning. The in-memory store is the source of truth; a failed flush never
// rolls back or blocks state.
type Saver struct {
	mu       sync.Mutex
	pending  bool
	closed   bool
	timer    *time.Timer
	debounce time.Duration
	snapshot func() error
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewSaver creates a saver around a snapshot function. The snapshot
// function captures the store and the snapshotter.
func NewSaver(snapshot func() error, debounce time.Duration, logger *zap.Logger) *Saver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		debounce: debounce,
		snapshot: snapshot,
		logger:   logger,
	}
}

// Schedule requests a flush. Calls inside an already-armed window coalesce.
func (s *Saver) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending {
		return
	}
	s.pending = true
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

func (s *Saver) fire() {
	s.mu.Lock()
	s.pending = false
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.write()
}

// Flush forces a synchronous snapshot write, cancelling a pending timer.
func (s *Saver) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.mu.Unlock()
	s.write()
}

// Close stops the saver and performs one final flush.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.write()
}

// write performs the snapshot with bounded retries.
func (s *Saver) write() {
	backoff := saveBackoffStart
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		if err = s.snapshot(); err == nil {
			return
		}
		if attempt < saveAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	s.logger.Warn("snapshot write failed, in-memory state remains authoritative",
		zap.Int("attempts", saveAttempts),
		zap.Error(err))
}
