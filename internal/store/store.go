// Package store holds the in-memory task set and its durable snapshot.
//
// The in-memory state is the source of truth for a running process;
// snapshots are best-effort and debounced. A crash between a mutation and
// its flush loses at most the latest burst of writes.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
	"github.com/fyrsmithlabs/dispatchd/internal/ticket"
)

// DefaultCapacity is the maximum task count when none is configured.
const DefaultCapacity = 50

// Config configures the store.
type Config struct {
	// Capacity is the fixed maximum task count. When the store is full,
	// the oldest done task is evicted before a new add is rejected.
	Capacity int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Capacity: DefaultCapacity}
}

// Store is the mutex-guarded in-memory task set.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]*task.Task
	order    []string
	capacity int
	logger   *zap.Logger
	onMutate func()
}

// New creates a store.
func New(cfg *Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("store capacity must be at least 1, got %d", cfg.Capacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tasks:    make(map[string]*task.Task),
		capacity: cfg.Capacity,
		logger:   logger,
	}, nil
}

// SetOnMutate registers a callback invoked after every mutation, used to
// schedule debounced snapshot writes. Must be set before concurrent use.
func (s *Store) SetOnMutate(fn func()) {
	s.onMutate = fn
}

func (s *Store) notify() {
	if s.onMutate != nil {
		s.onMutate()
	}
}

// Add inserts a task. It returns false without mutating when the task is a
// duplicate of an existing one, or when the store is full and no done task
// can be evicted to make room.
func (s *Store) Add(t *task.Task) bool {
	if t == nil || t.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		s.logger.Warn("rejected task with duplicate id", zap.String("task_id", t.ID))
		return false
	}
	if dup := s.findDuplicateLocked(t); dup != nil {
		s.logger.Warn("rejected duplicate task",
			zap.String("task_id", t.ID),
			zap.String("duplicate_of", dup.ID),
			zap.String("title", t.Title))
		return false
	}
	if len(s.tasks) >= s.capacity {
		if !s.evictOldestDoneLocked() {
			s.logger.Warn("store at capacity with no evictable task",
				zap.String("task_id", t.ID),
				zap.Int("capacity", s.capacity))
			return false
		}
	}

	s.tasks[t.ID] = t.Clone()
	s.order = append(s.order, t.ID)
	s.notify()
	return true
}

// findDuplicateLocked applies the two-stage duplicate check: an exact match
// on the origin ticket ID, or, when ticket IDs differ, an identical
// (title, priority) pair among active tasks only. Terminal duplicates never
// block re-creation.
func (s *Store) findDuplicateLocked(t *task.Task) *task.Task {
	for _, existing := range s.tasks {
		if t.Metadata.TicketID != "" && existing.Metadata.TicketID == t.Metadata.TicketID {
			return existing
		}
		if existing.Active() && existing.Title == t.Title && existing.Priority == t.Priority {
			return existing
		}
	}
	return nil
}

// evictOldestDoneLocked removes the oldest done task. Returns false when
// nothing is evictable.
func (s *Store) evictOldestDoneLocked() bool {
	var victim *task.Task
	for _, t := range s.tasks {
		if t.Status != task.StatusDone {
			continue
		}
		if victim == nil || t.CreatedAt.Before(victim.CreatedAt) {
			victim = t
		}
	}
	if victim == nil {
		return false
	}
	s.removeLocked(victim.ID)
	s.logger.Info("evicted completed task to make room",
		zap.String("task_id", victim.ID),
		zap.String("title", victim.Title))
	return true
}

func (s *Store) removeLocked(id string) {
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (*task.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// All returns copies of every task in insertion order.
func (s *Store) All() []*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*task.Task, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Len returns the current task count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// UpdateStatus sets the status of a task. Unknown IDs are ignored.
func (s *Store) UpdateStatus(id string, status task.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	s.notify()
}

// Update applies fn to the stored task with the given ID.
func (s *Store) Update(id string, fn func(*task.Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	fn(t)
	t.UpdatedAt = time.Now()
	s.notify()
	return true
}

// ReplaceAll swaps the entire task set, preserving the given order.
func (s *Store) ReplaceAll(tasks []*task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*task.Task, len(tasks))
	s.order = s.order[:0]
	for _, t := range tasks {
		if t == nil || t.ID == "" {
			continue
		}
		if _, exists := s.tasks[t.ID]; exists {
			continue
		}
		s.tasks[t.ID] = t.Clone()
		s.order = append(s.order, t.ID)
	}
	s.notify()
}

// Clear removes every task.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*task.Task)
	s.order = s.order[:0]
	s.notify()
}

// Reconcile drops tasks whose origin ticket no longer exists in the
// companion conversation store. Tasks without a ticket ID are kept.
func (s *Store) Reconcile(ctx context.Context, dir ticket.Directory) error {
	if dir == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []string
	for id, t := range s.tasks {
		if t.Metadata.TicketID == "" {
			continue
		}
		exists, err := dir.Exists(ctx, t.Metadata.TicketID)
		if err != nil {
			return fmt.Errorf("ticket lookup for %s: %w", t.Metadata.TicketID, err)
		}
		if !exists {
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		t := s.tasks[id]
		s.logger.Info("dropping task with missing origin ticket",
			zap.String("task_id", id),
			zap.String("ticket_id", t.Metadata.TicketID))
		s.removeLocked(id)
	}
	if len(dropped) > 0 {
		s.notify()
	}
	return nil
}
