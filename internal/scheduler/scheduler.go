// Package scheduler derives the ready set and picks the next task.
package scheduler

import (
	"sort"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// Filter selects which slice of the queue a caller wants to see.
type Filter string

const (
	// FilterReady keeps only dispatch-eligible tasks. This is the default.
	FilterReady Filter = "ready"
	// FilterBlocked keeps tasks held back by external blockers or
	// unmet dependencies.
	FilterBlocked Filter = "blocked"
	// FilterAll keeps every active task.
	FilterAll Filter = "all"
)

// Valid returns true if the filter is a known value.
func (f Filter) Valid() bool {
	switch f {
	case FilterReady, FilterBlocked, FilterAll:
		return true
	default:
		return false
	}
}

// Source is the read surface the scheduler needs from the store.
type Source interface {
	All() []*task.Task
	Get(id string) (*task.Task, bool)
}

// Scheduler ranks tasks by priority and dependency satisfaction.
type Scheduler struct {
	source Source
}

// New creates a scheduler over a task source.
func New(source Source) *Scheduler {
	return &Scheduler{source: source}
}

// Ready returns the ordered ready set: unblocked tasks in a schedulable
// status whose dependencies are all done. Ordering is priority rank first,
// creation time second; equal timestamps keep insertion order.
func (s *Scheduler) Ready() []*task.Task {
	return s.Select(FilterReady, "")
}

// Select returns the ordered task list for a filter, optionally narrowed to
// one priority. A nil or empty source yields an empty list.
func (s *Scheduler) Select(filter Filter, priority task.Priority) []*task.Task {
	if s == nil || s.source == nil {
		return nil
	}
	all := s.source.All()
	if len(all) == 0 {
		return nil
	}

	var out []*task.Task
	for _, t := range all {
		if !t.Active() || t.Status == task.StatusInProgress {
			continue
		}
		if priority != "" && t.Priority != priority {
			continue
		}
		eligible := s.eligible(t)
		switch filter {
		case FilterBlocked:
			if eligible {
				continue
			}
		case FilterAll:
			// keep everything active
		default:
			if !eligible {
				continue
			}
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Next returns the head of the ready set. An empty set is not an error;
// callers log it at warning level and retry later.
func (s *Scheduler) Next() (*task.Task, bool) {
	ready := s.Ready()
	if len(ready) == 0 {
		return nil, false
	}
	return ready[0], true
}

// eligible reports whether a task is dispatchable: not in a blocked
// status, no external blockers, and every dependency resolves to an
// existing, done task. Executors report blocked without naming a
// blocker, so the status alone must hold a task back.
func (s *Scheduler) eligible(t *task.Task) bool {
	if t.Status == task.StatusBlocked || t.Blocked() {
		return false
	}
	return s.DependenciesSatisfied(t)
}

// DependenciesSatisfied checks that each dependency exists and is done.
// A dependency on a missing task never satisfies.
func (s *Scheduler) DependenciesSatisfied(t *task.Task) bool {
	for _, depID := range t.Dependencies {
		dep, ok := s.source.Get(depID)
		if !ok || dep.Status != task.StatusDone {
			return false
		}
	}
	return true
}
