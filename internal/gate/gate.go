// Package gate enforces single-flight execution and the dispatch lifecycle.
package gate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/scheduler"
	"github.com/fyrsmithlabs/dispatchd/internal/store"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// Dispatch failure modes, checked in order. Each maps to a distinct error
// so callers can tell "fix your request" from "wait your turn".
var (
	// ErrNotFromPlanner rejects tasks without planning provenance.
	ErrNotFromPlanner = errors.New("task does not carry planning-team provenance")
	// ErrBusy rejects a dispatch while a different task is executing.
	ErrBusy = errors.New("another task is already executing: one thing at a time")
	// ErrSessionLimit rejects a dispatch past the session ceiling.
	ErrSessionLimit = errors.New("maximum concurrent sessions reached")
	// ErrUnknownTask rejects tasks the planner never enqueued.
	ErrUnknownTask = errors.New("task not found in store: enqueue before dispatch")
	// ErrUnmetDependencies rejects tasks with unfinished dependencies.
	ErrUnmetDependencies = errors.New("task has unmet dependencies")
	// ErrNotInProgress rejects completion of a task that was never dispatched.
	ErrNotInProgress = errors.New("task is not in progress")
)

// DefaultContextBudget is the character budget for directive context text,
// a cheap proxy for the model's token limit.
const DefaultContextBudget = 24000

// Config configures the gate.
type Config struct {
	// MaxSessions is the concurrent execution ceiling. The scheduler is
	// single-flight today; the ceiling exists for future multi-session use.
	MaxSessions int
	// ContextBudget caps directive context text length in characters.
	ContextBudget int
}

// DefaultConfig returns the single-flight defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxSessions:   1,
		ContextBudget: DefaultContextBudget,
	}
}

// RoutingDirective is what the hosting shell forwards to the model.
type RoutingDirective struct {
	TaskID             string   `json:"task_id"`
	Title              string   `json:"title"`
	Priority           string   `json:"priority"`
	Context            string   `json:"context"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	RelatedFiles       []string `json:"related_files,omitempty"`
	PlanRefs           []string `json:"plan_refs,omitempty"`
	// Truncated is set when Context was cut down to the budget.
	Truncated bool `json:"truncated,omitempty"`
}

// Gate is the single-flight execution gate.
type Gate struct {
	mu      sync.Mutex
	current map[string]struct{}
	store   *store.Store
	sched   *scheduler.Scheduler
	cfg     *Config
	logger  *zap.Logger
}

// New creates a gate. An invalid session ceiling or context budget is a
// startup misconfiguration and aborts construction.
func New(cfg *Config, st *store.Store, sched *scheduler.Scheduler, logger *zap.Logger) (*Gate, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("max sessions must be at least 1, got %d", cfg.MaxSessions)
	}
	if cfg.ContextBudget < 1 {
		return nil, fmt.Errorf("context budget must be positive, got %d", cfg.ContextBudget)
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		current: make(map[string]struct{}),
		store:   st,
		sched:   sched,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Executing returns the IDs of tasks currently in flight.
func (g *Gate) Executing() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.current))
	for id := range g.current {
		out = append(out, id)
	}
	return out
}

// Dispatch validates and starts execution of the requested task, returning
// the routing directive for the hosting shell. Re-dispatching the task that
// is already executing is idempotent.
//
// Validation order, each failing with a distinct error: provenance,
// busy-with-other, session ceiling, existence in the store, dependencies.
// All checks happen before any write.
func (g *Gate) Dispatch(requested *task.Task) (*RoutingDirective, error) {
	if requested == nil {
		return nil, ErrUnknownTask
	}
	id := requested.ID

	g.mu.Lock()
	defer g.mu.Unlock()

	if !requested.FromPlanningTeam {
		return nil, fmt.Errorf("dispatch %s: %w", id, ErrNotFromPlanner)
	}

	if _, executing := g.current[id]; !executing {
		if len(g.current) > 0 {
			return nil, fmt.Errorf("dispatch %s: %w", id, ErrBusy)
		}
		if len(g.current) >= g.cfg.MaxSessions {
			return nil, fmt.Errorf("dispatch %s: %w", id, ErrSessionLimit)
		}
	}

	t, ok := g.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("dispatch %s: %w", id, ErrUnknownTask)
	}
	if !g.sched.DependenciesSatisfied(t) {
		return nil, fmt.Errorf("dispatch %s: %w", id, ErrUnmetDependencies)
	}

	g.current[id] = struct{}{}
	g.store.UpdateStatus(id, task.StatusInProgress)

	directive := g.buildDirective(t)
	if directive.Truncated {
		g.logger.Warn("directive context truncated to budget",
			zap.String("task_id", id),
			zap.Int("budget", g.cfg.ContextBudget))
	}
	g.logger.Info("dispatched task",
		zap.String("task_id", id),
		zap.String("title", t.Title),
		zap.String("priority", string(t.Priority)))
	return directive, nil
}

// Complete reports the outcome of the executing task and returns the gate
// to idle. The current pointer is cleared unconditionally so a stuck busy
// state can never outlive a reported outcome. Completion of an unknown or
// never-dispatched task is rejected.
func (g *Gate) Complete(id string, status task.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.store.Get(id)
	if !ok {
		return fmt.Errorf("complete %s: %w", id, ErrUnknownTask)
	}
	if t.Status != task.StatusInProgress {
		return fmt.Errorf("complete %s: %w", id, ErrNotInProgress)
	}

	delete(g.current, id)
	g.store.UpdateStatus(id, status)
	g.logger.Info("task execution finished",
		zap.String("task_id", id),
		zap.String("status", string(status)))
	return nil
}

// Release clears the current-task pointer without touching task state.
// Used when the caller has already applied a status itself.
func (g *Gate) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.current, id)
}

// buildDirective assembles the context bundle for the shell. Oversized
// context is truncated from the front so the most recent content survives.
func (g *Gate) buildDirective(t *task.Task) *RoutingDirective {
	var b strings.Builder
	b.WriteString("Task: " + t.Title + "\n\n")
	if t.Description != "" {
		b.WriteString(t.Description + "\n")
	}
	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("\nAcceptance criteria:\n")
		for _, c := range t.AcceptanceCriteria {
			b.WriteString("- " + c + "\n")
		}
	}
	if len(t.PlanRefs) > 0 {
		b.WriteString("\nPlan references: " + strings.Join(t.PlanRefs, ", ") + "\n")
	}

	ctx := b.String()
	truncated := false
	if len(ctx) > g.cfg.ContextBudget {
		ctx = ctx[len(ctx)-g.cfg.ContextBudget:]
		truncated = true
	}

	return &RoutingDirective{
		TaskID:             t.ID,
		Title:              t.Title,
		Priority:           string(t.Priority),
		Context:            ctx,
		AcceptanceCriteria: t.AcceptanceCriteria,
		RelatedFiles:       t.RelatedFiles,
		PlanRefs:           t.PlanRefs,
		Truncated:          truncated,
	}
}
