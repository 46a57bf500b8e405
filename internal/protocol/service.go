// Package protocol implements the five tool operations the executing agent
// uses to pull work and report outcomes, together with the derived-work
// policies those reports trigger.
//
// Every operation decodes its raw request strictly (unknown fields are
// rejected), validates enumerations and ranges, resolves referenced tasks,
// and only then mutates the store. All failures are *Error values with a
// machine-readable code.
package protocol

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/gate"
	"github.com/fyrsmithlabs/dispatchd/internal/scheduler"
	"github.com/fyrsmithlabs/dispatchd/internal/store"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// Service wires the five operations to the store, scheduler, and gate.
type Service struct {
	store  *store.Store
	sched  *scheduler.Scheduler
	gate   *gate.Gate
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the protocol service.
func NewService(st *store.Store, sched *scheduler.Scheduler, g *gate.Gate, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}
	if g == nil {
		return nil, errors.New("gate is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  st,
		sched:  sched,
		gate:   g,
		logger: logger,
		now:    time.Now,
	}, nil
}

// TaskSummary is the compact task shape used in previews and lists.
type TaskSummary struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Priority task.Priority `json:"priority"`
	Status   task.Status   `json:"status"`
}

func summarize(t *task.Task) TaskSummary {
	return TaskSummary{
		ID:       t.ID,
		Title:    t.Title,
		Priority: t.Priority,
		Status:   t.Status,
	}
}

// TaskView is the full task shape returned to the executor.
type TaskView struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Priority           task.Priority `json:"priority"`
	Status             task.Status   `json:"status"`
	Dependencies       []string      `json:"dependencies,omitempty"`
	AcceptanceCriteria []string      `json:"acceptance_criteria,omitempty"`
	RelatedFiles       []string      `json:"related_files,omitempty"`
	EstimatedHours     float64       `json:"estimated_hours,omitempty"`
	Kind               task.Kind     `json:"kind,omitempty"`
}

func viewOf(t *task.Task) *TaskView {
	return &TaskView{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Priority:           t.Priority,
		Status:             t.Status,
		Dependencies:       t.Dependencies,
		AcceptanceCriteria: t.AcceptanceCriteria,
		RelatedFiles:       t.RelatedFiles,
		EstimatedHours:     t.EstimatedHours,
		Kind:               t.Kind,
	}
}

// mustGet resolves a task ID to a not-found protocol error.
func (s *Service) mustGet(id string) (*task.Task, *Error) {
	t, ok := s.store.Get(id)
	if !ok {
		return nil, NotFoundf("task %s not found", id)
	}
	return t, nil
}

// spawn adds a derived task, logging the policy that produced it. The store
// may still reject it (capacity, duplicate); that is not the caller's error.
func (s *Service) spawn(t *task.Task, policy string) bool {
	if ok := s.store.Add(t); !ok {
		s.logger.Warn("derived task rejected by store",
			zap.String("policy", policy),
			zap.String("task_id", t.ID),
			zap.String("title", t.Title))
		return false
	}
	s.logger.Info("spawned derived task",
		zap.String("policy", policy),
		zap.String("task_id", t.ID),
		zap.String("priority", string(t.Priority)))
	return true
}

// CreateTaskResult reports a planner enqueue.
type CreateTaskResult struct {
	TaskID string `json:"task_id"`
}

// CreateTask is the planner boundary: validate and enqueue a new task.
// Tasks created here carry planning provenance and start pending.
func (s *Service) CreateTask(raw []byte) (*CreateTaskResult, error) {
	var req CreateTaskRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	priority, perr := task.ParsePriority(req.Priority)
	if perr != nil {
		return nil, Validationf("invalid priority: %v", perr)
	}

	now := s.now()
	t := &task.Task{
		ID:                 task.NewID("task"),
		Title:              req.Title,
		Description:        req.Description,
		Priority:           priority,
		Status:             task.StatusPending,
		Dependencies:       req.Dependencies,
		AcceptanceCriteria: req.AcceptanceCriteria,
		RelatedFiles:       req.RelatedFiles,
		PlanRefs:           req.PlanRefs,
		EstimatedHours:     req.EstimatedHours,
		FromPlanningTeam:   true,
		Kind:               task.KindPlanned,
		Metadata:           task.Metadata{TicketID: req.TicketID, Team: req.Team},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if !s.store.Add(t) {
		return nil, InvalidStatef("task %q rejected: duplicate or queue at capacity", req.Title)
	}
	return &CreateTaskResult{TaskID: t.ID}, nil
}

// dependents returns active tasks that depend on the given task ID.
func (s *Service) dependents(id string) []*task.Task {
	var out []*task.Task
	for _, t := range s.store.All() {
		if !t.Active() {
			continue
		}
		for _, dep := range t.Dependencies {
			if dep == id {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
