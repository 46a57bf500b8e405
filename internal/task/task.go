// Package task defines the task data model shared by the store, scheduler,
// gate, and protocol layers.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority orders tasks from most to least urgent.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns the sort rank of the priority. Lower ranks sort first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Demote returns the next-lower priority. Follow-up work spawned from a task
// inherits the demoted priority of its origin.
func (p Priority) Demote() Priority {
	switch p {
	case PriorityCritical:
		return PriorityHigh
	case PriorityHigh:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ParsePriority resolves both the canonical vocabulary and the planner's
// P1/P2/P3 shorthand to a Priority. The planner has no "low" tier; P3 maps
// to medium.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p1":
		return PriorityCritical, nil
	case "p2":
		return PriorityHigh, nil
	case "p3":
		return PriorityMedium, nil
	case string(PriorityCritical):
		return PriorityCritical, nil
	case string(PriorityHigh):
		return PriorityHigh, nil
	case string(PriorityMedium):
		return PriorityMedium, nil
	case string(PriorityLow):
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusPartial    Status = "partial"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusInProgress, StatusBlocked,
		StatusDone, StatusFailed, StatusPartial:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further scheduling happens from this status.
// Only done is terminal: failed and partial tasks remain retryable.
func (s Status) Terminal() bool {
	return s == StatusDone
}

// Metadata carries free-form provenance for a task.
type Metadata struct {
	// TicketID is the origin ticket in the companion conversation store.
	TicketID string `json:"ticket_id,omitempty"`
	// Team is the agent team the origin request was routed to.
	Team string `json:"team,omitempty"`
	// Escalated marks tasks flagged for immediate placement.
	Escalated bool `json:"escalated,omitempty"`
}

// Task is the unit of work flowing from the planner to the executor.
type Task struct {
	// ID is the unique, immutable identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Priority orders the task against its peers.
	Priority Priority `json:"priority"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Dependencies lists task IDs that must be done before this task.
	Dependencies []string `json:"dependencies,omitempty"`
	// BlockedBy lists external blocker identifiers. Non-empty blocks
	// dispatch regardless of dependency state.
	BlockedBy []string `json:"blocked_by,omitempty"`
	// AcceptanceCriteria defines the verification statements for completion.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	// RelatedFiles hints at files the executor is likely to touch.
	RelatedFiles []string `json:"related_files,omitempty"`
	// PlanRefs points back into the planning documents.
	PlanRefs []string `json:"plan_refs,omitempty"`
	// EstimatedHours is the planner's effort estimate.
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	// FromPlanningTeam marks tasks produced by the planning process.
	// Only flagged tasks may be dispatched.
	FromPlanningTeam bool `json:"from_planning_team"`
	// Kind distinguishes planner tasks from policy-derived ones.
	Kind Kind `json:"kind,omitempty"`
	// Metadata carries provenance.
	Metadata Metadata `json:"metadata,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind distinguishes how a task came to exist.
type Kind string

const (
	KindPlanned       Kind = "planned"
	KindVerification  Kind = "verification"
	KindFollowUp      Kind = "follow_up"
	KindInvestigation Kind = "investigation"
)

// Active reports whether the task still participates in scheduling.
func (t *Task) Active() bool {
	return !t.Status.Terminal()
}

// Blocked reports whether any external blocker is recorded.
func (t *Task) Blocked() bool {
	return len(t.BlockedBy) > 0
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	cp.BlockedBy = append([]string(nil), t.BlockedBy...)
	cp.AcceptanceCriteria = append([]string(nil), t.AcceptanceCriteria...)
	cp.RelatedFiles = append([]string(nil), t.RelatedFiles...)
	cp.PlanRefs = append([]string(nil), t.PlanRefs...)
	return &cp
}

// NewID returns a fresh task identifier with the given prefix.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
