package protocol

import (
	"strings"

	"github.com/fyrsmithlabs/dispatchd/internal/scheduler"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// MinDescriptionLength is the minimum meaningful task description length,
// enforced at creation in this layer rather than in the store.
const MinDescriptionLength = 10

// previewLimit caps how many upcoming tasks a fetch response previews.
const previewLimit = 3

// FetchNextTaskRequest asks for the next dispatchable task.
type FetchNextTaskRequest struct {
	// Filter selects ready (default), blocked, or all tasks.
	Filter scheduler.Filter `json:"filter,omitempty"`
	// Priority optionally narrows the queue to one priority.
	Priority string `json:"priority,omitempty"`
	// IncludePrompt asks for the generated execution prompt. Defaults on.
	IncludePrompt *bool `json:"include_prompt,omitempty"`
	// IncludeContext asks for plan-reference context. Defaults on.
	IncludeContext *bool `json:"include_context,omitempty"`
}

// Validate normalizes defaults and checks enumerations.
func (r *FetchNextTaskRequest) Validate() *Error {
	if r.Filter == "" {
		r.Filter = scheduler.FilterReady
	}
	if !r.Filter.Valid() {
		return Validationf("filter must be one of ready, blocked, all; got %q", r.Filter)
	}
	if r.Priority != "" {
		if _, err := task.ParsePriority(r.Priority); err != nil {
			return Validationf("invalid priority filter: %v", err)
		}
	}
	return nil
}

func (r *FetchNextTaskRequest) wantPrompt() bool {
	return r.IncludePrompt == nil || *r.IncludePrompt
}

func (r *FetchNextTaskRequest) wantContext() bool {
	return r.IncludeContext == nil || *r.IncludeContext
}

// ReportedStatus is the executor's outcome vocabulary.
type ReportedStatus string

const (
	ReportedDone    ReportedStatus = "done"
	ReportedFailed  ReportedStatus = "failed"
	ReportedBlocked ReportedStatus = "blocked"
	ReportedPartial ReportedStatus = "partial"
)

// Valid returns true if the status is a known value.
func (s ReportedStatus) Valid() bool {
	switch s {
	case ReportedDone, ReportedFailed, ReportedBlocked, ReportedPartial:
		return true
	default:
		return false
	}
}

// TestingReport summarizes test results attached to a status report.
type TestingReport struct {
	TestsRun    int  `json:"tests_run"`
	TestsPassed bool `json:"tests_passed"`
	// FailingTests names tests that are still failing.
	FailingTests []string `json:"failing_tests,omitempty"`
}

// CriterionCheck records verification of one acceptance criterion.
type CriterionCheck struct {
	Criterion string `json:"criterion"`
	Met       bool   `json:"met"`
	Notes     string `json:"notes,omitempty"`
}

// ReportTaskStatusRequest reports an execution outcome.
type ReportTaskStatusRequest struct {
	TaskID       string           `json:"task_id"`
	Status       ReportedStatus   `json:"status"`
	Summary      string           `json:"summary,omitempty"`
	Testing      *TestingReport   `json:"testing,omitempty"`
	Observations []string         `json:"observations,omitempty"`
	FollowUps    []string         `json:"follow_ups,omitempty"`
	Criteria     []CriterionCheck `json:"criteria,omitempty"`
}

// Validate checks required fields and enumerations.
func (r *ReportTaskStatusRequest) Validate() *Error {
	if strings.TrimSpace(r.TaskID) == "" {
		return Validationf("task_id is required")
	}
	if !r.Status.Valid() {
		return Validationf("status must be one of done, failed, blocked, partial; got %q", r.Status)
	}
	if r.Testing != nil && r.Testing.TestsRun < 0 {
		return Validationf("tests_run must not be negative")
	}
	return nil
}

// ObservationType categorizes a reported observation.
type ObservationType string

const (
	ObservationDiscovery           ObservationType = "discovery"
	ObservationIssue               ObservationType = "issue"
	ObservationImprovement         ObservationType = "improvement"
	ObservationArchitectureConcern ObservationType = "architecture_concern"
)

// Valid returns true if the type is a known value.
func (t ObservationType) Valid() bool {
	switch t {
	case ObservationDiscovery, ObservationIssue, ObservationImprovement, ObservationArchitectureConcern:
		return true
	default:
		return false
	}
}

// Severity grades an observation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// NewTaskDetails describes a task to create from an observation.
type NewTaskDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// ReportObservationRequest logs something the executor noticed mid-task.
type ReportObservationRequest struct {
	TaskID      string          `json:"task_id"`
	Observation string          `json:"observation"`
	Type        ObservationType `json:"type"`
	Severity    Severity        `json:"severity"`
	CreateTask  bool            `json:"create_task,omitempty"`
	Details     *NewTaskDetails `json:"details,omitempty"`
}

// Validate checks required fields, enumerations, and creation details.
func (r *ReportObservationRequest) Validate() *Error {
	if strings.TrimSpace(r.TaskID) == "" {
		return Validationf("task_id is required")
	}
	if strings.TrimSpace(r.Observation) == "" {
		return Validationf("observation is required")
	}
	if !r.Type.Valid() {
		return Validationf("type must be one of discovery, issue, improvement, architecture_concern; got %q", r.Type)
	}
	if !r.Severity.Valid() {
		return Validationf("severity must be one of low, medium, high, critical; got %q", r.Severity)
	}
	if r.CreateTask {
		if r.Details == nil {
			return Validationf("details are required when create_task is set")
		}
		if strings.TrimSpace(r.Details.Title) == "" {
			return Validationf("details.title is required")
		}
		if len(strings.TrimSpace(r.Details.Description)) < MinDescriptionLength {
			return Validationf("details.description must be at least %d characters", MinDescriptionLength)
		}
		if _, err := task.ParsePriority(r.Details.Priority); err != nil {
			return Validationf("invalid details.priority: %v", err)
		}
	}
	return nil
}

// PreviousStatus is the failing test's history.
type PreviousStatus string

const (
	PreviousNeverPassed   PreviousStatus = "never_passed"
	PreviousPassingBefore PreviousStatus = "passing_before"
	PreviousFlaky         PreviousStatus = "flaky"
)

// Valid returns true if the value is known.
func (p PreviousStatus) Valid() bool {
	switch p {
	case PreviousNeverPassed, PreviousPassingBefore, PreviousFlaky:
		return true
	default:
		return false
	}
}

// ReportTestFailureRequest reports a failing test tied to a task.
type ReportTestFailureRequest struct {
	TaskID             string         `json:"task_id"`
	TestName           string         `json:"test_name"`
	TestFile           string         `json:"test_file"`
	FailureDetails     string         `json:"failure_details"`
	PreviousStatus     PreviousStatus `json:"previous_status"`
	NeedsInvestigation bool           `json:"needs_investigation,omitempty"`
	ActionNeeded       string         `json:"action_needed,omitempty"`
	// CauseHypotheses are the caller's own guesses, merged with the
	// heuristic classification.
	CauseHypotheses []string `json:"cause_hypotheses,omitempty"`
}

// Validate checks required fields and enumerations.
func (r *ReportTestFailureRequest) Validate() *Error {
	if strings.TrimSpace(r.TaskID) == "" {
		return Validationf("task_id is required")
	}
	if strings.TrimSpace(r.TestName) == "" {
		return Validationf("test_name is required")
	}
	if strings.TrimSpace(r.TestFile) == "" {
		return Validationf("test_file is required")
	}
	if !r.PreviousStatus.Valid() {
		return Validationf("previous_status must be one of never_passed, passing_before, flaky; got %q", r.PreviousStatus)
	}
	return nil
}

// VerificationStatus is the overall outcome of a verification pass.
type VerificationStatus string

const (
	VerificationPassed           VerificationStatus = "passed"
	VerificationFailed           VerificationStatus = "failed"
	VerificationPartial          VerificationStatus = "partial"
	VerificationNeedsManualCheck VerificationStatus = "needs_manual_review"
)

// Valid returns true if the status is known.
func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPassed, VerificationFailed, VerificationPartial, VerificationNeedsManualCheck:
		return true
	default:
		return false
	}
}

// OriginalOutcome is what verification concluded about the original task.
type OriginalOutcome string

const (
	OriginalDone           OriginalOutcome = "done"
	OriginalDoneIncomplete OriginalOutcome = "done_but_incomplete"
	OriginalNeedsRework    OriginalOutcome = "needs_rework"
)

// Valid returns true if the outcome is known.
func (o OriginalOutcome) Valid() bool {
	switch o {
	case OriginalDone, OriginalDoneIncomplete, OriginalNeedsRework:
		return true
	default:
		return false
	}
}

// ChecklistItem is one verification checklist entry.
type ChecklistItem struct {
	Item   string `json:"item"`
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

// ReportVerificationResultRequest closes out a verification task.
type ReportVerificationResultRequest struct {
	VerificationTaskID string             `json:"verification_task_id"`
	OriginalTaskID     string             `json:"original_task_id"`
	Status             VerificationStatus `json:"status"`
	Checklist          []ChecklistItem    `json:"checklist"`
	OriginalTaskStatus OriginalOutcome    `json:"original_task_status"`
}

// Validate checks required fields and enumerations.
func (r *ReportVerificationResultRequest) Validate() *Error {
	if strings.TrimSpace(r.VerificationTaskID) == "" {
		return Validationf("verification_task_id is required")
	}
	if strings.TrimSpace(r.OriginalTaskID) == "" {
		return Validationf("original_task_id is required")
	}
	if !r.Status.Valid() {
		return Validationf("status must be one of passed, failed, partial, needs_manual_review; got %q", r.Status)
	}
	if !r.OriginalTaskStatus.Valid() {
		return Validationf("original_task_status must be one of done, done_but_incomplete, needs_rework; got %q", r.OriginalTaskStatus)
	}
	return nil
}

// CreateTaskRequest is the planner boundary: enqueue a new task.
type CreateTaskRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Priority           string   `json:"priority"`
	Dependencies       []string `json:"dependencies,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	RelatedFiles       []string `json:"related_files,omitempty"`
	PlanRefs           []string `json:"plan_refs,omitempty"`
	EstimatedHours     float64  `json:"estimated_hours,omitempty"`
	TicketID           string   `json:"ticket_id,omitempty"`
	Team               string   `json:"team,omitempty"`
}

// Validate checks required fields and the description minimum.
func (r *CreateTaskRequest) Validate() *Error {
	if strings.TrimSpace(r.Title) == "" {
		return Validationf("title is required")
	}
	if len(strings.TrimSpace(r.Description)) < MinDescriptionLength {
		return Validationf("description must be at least %d characters", MinDescriptionLength)
	}
	if _, err := task.ParsePriority(r.Priority); err != nil {
		return Validationf("invalid priority: %v", err)
	}
	if r.EstimatedHours < 0 {
		return Validationf("estimated_hours must not be negative")
	}
	return nil
}
