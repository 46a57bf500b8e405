package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/classify"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// TestFailureAlert summarizes how urgent a reported failure is.
type TestFailureAlert struct {
	// Regression is true when the test was passing before.
	Regression bool `json:"regression"`
	// Blocking is true when another queued task depends on the failing
	// task.
	Blocking bool `json:"blocking"`
	// RequiresHumanAttention is true for regressions and for failures
	// that block dependent work.
	RequiresHumanAttention bool `json:"requires_human_attention"`
	Message                string `json:"message"`
}

// ReportTestFailureResult answers a report_test_failure call.
type ReportTestFailureResult struct {
	TaskID   string `json:"task_id"`
	TestName string `json:"test_name"`
	// RootCause is the heuristic classification of the failure text.
	RootCause classify.RootCause `json:"root_cause"`
	// CauseHypotheses merges the caller's guesses with the heuristic.
	CauseHypotheses []string `json:"cause_hypotheses,omitempty"`
	// InvestigationTaskID is set when an investigation task was spawned.
	InvestigationTaskID string `json:"investigation_task_id,omitempty"`
	// BlockingDependents lists queued tasks that depend on the failing
	// task.
	BlockingDependents []string         `json:"blocking_dependents,omitempty"`
	Alert              TestFailureAlert `json:"alert"`
}

// ReportTestFailure classifies a failing test, optionally spawns a
// blocking investigation task, and flags the alert for human attention
// when the failure is a regression or blocks dependent work.
func (s *Service) ReportTestFailure(raw []byte) (*ReportTestFailureResult, error) {
	var req ReportTestFailureRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, perr := s.mustGet(req.TaskID)
	if perr != nil {
		return nil, perr
	}

	cause := classify.FailureRootCause(req.FailureDetails)
	hypotheses := append([]string(nil), req.CauseHypotheses...)
	hypotheses = append(hypotheses, fmt.Sprintf("heuristic: %s", cause))

	result := &ReportTestFailureResult{
		TaskID:          t.ID,
		TestName:        req.TestName,
		RootCause:       cause,
		CauseHypotheses: hypotheses,
	}

	if req.NeedsInvestigation {
		detail := req.FailureDetails
		if req.ActionNeeded != "" {
			detail += " Action needed: " + req.ActionNeeded
		}
		it := task.NewInvestigationTask(t, req.TestName, detail, s.now())
		if s.spawn(it, "investigation") {
			result.InvestigationTaskID = it.ID
		}
	}

	for _, dep := range s.dependents(t.ID) {
		result.BlockingDependents = append(result.BlockingDependents, dep.ID)
	}

	regression := req.PreviousStatus == PreviousPassingBefore
	blocking := len(result.BlockingDependents) > 0
	result.Alert = TestFailureAlert{
		Regression:             regression,
		Blocking:               blocking,
		RequiresHumanAttention: regression || blocking,
		Message: fmt.Sprintf("%s failed in %s (%s, previously %s)",
			req.TestName, req.TestFile, cause, req.PreviousStatus),
	}

	s.logger.Warn("test failure reported",
		zap.String("task_id", t.ID),
		zap.String("test", req.TestName),
		zap.String("root_cause", string(cause)),
		zap.Bool("requires_human_attention", result.Alert.RequiresHumanAttention))
	return result, nil
}
