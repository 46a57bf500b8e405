package protocol

import (
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// ChecklistIssue records one failed verification checklist item.
type ChecklistIssue struct {
	Item     string   `json:"item"`
	Severity Severity `json:"severity"`
	Notes    string   `json:"notes,omitempty"`
}

// ReportVerificationResultResult answers a report_verification_result call.
type ReportVerificationResultResult struct {
	VerificationTaskID string `json:"verification_task_id"`
	OriginalTaskID     string `json:"original_task_id"`
	// OriginalStatus is the status applied to the original task.
	OriginalStatus task.Status `json:"original_status"`
	// Issues records failed checklist items. Severity is escalated to
	// critical when the overall verification failed.
	Issues []ChecklistIssue `json:"issues,omitempty"`
	// FollowUpTaskIDs lists follow-up tasks spawned for failed items.
	FollowUpTaskIDs []string `json:"follow_up_task_ids,omitempty"`
	// UnblockedTaskIDs lists pending tasks whose dependencies are all
	// satisfied now that verification passed.
	UnblockedTaskIDs []string `json:"unblocked_task_ids,omitempty"`
}

// ReportVerificationResult closes out a verification task, settles the
// original task's fate, and turns failed checklist items into recorded
// issues plus follow-up work.
func (s *Service) ReportVerificationResult(raw []byte) (*ReportVerificationResultResult, error) {
	var req ReportVerificationResultRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	vt, ok := s.store.Get(req.VerificationTaskID)
	if !ok {
		return nil, NotFoundf("verification task %s not found", req.VerificationTaskID)
	}
	if vt.Kind != task.KindVerification {
		return nil, InvalidStatef("task %s is not a verification task", vt.ID)
	}
	if vt.Status.Terminal() {
		return nil, InvalidStatef("verification task %s is already completed", vt.ID)
	}
	orig, perr := s.mustGet(req.OriginalTaskID)
	if perr != nil {
		return nil, perr
	}

	s.store.UpdateStatus(vt.ID, task.StatusDone)
	s.gate.Release(vt.ID)

	origStatus := task.StatusDone
	if req.OriginalTaskStatus == OriginalNeedsRework {
		origStatus = task.StatusInProgress
	}
	s.store.UpdateStatus(orig.ID, origStatus)
	if origStatus.Terminal() {
		// The original may still be executing from a rework loop; a
		// finished task must never pin the gate.
		s.gate.Release(orig.ID)
	}

	result := &ReportVerificationResultResult{
		VerificationTaskID: vt.ID,
		OriginalTaskID:     orig.ID,
		OriginalStatus:     origStatus,
	}

	issueSeverity := SeverityHigh
	if req.Status == VerificationFailed {
		issueSeverity = SeverityCritical
	}
	for _, item := range req.Checklist {
		if item.Passed {
			continue
		}
		result.Issues = append(result.Issues, ChecklistIssue{
			Item:     item.Item,
			Severity: issueSeverity,
			Notes:    item.Notes,
		})
		ft := task.NewFollowUpTask(orig, "Verification found: "+item.Item, s.now())
		if s.spawn(ft, "verification_issue") {
			result.FollowUpTaskIDs = append(result.FollowUpTaskIDs, ft.ID)
		}
	}

	if origStatus == task.StatusDone {
		for _, dep := range s.dependents(orig.ID) {
			if dep.Status == task.StatusPending && s.sched.DependenciesSatisfied(dep) {
				result.UnblockedTaskIDs = append(result.UnblockedTaskIDs, dep.ID)
			}
		}
	}

	s.logger.Info("verification result recorded",
		zap.String("verification_task_id", vt.ID),
		zap.String("original_task_id", orig.ID),
		zap.String("status", string(req.Status)),
		zap.Int("issues", len(result.Issues)),
		zap.Int("unblocked", len(result.UnblockedTaskIDs)))
	return result, nil
}
