package protocol

import (
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/classify"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// ObservationRecord pairs an observation with its heuristic class.
type ObservationRecord struct {
	Text  string                    `json:"text"`
	Class classify.ObservationClass `json:"class"`
}

// ReportTaskStatusResult answers a report_task_status call.
type ReportTaskStatusResult struct {
	TaskID string `json:"task_id"`
	// AppliedStatus is the status actually stored. A failed report keeps
	// the task in_progress so it can be retried.
	AppliedStatus task.Status `json:"applied_status"`
	// VerificationTaskID is set when a verification task was spawned.
	VerificationTaskID string `json:"verification_task_id,omitempty"`
	// FollowUpTaskIDs lists follow-up tasks spawned from observations
	// and explicit follow-up requests.
	FollowUpTaskIDs []string `json:"follow_up_task_ids,omitempty"`
	// Observations echoes each observation with its classification.
	Observations []ObservationRecord `json:"observations,omitempty"`
	// Dashboard is the recomputed aggregate view.
	Dashboard *Dashboard `json:"dashboard"`
	// NextTask previews the next available non-verification ready task.
	NextTask *TaskSummary `json:"next_task,omitempty"`
}

// ReportTaskStatus applies an execution outcome and runs the derived-work
// policies: verification spawning on clean completion, follow-up spawning
// from observations and explicit requests.
func (s *Service) ReportTaskStatus(raw []byte) (*ReportTaskStatusResult, error) {
	var req ReportTaskStatusRequest
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
	if t.Status.Terminal() {
		// Whatever path marked the task done, a report against it must
		// still clear the gate so a stale busy state cannot persist.
		s.gate.Release(t.ID)
		if req.Status == ReportedDone {
			return nil, InvalidStatef("task %s is already done", t.ID)
		}
		// Re-reports against a finished task are idempotent no-ops.
		return &ReportTaskStatusResult{
			TaskID:        t.ID,
			AppliedStatus: t.Status,
			Dashboard:     s.Dashboard(),
		}, nil
	}

	applied := s.applyStatus(t, req.Status)
	// The gate pointer is cleared unconditionally: a reported outcome must
	// never leave the gate stuck busy.
	s.gate.Release(t.ID)

	result := &ReportTaskStatusResult{
		TaskID:        t.ID,
		AppliedStatus: applied,
	}

	if req.Status == ReportedDone && !testsFailing(req.Testing) {
		vt := task.NewVerificationTask(t, s.now())
		if s.spawn(vt, "verification") {
			result.VerificationTaskID = vt.ID
		}
	}

	for _, obs := range req.Observations {
		class := classify.ObservationKind(obs)
		result.Observations = append(result.Observations, ObservationRecord{Text: obs, Class: class})
		if class == classify.ObservationFollowUp {
			ft := task.NewFollowUpTask(t, obs, s.now())
			if s.spawn(ft, "follow_up_observation") {
				result.FollowUpTaskIDs = append(result.FollowUpTaskIDs, ft.ID)
			}
		}
	}
	for _, fu := range req.FollowUps {
		ft := task.NewFollowUpTask(t, fu, s.now())
		if s.spawn(ft, "follow_up_request") {
			result.FollowUpTaskIDs = append(result.FollowUpTaskIDs, ft.ID)
		}
	}

	for _, c := range req.Criteria {
		if !c.Met {
			s.logger.Warn("acceptance criterion not met",
				zap.String("task_id", t.ID),
				zap.String("criterion", c.Criterion),
				zap.String("notes", c.Notes))
		}
	}

	result.Dashboard = s.Dashboard()
	result.NextTask = s.nextNonVerification()
	return result, nil
}

// applyStatus maps the reported outcome onto the stored lifecycle. Failed
// tasks stay in_progress so the executor can retry instead of parking them
// in a terminal state.
func (s *Service) applyStatus(t *task.Task, status ReportedStatus) task.Status {
	switch status {
	case ReportedDone:
		s.store.UpdateStatus(t.ID, task.StatusDone)
		return task.StatusDone
	case ReportedFailed:
		s.logger.Warn("task reported failed, keeping in_progress for retry",
			zap.String("task_id", t.ID))
		s.store.UpdateStatus(t.ID, task.StatusInProgress)
		return task.StatusInProgress
	case ReportedBlocked:
		s.store.UpdateStatus(t.ID, task.StatusBlocked)
		return task.StatusBlocked
	default:
		s.store.UpdateStatus(t.ID, task.StatusPartial)
		return task.StatusPartial
	}
}

// testsFailing reports whether the testing report names any failure.
func testsFailing(tr *TestingReport) bool {
	if tr == nil {
		return false
	}
	return !tr.TestsPassed || len(tr.FailingTests) > 0
}

// nextNonVerification previews the next ready task that is not a
// verification task.
func (s *Service) nextNonVerification() *TaskSummary {
	for _, t := range s.sched.Ready() {
		if t.Kind == task.KindVerification {
			continue
		}
		sum := summarize(t)
		return &sum
	}
	return nil
}
