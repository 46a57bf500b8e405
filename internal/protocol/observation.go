package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// Alert is a dashboard alert raised by a report.
type Alert struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ReportObservationResult answers a report_observation call.
type ReportObservationResult struct {
	TaskID string `json:"task_id"`
	// CreatedTaskID is set when the observation created a new task.
	CreatedTaskID string `json:"created_task_id,omitempty"`
	// Alert is set for high or critical severity and for architecture
	// concerns of any severity.
	Alert *Alert `json:"alert,omitempty"`
}

// ReportObservation logs what the executor noticed, optionally creates a
// new task from it, and raises a dashboard alert when it warrants one.
func (s *Service) ReportObservation(raw []byte) (*ReportObservationResult, error) {
	var req ReportObservationRequest
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

	s.logger.Info("observation reported",
		zap.String("task_id", t.ID),
		zap.String("type", string(req.Type)),
		zap.String("severity", string(req.Severity)),
		zap.String("observation", req.Observation))

	result := &ReportObservationResult{TaskID: t.ID}

	if req.CreateTask {
		priority, _ := task.ParsePriority(req.Details.Priority)
		now := s.now()
		nt := &task.Task{
			ID:               task.NewID("task"),
			Title:            req.Details.Title,
			Description:      req.Details.Description,
			Priority:         priority,
			Status:           task.StatusPending,
			FromPlanningTeam: t.FromPlanningTeam,
			Kind:             task.KindPlanned,
			Metadata: task.Metadata{
				Team: t.Metadata.Team,
				// Critical-severity creations are flagged for
				// immediate placement.
				Escalated: req.Severity == SeverityCritical,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if s.spawn(nt, "observation_task") {
			result.CreatedTaskID = nt.ID
		}
	}

	if req.Severity == SeverityHigh || req.Severity == SeverityCritical ||
		req.Type == ObservationArchitectureConcern {
		result.Alert = &Alert{
			Kind:     string(req.Type),
			Severity: req.Severity,
			Message:  fmt.Sprintf("%s on %s: %s", req.Type, t.Title, req.Observation),
		}
	}
	return result, nil
}
