package protocol

import (
	"errors"
	"strings"

	"github.com/fyrsmithlabs/dispatchd/internal/gate"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// DispatchRequest commits the hosting shell to executing a task.
type DispatchRequest struct {
	TaskID string `json:"task_id"`
}

// Validate checks required fields.
func (r *DispatchRequest) Validate() *Error {
	if strings.TrimSpace(r.TaskID) == "" {
		return Validationf("task_id is required")
	}
	return nil
}

// DispatchResult carries the routing directive for the shell.
type DispatchResult struct {
	Directive *gate.RoutingDirective `json:"directive"`
}

// Dispatch marks a task in_progress through the gate and returns the
// routing directive the shell forwards to the model.
func (s *Service) Dispatch(raw []byte) (*DispatchResult, error) {
	var req DispatchRequest
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

	d, err := s.gate.Dispatch(t)
	if err != nil {
		return nil, mapGateErr(err)
	}
	return &DispatchResult{Directive: d}, nil
}

// CompleteRequest reports an outcome directly through the gate, bypassing
// the derived-work policies of report_task_status.
type CompleteRequest struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// Validate checks required fields and the status value.
func (r *CompleteRequest) Validate() *Error {
	if strings.TrimSpace(r.TaskID) == "" {
		return Validationf("task_id is required")
	}
	if !r.Status.Valid() {
		return Validationf("unknown status %q", r.Status)
	}
	return nil
}

// CompleteResult confirms a manual completion.
type CompleteResult struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

// Complete is the operator override: settle the executing task's status
// without spawning derived work.
func (s *Service) Complete(raw []byte) (*CompleteResult, error) {
	var req CompleteRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.gate.Complete(req.TaskID, req.Status); err != nil {
		return nil, mapGateErr(err)
	}
	return &CompleteResult{TaskID: req.TaskID, Status: req.Status}, nil
}

// mapGateErr translates gate sentinels into the protocol error taxonomy.
func mapGateErr(err error) error {
	switch {
	case errors.Is(err, gate.ErrUnknownTask):
		return NotFoundf("%v", err)
	case errors.Is(err, gate.ErrNotFromPlanner),
		errors.Is(err, gate.ErrBusy),
		errors.Is(err, gate.ErrSessionLimit),
		errors.Is(err, gate.ErrUnmetDependencies),
		errors.Is(err, gate.ErrNotInProgress):
		return InvalidStatef("%v", err)
	default:
		return err
	}
}
