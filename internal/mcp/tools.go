package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/dispatchd/internal/protocol"
)

// The input structs below mirror the protocol request shapes so the MCP
// client sees accurate schemas. Handlers still pass the raw arguments to
// the protocol layer: strict unknown-field rejection is its contract, not
// the schema's.

type fetchNextTaskInput struct {
	Filter         string `json:"filter,omitempty" jsonschema:"Queue filter: ready (default) or blocked or all"`
	Priority       string `json:"priority,omitempty" jsonschema:"Narrow to one priority: critical or high or medium or low"`
	IncludePrompt  *bool  `json:"include_prompt,omitempty" jsonschema:"Include the generated execution prompt (default true)"`
	IncludeContext *bool  `json:"include_context,omitempty" jsonschema:"Include plan-reference context (default true)"`
}

type reportTaskStatusInput struct {
	TaskID       string                    `json:"task_id" jsonschema:"required,Task being reported on"`
	Status       string                    `json:"status" jsonschema:"required,Outcome: done or failed or blocked or partial"`
	Summary      string                    `json:"summary,omitempty" jsonschema:"Short summary of what was done"`
	Testing      *protocol.TestingReport   `json:"testing,omitempty" jsonschema:"Test results"`
	Observations []string                  `json:"observations,omitempty" jsonschema:"Things noticed while working"`
	FollowUps    []string                  `json:"follow_ups,omitempty" jsonschema:"Explicit follow-up work requests"`
	Criteria     []protocol.CriterionCheck `json:"criteria,omitempty" jsonschema:"Acceptance-criteria verification"`
}

type reportObservationInput struct {
	TaskID      string                   `json:"task_id" jsonschema:"required,Task the observation relates to"`
	Observation string                   `json:"observation" jsonschema:"required,What was observed"`
	Type        string                   `json:"type" jsonschema:"required,discovery or issue or improvement or architecture_concern"`
	Severity    string                   `json:"severity" jsonschema:"required,low or medium or high or critical"`
	CreateTask  bool                     `json:"create_task,omitempty" jsonschema:"Create a new task from this observation"`
	Details     *protocol.NewTaskDetails `json:"details,omitempty" jsonschema:"New task details, required when create_task is set"`
}

type reportTestFailureInput struct {
	TaskID             string   `json:"task_id" jsonschema:"required,Task the failing test belongs to"`
	TestName           string   `json:"test_name" jsonschema:"required,Name of the failing test"`
	TestFile           string   `json:"test_file" jsonschema:"required,File containing the test"`
	FailureDetails     string   `json:"failure_details" jsonschema:"Error output of the failure"`
	PreviousStatus     string   `json:"previous_status" jsonschema:"required,never_passed or passing_before or flaky"`
	NeedsInvestigation bool     `json:"needs_investigation,omitempty" jsonschema:"Spawn a blocking investigation task"`
	ActionNeeded       string   `json:"action_needed,omitempty" jsonschema:"What needs to happen next"`
	CauseHypotheses    []string `json:"cause_hypotheses,omitempty" jsonschema:"Caller's own root-cause guesses"`
}

type reportVerificationResultInput struct {
	VerificationTaskID string                   `json:"verification_task_id" jsonschema:"required,Verification task being closed"`
	OriginalTaskID     string                   `json:"original_task_id" jsonschema:"required,Task that was verified"`
	Status             string                   `json:"status" jsonschema:"required,passed or failed or partial or needs_manual_review"`
	Checklist          []protocol.ChecklistItem `json:"checklist" jsonschema:"Verification checklist results"`
	OriginalTaskStatus string                   `json:"original_task_status" jsonschema:"required,done or done_but_incomplete or needs_rework"`
}

// instrument wraps a tool call with invocation metrics.
func instrument[T any](ctx context.Context, m *Metrics, tool string, fn func() (T, error)) (T, error) {
	start := time.Now()
	m.IncrementActive(ctx, tool)
	result, err := fn()
	m.DecrementActive(ctx, tool)
	m.RecordInvocation(ctx, tool, time.Since(start), err)
	return result, err
}

// registerTools registers the five queue tools with the server.
func (s *Server) registerTools() error {
	// fetch_next_task
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fetch_next_task",
		Description: "Fetch the next dispatchable task from the queue, with a preview of what follows",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fetchNextTaskInput) (*mcp.CallToolResult, protocol.FetchNextTaskResult, error) {
		result, err := instrument(ctx, s.metrics, "fetch_next_task", func() (*protocol.FetchNextTaskResult, error) {
			return s.service.FetchNextTask(req.Params.Arguments)
		})
		if err != nil {
			return nil, protocol.FetchNextTaskResult{}, err
		}
		text := "No task available"
		if result.Task != nil {
			text = fmt.Sprintf("Next task: %s (%s, %s); %d in queue",
				result.Task.Title, result.Task.ID, result.Task.Priority, result.QueueLength)
		}
		return textResult(text), *result, nil
	})
	s.toolRegistry.Register(&ToolMetadata{
		Name:        "fetch_next_task",
		Description: "Fetch the next dispatchable task from the queue",
		Category:    CategoryQueue,
		Keywords:    []string{"next", "queue", "ready", "pull"},
	})

	// report_task_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "report_task_status",
		Description: "Report the outcome of an executed task; spawns verification and follow-up work",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reportTaskStatusInput) (*mcp.CallToolResult, protocol.ReportTaskStatusResult, error) {
		result, err := instrument(ctx, s.metrics, "report_task_status", func() (*protocol.ReportTaskStatusResult, error) {
			return s.service.ReportTaskStatus(req.Params.Arguments)
		})
		if err != nil {
			return nil, protocol.ReportTaskStatusResult{}, err
		}
		return textResult(fmt.Sprintf("Task %s is now %s", result.TaskID, result.AppliedStatus)), *result, nil
	})
	s.toolRegistry.Register(&ToolMetadata{
		Name:        "report_task_status",
		Description: "Report the outcome of an executed task",
		Category:    CategoryReporting,
		Keywords:    []string{"done", "failed", "blocked", "status", "complete"},
	})

	// report_observation
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "report_observation",
		Description: "Log something noticed mid-task; may create a new task and raise an alert",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reportObservationInput) (*mcp.CallToolResult, protocol.ReportObservationResult, error) {
		result, err := instrument(ctx, s.metrics, "report_observation", func() (*protocol.ReportObservationResult, error) {
			return s.service.ReportObservation(req.Params.Arguments)
		})
		if err != nil {
			return nil, protocol.ReportObservationResult{}, err
		}
		text := "Observation recorded"
		if result.CreatedTaskID != "" {
			text = fmt.Sprintf("Observation recorded; created task %s", result.CreatedTaskID)
		}
		return textResult(text), *result, nil
	})
	s.toolRegistry.Register(&ToolMetadata{
		Name:        "report_observation",
		Description: "Log an observation made while executing a task",
		Category:    CategoryReporting,
		Keywords:    []string{"discovery", "issue", "improvement", "architecture"},
	})

	// report_test_failure
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "report_test_failure",
		Description: "Report a failing test; classifies the root cause and may spawn an investigation task",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reportTestFailureInput) (*mcp.CallToolResult, protocol.ReportTestFailureResult, error) {
		result, err := instrument(ctx, s.metrics, "report_test_failure", func() (*protocol.ReportTestFailureResult, error) {
			return s.service.ReportTestFailure(req.Params.Arguments)
		})
		if err != nil {
			return nil, protocol.ReportTestFailureResult{}, err
		}
		return textResult(fmt.Sprintf("Failure of %s recorded (root cause: %s)",
			result.TestName, result.RootCause)), *result, nil
	})
	s.toolRegistry.Register(&ToolMetadata{
		Name:        "report_test_failure",
		Description: "Report a failing test tied to a task",
		Category:    CategoryReporting,
		Keywords:    []string{"test", "failure", "regression", "investigate"},
	})

	// report_verification_result
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "report_verification_result",
		Description: "Close out a verification task and settle the original task's status",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reportVerificationResultInput) (*mcp.CallToolResult, protocol.ReportVerificationResultResult, error) {
		result, err := instrument(ctx, s.metrics, "report_verification_result", func() (*protocol.ReportVerificationResultResult, error) {
			return s.service.ReportVerificationResult(req.Params.Arguments)
		})
		if err != nil {
			return nil, protocol.ReportVerificationResultResult{}, err
		}
		return textResult(fmt.Sprintf("Verification %s closed; original task %s is %s",
			result.VerificationTaskID, result.OriginalTaskID, result.OriginalStatus)), *result, nil
	})
	s.toolRegistry.Register(&ToolMetadata{
		Name:        "report_verification_result",
		Description: "Close out a verification task",
		Category:    CategoryReporting,
		Keywords:    []string{"verify", "checklist", "rework", "passed"},
	})

	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
