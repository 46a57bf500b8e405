package protocol

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/classify"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// FetchNextTaskResult answers a fetch_next_task call.
type FetchNextTaskResult struct {
	// Task is the head of the filtered queue, or nil when the queue is
	// empty. An empty queue is a normal answer, not an error.
	Task *TaskView `json:"task,omitempty"`
	// QueueLength is the size of the filtered queue.
	QueueLength int `json:"queue_length"`
	// Preview lists up to the next three tasks after the returned one.
	Preview []TaskSummary `json:"preview"`
	// Prompt is the generated execution prompt, when requested.
	Prompt string `json:"prompt,omitempty"`
	// Complexity is the heuristic complexity tag for the prompt.
	Complexity classify.Complexity `json:"complexity,omitempty"`
	// PlanContext carries plan-reference context, when requested.
	PlanContext string `json:"plan_context,omitempty"`
}

// FetchNextTask returns the top of the filtered, sorted queue plus a short
// preview of what comes after it. It never mutates state: the caller
// dispatches through the gate once it commits to a task.
func (s *Service) FetchNextTask(raw []byte) (*FetchNextTaskResult, error) {
	var req FetchNextTaskRequest
	if err := decodeStrict(raw, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var priority task.Priority
	if req.Priority != "" {
		priority, _ = task.ParsePriority(req.Priority)
	}

	queue := s.sched.Select(req.Filter, priority)
	result := &FetchNextTaskResult{
		QueueLength: len(queue),
		Preview:     []TaskSummary{},
	}
	if len(queue) == 0 {
		s.logger.Warn("no task available for filter",
			zap.String("filter", string(req.Filter)),
			zap.String("priority", req.Priority))
		return result, nil
	}

	head := queue[0]
	result.Task = viewOf(head)
	for _, t := range queue[1:] {
		if len(result.Preview) == previewLimit {
			break
		}
		result.Preview = append(result.Preview, summarize(t))
	}

	if req.wantPrompt() {
		result.Complexity = classify.TaskComplexity(head.Description)
		result.Prompt = buildPrompt(head, result.Complexity)
	}
	if req.wantContext() && len(head.PlanRefs) > 0 {
		result.PlanContext = "Plan references: " + strings.Join(head.PlanRefs, ", ")
	}
	return result, nil
}

// buildPrompt renders the execution prompt for a task. The complexity tag
// is a keyword heuristic, not a guarantee.
func buildPrompt(t *task.Task, complexity classify.Complexity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Task: %s\n\n", t.Title)
	fmt.Fprintf(&b, "Priority: %s | Estimated complexity: %s\n\n", t.Priority, complexity)
	if t.Description != "" {
		b.WriteString(t.Description + "\n")
	}
	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("\n### Acceptance criteria\n")
		for i, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}
	if len(t.RelatedFiles) > 0 {
		b.WriteString("\n### Likely files\n")
		for _, f := range t.RelatedFiles {
			b.WriteString("- " + f + "\n")
		}
	}
	b.WriteString("\nReport progress with report_task_status; report failing tests with report_test_failure.\n")
	return b.String()
}
