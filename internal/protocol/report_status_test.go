package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

func dispatch(t *testing.T, svc *Service, tk *task.Task) {
	t.Helper()
	_, err := svc.gate.Dispatch(tk)
	require.NoError(t, err)
}

func TestReportTaskStatusDoneSpawnsVerification(t *testing.T) {
	svc, st, _ := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityCritical)
	dispatch(t, svc, tk)

	res, err := svc.ReportTaskStatus([]byte(`{
		"task_id": "task-1",
		"status": "done",
		"testing": {"tests_run": 12, "tests_passed": true}
	}`))
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, res.AppliedStatus)
	require.NotEmpty(t, res.VerificationTaskID)

	vt, ok := st.Get(res.VerificationTaskID)
	require.True(t, ok)
	assert.Equal(t, task.KindVerification, vt.Kind)
	assert.Equal(t, []string{"task-1"}, vt.Dependencies)
	// Critical-priority work gets a manual verification pass.
	assert.Contains(t, vt.Description, "manual")

	// Exactly one verification task exists.
	count := 0
	for _, x := range st.All() {
		if x.Kind == task.KindVerification {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestReportTaskStatusDoneWithFailingTestsSkipsVerification(t *testing.T) {
	svc, st, _ := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	dispatch(t, svc, tk)

	res, err := svc.ReportTaskStatus([]byte(`{
		"task_id": "task-1",
		"status": "done",
		"testing": {"tests_run": 12, "tests_passed": false, "failing_tests": ["TestParse"]}
	}`))
	require.NoError(t, err)
	assert.Empty(t, res.VerificationTaskID)
	for _, x := range st.All() {
		assert.NotEqual(t, task.KindVerification, x.Kind)
	}
}

func TestReportTaskStatusFailedKeepsInProgress(t *testing.T) {
	svc, st, _ := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	dispatch(t, svc, tk)

	res, err := svc.ReportTaskStatus([]byte(`{"task_id":"task-1","status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, res.AppliedStatus)
	assert.Empty(t, res.VerificationTaskID)

	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusInProgress, got.Status)
}

func TestReportTaskStatusReleasesGate(t *testing.T) {
	svc, st, g := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	dispatch(t, svc, tk)
	require.Len(t, g.Executing(), 1)

	_, err := svc.ReportTaskStatus([]byte(`{"task_id":"task-1","status":"blocked"}`))
	require.NoError(t, err)
	assert.Empty(t, g.Executing(), "every reported outcome clears the gate")

	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusBlocked, got.Status)
}

func TestReportTaskStatusObservationsSpawnFollowUps(t *testing.T) {
	svc, st, _ := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityCritical)
	dispatch(t, svc, tk)

	res, err := svc.ReportTaskStatus([]byte(`{
		"task_id": "task-1",
		"status": "done",
		"observations": [
			"needs a follow-up on error messages",
			"the config loader also reads env vars"
		],
		"follow_ups": ["add metrics for parse failures"]
	}`))
	require.NoError(t, err)

	require.Len(t, res.Observations, 2)
	assert.Equal(t, "follow_up", string(res.Observations[0].Class))
	assert.Equal(t, "noted", string(res.Observations[1].Class))

	// One follow-up from the classified observation, one from the explicit
	// request.
	require.Len(t, res.FollowUpTaskIDs, 2)
	for _, id := range res.FollowUpTaskIDs {
		ft, ok := st.Get(id)
		require.True(t, ok)
		assert.Equal(t, task.KindFollowUp, ft.Kind)
		// Demoted from the critical origin.
		assert.Equal(t, task.PriorityHigh, ft.Priority)
	}
}

func TestReportTaskStatusTerminalIdempotency(t *testing.T) {
	svc, st, _ := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	st.UpdateStatus(tk.ID, task.StatusDone)

	// Re-marking a done task done is an invalid transition.
	_, err := svc.ReportTaskStatus([]byte(`{"task_id":"task-1","status":"done"}`))
	requireProtocolError(t, err, CodeInvalidState)

	// Any other report against a finished task is an idempotent no-op.
	res, err := svc.ReportTaskStatus([]byte(`{"task_id":"task-1","status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, res.AppliedStatus)
	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusDone, got.Status)
}

func TestReportTaskStatusReleasesGateForFinishedTask(t *testing.T) {
	svc, st, g := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	dispatch(t, svc, tk)
	st.UpdateStatus(tk.ID, task.StatusDone)
	require.Equal(t, []string{"task-1"}, g.Executing())

	// Even the no-op path against a finished task clears the gate, so a
	// task marked done outside report_task_status cannot pin it.
	_, err := svc.ReportTaskStatus([]byte(`{"task_id":"task-1","status":"partial"}`))
	require.NoError(t, err)
	assert.Empty(t, g.Executing())
}

func TestReportTaskStatusValidation(t *testing.T) {
	svc, st, _ := newFixture(t)
	addPlanned(t, st, "task-1", "Work", task.PriorityHigh)
	before := st.Len()

	tests := []struct {
		name string
		body string
		code Code
	}{
		{"missing task_id", `{"status":"done"}`, CodeValidation},
		{"bad status", `{"task_id":"task-1","status":"completed"}`, CodeValidation},
		{"negative tests_run", `{"task_id":"task-1","status":"done","testing":{"tests_run":-1,"tests_passed":true}}`, CodeValidation},
		{"unknown field", `{"task_id":"task-1","status":"done","extra":1}`, CodeValidation},
		{"unknown task", `{"task_id":"task-ghost","status":"done"}`, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ReportTaskStatus([]byte(tt.body))
			requireProtocolError(t, err, tt.code)
		})
	}
	assert.Equal(t, before, st.Len(), "rejected reports must not mutate the store")
	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusPending, got.Status)
}

func TestReportTaskStatusNextTaskSkipsVerification(t *testing.T) {
	svc, st, _ := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	addPlanned(t, st, "task-2", "Next work", task.PriorityLow)
	dispatch(t, svc, tk)

	res, err := svc.ReportTaskStatus([]byte(`{
		"task_id": "task-1",
		"status": "done",
		"testing": {"tests_run": 3, "tests_passed": true}
	}`))
	require.NoError(t, err)
	require.NotEmpty(t, res.VerificationTaskID)

	// The spawned verification task is now ready (its dependency is done)
	// and outranks the low-priority task, but the preview skips it.
	require.NotNil(t, res.NextTask)
	assert.Equal(t, "task-2", res.NextTask.ID)
}

func TestReportTaskStatusDashboardRecomputed(t *testing.T) {
	svc, st, _ := newFixture(t)
	for i := 1; i <= 4; i++ {
		addPlanned(t, st, fmt.Sprintf("task-%d", i), fmt.Sprintf("Work %d", i), task.PriorityMedium)
	}
	tk, _ := st.Get("task-1")
	dispatch(t, svc, tk)

	res, err := svc.ReportTaskStatus([]byte(`{"task_id":"task-1","status":"done"}`))
	require.NoError(t, err)
	require.NotNil(t, res.Dashboard)
	// Four planned tasks plus the spawned verification task, one done.
	assert.Equal(t, 5, res.Dashboard.Total)
	assert.Equal(t, 1, res.Dashboard.ByStatus[task.StatusDone])
	assert.Equal(t, 1, res.Dashboard.VerificationPending)
	assert.InDelta(t, 20.0, res.Dashboard.PercentComplete, 0.01)
}
