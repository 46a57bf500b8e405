package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

func TestDispatch(t *testing.T) {
	svc, st, g := newFixture(t)
	addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)

	res, err := svc.Dispatch([]byte(`{"task_id":"task-1"}`))
	require.NoError(t, err)
	require.NotNil(t, res.Directive)
	assert.Equal(t, "task-1", res.Directive.TaskID)
	assert.Equal(t, []string{"task-1"}, g.Executing())

	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusInProgress, got.Status)
}

func TestDispatchBusyIsInvalidState(t *testing.T) {
	svc, st, _ := newFixture(t)
	addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	addPlanned(t, st, "task-2", "Other work", task.PriorityHigh)

	_, err := svc.Dispatch([]byte(`{"task_id":"task-1"}`))
	require.NoError(t, err)

	_, err = svc.Dispatch([]byte(`{"task_id":"task-2"}`))
	requireProtocolError(t, err, CodeInvalidState)
}

func TestDispatchUnknownTask(t *testing.T) {
	svc, _, _ := newFixture(t)
	_, err := svc.Dispatch([]byte(`{"task_id":"task-ghost"}`))
	requireProtocolError(t, err, CodeNotFound)
}

func TestDispatchValidation(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.Dispatch([]byte(`{}`))
	requireProtocolError(t, err, CodeValidation)

	_, err = svc.Dispatch([]byte(`{"task_id":"x","extra":1}`))
	requireProtocolError(t, err, CodeValidation)
}

func TestDispatchRejectsUnplannedTask(t *testing.T) {
	svc, st, _ := newFixture(t)
	tk := addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)
	st.Update(tk.ID, func(x *task.Task) {
		x.FromPlanningTeam = false
	})

	_, err := svc.Dispatch([]byte(`{"task_id":"task-1"}`))
	requireProtocolError(t, err, CodeInvalidState)
}

func TestComplete(t *testing.T) {
	svc, st, g := newFixture(t)
	addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)

	_, err := svc.Dispatch([]byte(`{"task_id":"task-1"}`))
	require.NoError(t, err)

	res, err := svc.Complete([]byte(`{"task_id":"task-1","status":"done"}`))
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, res.Status)
	assert.Empty(t, g.Executing())

	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusDone, got.Status)
}

func TestCompleteRejectsIdleTask(t *testing.T) {
	svc, st, _ := newFixture(t)
	addPlanned(t, st, "task-1", "Fix parser", task.PriorityHigh)

	_, err := svc.Complete([]byte(`{"task_id":"task-1","status":"done"}`))
	requireProtocolError(t, err, CodeInvalidState)

	_, err = svc.Complete([]byte(`{"task_id":"task-ghost","status":"done"}`))
	requireProtocolError(t, err, CodeNotFound)

	_, err = svc.Complete([]byte(`{"task_id":"task-1","status":"finished"}`))
	requireProtocolError(t, err, CodeValidation)
}
