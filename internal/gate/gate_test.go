package gate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/scheduler"
	"github.com/fyrsmithlabs/dispatchd/internal/store"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

func newFixture(t *testing.T, cfg *Config) (*Gate, *store.Store) {
	t.Helper()
	st, err := store.New(store.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	g, err := New(cfg, st, scheduler.New(st), zap.NewNop())
	require.NoError(t, err)
	return g, st
}

func plannedTask(id, title string) *task.Task {
	now := time.Now()
	return &task.Task{
		ID:               id,
		Title:            title,
		Priority:         task.PriorityHigh,
		Status:           task.StatusPending,
		FromPlanningTeam: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestNewValidatesConfig(t *testing.T) {
	st, err := store.New(store.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	sched := scheduler.New(st)

	_, err = New(&Config{MaxSessions: 0, ContextBudget: 100}, st, sched, zap.NewNop())
	require.Error(t, err)

	_, err = New(&Config{MaxSessions: 1, ContextBudget: 0}, st, sched, zap.NewNop())
	require.Error(t, err)

	_, err = New(nil, nil, sched, zap.NewNop())
	require.Error(t, err)
}

func TestDispatchHappyPath(t *testing.T) {
	g, st := newFixture(t, nil)
	tk := plannedTask("task-1", "Fix parser")
	tk.Description = "The parser mishandles nested arrays."
	tk.AcceptanceCriteria = []string{"nested arrays parse"}
	require.True(t, st.Add(tk))

	d, err := g.Dispatch(tk)
	require.NoError(t, err)
	assert.Equal(t, "task-1", d.TaskID)
	assert.Equal(t, "high", d.Priority)
	assert.Contains(t, d.Context, "Fix parser")
	assert.Contains(t, d.Context, "nested arrays parse")
	assert.False(t, d.Truncated)

	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusInProgress, got.Status)
	assert.Equal(t, []string{"task-1"}, g.Executing())
}

func TestDispatchRejectsWithoutProvenance(t *testing.T) {
	g, st := newFixture(t, nil)
	tk := plannedTask("task-1", "Sneaky work")
	tk.FromPlanningTeam = false
	require.True(t, st.Add(tk))

	_, err := g.Dispatch(tk)
	require.ErrorIs(t, err, ErrNotFromPlanner)
}

func TestDispatchProvenanceCheckedBeforeExistence(t *testing.T) {
	g, _ := newFixture(t, nil)

	// Never stored and missing provenance: provenance wins.
	tk := plannedTask("task-ghost", "Ghost")
	tk.FromPlanningTeam = false
	_, err := g.Dispatch(tk)
	require.ErrorIs(t, err, ErrNotFromPlanner)
}

func TestDispatchRejectsUnknownTask(t *testing.T) {
	g, _ := newFixture(t, nil)
	_, err := g.Dispatch(plannedTask("task-ghost", "Ghost"))
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestDispatchSingleFlight(t *testing.T) {
	g, st := newFixture(t, nil)
	a := plannedTask("task-a", "First")
	b := plannedTask("task-b", "Second")
	require.True(t, st.Add(a))
	require.True(t, st.Add(b))

	_, err := g.Dispatch(a)
	require.NoError(t, err)

	_, err = g.Dispatch(b)
	require.ErrorIs(t, err, ErrBusy)

	// Second task stays untouched by the failed dispatch.
	got, _ := st.Get("task-b")
	assert.Equal(t, task.StatusPending, got.Status)
}

func TestDispatchSameTaskIsIdempotent(t *testing.T) {
	g, st := newFixture(t, nil)
	tk := plannedTask("task-1", "Only work")
	require.True(t, st.Add(tk))

	first, err := g.Dispatch(tk)
	require.NoError(t, err)

	second, err := g.Dispatch(tk)
	require.NoError(t, err)
	assert.Equal(t, first.TaskID, second.TaskID)
	assert.Len(t, g.Executing(), 1)
}

func TestDispatchRejectsUnmetDependencies(t *testing.T) {
	g, st := newFixture(t, nil)
	dep := plannedTask("task-dep", "Dependency")
	tk := plannedTask("task-1", "Dependent")
	tk.Dependencies = []string{"task-dep"}
	require.True(t, st.Add(dep))
	require.True(t, st.Add(tk))

	_, err := g.Dispatch(tk)
	require.ErrorIs(t, err, ErrUnmetDependencies)

	st.UpdateStatus("task-dep", task.StatusDone)
	_, err = g.Dispatch(tk)
	require.NoError(t, err)
}

func TestDispatchTruncatesOversizedContext(t *testing.T) {
	g, st := newFixture(t, &Config{MaxSessions: 1, ContextBudget: 200})
	tk := plannedTask("task-1", "Big context")
	tk.Description = strings.Repeat("tail-marker ", 100)
	require.True(t, st.Add(tk))

	d, err := g.Dispatch(tk)
	require.NoError(t, err)
	assert.True(t, d.Truncated)
	assert.Len(t, d.Context, 200)
	// Truncation drops the front and keeps the most recent content.
	assert.True(t, strings.HasSuffix(d.Context, "tail-marker \n"))
}

func TestCompleteClearsGate(t *testing.T) {
	g, st := newFixture(t, nil)
	tk := plannedTask("task-1", "Work")
	require.True(t, st.Add(tk))

	_, err := g.Dispatch(tk)
	require.NoError(t, err)

	require.NoError(t, g.Complete("task-1", task.StatusDone))
	assert.Empty(t, g.Executing())
	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusDone, got.Status)

	// Gate is idle again; a new dispatch succeeds.
	next := plannedTask("task-2", "Next work")
	require.True(t, st.Add(next))
	_, err = g.Dispatch(next)
	require.NoError(t, err)
}

func TestCompleteRejectsUnknownAndIdle(t *testing.T) {
	g, st := newFixture(t, nil)

	err := g.Complete("task-ghost", task.StatusDone)
	require.ErrorIs(t, err, ErrUnknownTask)

	tk := plannedTask("task-1", "Never dispatched")
	require.True(t, st.Add(tk))
	err = g.Complete("task-1", task.StatusDone)
	require.ErrorIs(t, err, ErrNotInProgress)
}

func TestRelease(t *testing.T) {
	g, st := newFixture(t, nil)
	tk := plannedTask("task-1", "Work")
	require.True(t, st.Add(tk))

	_, err := g.Dispatch(tk)
	require.NoError(t, err)

	g.Release("task-1")
	assert.Empty(t, g.Executing())

	// Release does not touch task state.
	got, _ := st.Get("task-1")
	assert.Equal(t, task.StatusInProgress, got.Status)
}
