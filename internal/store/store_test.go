package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
	"github.com/fyrsmithlabs/dispatchd/internal/ticket"
)

func newTestStore(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := New(&Config{Capacity: capacity}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func mkTask(id, title string, p task.Priority, status task.Status, created time.Time) *task.Task {
	return &task.Task{
		ID:        id,
		Title:     title,
		Priority:  p,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	_, err := New(&Config{Capacity: 0}, zap.NewNop())
	require.Error(t, err)

	_, err = New(&Config{Capacity: -1}, zap.NewNop())
	require.Error(t, err)
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()

	require.True(t, s.Add(mkTask("task-1", "First", task.PriorityHigh, task.StatusPending, now)))
	got, ok := s.Get("task-1")
	require.True(t, ok)
	assert.Equal(t, "First", got.Title)

	// Returned copies must not alias stored state.
	got.Title = "mutated"
	again, _ := s.Get("task-1")
	assert.Equal(t, "First", again.Title)
}

func TestAddRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()

	require.True(t, s.Add(mkTask("task-1", "First", task.PriorityHigh, task.StatusPending, now)))
	assert.False(t, s.Add(mkTask("task-1", "Different title", task.PriorityLow, task.StatusPending, now)))
	assert.Equal(t, 1, s.Len())
}

func TestAddRejectsDuplicateTicketID(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()

	a := mkTask("task-1", "First", task.PriorityHigh, task.StatusDone, now)
	a.Metadata.TicketID = "ticket-42"
	require.True(t, s.Add(a))

	// Ticket match blocks even when the existing task is terminal.
	b := mkTask("task-2", "Second", task.PriorityLow, task.StatusPending, now)
	b.Metadata.TicketID = "ticket-42"
	assert.False(t, s.Add(b))
}

func TestAddRejectsDuplicateTitlePriorityAmongActive(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()

	require.True(t, s.Add(mkTask("task-1", "Fix parser", task.PriorityHigh, task.StatusPending, now)))
	assert.False(t, s.Add(mkTask("task-2", "Fix parser", task.PriorityHigh, task.StatusPending, now)))

	// Same title at a different priority is not a duplicate.
	assert.True(t, s.Add(mkTask("task-3", "Fix parser", task.PriorityLow, task.StatusPending, now)))
}

func TestAddAllowsRecreatingDoneTask(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()

	require.True(t, s.Add(mkTask("task-1", "Fix parser", task.PriorityHigh, task.StatusDone, now)))

	// A terminal task with the same title and priority does not block.
	assert.True(t, s.Add(mkTask("task-2", "Fix parser", task.PriorityHigh, task.StatusPending, now)))
}

func TestCapacityEvictsOldestDone(t *testing.T) {
	s := newTestStore(t, 3)
	base := time.Now()

	require.True(t, s.Add(mkTask("task-1", "One", task.PriorityHigh, task.StatusDone, base)))
	require.True(t, s.Add(mkTask("task-2", "Two", task.PriorityHigh, task.StatusDone, base.Add(time.Minute))))
	require.True(t, s.Add(mkTask("task-3", "Three", task.PriorityHigh, task.StatusPending, base.Add(2*time.Minute))))

	require.True(t, s.Add(mkTask("task-4", "Four", task.PriorityHigh, task.StatusPending, base.Add(3*time.Minute))))

	_, ok := s.Get("task-1")
	assert.False(t, ok, "oldest done task should be evicted")
	_, ok = s.Get("task-2")
	assert.True(t, ok)
	assert.Equal(t, 3, s.Len())
}

func TestCapacityRejectsWhenNothingEvictable(t *testing.T) {
	s := newTestStore(t, 2)
	now := time.Now()

	require.True(t, s.Add(mkTask("task-1", "One", task.PriorityHigh, task.StatusPending, now)))
	require.True(t, s.Add(mkTask("task-2", "Two", task.PriorityHigh, task.StatusInProgress, now)))

	assert.False(t, s.Add(mkTask("task-3", "Three", task.PriorityHigh, task.StatusPending, now)))
	assert.Equal(t, 2, s.Len())
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		require.True(t, s.Add(mkTask(
			fmt.Sprintf("task-%d", i), fmt.Sprintf("Task %d", i),
			task.PriorityMedium, task.StatusPending, now)))
	}

	all := s.All()
	require.Len(t, all, 5)
	for i, tk := range all {
		assert.Equal(t, fmt.Sprintf("task-%d", i+1), tk.ID)
	}
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()
	require.True(t, s.Add(mkTask("task-1", "One", task.PriorityHigh, task.StatusPending, now)))

	s.UpdateStatus("task-1", task.StatusInProgress)
	got, _ := s.Get("task-1")
	assert.Equal(t, task.StatusInProgress, got.Status)

	// Unknown IDs are ignored.
	s.UpdateStatus("task-999", task.StatusDone)
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()
	require.True(t, s.Add(mkTask("task-1", "One", task.PriorityHigh, task.StatusPending, now)))

	ok := s.Update("task-1", func(tk *task.Task) {
		tk.BlockedBy = append(tk.BlockedBy, "ext-1")
	})
	require.True(t, ok)
	got, _ := s.Get("task-1")
	assert.Equal(t, []string{"ext-1"}, got.BlockedBy)

	assert.False(t, s.Update("task-999", func(*task.Task) {}))
}

func TestOnMutateFires(t *testing.T) {
	s := newTestStore(t, 10)
	var calls int
	s.SetOnMutate(func() { calls++ })

	require.True(t, s.Add(mkTask("task-1", "One", task.PriorityHigh, task.StatusPending, time.Now())))
	s.UpdateStatus("task-1", task.StatusDone)
	assert.Equal(t, 2, calls)

	// Rejected adds must not schedule a flush.
	s.Add(mkTask("task-1", "One", task.PriorityHigh, task.StatusPending, time.Now()))
	assert.Equal(t, 2, calls)
}

func TestReconcileDropsOrphanedTasks(t *testing.T) {
	s := newTestStore(t, 10)
	now := time.Now()

	withTicket := mkTask("task-1", "One", task.PriorityHigh, task.StatusPending, now)
	withTicket.Metadata.TicketID = "ticket-1"
	orphan := mkTask("task-2", "Two", task.PriorityHigh, task.StatusPending, now)
	orphan.Metadata.TicketID = "ticket-gone"
	noTicket := mkTask("task-3", "Three", task.PriorityHigh, task.StatusPending, now)

	require.True(t, s.Add(withTicket))
	require.True(t, s.Add(orphan))
	require.True(t, s.Add(noTicket))

	dir := ticket.NewMemoryDirectory()
	dir.Put("ticket-1")

	require.NoError(t, s.Reconcile(context.Background(), dir))

	_, ok := s.Get("task-1")
	assert.True(t, ok)
	_, ok = s.Get("task-2")
	assert.False(t, ok, "task with missing ticket should be dropped")
	_, ok = s.Get("task-3")
	assert.True(t, ok, "ticketless task is kept")
}

func TestReconcileNilDirectoryIsNoOp(t *testing.T) {
	s := newTestStore(t, 10)
	require.True(t, s.Add(mkTask("task-1", "One", task.PriorityHigh, task.StatusPending, time.Now())))
	require.NoError(t, s.Reconcile(context.Background(), nil))
	assert.Equal(t, 1, s.Len())
}
