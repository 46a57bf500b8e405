package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/gate"
	"github.com/fyrsmithlabs/dispatchd/internal/protocol"
	"github.com/fyrsmithlabs/dispatchd/internal/scheduler"
	"github.com/fyrsmithlabs/dispatchd/internal/store"
)

func newTestService(t *testing.T) *protocol.Service {
	t.Helper()
	st, err := store.New(store.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	sched := scheduler.New(st)
	g, err := gate.New(nil, st, sched, zap.NewNop())
	require.NoError(t, err)
	svc, err := protocol.NewService(st, sched, g, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil)
	require.Error(t, err)
}

func TestNewServerRegistersTools(t *testing.T) {
	s, err := NewServer(nil, newTestService(t))
	require.NoError(t, err)

	reg := s.Registry()
	for _, name := range []string{
		"fetch_next_task",
		"report_task_status",
		"report_observation",
		"report_test_failure",
		"report_verification_result",
	} {
		_, ok := reg.Get(name)
		assert.True(t, ok, "tool %s should be registered", name)
	}
	assert.Len(t, reg.List(), 5)

	assert.Len(t, reg.ListByCategory(CategoryQueue), 1)
	assert.Len(t, reg.ListByCategory(CategoryReporting), 4)
}
