package store

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSaverCoalescesBursts(t *testing.T) {
	var writes atomic.Int32
	s := NewSaver(func() error {
		writes.Add(1)
		return nil
	}, 20*time.Millisecond, zap.NewNop())
	defer s.Close()

	// A burst of schedules inside one window produces a single write.
	for i := 0; i < 10; i++ {
		s.Schedule()
	}

	require.Eventually(t, func() bool {
		return writes.Load() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), writes.Load())
}

func TestSaverSchedulesAgainAfterFlush(t *testing.T) {
	var writes atomic.Int32
	s := NewSaver(func() error {
		writes.Add(1)
		return nil
	}, 10*time.Millisecond, zap.NewNop())
	defer s.Close()

	s.Schedule()
	require.Eventually(t, func() bool {
		return writes.Load() == 1
	}, time.Second, 5*time.Millisecond)

	s.Schedule()
	require.Eventually(t, func() bool {
		return writes.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSaverFlushIsSynchronous(t *testing.T) {
	var writes atomic.Int32
	s := NewSaver(func() error {
		writes.Add(1)
		return nil
	}, time.Hour, zap.NewNop())
	defer s.Close()

	s.Schedule()
	s.Flush()
	assert.Equal(t, int32(1), writes.Load())
}

func TestSaverCloseFlushesAndStops(t *testing.T) {
	var writes atomic.Int32
	s := NewSaver(func() error {
		writes.Add(1)
		return nil
	}, time.Hour, zap.NewNop())

	s.Schedule()
	s.Close()
	assert.Equal(t, int32(1), writes.Load())

	// Schedule after close is a no-op.
	s.Schedule()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), writes.Load())
}

func TestSaverRetriesThenGivesUp(t *testing.T) {
	var attempts atomic.Int32
	s := NewSaver(func() error {
		attempts.Add(1)
		return errors.New("disk full")
	}, time.Hour, zap.NewNop())

	// A persistently failing snapshot is retried a bounded number of times
	// and then dropped without surfacing an error.
	s.Flush()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSaverRecoversMidRetry(t *testing.T) {
	var attempts atomic.Int32
	s := NewSaver(func() error {
		if attempts.Add(1) < 2 {
			return errors.New("transient")
		}
		return nil
	}, time.Hour, zap.NewNop())

	s.Flush()
	assert.Equal(t, int32(2), attempts.Load())
}
