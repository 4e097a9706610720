package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterAndRunNow(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	var calls int32

	require.NoError(t, m.Register("purge", "0 */30 * * * *", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	require.NoError(t, m.RunNow(context.Background(), "purge"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.Error(t, m.Register("purge", "@hourly", func(context.Context) error { return nil }))
	assert.Error(t, m.RunNow(context.Background(), "missing"))
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	m := NewManager(zap.NewNop(), 0)
	err := m.Register("broken", "every tuesday", func(context.Context) error { return nil })
	assert.Error(t, err)

	// A rejected job does not reserve its name.
	assert.NoError(t, m.Register("broken", "@every 1h", func(context.Context) error { return nil }))
}

func TestRunNowReturnsJobError(t *testing.T) {
	m := NewManager(zap.NewNop(), 0)
	boom := errors.New("boom")
	require.NoError(t, m.Register("summary", "@hourly", func(context.Context) error { return boom }))

	assert.ErrorIs(t, m.RunNow(context.Background(), "summary"), boom)
}

func TestScheduledJobFires(t *testing.T) {
	m := NewManager(zap.NewNop(), 0)
	var calls int32
	require.NoError(t, m.Register("tick", "* * * * * *", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	assert.False(t, m.Next("tick").IsZero())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 }, 3*time.Second, 50*time.Millisecond)
	m.Stop()
	m.Stop()
}
