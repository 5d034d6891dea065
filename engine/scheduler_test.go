package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerUnboundedWhenZero(t *testing.T) {
	s := NewScheduler(0)
	require.NoError(t, s.Acquire(context.Background()))
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()
	s.Release()
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	s := NewScheduler(1)
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Acquire(ctx)
	assert.Error(t, err, "second acquire should block until the first is released")

	s.Release()
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()
}

func TestSchedulerAcquireRespectsCancelledContext(t *testing.T) {
	s := NewScheduler(1)
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
