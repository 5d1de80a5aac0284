package race

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownTicksDownAndPinsAtZero(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ticks := make(chan time.Duration, 16)
	done := make(chan bool, 1)

	cd := NewCountdown(fc, fc.Now(), 3*time.Second,
		func(remaining time.Duration) { ticks <- remaining },
		func(early bool) { done <- early },
		func() bool { return false },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cd.Run(ctx)

	fc.BlockUntil(1)
	fc.Advance(PollInterval)
	assert.Equal(t, 2*time.Second, <-ticks)

	fc.BlockUntil(1)
	fc.Advance(PollInterval)
	assert.Equal(t, 1*time.Second, <-ticks)

	fc.BlockUntil(1)
	fc.Advance(PollInterval)
	assert.Equal(t, time.Duration(0), <-ticks)
	assert.False(t, <-done, "expiry is not an early stop")
}

func TestCountdownStopsEarlyWhenAllTasksFinish(t *testing.T) {
	fc := clockwork.NewFakeClock()
	done := make(chan bool, 1)
	var finished atomic.Bool

	cd := NewCountdown(fc, fc.Now(), time.Hour,
		func(time.Duration) {},
		func(early bool) { done <- early },
		finished.Load,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cd.Run(ctx)

	finished.Store(true)
	fc.BlockUntil(1)
	fc.Advance(PollInterval)
	assert.True(t, <-done, "all tasks finished should stop the poll early")
}

func TestCountdownCancel(t *testing.T) {
	fc := clockwork.NewFakeClock()
	stopped := make(chan struct{})

	cd := NewCountdown(fc, fc.Now(), time.Hour,
		func(time.Duration) {},
		func(bool) { t.Error("onDone must not fire on cancellation") },
		func() bool { return false },
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		cd.Run(ctx)
		close(stopped)
	}()

	fc.BlockUntil(1)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop after cancel")
	}
}

func TestRunIgnitionSequence(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var steps []int
	stepCh := make(chan int, IgnitionSteps)
	ignDone := make(chan error, 1)

	go func() {
		ignDone <- RunIgnition(context.Background(), fc, func(step int) { stepCh <- step })
	}()

	for i := 1; i <= IgnitionSteps; i++ {
		steps = append(steps, <-stepCh)
		fc.BlockUntil(1)
		fc.Advance(IgnitionStepDelay)
	}
	fc.BlockUntil(1)
	fc.Advance(IgnitionHold)

	require.NoError(t, <-ignDone)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, steps)
}

func TestRunIgnitionCancelled(t *testing.T) {
	fc := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	ignDone := make(chan error, 1)

	go func() {
		ignDone <- RunIgnition(ctx, fc, func(int) {})
	}()

	fc.BlockUntil(1)
	cancel()
	assert.ErrorIs(t, <-ignDone, context.Canceled)
}
