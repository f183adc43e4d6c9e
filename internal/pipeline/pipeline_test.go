package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
)

func TestExecute_RunsStagesInOrder(t *testing.T) {
	runner := NewRunner(common.GetLogger())

	var order []string
	stages := []Stage{
		{Name: "first", Run: func(ctx context.Context) error {
			order = append(order, "first")
			return nil
		}},
		{Name: "second", Run: func(ctx context.Context) error {
			order = append(order, "second")
			return nil
		}},
		{Name: "third", Run: func(ctx context.Context) error {
			order = append(order, "third")
			return nil
		}},
	}

	var checkpoints []int
	err := runner.Execute(context.Background(), stages, func(progress int, task string) {
		checkpoints = append(checkpoints, progress)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, []int{0, 33, 66, 100}, checkpoints)
}

func TestExecute_StageErrorAbortsRun(t *testing.T) {
	runner := NewRunner(common.GetLogger())

	stageErr := errors.New("boom")
	thirdRan := false
	stages := []Stage{
		{Name: "ok", Run: func(ctx context.Context) error { return nil }},
		{Name: "fails", Run: func(ctx context.Context) error { return stageErr }},
		{Name: "never", Run: func(ctx context.Context) error {
			thirdRan = true
			return nil
		}},
	}

	err := runner.Execute(context.Background(), stages, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, stageErr)
	assert.Contains(t, err.Error(), "stage fails")
	assert.False(t, thirdRan)
}

func TestExecute_CancelledContextReturnsErrCancelled(t *testing.T) {
	runner := NewRunner(common.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	secondRan := false
	stages := []Stage{
		{Name: "cancels", Run: func(ctx context.Context) error {
			cancel()
			return nil
		}},
		{Name: "never", Run: func(ctx context.Context) error {
			secondRan = true
			return nil
		}},
	}

	err := runner.Execute(ctx, stages, nil)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, secondRan)
}

func TestExecute_ContextCanceledErrorMapsToErrCancelled(t *testing.T) {
	runner := NewRunner(common.GetLogger())

	stages := []Stage{
		{Name: "observes-cancel", Run: func(ctx context.Context) error {
			return context.Canceled
		}},
	}

	err := runner.Execute(context.Background(), stages, nil)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestFanOut_AllTasksSucceed(t *testing.T) {
	var ran int32
	tasks := []func(ctx context.Context) error{
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
	}

	err := FanOut(context.Background(), tasks...)

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestFanOut_FirstErrorCancelsSiblingsButWaitsForThem(t *testing.T) {
	taskErr := errors.New("extract failed")
	var sawCancel int32
	var exited int32

	tasks := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			defer atomic.AddInt32(&exited, 1)
			return taskErr
		},
		func(ctx context.Context) error {
			defer atomic.AddInt32(&exited, 1)
			select {
			case <-ctx.Done():
				atomic.AddInt32(&sawCancel, 1)
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}

	err := FanOut(context.Background(), tasks...)

	assert.ErrorIs(t, err, taskErr)
	// The join must not return until every task has exited
	assert.Equal(t, int32(2), atomic.LoadInt32(&exited))
	assert.Equal(t, int32(1), atomic.LoadInt32(&sawCancel))
}

func TestFanOut_CallerCancelWaitsForAllTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	var exited int32

	waiter := func(ctx context.Context) error {
		defer atomic.AddInt32(&exited, 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}

	tasks := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			defer atomic.AddInt32(&exited, 1)
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		waiter,
		waiter,
	}

	go func() {
		<-started
		cancel()
	}()

	err := FanOut(ctx, tasks...)

	assert.ErrorIs(t, err, context.Canceled)
	// The join must not return until every in-flight task has stopped
	assert.Equal(t, int32(3), atomic.LoadInt32(&exited))
}

func TestFanOut_NoTasks(t *testing.T) {
	assert.NoError(t, FanOut(context.Background()))
}
