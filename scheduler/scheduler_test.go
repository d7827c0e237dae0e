package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/evallog"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/scheduler"
)

func samples(n int) []dataset.Sample {
	out := make([]dataset.Sample, n)
	for i := range out {
		out[i] = dataset.Sample{ID: i}
	}
	return out
}

// failFirstN drives every item to success except the first n admitted
// samples (by id), which fail with a plain, non-limit error.
func failFirstN(n int) scheduler.SampleFunc {
	var failed int32
	return func(ctx context.Context, item scheduler.Item) (evallog.EvalSample, error) {
		id := item.Sample.ID.(int)
		if id < n {
			atomic.AddInt32(&failed, 1)
			return evallog.EvalSample{ID: id, Epoch: item.Epoch, Error: "boom"}, fmt.Errorf("sample %d: boom", id)
		}
		return evallog.EvalSample{ID: id, Epoch: item.Epoch, Completed: true}, nil
	}
}

func TestRunToleratesErrorsWithinFraction(t *testing.T) {
	sched := scheduler.New(scheduler.Config{
		MaxSamples:  10,
		FailOnError: scheduler.FailFraction(0.1),
	})
	items := sched.Items(samples(100))
	result := sched.Run(context.Background(), items, failFirstN(8))

	require.NoError(t, result.Err)
	assert.Equal(t, evallog.StatusSuccess, result.Status)
	assert.Len(t, result.Samples, 100)
}

func TestRunAbortsWhenFractionExceeded(t *testing.T) {
	sched := scheduler.New(scheduler.Config{
		MaxSamples:  1,
		FailOnError: scheduler.FailFraction(0.05),
	})
	items := sched.Items(samples(100))
	result := sched.Run(context.Background(), items, failFirstN(8))

	require.Error(t, result.Err)
	assert.True(t, errors.Is(result.Err, scheduler.ErrCancelled))
	assert.Equal(t, evallog.StatusError, result.Status)
	// admission stops once the run is cancelled, so not every item necessarily ran.
	assert.LessOrEqual(t, len(result.Samples), 100)
}

func TestRunDoesNotCountLimitExceededAsFailure(t *testing.T) {
	sched := scheduler.New(scheduler.Config{
		MaxSamples:  5,
		FailOnError: scheduler.FailAlways(),
	})
	items := sched.Items(samples(20))
	fn := func(ctx context.Context, item scheduler.Item) (evallog.EvalSample, error) {
		id := item.Sample.ID.(int)
		if id%2 == 0 {
			err := &limits.Exceeded{Which: limits.Message, Value: 10, Bound: 5}
			return evallog.EvalSample{ID: id, Epoch: item.Epoch, Limit: string(limits.Message)}, err
		}
		return evallog.EvalSample{ID: id, Epoch: item.Epoch, Completed: true}, nil
	}

	result := sched.Run(context.Background(), items, fn)

	require.NoError(t, result.Err)
	assert.Equal(t, evallog.StatusSuccess, result.Status)
	assert.Len(t, result.Samples, 20)
}

func TestItemsInterleaveEpochs(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Epochs: 2})
	items := sched.Items(samples(3))
	require.Len(t, items, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, items[i].Epoch)
	}
	for i := 3; i < 6; i++ {
		assert.Equal(t, 2, items[i].Epoch)
	}
}

func TestRunPreservesAdmissionOrder(t *testing.T) {
	sched := scheduler.New(scheduler.Config{MaxSamples: 8})
	items := sched.Items(samples(50))
	fn := func(ctx context.Context, item scheduler.Item) (evallog.EvalSample, error) {
		return evallog.EvalSample{ID: item.Sample.ID, Epoch: item.Epoch, Completed: true}, nil
	}
	result := sched.Run(context.Background(), items, fn)
	require.NoError(t, result.Err)
	for i, s := range result.Samples {
		assert.Equal(t, i, s.ID)
	}
}
