package retryctl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/evallog"
	"github.com/evalforge/evalforge/retryctl"
	"github.com/evalforge/evalforge/scheduler"
)

func items(n int) []scheduler.Item {
	out := make([]scheduler.Item, n)
	for i := range out {
		out[i] = scheduler.Item{Sample: dataset.Sample{ID: i}, Epoch: 1}
	}
	return out
}

func TestResolveFiltersCompletedSamples(t *testing.T) {
	var samples []evallog.EvalSample
	for i := 0; i < 70; i++ {
		samples = append(samples, evallog.EvalSample{ID: i, Epoch: 1, Completed: true})
	}
	doc := evallog.Document{
		Status:  evallog.StatusError,
		Eval:    evallog.EvalHeader{TaskID: "task-123"},
		Samples: samples,
	}

	plan, err := retryctl.ResolveDocument(doc, items(100))
	require.NoError(t, err)
	assert.Empty(t, plan.Warning)
	assert.Equal(t, "task-123", plan.TaskID)
	assert.Len(t, plan.Completed, 70)
	assert.Len(t, plan.Remaining, 30)
	for _, item := range plan.Remaining {
		assert.GreaterOrEqual(t, item.Sample.ID.(int), 70)
	}
}

func TestResolveRejectsAlreadySucceeded(t *testing.T) {
	doc := evallog.Document{Status: evallog.StatusSuccess}
	_, err := retryctl.ResolveDocument(doc, items(10))
	require.ErrorIs(t, err, retryctl.ErrAlreadySucceeded)
}

func TestResolveDisablesReuseOnShuffle(t *testing.T) {
	doc := evallog.Document{
		Status: evallog.StatusError,
		Eval:   evallog.EvalHeader{Dataset: evallog.DatasetSummary{Shuffled: true}},
	}
	plan, err := retryctl.ResolveDocument(doc, items(10))
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Warning)
	assert.Len(t, plan.Remaining, 10)
	assert.Empty(t, plan.Completed)
}

func TestMergePreservesAdmissionOrder(t *testing.T) {
	all := items(5)
	completed := []evallog.EvalSample{
		{ID: 0, Epoch: 1, Completed: true},
		{ID: 1, Epoch: 1, Completed: true},
	}
	fresh := []evallog.EvalSample{
		{ID: 2, Epoch: 1, Completed: true},
		{ID: 3, Epoch: 1, Completed: true},
		{ID: 4, Epoch: 1, Completed: true},
	}
	merged := retryctl.Merge(all, completed, fresh)
	require.Len(t, merged, 5)
	for i, s := range merged {
		assert.Equal(t, i, s.ID)
	}
}
