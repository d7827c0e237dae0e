package limits_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/limits"
)

func TestMessageLimitExceeded(t *testing.T) {
	tr := limits.New(limits.Config{Messages: 6}, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.AddMessages(1))
	}
	err := tr.AddMessages(1)
	require.NoError(t, err) // exactly at the bound is allowed (inclusive upper bound)
	err = tr.AddMessages(1)
	require.Error(t, err)
	exc, ok := limits.As(err)
	require.True(t, ok)
	assert.Equal(t, limits.Message, exc.Which)
}

func TestWorkingTimeExcludesReportedWaits(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := limits.New(limits.Config{Working: 5 * time.Second}, func() time.Time { return now })

	now = now.Add(10 * time.Second)
	tr.AddWait(8 * time.Second) // most of the elapsed time was a reported wait

	require.NoError(t, tr.CheckTime())
	snap := tr.Snapshot()
	assert.Equal(t, 10*time.Second, snap.TotalTime)
	assert.Equal(t, 2*time.Second, snap.WorkingTime)
}

func TestOperatorStopIsSticky(t *testing.T) {
	tr := limits.New(limits.Config{}, nil)
	require.NoError(t, tr.Exceeded())
	tr.StopOperator()
	err := tr.Exceeded()
	require.Error(t, err)
	exc, _ := limits.As(err)
	assert.Equal(t, limits.Operator, exc.Which)
	// idempotent: checking again still reports the same limit.
	err2 := tr.Exceeded()
	exc2, _ := limits.As(err2)
	assert.Equal(t, limits.Operator, exc2.Which)
}

func TestTokenLimitInclusiveBound(t *testing.T) {
	tr := limits.New(limits.Config{Tokens: 100}, nil)
	require.NoError(t, tr.AddTokens(100))
	err := tr.AddTokens(1)
	require.Error(t, err)
}
