package modelgateway_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/modelgateway"
)

// fakeClock lets retry tests avoid real sleeps while still advancing a
// virtual clock so timeout/backoff math is exercised deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type errRetryable struct{}

func (errRetryable) Error() string { return "429 too many requests" }

type fakeProvider struct {
	mu        sync.Mutex
	failTimes int
	calls     int
	output    *model.Output
}

func (p *fakeProvider) Generate(ctx context.Context, messages []dataset.ChatMessage, tools []model.ToolDefinition, choice *model.ToolChoice, cfg model.Config) (*model.Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failTimes {
		return nil, errRetryable{}
	}
	return p.output, nil
}

func (p *fakeProvider) MaxTokens() int      { return 4096 }
func (p *fakeProvider) MaxConnections() int { return 4 }
func (p *fakeProvider) IsRetryable(err error) bool {
	var r errRetryable
	return errors.As(err, &r)
}
func (p *fakeProvider) ConnectionKey(model.Config) string { return "" }

func TestGatewayRetriesTransientThenSucceeds(t *testing.T) {
	provider := &fakeProvider{failTimes: 2, output: &model.Output{Model: "m", Usage: model.TokenUsage{TotalTokens: 10}}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	gw := modelgateway.New(provider, 1, modelgateway.WithClock(clock))

	tracker := limits.New(limits.Config{}, clock.Now)
	out, err := gw.Generate(context.Background(), modelgateway.Request{ModelID: "m"}, tracker)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.NotNil(t, out)

	snap := tracker.Snapshot()
	assert.Greater(t, snap.TotalTime, time.Duration(0))
	// Two retries each slept a full-jitter backoff wait; those waits must not
	// count as working time.
	assert.Less(t, snap.WorkingTime, snap.TotalTime)
}

func TestGatewayGivesUpAfterMaxRetries(t *testing.T) {
	provider := &fakeProvider{failTimes: 1000}
	clock := &fakeClock{now: time.Unix(0, 0)}
	gw := modelgateway.New(provider, 1,
		modelgateway.WithClock(clock),
		modelgateway.WithRetryPolicy(modelgateway.RetryPolicy{
			BaseDelay:  time.Millisecond,
			MaxDelay:   time.Millisecond,
			Timeout:    time.Hour,
			MaxRetries: 3,
		}),
	)
	_, err := gw.Generate(context.Background(), modelgateway.Request{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, 4, provider.calls) // initial attempt + 3 retries
}

func TestGatewayCacheHitSkipsProviderAndReportsZeroUsage(t *testing.T) {
	provider := &fakeProvider{output: &model.Output{Model: "m", Usage: model.TokenUsage{TotalTokens: 42}}}
	cache := modelgateway.NewInMemoryCache()
	gw := modelgateway.New(provider, 1, modelgateway.WithCache(cache))

	req := modelgateway.Request{ModelID: "m", Messages: []dataset.ChatMessage{{Role: dataset.RoleUser, Text: "hi"}}}

	out1, err := gw.Generate(context.Background(), req, nil)
	require.NoError(t, err)
	assert.False(t, out1.CacheHit)
	assert.Equal(t, 1, provider.calls)

	out2, err := gw.Generate(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, out2.CacheHit)
	assert.Equal(t, 0, out2.Usage.TotalTokens)
	assert.Equal(t, 1, provider.calls, "cache hit must not invoke the provider again")
}

func TestFingerprintStableAcrossEquivalentRequests(t *testing.T) {
	req := modelgateway.Request{
		ModelID:  "m",
		Messages: []dataset.ChatMessage{{Role: dataset.RoleUser, Text: "hello"}},
	}
	req2 := req
	req2.Messages = []dataset.ChatMessage{{Role: dataset.RoleUser, Text: "hello"}}
	assert.Equal(t, modelgateway.Fingerprint(req), modelgateway.Fingerprint(req2))

	req3 := req
	req3.Messages = []dataset.ChatMessage{{Role: dataset.RoleUser, Text: "different"}}
	assert.NotEqual(t, modelgateway.Fingerprint(req), modelgateway.Fingerprint(req3))
}
