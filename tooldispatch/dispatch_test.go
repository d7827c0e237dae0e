package tooldispatch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/store"
	"github.com/evalforge/evalforge/tooldispatch"
)

type echoTool struct {
	tooldispatch.BaseTool
	name   string
	delay  time.Duration
	serial bool
}

func (t echoTool) Name() string                      { return t.name }
func (t echoTool) Description() string                { return "echoes its single arg" }
func (t echoTool) ParameterSchema() map[string]any    { return nil }
func (t echoTool) Parallel() bool                     { return !t.serial }
func (t echoTool) Execute(ctx context.Context, args map[string]any, state *store.Store) tooldispatch.Result {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	v, _ := args["v"].(string)
	return tooldispatch.Result{Text: t.name + ":" + v}
}

func TestDispatchPreservesCallOrderAcrossConcurrentCompletion(t *testing.T) {
	tools := []tooldispatch.Tool{
		echoTool{name: "slow", delay: 30 * time.Millisecond},
		echoTool{name: "fast"},
	}
	d := tooldispatch.New(tools, nil)
	calls := []dataset.ToolCall{
		{ID: "1", Function: "slow", Arguments: map[string]any{"v": "a"}},
		{ID: "2", Function: "fast", Arguments: map[string]any{"v": "b"}},
	}
	msgs := d.Dispatch(context.Background(), calls, store.New())
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ToolCallID)
	assert.Equal(t, "slow:a", msgs[0].Text)
	assert.Equal(t, "2", msgs[1].ToolCallID)
	assert.Equal(t, "fast:b", msgs[1].Text)
}

func TestDispatchSerialisesNonParallelToolCalls(t *testing.T) {
	var running int32
	var maxObserved int32
	tool := recordingTool{name: "serial", running: &running, max: &maxObserved}
	d := tooldispatch.New([]tooldispatch.Tool{tool}, nil)
	calls := []dataset.ToolCall{
		{ID: "1", Function: "serial"},
		{ID: "2", Function: "serial"},
		{ID: "3", Function: "serial"},
	}
	msgs := d.Dispatch(context.Background(), calls, store.New())
	require.Len(t, msgs, 3)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(1))
}

type recordingTool struct {
	tooldispatch.BaseTool
	name    string
	running *int32
	max     *int32
}

func (t recordingTool) Name() string                   { return t.name }
func (t recordingTool) Description() string             { return "" }
func (t recordingTool) ParameterSchema() map[string]any { return nil }
func (t recordingTool) Parallel() bool                  { return false }
func (t recordingTool) Execute(ctx context.Context, args map[string]any, state *store.Store) tooldispatch.Result {
	cur := atomic.AddInt32(t.running, 1)
	for {
		old := atomic.LoadInt32(t.max)
		if cur <= old || atomic.CompareAndSwapInt32(t.max, old, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(t.running, -1)
	return tooldispatch.Result{Text: "ok"}
}

func TestDispatchRejectionSurfacesToolApproval(t *testing.T) {
	tool := echoTool{name: "danger"}
	policy := tooldispatch.PolicyFunc(func(ctx context.Context, toolName string, args map[string]any) (tooldispatch.Decision, error) {
		return tooldispatch.Decision{Action: tooldispatch.ActionReject, Reason: "not allowed"}, nil
	})
	d := tooldispatch.New([]tooldispatch.Tool{tool}, policy)
	msgs := d.Dispatch(context.Background(), []dataset.ToolCall{{ID: "1", Function: "danger"}}, store.New())
	require.Len(t, msgs, 1)
	assert.Equal(t, dataset.ErrorKindToolApproval, msgs[0].ToolErrorKind)
}

func TestDispatchUnknownToolProducesToolError(t *testing.T) {
	d := tooldispatch.New(nil, nil)
	msgs := d.Dispatch(context.Background(), []dataset.ToolCall{{ID: "1", Function: "ghost"}}, store.New())
	require.Len(t, msgs, 1)
	assert.Equal(t, dataset.ErrorKindToolError, msgs[0].ToolErrorKind)
}
