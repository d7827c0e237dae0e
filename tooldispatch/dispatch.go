package tooldispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/store"
)

// Dispatcher resolves tool calls against a fixed set of registered tools
// and runs them per spec §4.5.
type Dispatcher struct {
	tools  map[string]Tool
	policy Policy
}

// New constructs a Dispatcher. policy defaults to AllowAll when nil.
func New(tools []Tool, policy Policy) *Dispatcher {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	if policy == nil {
		policy = AllowAll{}
	}
	return &Dispatcher{tools: m, policy: policy}
}

// outcome is one call's resolved tool-result message, tagged with its
// original position so results can be reassembled in call order.
type outcome struct {
	index   int
	message dataset.ChatMessage
}

// Dispatch runs every call in msg.ToolCalls and returns one tool-role
// ChatMessage per call, in call order (spec §4.5 step 4 and invariant 9
// "Parallel tool order"). Calls targeting the same parallel=true tool, or
// different parallel-safe tools, run concurrently; calls targeting a
// parallel=false tool are serialised relative to each other on their own
// lane but still run concurrently with other lanes.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []dataset.ToolCall, state *store.Store) []dataset.ChatMessage {
	results := make([]outcome, len(calls))
	var wg sync.WaitGroup

	serialLanes := make(map[string][]int) // tool name -> call indices, in order
	for i, call := range calls {
		tool, ok := d.tools[call.Function]
		if ok && !tool.Parallel() {
			serialLanes[call.Function] = append(serialLanes[call.Function], i)
			continue
		}
		wg.Add(1)
		go func(i int, call dataset.ToolCall) {
			defer wg.Done()
			results[i] = outcome{index: i, message: d.runOne(ctx, call, state)}
		}(i, call)
	}

	for _, indices := range serialLanes {
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			for _, i := range indices {
				results[i] = outcome{index: i, message: d.runOne(ctx, calls[i], state)}
			}
		}(indices)
	}

	wg.Wait()

	out := make([]dataset.ChatMessage, len(results))
	for i, r := range results {
		out[i] = r.message
	}
	return out
}

// runOne resolves, validates, seeks approval for, and executes a single
// call, producing the tool-result ChatMessage tagged with its ToolCallID.
func (d *Dispatcher) runOne(ctx context.Context, call dataset.ToolCall, state *store.Store) dataset.ChatMessage {
	tool, ok := d.tools[call.Function]
	if !ok {
		return errMessage(call.ID, ToolErr(fmt.Sprintf("unknown tool %q", call.Function)))
	}

	if call.ParseError != "" {
		return errMessage(call.ID, ToolParsing(call.ParseError))
	}
	if err := validateArgs(tool.ParameterSchema(), call.Arguments); err != nil {
		return errMessage(call.ID, ToolParsing(err.Error()))
	}

	args := call.Arguments
	decision, err := d.policy.Review(ctx, call.Function, args)
	if err != nil {
		return errMessage(call.ID, ToolErr(err.Error()))
	}
	switch decision.Action {
	case ActionReject:
		reason := decision.Reason
		if reason == "" {
			reason = "tool call rejected by approval policy"
		}
		return errMessage(call.ID, ToolApproval(reason))
	case ActionModify:
		args = decision.Args
	}

	res := tool.Execute(ctx, args, state)
	if res.Err != nil {
		return errMessage(call.ID, res.Err)
	}
	return dataset.ChatMessage{
		Role:       dataset.RoleTool,
		Text:       res.Text,
		Parts:      res.Parts,
		ToolCallID: call.ID,
	}
}

func errMessage(toolCallID string, err *Error) dataset.ChatMessage {
	return dataset.ChatMessage{
		Role:          dataset.RoleTool,
		ToolCallID:    toolCallID,
		ToolErrorKind: err.Kind,
		ToolErrorText: err.Message,
	}
}
