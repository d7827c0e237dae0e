// Package transcript implements the ordered, append-only per-sample event
// stream described in spec §3 "Event" and §4.7 "Log recorder": a tagged
// variant of event kinds, each timestamped and carrying a monotonic span id
// plus an optional parent span id so spans nest strictly within a sample
// (spec invariant 3).
package transcript

import (
	"time"

	"github.com/evalforge/evalforge/store"
)

// Kind identifies which Event variant is populated.
type Kind string

const (
	// KindSampleInit marks the start of a sample's execution.
	KindSampleInit Kind = "sample_init"
	// KindSampleLimit marks a limit breach that terminated the sample.
	KindSampleLimit Kind = "sample_limit"
	// KindState records a Store mutation delta.
	KindState Kind = "state"
	// KindModel records a model call and its response.
	KindModel Kind = "model"
	// KindTool records a tool call and its result.
	KindTool Kind = "tool"
	// KindApproval records an approval policy decision for a tool call.
	KindApproval Kind = "approval"
	// KindLogger records a human-readable log line emitted by a solver/tool.
	KindLogger Kind = "logger"
	// KindError records a non-fatal error surfaced during execution.
	KindError Kind = "error"
	// KindInfo records an informational annotation.
	KindInfo Kind = "info"
	// KindSpanBegin marks the start of a nested unit of work (solver, agent, scorer).
	KindSpanBegin Kind = "span_begin"
	// KindSpanEnd marks the end of a nested unit of work.
	KindSpanEnd Kind = "span_end"
	// KindSubtask records a nested subtask invocation (e.g. agent-as-tool).
	KindSubtask Kind = "subtask"
	// KindStepBegin marks the start of one solver step in the chain.
	KindStepBegin Kind = "step_begin"
	// KindStepEnd marks the end of one solver step in the chain.
	KindStepEnd Kind = "step_end"
)

// SpanKind classifies the unit of work a Span event brackets.
type SpanKind string

const (
	// SpanKindSolver brackets one solver step in the chain.
	SpanKindSolver SpanKind = "solver"
	// SpanKindAgent brackets one generate/tool iteration of the agent loop.
	SpanKindAgent SpanKind = "agent"
	// SpanKindScorer brackets one scorer invocation.
	SpanKindScorer SpanKind = "scorer"
	// SpanKindTool brackets one tool execution.
	SpanKindTool SpanKind = "tool"
)

type (
	// ModelUsage mirrors model.TokenUsage without importing the model
	// package, keeping transcript a leaf dependency the way the teacher's
	// transcript.Ledger avoids importing provider SDK types.
	ModelUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// ModelEvent captures one generate call and its response.
	ModelEvent struct {
		Model      string
		StopReason string
		Usage      ModelUsage
		CacheHit   bool
		Error      string
	}

	// ToolEvent captures one tool call and its result.
	ToolEvent struct {
		ToolCallID string
		Name       string
		Arguments  map[string]any
		Result     any
		IsError    bool
		ErrorKind  string
	}

	// ApprovalEvent captures one approval policy decision.
	ApprovalEvent struct {
		ToolCallID string
		Verdict    string // approve | reject | escalate | modify
		Reason     string
	}

	// StateEvent captures a single Store mutation.
	StateEvent struct {
		Key   string
		Value store.Value
		Op    string // set | delete
	}

	// LimitEvent captures which limit was crossed.
	LimitEvent struct {
		Which string // token | message | time | working | operator | context
		Value float64
		Bound float64
	}

	// Event is one entry in a sample's transcript. Exactly the fields
	// matching Kind are meaningful; the rest are zero.
	Event struct {
		Kind      Kind
		Timestamp time.Time
		SpanID    int64
		ParentID  int64 // zero when this event has no enclosing span

		SpanKind SpanKind // populated for KindSpanBegin/KindSpanEnd
		Message  string   // populated for KindLogger/KindError/KindInfo

		Model    *ModelEvent
		Tool     *ToolEvent
		Approval *ApprovalEvent
		State    *StateEvent
		Limit    *LimitEvent
	}
)
