// Package model defines the provider-agnostic contract between the engine
// and a model provider (spec §6 "Model provider (consumed)"). The engine
// only ever sees the Api interface; concrete providers live under
// modelproviders/.
package model

import (
	"context"
	"errors"

	"github.com/evalforge/evalforge/dataset"
)

// StopReason records why a generation stopped.
type StopReason string

const (
	// StopReasonStop indicates ordinary completion.
	StopReasonStop StopReason = "stop"
	// StopReasonMaxTokens indicates the requested output token cap was hit.
	StopReasonMaxTokens StopReason = "max_tokens"
	// StopReasonModelLength indicates the model's own context window overflowed.
	StopReasonModelLength StopReason = "model_length"
	// StopReasonToolCalls indicates the model stopped to request tool calls.
	StopReasonToolCalls StopReason = "tool_calls"
	// StopReasonContentFilter indicates a provider content filter stopped generation.
	StopReasonContentFilter StopReason = "content_filter"
	// StopReasonUnknown covers provider stop reasons with no defined mapping.
	StopReasonUnknown StopReason = "unknown"
)

type (
	// TokenUsage tracks token counts for one model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		ReasoningTokens  int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Choice is one candidate completion returned by the model. The engine
	// takes Choices[0] to drive the agent loop; the rest are retained for
	// observers (spec §4.2 tie-break rule).
	Choice struct {
		Message    dataset.ChatMessage
		StopReason StopReason
		Logprobs   any
	}

	// ToolDefinition describes one tool exposed to the model for a single
	// generate call.
	ToolDefinition struct {
		Name        string
		Description string
		// Parameters is a JSON-Schema-shaped description of the tool's
		// input payload (name -> {type, description, required, default}).
		Parameters map[string]any
	}

	// ToolChoiceMode controls how the model may use tools for one request.
	ToolChoiceMode string

	// ToolChoice configures tool-use behavior for a Request.
	ToolChoice struct {
		Mode ToolChoiceMode
		Name string // meaningful only when Mode == ToolChoiceModeTool
	}

	// Config carries generation parameters threaded through from task
	// configuration: temperature, max tokens, and stop sequences.
	Config struct {
		Temperature float32
		MaxTokens   int
		Stop        []string
	}

	// Output is the result of one model generation call (spec §3
	// "ModelOutput"). Invariant: if Choices[0].StopReason is
	// StopReasonToolCalls, Choices[0].Message.ToolCalls has length >= 1.
	Output struct {
		Model     string
		Choices   []Choice
		Usage     TokenUsage
		TotalTime float64 // seconds
		Working   float64 // seconds, excludes reported waits
		CacheHit  bool
		Error     string
	}

	// Api is the abstract provider contract the engine consumes (spec §6).
	// Concrete adapters (modelproviders/anthropic, /openai, /bedrock)
	// implement this interface; the engine and modelgateway package never
	// import a provider SDK directly.
	Api interface {
		// Generate performs one model invocation.
		Generate(ctx context.Context, messages []dataset.ChatMessage, tools []ToolDefinition, choice *ToolChoice, cfg Config) (*Output, error)

		// MaxTokens reports the provider's output token ceiling.
		MaxTokens() int

		// MaxConnections reports the provider's recommended concurrency cap.
		MaxConnections() int

		// IsRetryable classifies an error returned by Generate as transient.
		IsRetryable(err error) bool

		// ConnectionKey optionally scopes connection pools per account/tenant.
		// An empty string means "use the default pool".
		ConnectionKey(cfg Config) string
	}
)

const (
	// ToolChoiceModeAuto lets the provider decide whether to call tools.
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	// ToolChoiceModeNone disables tool use for the request.
	ToolChoiceModeNone ToolChoiceMode = "none"
	// ToolChoiceModeAny forces the model to request at least one tool.
	ToolChoiceModeAny ToolChoiceMode = "any"
	// ToolChoiceModeTool forces the model to request a specific named tool.
	ToolChoiceModeTool ToolChoiceMode = "tool"
)

// ErrRateLimited indicates a provider rejected a request due to rate
// limiting after the gateway exhausted its retry budget.
var ErrRateLimited = errors.New("model: rate limited")

// ErrNonTransient wraps a provider error that the gateway must not retry
// (e.g. HTTP 400 invalid request, authentication failures).
var ErrNonTransient = errors.New("model: non-transient provider error")
