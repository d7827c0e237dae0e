// Package dataset defines the input data model evaluated by the engine: a
// Sample is one dataset row, and a ChatMessage is one turn of a chat-shaped
// input or transcript. Types here are intentionally immutable once built;
// the engine never mutates a Sample after it is admitted by the scheduler.
package dataset

// Role identifies the speaker of a ChatMessage.
type Role string

const (
	// RoleSystem identifies a system message.
	RoleSystem Role = "system"
	// RoleUser identifies a user message.
	RoleUser Role = "user"
	// RoleAssistant identifies an assistant message.
	RoleAssistant Role = "assistant"
	// RoleTool identifies a tool-result message.
	RoleTool Role = "tool"
)

type (
	// Part is a marker interface implemented by every typed content block a
	// ChatMessage may carry. Concrete implementations capture text, image,
	// audio, video, and reasoning content.
	Part interface {
		isPart()
	}

	// TextPart is plain text content.
	TextPart struct {
		Text string
	}

	// ImagePart carries inline or referenced image content.
	ImagePart struct {
		// MediaType is the IANA media type, e.g. "image/png".
		MediaType string
		// Bytes carries inline content; mutually exclusive with URI.
		Bytes []byte
		// URI references external content when the image is not inlined.
		URI string
	}

	// AudioPart carries inline or referenced audio content.
	AudioPart struct {
		MediaType string
		Bytes     []byte
		URI       string
	}

	// VideoPart carries inline or referenced video content.
	VideoPart struct {
		MediaType string
		Bytes     []byte
		URI       string
	}

	// ReasoningPart carries model-issued reasoning/thinking content attached
	// to a transcript message (e.g., replayed from a prior turn).
	ReasoningPart struct {
		Text string
	}

	// ToolCall is a single tool invocation requested by an assistant message.
	ToolCall struct {
		// ID correlates this call to its ToolResult.
		ID string
		// Function is the tool name as requested by the model.
		Function string
		// Arguments is the canonical JSON arguments object.
		Arguments map[string]any
		// ParseError is set when the model emitted arguments that failed to
		// parse as JSON or failed schema validation.
		ParseError string
	}

	// ErrorKind enumerates the expected (non-fatal) tool error kinds that may
	// be attached to a ChatMessage with RoleTool (mirrors spec §4.5).
	ErrorKind string

	// ChatMessage is one message in a conversation. Every message has a
	// Role, an optional Source tag (who/what produced it, for provenance),
	// and content that is either a flat Text string or an ordered sequence
	// of typed Parts. Assistant messages may additionally carry tool calls;
	// tool messages carry the originating ToolCallID.
	ChatMessage struct {
		Role Role
		// Source is an optional free-form provenance tag (e.g. "solver:use_tools").
		Source string

		// Text is the flat-text form of the content. Exactly one of Text or
		// Parts should be populated; Parts takes precedence when non-empty.
		Text string
		// Parts is the structured form of the content.
		Parts []Part

		// ToolCalls lists tool invocations requested by this assistant message.
		ToolCalls []ToolCall

		// ToolCallID identifies the tool call this message answers. Only
		// set when Role == RoleTool.
		ToolCallID string
		// ToolErrorKind is set when this tool message reports an expected
		// tool failure rather than a successful result.
		ToolErrorKind ErrorKind
		// ToolErrorText carries the human-readable error text when
		// ToolErrorKind is set.
		ToolErrorText string
	}
)

const (
	// ErrorKindTimeout indicates a tool call exceeded its timeout.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindPermission indicates a tool call was denied by policy.
	ErrorKindPermission ErrorKind = "permission"
	// ErrorKindUnicodeDecode indicates tool output could not be decoded as text.
	ErrorKindUnicodeDecode ErrorKind = "unicode_decode"
	// ErrorKindOutputLimitExceeded indicates tool output exceeded a size cap.
	ErrorKindOutputLimitExceeded ErrorKind = "output_limit_exceeded"
	// ErrorKindToolError indicates the tool implementation itself failed.
	ErrorKindToolError ErrorKind = "tool_error"
	// ErrorKindToolParsing indicates the model's arguments failed to parse
	// or validate against the tool's schema.
	ErrorKindToolParsing ErrorKind = "tool_parsing"
	// ErrorKindToolApproval indicates an approval policy rejected the call.
	ErrorKindToolApproval ErrorKind = "tool_approval"
)

func (TextPart) isPart()      {}
func (ImagePart) isPart()     {}
func (AudioPart) isPart()     {}
func (VideoPart) isPart()     {}
func (ReasoningPart) isPart() {}

// Content renders the message content as flat text for callers that do not
// need structured parts (e.g. simple scorers). Reasoning parts are omitted;
// image, audio and video parts are rendered as a short placeholder.
func (m ChatMessage) Content() string {
	if len(m.Parts) == 0 {
		return m.Text
	}
	var out string
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			out += v.Text
		case ReasoningPart:
			// Reasoning is not user-visible content; omit from flat rendering.
		default:
			out += "[unsupported content part]"
		}
	}
	return out
}
