// Package bedrock implements model.Api on top of the AWS Bedrock Converse
// API, the "bedrock/" scheme-prefixed provider spec §6 names.
//
// Grounded on features/model/bedrock/client.go's RuntimeClient narrowing,
// Options/Client shape, and encodeMessages/encodeTools/translateResponse
// structure (message role split, ToolUseBlock/ToolResultBlock mapping,
// usage extraction), simplified to this module's flat
// dataset.ChatMessage/model.ToolDefinition types instead of the teacher's
// richer Parts/ledger-replay model and dropped streaming/thinking (not in
// scope here; see DESIGN.md).
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bdoc "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/model"
)

// RuntimeClient captures the subset of the Bedrock runtime client this
// adapter uses, satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel   string
	MaxTokens      int
	Temperature    float32
	MaxConnections int
}

// Client implements model.Api on top of AWS Bedrock Converse.
type Client struct {
	runtime        RuntimeClient
	defaultModel   string
	maxTokens      int
	temperature    float32
	maxConnections int
}

// New builds a Client from an already-constructed RuntimeClient.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxConnections := opts.MaxConnections
	if maxConnections <= 0 {
		maxConnections = 4
	}
	return &Client{
		runtime:        runtime,
		defaultModel:   opts.DefaultModel,
		maxTokens:      maxTokens,
		temperature:    opts.Temperature,
		maxConnections: maxConnections,
	}, nil
}

// Generate implements model.Api.
func (c *Client) Generate(ctx context.Context, messages []dataset.ChatMessage, tools []model.ToolDefinition, choice *model.ToolChoice, cfg model.Config) (*model.Output, error) {
	conversation, system, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	toolConfig := encodeTools(tools, choice)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	infCfg := &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	if temp > 0 {
		infCfg.Temperature = aws.Float32(temp)
	}
	if len(cfg.Stop) > 0 {
		infCfg.StopSequences = cfg.Stop
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.defaultModel),
		Messages:        conversation,
		InferenceConfig: infCfg,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translateResponse(out)
}

// MaxTokens implements model.Api.
func (c *Client) MaxTokens() int { return c.maxTokens }

// MaxConnections implements model.Api.
func (c *Client) MaxConnections() int { return c.maxConnections }

// IsRetryable implements model.Api (spec §4.2 "Retry policy").
func (c *Client) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var throttle *brtypes.ThrottlingException
	var serviceErr *brtypes.InternalServerException
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &throttle), errors.As(err, &serviceErr):
		return true
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "ModelTimeoutException":
			return true
		}
	}
	return false
}

// ConnectionKey implements model.Api, scoping by model id so distinct
// Bedrock model identifiers get independent connection pools.
func (c *Client) ConnectionKey(cfg model.Config) string { return c.defaultModel }

func encodeMessages(messages []dataset.ChatMessage) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	conversation := make([]brtypes.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == dataset.RoleSystem {
			if m.Content() != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content()})
			}
			continue
		}

		var blocks []brtypes.ContentBlock
		if m.Content() != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content()})
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
				ToolUseId: aws.String(tc.ID),
				Name:      aws.String(tc.Function),
				Input:     lazyDocument(tc.Arguments),
			}})
		}
		if m.Role == dataset.RoleTool {
			status := brtypes.ToolResultStatusSuccess
			if m.ToolErrorKind != "" {
				status = brtypes.ToolResultStatusError
			}
			text := m.Content()
			if m.ToolErrorKind != "" {
				text = m.ToolErrorText
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(m.ToolCallID),
				Status:    status,
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: text}},
			}})
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == dataset.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	return conversation, system, nil
}

func encodeTools(defs []model.ToolDefinition, choice *model.ToolChoice) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	for _, d := range defs {
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(d.Name),
			Description: aws.String(d.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: lazyDocument(d.Parameters)},
		}})
	}
	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	if choice != nil {
		switch choice.Mode {
		case model.ToolChoiceModeAny:
			cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
		case model.ToolChoiceModeTool:
			cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(choice.Name)}}
		}
	}
	return cfg
}

func translateResponse(output *bedrockruntime.ConverseOutput) (*model.Output, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	var text strings.Builder
	var toolCalls []dataset.ToolCall
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				text.WriteString(v.Value)
			case *brtypes.ContentBlockMemberToolUse:
				var args map[string]any
				if data := decodeDocument(v.Value.Input); len(data) > 0 {
					_ = json.Unmarshal(data, &args)
				}
				id, name := "", ""
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				if v.Value.Name != nil {
					name = *v.Value.Name
				}
				toolCalls = append(toolCalls, dataset.ToolCall{ID: id, Function: name, Arguments: args})
			}
		}
	}
	stop := model.StopReasonStop
	switch output.StopReason {
	case brtypes.StopReasonMaxTokens:
		stop = model.StopReasonMaxTokens
	case brtypes.StopReasonToolUse:
		stop = model.StopReasonToolCalls
	case brtypes.StopReasonContentFiltered:
		stop = model.StopReasonContentFilter
	}
	if len(toolCalls) > 0 {
		stop = model.StopReasonToolCalls
	}
	out := &model.Output{
		Model: "",
		Choices: []model.Choice{{
			Message:    dataset.ChatMessage{Role: dataset.RoleAssistant, Text: text.String(), ToolCalls: toolCalls},
			StopReason: stop,
		}},
	}
	if usage := output.Usage; usage != nil {
		out.Usage = model.TokenUsage{
			InputTokens:      int(ptrValue(usage.InputTokens)),
			OutputTokens:     int(ptrValue(usage.OutputTokens)),
			TotalTokens:      int(ptrValue(usage.TotalTokens)),
			CacheReadTokens:  int(ptrValue(usage.CacheReadInputTokens)),
			CacheWriteTokens: int(ptrValue(usage.CacheWriteInputTokens)),
		}
	}
	return out, nil
}

func decodeDocument(doc bdoc.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}

func lazyDocument(v any) bdoc.Interface {
	return bdoc.NewLazyDocument(v)
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		var zero T
		return zero
	}
	return *ptr
}
