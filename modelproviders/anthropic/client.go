// Package anthropic implements model.Api on top of the Anthropic Claude
// Messages API, one of the scheme-prefixed providers spec §6 names
// ("Providers are discovered by a scheme prefix, e.g. openai/,
// anthropic/, local/").
//
// Grounded on features/model/anthropic/client.go's MessagesClient
// narrowing and Options/Client shape, and on
// internal/llm/anthropic/client.go (github.com/anthropics/anthropic-sdk-go
// usage: MessageNewParams, ContentBlockParamUnion constructors,
// CacheControlEphemeralParam) for the concrete SDK call and content-block
// translation this module's teacher file only sketches around a
// differently-shaped internal model.Request/Response pair.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/model"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// adapter uses, satisfied by *sdk.MessageService so tests can substitute a
// fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel   string
	MaxTokens      int
	Temperature    float32
	MaxConnections int
}

// Client implements model.Api via the Anthropic Messages API.
type Client struct {
	msg            MessagesClient
	defaultModel   string
	maxTokens      int
	temperature    float32
	maxConnections int
}

// New builds a Client from an already-constructed MessagesClient, so
// callers (and tests) can inject a fake without holding real credentials.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("anthropic: default model is required")
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
		msg:            msg,
		defaultModel:   opts.DefaultModel,
		maxTokens:      maxTokens,
		temperature:    opts.Temperature,
		maxConnections: maxConnections,
	}, nil
}

// NewFromAPIKey constructs a Client using the SDK's own HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, opts)
}

// Generate implements model.Api.
func (c *Client) Generate(ctx context.Context, messages []dataset.ChatMessage, tools []model.ToolDefinition, choice *model.ToolChoice, cfg model.Config) (*model.Output, error) {
	params, err := c.buildParams(messages, tools, choice, cfg)
	if err != nil {
		return nil, err
	}
	resp, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(resp), nil
}

// MaxTokens implements model.Api.
func (c *Client) MaxTokens() int { return c.maxTokens }

// MaxConnections implements model.Api.
func (c *Client) MaxConnections() int { return c.maxConnections }

// IsRetryable implements model.Api, classifying HTTP 408/409/429/5xx API
// errors as transient; any other error, including a connection failure, is
// reported as not retryable (spec §4.2 "Retry policy").
func (c *Client) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		return code == 408 || code == 409 || code == 429 || code >= 500
	}
	return false
}

// ConnectionKey implements model.Api; Anthropic has one account per API key
// so there is no per-request scoping.
func (c *Client) ConnectionKey(model.Config) string { return "" }

func (c *Client) buildParams(messages []dataset.ChatMessage, tools []model.ToolDefinition, choice *model.ToolChoice, cfg model.Config) (sdk.MessageNewParams, error) {
	if len(messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: messages are required")
	}
	var system []sdk.TextBlockParam
	var msgs []sdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case dataset.RoleSystem:
			if m.Content() != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content()})
			}
		case dataset.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content())))
		case dataset.RoleAssistant:
			blocks := []sdk.ContentBlockParamUnion{}
			if m.Content() != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content()))
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				var raw any
				_ = json.Unmarshal(args, &raw)
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, raw, tc.Function))
			}
			if len(blocks) > 0 {
				msgs = append(msgs, sdk.NewAssistantMessage(blocks...))
			}
		case dataset.RoleTool:
			isErr := m.ToolErrorKind != ""
			text := m.Content()
			if isErr {
				text = m.ToolErrorText
			}
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, text, isErr)))
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.defaultModel),
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(float64(temp))
	}
	if len(cfg.Stop) > 0 {
		params.StopSequences = cfg.Stop
	}
	if len(tools) > 0 {
		toolParams := make([]sdk.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			schema := sdk.ToolInputSchemaParam{Properties: t.Parameters["properties"]}
			if req, ok := t.Parameters["required"].([]string); ok {
				schema.Required = req
			}
			toolParams = append(toolParams, sdk.ToolUnionParam{OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: schema,
			}})
		}
		params.Tools = toolParams
	}
	if choice != nil {
		switch choice.Mode {
		case model.ToolChoiceModeNone:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfNone: &sdk.ToolChoiceNoneParam{}}
		case model.ToolChoiceModeAny:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
		case model.ToolChoiceModeTool:
			params.ToolChoice = sdk.ToolChoiceUnionParam{OfTool: &sdk.ToolChoiceToolParam{Name: choice.Name}}
		}
	}
	return params, nil
}

func translateResponse(msg *sdk.Message) *model.Output {
	var toolCalls []dataset.ToolCall
	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case sdk.TextBlock:
			text.WriteString(v.Text)
		case sdk.ToolUseBlock:
			args, _ := json.Marshal(v.Input)
			var parsed map[string]any
			_ = json.Unmarshal(args, &parsed)
			toolCalls = append(toolCalls, dataset.ToolCall{ID: v.ID, Function: v.Name, Arguments: parsed})
		}
	}
	stop := model.StopReasonStop
	switch msg.StopReason {
	case sdk.StopReasonMaxTokens:
		stop = model.StopReasonMaxTokens
	case sdk.StopReasonToolUse:
		stop = model.StopReasonToolCalls
	}
	if len(toolCalls) > 0 {
		stop = model.StopReasonToolCalls
	}
	return &model.Output{
		Model: string(msg.Model),
		Choices: []model.Choice{{
			Message:    dataset.ChatMessage{Role: dataset.RoleAssistant, Text: text.String(), ToolCalls: toolCalls},
			StopReason: stop,
		}},
		Usage: model.TokenUsage{
			InputTokens:      int(msg.Usage.InputTokens),
			OutputTokens:     int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}
}
