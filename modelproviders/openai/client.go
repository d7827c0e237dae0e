// Package openai implements model.Api on top of the OpenAI Chat
// Completions API, the "openai/" scheme-prefixed provider spec §6 names.
//
// Grounded on features/model/openai/client.go's Options/Client/ChatClient
// narrowing (adapted here from github.com/sashabaranov/go-openai to the
// official github.com/openai/openai-go client this module depends on) and
// on internal/llm/openai_client.go's usage of that official SDK
// (openai.NewClient, SystemMessage/UserMessage/AssistantMessage helpers,
// ChatCompletionNewParams, param.NewOpt) for the concrete call shape.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/model"
)

// ChatClient captures the subset of the official client this adapter
// uses, satisfied by *openai.ChatCompletionService.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel   string
	MaxTokens      int
	Temperature    float32
	MaxConnections int
}

// Client implements model.Api via the OpenAI Chat Completions API.
type Client struct {
	chat           ChatClient
	defaultModel   string
	maxTokens      int
	temperature    float32
	maxConnections int
}

// New builds a Client from an already-constructed ChatClient.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxConnections := opts.MaxConnections
	if maxConnections <= 0 {
		maxConnections = 8
	}
	return &Client{
		chat:           chat,
		defaultModel:   opts.DefaultModel,
		maxTokens:      maxTokens,
		temperature:    opts.Temperature,
		maxConnections: maxConnections,
	}, nil
}

// NewFromAPIKey constructs a Client using the SDK's own HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, opts)
}

// Generate implements model.Api.
func (c *Client) Generate(ctx context.Context, messages []dataset.ChatMessage, tools []model.ToolDefinition, choice *model.ToolChoice, cfg model.Config) (*model.Output, error) {
	params, err := c.buildParams(messages, tools, choice, cfg)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat.completions.new: %w", err)
	}
	return translateResponse(resp), nil
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
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		return code == 408 || code == 409 || code == 429 || code >= 500
	}
	return false
}

// ConnectionKey implements model.Api.
func (c *Client) ConnectionKey(model.Config) string { return "" }

func (c *Client) buildParams(messages []dataset.ChatMessage, tools []model.ToolDefinition, choice *model.ToolChoice, cfg model.Config) (openai.ChatCompletionNewParams, error) {
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}
	var msgs []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case dataset.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content()))
		case dataset.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content()))
		case dataset.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(m.Content()))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Function,
							Arguments: string(args),
						},
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content() != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(m.Content()),
				}
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case dataset.RoleTool:
			text := m.Content()
			if m.ToolErrorKind != "" {
				text = m.ToolErrorText
			}
			msgs = append(msgs, openai.ToolMessage(text, m.ToolCallID))
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(c.defaultModel),
		Messages:  msgs,
		MaxTokens: param.NewOpt(int64(maxTokens)),
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = param.NewOpt(float64(temp))
	}
	if len(cfg.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: cfg.Stop}
	}
	if len(tools) > 0 {
		toolParams := make([]openai.ChatCompletionFunctionToolParam, 0, len(tools))
		for _, t := range tools {
			toolParams = append(toolParams, openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: param.NewOpt(t.Description),
					Parameters:  shared.FunctionParameters(t.Parameters),
				},
			})
		}
		params.Tools = toolParams
	}
	if choice != nil {
		switch choice.Mode {
		case model.ToolChoiceModeNone:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("none")}
		case model.ToolChoiceModeAny:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}
		case model.ToolChoiceModeTool:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
					Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
				},
			}
		}
	}
	return params, nil
}

func translateResponse(resp *openai.ChatCompletion) *model.Output {
	if len(resp.Choices) == 0 {
		return &model.Output{Model: resp.Model, Error: "openai: no choices returned"}
	}
	top := resp.Choices[0]
	var toolCalls []dataset.ToolCall
	for _, tc := range top.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		toolCalls = append(toolCalls, dataset.ToolCall{ID: tc.ID, Function: tc.Function.Name, Arguments: args})
	}
	stop := model.StopReasonStop
	switch top.FinishReason {
	case "length":
		stop = model.StopReasonMaxTokens
	case "tool_calls":
		stop = model.StopReasonToolCalls
	case "content_filter":
		stop = model.StopReasonContentFilter
	}
	if len(toolCalls) > 0 {
		stop = model.StopReasonToolCalls
	}
	return &model.Output{
		Model: resp.Model,
		Choices: []model.Choice{{
			Message:    dataset.ChatMessage{Role: dataset.RoleAssistant, Text: top.Message.Content, ToolCalls: toolCalls},
			StopReason: stop,
		}},
		Usage: model.TokenUsage{
			InputTokens:     int(resp.Usage.PromptTokens),
			OutputTokens:    int(resp.Usage.CompletionTokens),
			TotalTokens:     int(resp.Usage.TotalTokens),
			ReasoningTokens: int(resp.Usage.CompletionTokensDetails.ReasoningTokens),
			CacheReadTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
		},
	}
}
