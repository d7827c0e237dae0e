package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/modelproviders/anthropic"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestGenerateTranslatesTextResponse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Model: "claude-3-5-sonnet-latest",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "42"},
		},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 2},
	}}
	client, err := anthropic.New(stub, anthropic.Options{DefaultModel: "claude-3-5-sonnet-latest"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), []dataset.ChatMessage{
		{Role: dataset.RoleUser, Text: "what is 40+2?"},
	}, nil, nil, model.Config{})
	require.NoError(t, err)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "42", out.Choices[0].Message.Content())
	assert.Equal(t, 12, out.Usage.TotalTokens)
}

func TestGenerateTranslatesToolUse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "call-1", Name: "add", Input: json.RawMessage(`{"x":1,"y":2}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}}
	client, err := anthropic.New(stub, anthropic.Options{DefaultModel: "claude-3-5-sonnet-latest"})
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), []dataset.ChatMessage{
		{Role: dataset.RoleUser, Text: "add 1 and 2"},
	}, nil, nil, model.Config{})
	require.NoError(t, err)
	require.Len(t, out.Choices[0].Message.ToolCalls, 1)
	call := out.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "add", call.Function)
	assert.Equal(t, float64(1), call.Arguments["x"])
}

func TestGenerateRejectsEmptyMessages(t *testing.T) {
	client, err := anthropic.New(&stubMessagesClient{}, anthropic.Options{DefaultModel: "claude-3-5-sonnet-latest"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), nil, nil, nil, model.Config{})
	assert.Error(t, err)
}

func TestNewRequiresClientAndModel(t *testing.T) {
	_, err := anthropic.New(nil, anthropic.Options{DefaultModel: "x"})
	assert.Error(t, err)

	_, err = anthropic.New(&stubMessagesClient{}, anthropic.Options{})
	assert.Error(t, err)
}

func TestIsRetryableClassifiesTransientStatusCodes(t *testing.T) {
	client, err := anthropic.New(&stubMessagesClient{}, anthropic.Options{DefaultModel: "x"})
	require.NoError(t, err)

	assert.False(t, client.IsRetryable(nil))
	assert.False(t, client.IsRetryable(errors.New("boom")))
	assert.True(t, client.IsRetryable(&sdk.Error{StatusCode: 429}))
	assert.True(t, client.IsRetryable(&sdk.Error{StatusCode: 503}))
	assert.False(t, client.IsRetryable(&sdk.Error{StatusCode: 400}))
}
