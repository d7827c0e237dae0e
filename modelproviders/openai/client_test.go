package openai_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/modelproviders/openai"
)

// newTestClient points the official SDK's chat completions service at a
// local httptest server, so tests exercise the real request/response
// marshaling without needing API credentials or guessing at SDK response
// struct internals.
func newTestClient(t *testing.T, body string) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := sdk.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL))
	client, err := openai.New(&c.Chat.Completions, openai.Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	return client
}

func TestGenerateTranslatesTextResponse(t *testing.T) {
	client := newTestClient(t, `{
		"id": "chatcmpl-1",
		"model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "42"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
	}`)

	out, err := client.Generate(context.Background(), []dataset.ChatMessage{
		{Role: dataset.RoleUser, Text: "what is 40+2?"},
	}, nil, nil, model.Config{})
	require.NoError(t, err)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "42", out.Choices[0].Message.Content())
	assert.Equal(t, model.StopReasonStop, out.Choices[0].StopReason)
	assert.Equal(t, 12, out.Usage.TotalTokens)
}

func TestGenerateTranslatesToolCalls(t *testing.T) {
	client := newTestClient(t, `{
		"id": "chatcmpl-2",
		"model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
			"role": "assistant",
			"content": null,
			"tool_calls": [{"id": "call-1", "type": "function", "function": {"name": "add", "arguments": "{\"x\":1,\"y\":2}"}}]
		}}],
		"usage": {"prompt_tokens": 8, "completion_tokens": 4, "total_tokens": 12}
	}`)

	out, err := client.Generate(context.Background(), []dataset.ChatMessage{
		{Role: dataset.RoleUser, Text: "add 1 and 2"},
	}, nil, nil, model.Config{})
	require.NoError(t, err)
	require.Len(t, out.Choices[0].Message.ToolCalls, 1)
	call := out.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "add", call.Function)
	assert.Equal(t, float64(1), call.Arguments["x"])
	assert.Equal(t, model.StopReasonToolCalls, out.Choices[0].StopReason)
}

func TestGenerateRejectsEmptyMessages(t *testing.T) {
	client := newTestClient(t, `{}`)
	_, err := client.Generate(context.Background(), nil, nil, nil, model.Config{})
	assert.Error(t, err)
}

func TestNewRequiresClientAndModel(t *testing.T) {
	_, err := openai.New(nil, openai.Options{DefaultModel: "x"})
	assert.Error(t, err)

	c := sdk.NewClient(option.WithAPIKey("test"))
	_, err = openai.New(&c.Chat.Completions, openai.Options{})
	assert.Error(t, err)
}

func TestIsRetryableClassifiesTransientStatusCodes(t *testing.T) {
	client := newTestClient(t, `{}`)

	assert.False(t, client.IsRetryable(nil))
	assert.False(t, client.IsRetryable(errors.New("boom")))
	assert.True(t, client.IsRetryable(&sdk.Error{StatusCode: 429}))
	assert.True(t, client.IsRetryable(&sdk.Error{StatusCode: 500}))
	assert.False(t, client.IsRetryable(&sdk.Error{StatusCode: 404}))
}
