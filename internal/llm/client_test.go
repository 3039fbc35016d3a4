package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClients_RequireAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewClaudeClient(Config{BaseURL: "https://api.anthropic.com"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewClients_Defaults(t *testing.T) {
	openai, err := NewOpenAIClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", openai.Model())

	claude, err := NewClaudeClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", claude.Model())
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "  ['Missing alt text']  "}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL + "/", RateLimitRPM: 60000})
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), CompletionRequest{
		System: "You are an expert in web accessibility.",
		User:   "Analyze this",
	})
	require.NoError(t, err)

	assert.Equal(t, "['Missing alt text']", completion.Text)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 5}, completion.Usage)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	// temperature 0 must be on the wire, not omitted
	assert.Contains(t, got, "temperature")
	assert.Equal(t, 0.0, got["temperature"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "Analyze this", messages[1].(map[string]any)["content"])
}

func TestOpenAIClient_CompleteWithImage(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "A red square."}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL, Model: "gpt-4o", RateLimitRPM: 60000})
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), CompletionRequest{
		User:  "Describe this image in one sentence as alt text.",
		Image: &ImageInput{Data: []byte("png"), MIMEType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A red square.", completion.Text)

	messages := got["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[0].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/png;base64,cG5n", image["image_url"].(map[string]any)["url"])
	assert.Equal(t, "text", parts[1].(map[string]any)["type"])
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantAPI   bool
		temporary bool
		wantEmpty bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantAPI: true, temporary: true},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`, wantAPI: true, temporary: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"invalid"}`, wantAPI: true},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`, wantEmpty: true},
		{name: "blank content", status: http.StatusOK, body: `{"choices": [{"message": {"content": "  "}}]}`, wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL, RateLimitRPM: 60000})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), CompletionRequest{User: "hi"})
			require.Error(t, err)

			if tt.wantAPI {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.status, apiErr.StatusCode)
				assert.Equal(t, tt.temporary, apiErr.Temporary())
			}
			if tt.wantEmpty {
				assert.ErrorIs(t, err, ErrEmptyResponse)
			}
		})
	}
}

func TestClaudeClient_Complete(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"content": [{"type": "text", "text": "{'style.css': 'a{}'}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 8}
		}`))
	}))
	defer server.Close()

	client, err := NewClaudeClient(Config{APIKey: "test-key", BaseURL: server.URL, RateLimitRPM: 60000})
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), CompletionRequest{
		System: "You are an expert in web accessibility.",
		User:   "Fix this",
		Image:  &ImageInput{Data: []byte("gif"), MIMEType: "image/png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "{'style.css': 'a{}'}", completion.Text)
	assert.Equal(t, 10, completion.Usage.InputTokens)
	assert.Equal(t, "You are an expert in web accessibility.", got["system"])
	assert.Equal(t, 0.0, got["temperature"])
	assert.Equal(t, 4096.0, got["max_tokens"])

	messages := got["messages"].([]any)
	blocks := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 2)
	source := blocks[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "Z2lm", source["data"])
	assert.Equal(t, "Fix this", blocks[1].(map[string]any)["text"])
}

func TestClaudeClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
	}))
	defer server.Close()

	client, err := NewClaudeClient(Config{APIKey: "k", BaseURL: server.URL, RateLimitRPM: 60000})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{User: "hi"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())
	assert.Contains(t, err.Error(), "claude API error (status 503)")
}

func TestClient_CanceledContext(t *testing.T) {
	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Complete(ctx, CompletionRequest{User: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
