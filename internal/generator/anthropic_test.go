package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropic_RequiresKey(t *testing.T) {
	_, err := NewAnthropic("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAnthropic_Generate(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [
				{"type": "text", "text": "Raft elects a leader."},
				{"type": "text", "text": "Logs replicate from it."}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 9}
		}`))
	}))
	defer srv.Close()

	a, err := NewAnthropic("test-key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := a.Generate(context.Background(), Request{
		Model:     "claude-sonnet-4-5",
		System:    "You are an architect.",
		Prompt:    "explain raft",
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, "Raft elects a leader.\nLogs replicate from it.", resp.Text)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 9, resp.OutputTokens)
	assert.Equal(t, 21, resp.Tokens())

	assert.Equal(t, "claude-sonnet-4-5", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, "You are an architect.", got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropic_GenerateDefaults(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m","type":"message","role":"assistant","model":"x",
			"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	a, err := NewAnthropic("k", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, got["model"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.NotContains(t, got, "system")
}

func TestAnthropic_GenerateErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
		}))
		defer srv.Close()

		a, err := NewAnthropic("k", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
		require.NoError(t, err)

		_, err = a.Generate(context.Background(), Request{Prompt: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic api error")
	})

	t.Run("no text blocks", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m","type":"message","role":"assistant","model":"x",
				"content":[],"usage":{"input_tokens":1,"output_tokens":0}}`))
		}))
		defer srv.Close()

		a, err := NewAnthropic("k", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
		require.NoError(t, err)

		_, err = a.Generate(context.Background(), Request{Prompt: "hi"})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}
