package task_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/task"
)

// runScoped runs t under a trace scope the way the engine does.
func runScoped(t *testing.T, tk eval.Task, input any) (any, error, []eval.Trace) {
	t.Helper()
	return eval.WithTraceScope(context.Background(), func(ctx context.Context) (any, error) {
		return tk.Run(ctx, input)
	})
}

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		var in map[string]any
		assert.NoError(t, json.Unmarshal(body, &in))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"answer": in["question"]})
	}))
	defer srv.Close()

	h, err := task.NewHTTP(task.HTTPOptions{URL: srv.URL, Headers: map[string]string{"X-Api-Key": "secret"}})
	require.NoError(t, err)

	out, err, traces := runScoped(t, h, map[string]any{"question": "2+2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "2+2"}, out)
	require.Len(t, traces, 1)
	assert.Equal(t, 200, traces[0].Metadata.(map[string]any)["status"])
}

func TestHTTPPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "  Paris\n")
	}))
	defer srv.Close()

	h, err := task.NewHTTP(task.HTTPOptions{URL: srv.URL})
	require.NoError(t, err)
	out, err := h.Run(context.Background(), "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", out)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h, err := task.NewHTTP(task.HTTPOptions{URL: srv.URL})
	require.NoError(t, err)
	_, err, traces := runScoped(t, h, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
	require.Len(t, traces, 1)
	assert.NotEmpty(t, traces[0].Error)
}

func TestHTTPRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	h, err := task.NewHTTP(task.HTTPOptions{URL: srv.URL, RatePerSecond: 20, Burst: 1})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := h.Run(context.Background(), i)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls.Load())
	// Two waits of 50ms after the initial burst token.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestNewHTTPRequiresURL(t *testing.T) {
	_, err := task.NewHTTP(task.HTTPOptions{})
	assert.Error(t, err)
}

func TestCommand(t *testing.T) {
	c, err := task.NewCommand(task.CommandOptions{Argv: []string{"sh", "-c", "cat"}})
	require.NoError(t, err)

	out, err, traces := runScoped(t, c, map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 1.0}, out)
	require.Len(t, traces, 1)
	assert.Equal(t, 0, traces[0].Metadata.(map[string]any)["exit_code"])
}

func TestCommandPlainOutput(t *testing.T) {
	c, err := task.NewCommand(task.CommandOptions{Argv: []string{"sh", "-c", "echo hello world"}})
	require.NoError(t, err)
	out, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestCommandEnv(t *testing.T) {
	c, err := task.NewCommand(task.CommandOptions{
		Argv: []string{"sh", "-c", `printf '%s-%s' "$GREETING" "$TARGET"`},
		Env:  map[string]string{"GREETING": "hello", "TARGET": "world"},
	})
	require.NoError(t, err)
	out, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", out)
}

func TestCommandFailure(t *testing.T) {
	c, err := task.NewCommand(task.CommandOptions{Argv: []string{"sh", "-c", "echo bad input >&2; exit 3"}})
	require.NoError(t, err)
	_, err, traces := runScoped(t, c, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 3")
	assert.Contains(t, err.Error(), "bad input")
	require.Len(t, traces, 1)
	assert.Equal(t, 3, traces[0].Metadata.(map[string]any)["exit_code"])
}

func TestCommandTimeout(t *testing.T) {
	c, err := task.NewCommand(task.CommandOptions{Argv: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = c.Run(context.Background(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
			assert.Equal(t, "capital of France?", req.Messages[1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-42",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "Paris"},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	chat, err := task.NewChat(openai.NewClientWithConfig(cfg), task.ChatOptions{
		Model:        "gpt-4o-mini",
		SystemPrompt: "Answer with one word.",
	})
	require.NoError(t, err)

	out, err, traces := runScoped(t, chat, "capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", out)
	require.Len(t, traces, 1)
	tr := traces[0]
	assert.Equal(t, "chatcmpl-42", tr.ID)
	assert.Equal(t, "gpt-4o-mini", tr.Model)
	assert.Equal(t, &eval.TokenUsage{InputTokens: 12, OutputTokens: 1, TotalTokens: 13}, tr.Usage)
}

func TestChatFailureStillTraces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"message": "rate limited", "type": "rate_limit"}}`)
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	chat, err := task.NewChat(openai.NewClientWithConfig(cfg), task.ChatOptions{Model: "m"})
	require.NoError(t, err)

	_, err, traces := runScoped(t, chat, "hi")
	require.Error(t, err)
	require.Len(t, traces, 1)
	assert.Contains(t, traces[0].Error, "rate limited")
}
