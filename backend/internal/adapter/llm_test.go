package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "warmintro/backend/pkg/errors"
)

func completionBody(content string, toolArgs string) map[string]interface{} {
	message := map[string]interface{}{
		"role":    "assistant",
		"content": content,
	}
	if toolArgs != "" {
		message["tool_calls"] = []map[string]interface{}{{
			"id":   "call_1",
			"type": "function",
			"function": map[string]interface{}{
				"name":      "extract_search_intent",
				"arguments": toolArgs,
			},
		}}
	}
	return map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       message,
			"finish_reason": "stop",
		}},
	}
}

func TestLLMAdapter_GenerateToolCall(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody("", `{"queryType":"person_search"}`))
	}))
	defer server.Close()

	a := NewLLMAdapter(server.URL, "", "test-model")
	resp, err := a.Generate(context.Background(), Request{
		SystemPrompt: "system",
		UserMessage:  "engineers at Google",
		Tools: []Tool{{
			Type: "function",
			Function: FunctionDefinition{
				Name:       "extract_search_intent",
				Parameters: map[string]interface{}{"type": "object"},
			},
		}},
		ForceTool: "extract_search_intent",
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "extract_search_intent", resp.ToolCalls[0].Name)
	assert.Equal(t, "person_search", resp.ToolCalls[0].Arguments["queryType"])
	assert.JSONEq(t, `{"queryType":"person_search"}`, resp.ToolCalls[0].RawArguments)

	assert.Equal(t, "test-model", got["model"])
	assert.NotNil(t, got["tool_choice"])
}

func TestLLMAdapter_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody("hello", ""))
	}))
	defer server.Close()

	a := NewLLMAdapter(server.URL, "key", "test-model")
	a.SetRetry(3, time.Millisecond)

	resp, err := a.Generate(context.Background(), Request{UserMessage: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLLMAdapter_ExhaustedRetriesAreRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"down"}}`, http.StatusBadGateway)
	}))
	defer server.Close()

	a := NewLLMAdapter(server.URL, "", "test-model")
	a.SetRetry(2, time.Millisecond)

	_, err := a.Generate(context.Background(), Request{UserMessage: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestLLMAdapter_SetModel(t *testing.T) {
	a := NewLLMAdapter("http://localhost:4000", "", "a")
	a.SetModel("")
	assert.Equal(t, "a", a.GetModel())
	a.SetModel("b")
	assert.Equal(t, "b", a.GetModel())
}

// TestLLMAdapter_Live requires a running LiteLLM instance
func TestLLMAdapter_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	a := NewLLMAdapter("http://localhost:4000", "", "openrouter/anthropic/claude-3.5-sonnet")
	a.SetRetry(1, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	response, err := a.Generate(ctx, Request{SystemPrompt: "You are terse.", UserMessage: "Say hello."})
	if err != nil {
		t.Skipf("LiteLLM not available: %v", err)
	}
	assert.NotEmpty(t, response.Content)
}
