package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// DefaultMaxRetries is how many attempts a request gets.
const DefaultMaxRetries = 3

// LLMAdapter talks to an OpenAI-compatible endpoint (LiteLLM in practice).
type LLMAdapter struct {
	client     *openai.Client
	model      string
	maxRetries int
	backoff    time.Duration
	mu         sync.RWMutex // Protects model field for concurrent access
	logger     *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// LiteLLM accepts any key when none is configured
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"

	return &LLMAdapter{
		client:     openai.NewClientWithConfig(config),
		model:      modelID,
		maxRetries: DefaultMaxRetries,
		backoff:    time.Second,
		logger:     logger.Named("llm"),
	}
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// SetRetry changes the attempt count and base backoff.
func (a *LLMAdapter) SetRetry(maxRetries int, backoff time.Duration) {
	if maxRetries > 0 {
		a.maxRetries = maxRetries
	}
	if backoff >= 0 {
		a.backoff = backoff
	}
}

// Tool represents a function that can be called by the LLM
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a function that can be called
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Request is one chat completion. ForceTool makes the model call the named
// tool; JSON asks for a JSON object response.
type Request struct {
	SystemPrompt string
	UserMessage  string
	Tools        []Tool
	ForceTool    string
	JSON         bool
	Temperature  float32
}

// Response represents the LLM's response
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolCall represents a function call from the LLM
type ToolCall struct {
	ID           string
	Name         string
	Arguments    map[string]interface{}
	RawArguments string
}

// Generate sends a request and returns the first choice. Failed attempts are
// retried with linear backoff until the context ends; exhausted retries are
// reported as an unavailable upstream.
func (a *LLMAdapter) Generate(ctx context.Context, r Request) (*Response, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: r.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: r.UserMessage,
		},
	}

	// Convert tools to OpenAI format
	openaiTools := make([]openai.Tool, 0, len(r.Tools))
	for _, tool := range r.Tools {
		openaiTools = append(openaiTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}

	currentModel := a.GetModel()
	req := openai.ChatCompletionRequest{
		Model:       currentModel,
		Messages:    messages,
		Temperature: r.Temperature,
	}
	if len(openaiTools) > 0 {
		req.Tools = openaiTools
	}
	if r.ForceTool != "" {
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: r.ForceTool},
		}
	}
	if r.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.backoff
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, apperrors.NewUpstreamUnavailable("llm", "chat completion", ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)
		if ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("llm", "chat completion",
			fmt.Errorf("failed after %d attempts: %w", a.maxRetries, err))
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in LLM response")
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:   choice.Message.Content,
		ToolCalls: []ToolCall{},
	}

	for _, tc := range choice.Message.ToolCalls {
		toolCall := ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		}

		args, err := parseJSONArguments(tc.Function.Arguments)
		if err != nil {
			a.logger.Warn("Failed to parse tool call arguments",
				zap.String("tool_id", tc.ID),
				zap.Error(err),
			)
			args = make(map[string]interface{})
		}
		toolCall.Arguments = args

		response.ToolCalls = append(response.ToolCalls, toolCall)
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", currentModel),
		zap.Int("tool_calls", len(response.ToolCalls)),
		zap.Bool("has_content", response.Content != ""),
	)

	return response, nil
}

// parseJSONArguments parses the JSON string arguments into a map
func parseJSONArguments(jsonStr string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if jsonStr == "" {
		return make(map[string]interface{}), nil
	}

	err := json.Unmarshal([]byte(jsonStr), &args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return args, nil
}
