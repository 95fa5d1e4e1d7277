package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"warmintro/backend/internal/adapter"
	"warmintro/backend/pkg/logger"
)

// intentToolName is the function the model is forced to call.
const intentToolName = "extract_search_intent"

// DefaultParseTimeout bounds a single LLM parse before falling back.
const DefaultParseTimeout = 5 * time.Second

const intentSystemPrompt = `You convert searches over a personal professional network into structured intents.
Call extract_search_intent exactly once.

Query types:
- person_search: people matching roles, companies, locations or industries.
- company_search: companies in the network.
- relationship_query: questions about the user's own relationships (strongest, most recent).
- intro_path: how to reach or get introduced to a named person.
- general: anything else; keep the meaningful search terms in naturalLanguage.

Use degree 2 for "friends of friends" or second-degree questions, 3 for third-degree.
Use sort "strength", "recency" or "relevance". Leave unknown fields out.`

// Generator is the slice of the LLM adapter the parser needs.
type Generator interface {
	Generate(ctx context.Context, r adapter.Request) (*adapter.Response, error)
}

// LLMParser extracts intents with a forced tool call.
type LLMParser struct {
	llm    Generator
	logger *zap.Logger
}

// NewLLMParser creates a parser backed by llm.
func NewLLMParser(llm Generator) *LLMParser {
	return &LLMParser{llm: llm, logger: logger.Named("query")}
}

// Parse asks the model for an intent and validates its answer.
func (p *LLMParser) Parse(ctx context.Context, text string) (*SearchIntent, error) {
	resp, err := p.llm.Generate(ctx, adapter.Request{
		SystemPrompt: intentSystemPrompt,
		UserMessage:  text,
		Tools:        []adapter.Tool{intentTool()},
		ForceTool:    intentToolName,
	})
	if err != nil {
		return nil, err
	}

	raw := ""
	for _, tc := range resp.ToolCalls {
		if tc.Name == intentToolName {
			raw = tc.RawArguments
			break
		}
	}
	if raw == "" {
		// Some models answer in plain JSON instead of calling the tool.
		raw = strings.TrimSpace(resp.Content)
	}
	if raw == "" {
		return nil, fmt.Errorf("model returned no intent")
	}

	var intent SearchIntent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	if !intent.QueryType.Valid() {
		return nil, fmt.Errorf("model returned unknown query type %q", intent.QueryType)
	}
	if strings.TrimSpace(intent.NaturalLanguage) == "" {
		intent.NaturalLanguage = text
	}
	intent.ParsedBy = "llm"

	p.logger.Debug("Parsed search intent",
		zap.String("query_type", string(intent.QueryType)),
		zap.Int("degree", intent.Filters.Degree),
	)
	return &intent, nil
}

func intentTool() adapter.Tool {
	stringList := map[string]interface{}{
		"type":  "array",
		"items": map[string]interface{}{"type": "string"},
	}
	return adapter.Tool{
		Type: "function",
		Function: adapter.FunctionDefinition{
			Name:        intentToolName,
			Description: "Record the structured intent of a network search",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"queryType": map[string]interface{}{
						"type": "string",
						"enum": []string{
							string(PersonSearch), string(CompanySearch), string(RelationshipQuery),
							string(IntroPath), string(General),
						},
					},
					"filters": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"roles":      stringList,
							"companies":  stringList,
							"locations":  stringList,
							"industries": stringList,
							"name":       map[string]interface{}{"type": "string"},
							"title":      map[string]interface{}{"type": "string"},
							"degree":     map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 3},
							"sort": map[string]interface{}{
								"type": "string",
								"enum": []string{"strength", "recency", "relevance"},
							},
						},
					},
					"naturalLanguage": map[string]interface{}{"type": "string"},
				},
				"required": []string{"queryType", "filters"},
			},
		},
	}
}

// FallbackParser tries primary under a timeout and falls back to the rule
// parser on any failure.
type FallbackParser struct {
	primary  Parser
	fallback Parser
	timeout  time.Duration
	logger   *zap.Logger
}

// NewFallbackParser wires primary (which may be nil) in front of fallback.
func NewFallbackParser(primary, fallback Parser, timeout time.Duration) *FallbackParser {
	if timeout <= 0 {
		timeout = DefaultParseTimeout
	}
	return &FallbackParser{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		logger:   logger.Named("query"),
	}
}

// Parse returns the primary parser's intent when it succeeds in time.
func (p *FallbackParser) Parse(ctx context.Context, text string) (*SearchIntent, error) {
	if p.primary != nil {
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		intent, err := p.primary.Parse(pctx, text)
		cancel()
		if err == nil && intent != nil {
			return intent, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("Primary intent parser failed, using rules", zap.Error(err))
	}
	return p.fallback.Parse(ctx, text)
}
