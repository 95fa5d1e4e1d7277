package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"warmintro/backend/internal/adapter"
	"warmintro/backend/pkg/logger"
)

const summarySystemPrompt = `You summarise search results from the user's professional network.
Write two or three plain sentences. Mention the strongest or most relevant people by name.
Never invent people or facts that are not in the results.`

// maxSummaryItems caps how many results are shown to the model.
const maxSummaryItems = 10

// Generator is the slice of the LLM adapter the summarizer needs.
type Generator interface {
	Generate(ctx context.Context, r adapter.Request) (*adapter.Response, error)
}

// Summarizer describes a result in prose. Without an LLM, or when it fails,
// a deterministic template is used.
type Summarizer struct {
	llm    Generator
	logger *zap.Logger
}

// NewSummarizer creates a summarizer; llm may be nil.
func NewSummarizer(llm Generator) *Summarizer {
	return &Summarizer{llm: llm, logger: logger.Named("summarizer")}
}

// Summarize never fails.
func (s *Summarizer) Summarize(ctx context.Context, question string, res *Result) string {
	fallback := TemplateSummary(res)
	if s.llm == nil || res.Total == 0 {
		return fallback
	}

	resp, err := s.llm.Generate(ctx, adapter.Request{
		SystemPrompt: summarySystemPrompt,
		UserMessage:  fmt.Sprintf("Question: %s\n\nResults:\n%s", question, describe(res)),
		Temperature:  0.2,
	})
	if err != nil {
		s.logger.Warn("Summary generation failed, using template", zap.Error(err))
		return fallback
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return fallback
	}
	return text
}

// TemplateSummary is the deterministic summary of a result.
func TemplateSummary(res *Result) string {
	if res.Path != nil {
		names := make([]string, 0, len(res.Path.Nodes))
		for _, n := range res.Path.Nodes {
			names = append(names, displayName(n.Name, n.Email, n.ID))
		}
		return fmt.Sprintf("Found a %d-hop introduction path: %s (strength %.0f).",
			res.Path.Hops, strings.Join(names, " → "), res.Path.Strength)
	}
	if res.Total == 0 {
		return "No matches found."
	}

	var lead []string
	for i, p := range res.People {
		if i == 3 {
			break
		}
		lead = append(lead, displayName(p.Person.Name, p.Person.Email, p.Person.ID))
	}
	for i, c := range res.Companies {
		if i == 3 {
			break
		}
		lead = append(lead, c.Company.Name)
	}

	noun := "results"
	if res.Total == 1 {
		noun = "result"
	}
	return fmt.Sprintf("Found %d %s, led by %s.", res.Total, noun, strings.Join(lead, ", "))
}

func describe(res *Result) string {
	var b strings.Builder
	for i, p := range res.People {
		if i == maxSummaryItems {
			break
		}
		fmt.Fprintf(&b, "- %s", displayName(p.Person.Name, p.Person.Email, p.Person.ID))
		if p.Person.Title != "" {
			fmt.Fprintf(&b, ", %s", p.Person.Title)
		}
		if p.Person.Company != "" {
			fmt.Fprintf(&b, " at %s", p.Person.Company)
		}
		fmt.Fprintf(&b, " (degree %d, strength %.0f)\n", p.Degree, p.Strength)
	}
	for i, c := range res.Companies {
		if i == maxSummaryItems {
			break
		}
		fmt.Fprintf(&b, "- %s: %d contacts\n", c.Company.Name, len(c.Contacts))
	}
	fmt.Fprintf(&b, "Total: %d", res.Total)
	return b.String()
}

func displayName(name, email, id string) string {
	switch {
	case name != "":
		return name
	case email != "":
		return email
	}
	return id
}
