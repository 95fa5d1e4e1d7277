package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmintro/backend/internal/adapter"
	"warmintro/backend/internal/plan"
	apperrors "warmintro/backend/pkg/errors"
)

func TestCompile_PersonSearch(t *testing.T) {
	p, err := Compile(&SearchIntent{
		QueryType: PersonSearch,
		Filters: Filters{
			Roles:     []string{"engineer", "Engineer"},
			Title:     "staff",
			Companies: []string{"Google", " "},
			Degree:    2,
		},
	}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, plan.KindPersonSearch, p.Kind)
	assert.Equal(t, 2, p.Degree)
	assert.Equal(t, plan.SortStrength, p.Sort)
	assert.Equal(t, plan.DefaultLimit, p.Limit)

	title, ok := p.Filter(plan.FieldTitle)
	require.True(t, ok)
	assert.Equal(t, []string{"staff", "engineer"}, title.AnyOf)
	company, ok := p.Filter(plan.FieldCompany)
	require.True(t, ok)
	assert.Equal(t, []string{"Google"}, company.AnyOf)
	_, ok = p.Filter(plan.FieldLocation)
	assert.False(t, ok)
}

func TestCompile_DegreeOutOfRange(t *testing.T) {
	_, err := Compile(&SearchIntent{QueryType: PersonSearch, Filters: Filters{Degree: 4}}, "user-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCompile_RelationshipQuery(t *testing.T) {
	p, err := Compile(&SearchIntent{QueryType: RelationshipQuery, Filters: Filters{Sort: "strength"}}, "user-1")
	require.NoError(t, err)
	require.NotNil(t, p.StrengthAbove)
	assert.Equal(t, 50.0, *p.StrengthAbove)
	assert.False(t, p.RequireLastContact)

	p, err = Compile(&SearchIntent{QueryType: RelationshipQuery, Filters: Filters{Sort: "Recency"}}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, plan.SortRecency, p.Sort)
	assert.Nil(t, p.StrengthAbove)
	assert.True(t, p.RequireLastContact)
}

func TestCompile_CompanySearch(t *testing.T) {
	p, err := Compile(&SearchIntent{
		QueryType: CompanySearch,
		Filters:   Filters{Industries: []string{"fintech"}, Locations: []string{"London"}},
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, plan.KindCompanySearch, p.Kind)
	assert.Len(t, p.Filters, 2)

	p, err = Compile(&SearchIntent{QueryType: CompanySearch}, "user-1")
	require.NoError(t, err)
	assert.Empty(t, p.Filters)
}

func TestCompile_IntroPathAndGeneral(t *testing.T) {
	_, err := Compile(&SearchIntent{QueryType: IntroPath}, "user-1")
	assert.True(t, apperrors.IsValidation(err))

	p, err := Compile(&SearchIntent{QueryType: IntroPath, Filters: Filters{Name: " Dave "}}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Dave", p.TargetName)

	_, err = Compile(&SearchIntent{QueryType: General, NaturalLanguage: "  "}, "user-1")
	assert.True(t, apperrors.IsValidation(err))

	p, err = Compile(&SearchIntent{QueryType: General, NaturalLanguage: "rust"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "rust", p.Text)
	assert.Equal(t, plan.SortRelevance, p.Sort)
}

func TestCompile_RejectsBadInput(t *testing.T) {
	_, err := Compile(nil, "user-1")
	assert.True(t, apperrors.IsValidation(err))

	_, err = Compile(&SearchIntent{QueryType: PersonSearch}, "")
	assert.True(t, apperrors.IsValidation(err))

	_, err = Compile(&SearchIntent{QueryType: "guess"}, "user-1")
	assert.True(t, apperrors.IsValidation(err))
}

type stubGenerator struct {
	resp *adapter.Response
	err  error
	last adapter.Request
}

func (g *stubGenerator) Generate(ctx context.Context, r adapter.Request) (*adapter.Response, error) {
	g.last = r
	return g.resp, g.err
}

func TestLLMParser_ToolCall(t *testing.T) {
	gen := &stubGenerator{resp: &adapter.Response{ToolCalls: []adapter.ToolCall{{
		Name:         intentToolName,
		RawArguments: `{"queryType":"person_search","filters":{"roles":["engineer"],"degree":2}}`,
	}}}}

	intent, err := NewLLMParser(gen).Parse(context.Background(), "engineers two hops away")
	require.NoError(t, err)
	assert.Equal(t, PersonSearch, intent.QueryType)
	assert.Equal(t, []string{"engineer"}, intent.Filters.Roles)
	assert.Equal(t, 2, intent.Filters.Degree)
	assert.Equal(t, "engineers two hops away", intent.NaturalLanguage)
	assert.Equal(t, "llm", intent.ParsedBy)
	assert.Equal(t, intentToolName, gen.last.ForceTool)
}

func TestLLMParser_ContentFallbackAndErrors(t *testing.T) {
	gen := &stubGenerator{resp: &adapter.Response{Content: `{"queryType":"general","filters":{},"naturalLanguage":"rust"}`}}
	intent, err := NewLLMParser(gen).Parse(context.Background(), "rust folks")
	require.NoError(t, err)
	assert.Equal(t, General, intent.QueryType)
	assert.Equal(t, "rust", intent.NaturalLanguage)

	gen.resp = &adapter.Response{Content: `{"queryType":"astrology","filters":{}}`}
	_, err = NewLLMParser(gen).Parse(context.Background(), "x")
	assert.Error(t, err)

	gen.resp = &adapter.Response{}
	_, err = NewLLMParser(gen).Parse(context.Background(), "x")
	assert.Error(t, err)
}

type funcParser func(ctx context.Context, text string) (*SearchIntent, error)

func (f funcParser) Parse(ctx context.Context, text string) (*SearchIntent, error) {
	return f(ctx, text)
}

func TestFallbackParser(t *testing.T) {
	failing := funcParser(func(ctx context.Context, text string) (*SearchIntent, error) {
		return nil, errors.New("llm down")
	})
	p := NewFallbackParser(failing, NewRuleParser(), time.Second)
	intent, err := p.Parse(context.Background(), "engineers at Google")
	require.NoError(t, err)
	assert.Equal(t, "rules", intent.ParsedBy)

	slow := funcParser(func(ctx context.Context, text string) (*SearchIntent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p = NewFallbackParser(slow, NewRuleParser(), 10*time.Millisecond)
	intent, err = p.Parse(context.Background(), "kubernetes")
	require.NoError(t, err)
	assert.Equal(t, General, intent.QueryType)

	ok := funcParser(func(ctx context.Context, text string) (*SearchIntent, error) {
		return &SearchIntent{QueryType: General, NaturalLanguage: text, ParsedBy: "llm"}, nil
	})
	p = NewFallbackParser(ok, NewRuleParser(), time.Second)
	intent, err = p.Parse(context.Background(), "engineers at Google")
	require.NoError(t, err)
	assert.Equal(t, "llm", intent.ParsedBy)

	p = NewFallbackParser(nil, NewRuleParser(), 0)
	intent, err = p.Parse(context.Background(), "engineers at Google")
	require.NoError(t, err)
	assert.Equal(t, "rules", intent.ParsedBy)
}
