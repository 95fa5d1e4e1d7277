package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	ok := &Plan{Kind: KindPersonSearch, OwnerID: "u1", Degree: 2, Sort: SortStrength}
	assert.NoError(t, ok.Validate())

	cases := map[string]*Plan{
		"missing owner":   {Kind: KindGeneral, Text: "x"},
		"degree too high": {Kind: KindPersonSearch, OwnerID: "u1", Degree: 4},
		"degree zero":     {Kind: KindPersonSearch, OwnerID: "u1"},
		"intro no target": {Kind: KindIntroPath, OwnerID: "u1"},
		"general no text": {Kind: KindGeneral, OwnerID: "u1", Text: "  "},
		"unknown kind":    {Kind: "graph_dump", OwnerID: "u1"},
		"empty filter":    {Kind: KindCompanySearch, OwnerID: "u1", Filters: []Predicate{{Field: FieldName}}},
	}
	for name, p := range cases {
		assert.Error(t, p.Validate(), name)
	}
}

func TestFilterAndLimit(t *testing.T) {
	p := &Plan{Filters: []Predicate{{Field: FieldTitle, AnyOf: []string{"engineer"}}}}

	f, ok := p.Filter(FieldTitle)
	assert.True(t, ok)
	assert.Equal(t, []string{"engineer"}, f.AnyOf)

	_, ok = p.Filter(FieldCompany)
	assert.False(t, ok)

	assert.Equal(t, DefaultLimit, p.EffectiveLimit())
	p.Limit = 5
	assert.Equal(t, 5, p.EffectiveLimit())
}
