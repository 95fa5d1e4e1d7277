package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"warmintro/backend/internal/contact"
)

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy.Validate())
	assert.NoError(t, BatchPolicy.Validate())

	assert.Error(t, Policy{{Field: "nickname", Rule: PreferIncoming}}.Validate())
	assert.Error(t, Policy{{Field: FieldTitle, Rule: UnionSet}}.Validate())
	assert.Error(t, Policy{{Field: FieldSources, Rule: PreferExisting}}.Validate())
}

func TestDefaultPolicy_IncomingWinsExceptEmail(t *testing.T) {
	existing := Record{
		Contact: contact.Contact{
			Email:   "john@acme.com",
			Name:    "John Doe",
			Title:   "Engineer",
			Company: "Acme",
			Phone:   "555-0100",
		},
		Sources: []string{"mail"},
	}
	incoming := Record{
		Contact: contact.Contact{
			Email:     "john.doe@linkedin.placeholder",
			FirstName: "John",
			Title:     "Staff Engineer",
			Company:   "Acme",
			Source:    "linkedin",
		},
		Sources: []string{"linkedin"},
	}

	out := DefaultPolicy.Apply(existing, incoming)

	assert.Equal(t, "john@acme.com", out.Contact.Email)
	assert.Equal(t, "John Doe", out.Contact.Name)
	assert.Equal(t, "John", out.Contact.FirstName)
	assert.Equal(t, "Staff Engineer", out.Contact.Title)
	assert.Equal(t, "555-0100", out.Contact.Phone)
	assert.Equal(t, "linkedin", out.Contact.Source)
	assert.Equal(t, []string{"mail", "linkedin"}, out.Sources)

	// Inputs are untouched.
	assert.Equal(t, "Engineer", existing.Contact.Title)
	assert.Equal(t, []string{"mail"}, existing.Sources)
}

func TestPolicy_PreferExistingFillsGaps(t *testing.T) {
	p := Policy{{Field: FieldTitle, Rule: PreferExisting}}

	out := p.Apply(
		Record{Contact: contact.Contact{Title: "CTO"}},
		Record{Contact: contact.Contact{Title: "Intern"}},
	)
	assert.Equal(t, "CTO", out.Contact.Title)

	out = p.Apply(
		Record{Contact: contact.Contact{}},
		Record{Contact: contact.Contact{Title: "Intern"}},
	)
	assert.Equal(t, "Intern", out.Contact.Title)
}

func TestPolicy_UnlistedFieldsKeepExisting(t *testing.T) {
	p := Policy{{Field: FieldName, Rule: PreferIncoming}}
	out := p.Apply(
		Record{Contact: contact.Contact{Name: "Old", Company: "Kept"}},
		Record{Contact: contact.Contact{Name: "New", Company: "Ignored"}},
	)
	assert.Equal(t, "New", out.Contact.Name)
	assert.Equal(t, "Kept", out.Contact.Company)
}

func TestCollapseBatch(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	batch, invalid := collapseBatch([]contact.Contact{
		{Email: "a@x.com", Source: "gmail", Activity: &contact.Activity{EmailsSent: 1, FirstSeen: t2, LastSeen: t2}},
		{Email: " ", Source: "csv"},
		{Email: "b@x.com", Name: "Bee", Source: "csv"},
		{Email: "A@X.com", Company: "Acme", Title: "PM", Source: "calendar", Activity: &contact.Activity{Meetings: 2, FirstSeen: t1, LastSeen: t1}},
		{Email: "a@x.com", Title: "Director"},
	})

	assert.Equal(t, 1, invalid)
	if assert.Len(t, batch, 2) {
		a := batch[0]
		assert.Equal(t, "a@x.com", a.Contact.Email)
		assert.Equal(t, "Acme", a.Contact.Company)
		assert.Equal(t, "Director", a.Contact.Title)
		assert.Equal(t, "calendar", a.Contact.Source)
		assert.Equal(t, []string{"mail", "calendar"}, a.Sources)
		if assert.NotNil(t, a.Contact.Activity) {
			assert.Equal(t, 1, a.Contact.Activity.EmailsSent)
			assert.Equal(t, 2, a.Contact.Activity.Meetings)
			assert.Equal(t, t1, a.Contact.Activity.FirstSeen)
			assert.Equal(t, t2, a.Contact.Activity.LastSeen)
		}
		assert.Equal(t, "b@x.com", batch[1].Contact.Email)
	}
}
