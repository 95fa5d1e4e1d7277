package dedup

import (
	"fmt"
	"strings"

	"warmintro/backend/internal/contact"
)

// Rule decides how one field of two records combines.
type Rule int

const (
	// PreferIncoming takes the incoming value when it is non-empty.
	PreferIncoming Rule = iota
	// PreferExisting keeps the existing value when it is non-empty.
	PreferExisting
	// UnionSet merges both sets, existing order first.
	UnionSet
)

func (r Rule) String() string {
	switch r {
	case PreferIncoming:
		return "prefer_incoming"
	case PreferExisting:
		return "prefer_existing"
	case UnionSet:
		return "union_set"
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// Field names understood by a Policy.
const (
	FieldEmail       = "email"
	FieldName        = "name"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldPhone       = "phone"
	FieldCompany     = "company"
	FieldTitle       = "title"
	FieldLinkedInURL = "linkedin_url"
	FieldLocation    = "location"
	FieldSources     = "sources"
)

// FieldRule pairs a field with its merge rule.
type FieldRule struct {
	Field string
	Rule  Rule
}

// Policy is evaluated in order; fields it does not list keep the existing
// value.
type Policy []FieldRule

// Record is a contact together with its accumulated provenance tags.
type Record struct {
	Contact contact.Contact
	Sources []string
}

// DefaultPolicy merges an incoming observation into a stored Person: every
// field is overwritten by a non-empty incoming value except the email, which
// always stays the stored identity.
var DefaultPolicy = Policy{
	{FieldEmail, PreferExisting},
	{FieldName, PreferIncoming},
	{FieldFirstName, PreferIncoming},
	{FieldLastName, PreferIncoming},
	{FieldPhone, PreferIncoming},
	{FieldCompany, PreferIncoming},
	{FieldTitle, PreferIncoming},
	{FieldLinkedInURL, PreferIncoming},
	{FieldLocation, PreferIncoming},
	{FieldSources, UnionSet},
}

// BatchPolicy collapses records with the same email inside one batch: the
// last non-empty value of every field wins.
var BatchPolicy = Policy{
	{FieldEmail, PreferIncoming},
	{FieldName, PreferIncoming},
	{FieldFirstName, PreferIncoming},
	{FieldLastName, PreferIncoming},
	{FieldPhone, PreferIncoming},
	{FieldCompany, PreferIncoming},
	{FieldTitle, PreferIncoming},
	{FieldLinkedInURL, PreferIncoming},
	{FieldLocation, PreferIncoming},
	{FieldSources, UnionSet},
}

var stringFields = map[string]func(*contact.Contact) *string{
	FieldEmail:       func(c *contact.Contact) *string { return &c.Email },
	FieldName:        func(c *contact.Contact) *string { return &c.Name },
	FieldFirstName:   func(c *contact.Contact) *string { return &c.FirstName },
	FieldLastName:    func(c *contact.Contact) *string { return &c.LastName },
	FieldPhone:       func(c *contact.Contact) *string { return &c.Phone },
	FieldCompany:     func(c *contact.Contact) *string { return &c.Company },
	FieldTitle:       func(c *contact.Contact) *string { return &c.Title },
	FieldLinkedInURL: func(c *contact.Contact) *string { return &c.LinkedInURL },
	FieldLocation:    func(c *contact.Contact) *string { return &c.Location },
}

var setFields = map[string]func(*Record) *[]string{
	FieldSources: func(r *Record) *[]string { return &r.Sources },
}

// Validate reports fields the policy cannot apply.
func (p Policy) Validate() error {
	for _, fr := range p {
		_, isString := stringFields[fr.Field]
		_, isSet := setFields[fr.Field]
		switch {
		case !isString && !isSet:
			return fmt.Errorf("unknown field %q", fr.Field)
		case isString && fr.Rule == UnionSet:
			return fmt.Errorf("field %q is scalar and cannot use %s", fr.Field, fr.Rule)
		case isSet && fr.Rule != UnionSet:
			return fmt.Errorf("field %q is a set and must use %s", fr.Field, UnionSet)
		}
	}
	return nil
}

// Apply merges incoming into existing and returns the result. Neither input
// is modified. Activity and Source always come from incoming, which is the
// observation being written.
func (p Policy) Apply(existing, incoming Record) Record {
	out := Record{
		Contact: existing.Contact,
		Sources: append([]string(nil), existing.Sources...),
	}
	out.Contact.Source = incoming.Contact.Source
	out.Contact.Activity = incoming.Contact.Activity

	for _, fr := range p {
		if get, ok := stringFields[fr.Field]; ok {
			cur := get(&out.Contact)
			in := strings.TrimSpace(*get(&incoming.Contact))
			switch fr.Rule {
			case PreferIncoming:
				if in != "" {
					*cur = in
				}
			case PreferExisting:
				if strings.TrimSpace(*cur) == "" {
					*cur = in
				}
			}
			continue
		}
		if get, ok := setFields[fr.Field]; ok && fr.Rule == UnionSet {
			cur := get(&out)
			*cur = contact.CanonicalSources(append(*cur, *get(&incoming)...))
		}
	}
	return out
}
