package contact

import (
	"strings"
	"time"
)

// Canonical provenance tags
const (
	SourceMail     = "mail"
	SourceContacts = "contacts"
	SourceCalendar = "calendar"
	SourceLinkedIn = "linkedin"
	SourceCSV      = "csv"
)

var sourceAliases = map[string]string{
	"mail":            SourceMail,
	"email":           SourceMail,
	"gmail":           SourceMail,
	"outlook":         SourceMail,
	"contacts":        SourceContacts,
	"google_contacts": SourceContacts,
	"directory":       SourceContacts,
	"calendar":        SourceCalendar,
	"gcal":            SourceCalendar,
	"linkedin":        SourceLinkedIn,
	"csv":             SourceCSV,
}

// Contact is the normalized record every ingestion connector produces.
type Contact struct {
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Company     string    `json:"company,omitempty"`
	Title       string    `json:"title,omitempty"`
	LinkedInURL string    `json:"linkedin_url,omitempty"`
	Location    string    `json:"location,omitempty"`
	Source      string    `json:"source"`
	Activity    *Activity `json:"activity,omitempty"`
}

// Activity holds the raw interaction counters a connector observed.
type Activity struct {
	EmailsSent     int       `json:"emails_sent"`
	EmailsReceived int       `json:"emails_received"`
	Meetings       int       `json:"meetings"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// Interactions is the total number of observed interactions.
func (a *Activity) Interactions() int {
	if a == nil {
		return 0
	}
	return a.EmailsSent + a.EmailsReceived + a.Meetings
}

// Merge accumulates other into a copy of a. Counts add up, first/last
// timestamps keep their extremes.
func (a *Activity) Merge(other *Activity) *Activity {
	switch {
	case a == nil && other == nil:
		return nil
	case a == nil:
		cp := *other
		return &cp
	case other == nil:
		cp := *a
		return &cp
	}

	out := &Activity{
		EmailsSent:     a.EmailsSent + other.EmailsSent,
		EmailsReceived: a.EmailsReceived + other.EmailsReceived,
		Meetings:       a.Meetings + other.Meetings,
		FirstSeen:      a.FirstSeen,
		LastSeen:       a.LastSeen,
	}
	if out.FirstSeen.IsZero() || (!other.FirstSeen.IsZero() && other.FirstSeen.Before(out.FirstSeen)) {
		out.FirstSeen = other.FirstSeen
	}
	if other.LastSeen.After(out.LastSeen) {
		out.LastSeen = other.LastSeen
	}
	return out
}

// FullName returns Name, or first and last name joined, or "".
func (c Contact) FullName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// DisplayName returns the best available human-readable name.
func (c Contact) DisplayName() string {
	if n := c.FullName(); n != "" {
		return n
	}
	return c.Email
}

// NormalizeEmail lower-cases and trims an address for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanonicalSource maps connector-specific tags onto the canonical set.
// Unknown tags are lower-cased and kept as-is.
func CanonicalSource(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	if c, ok := sourceAliases[t]; ok {
		return c
	}
	return t
}

// CanonicalSources canonicalizes and de-duplicates a tag list, preserving
// first-seen order.
func CanonicalSources(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		c := CanonicalSource(tag)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
