// Package dedup merges incoming contacts with each other and with the stored
// graph before ingestion, and sweeps stored duplicates during maintenance.
package dedup

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"warmintro/backend/internal/contact"
	"warmintro/backend/internal/graph"
	apperrors "warmintro/backend/pkg/errors"
	"warmintro/backend/pkg/logger"
)

// Store is the subset of the graph adapter the engine needs.
type Store interface {
	FindPersonByEmail(ctx context.Context, ownerID, email string) (*graph.Person, error)
	FindPersonsByFirstName(ctx context.Context, ownerID, firstName string) ([]graph.Person, error)
	FindDuplicateEmailGroups(ctx context.Context, ownerID string) ([]graph.DuplicateGroup, error)
	MergePersons(ctx context.Context, ownerID, canonicalID string, duplicateIDs []string) error
	ListPersonIdentities(ctx context.Context, ownerID string) ([]graph.Person, error)
}

// How an incoming contact was matched to a stored Person.
const (
	MatchedByEmail            = "email"
	MatchedByFirstNameCompany = "first_name_company"
	MatchedByFullNameCompany  = "full_name_company"
)

// Resolved is one canonical contact ready for upsert.
type Resolved struct {
	Contact   contact.Contact `json:"contact"`
	Sources   []string        `json:"sources"`
	PersonID  string          `json:"person_id,omitempty"`
	Existing  bool            `json:"existing"`
	MatchedBy string          `json:"matched_by,omitempty"`
}

// Result is the outcome of deduplicating one batch.
type Result struct {
	Contacts []Resolved `json:"contacts"`
	Received int        `json:"received"`
	Dropped  int        `json:"dropped"`
	Failed   int        `json:"failed"`
	Inserts  int        `json:"inserts"`
	Updates  int        `json:"updates"`
}

// CandidateGroup is a set of Persons that look like the same individual by
// first name and company. Candidates are reported, never merged.
type CandidateGroup struct {
	FirstName string   `json:"first_name"`
	Company   string   `json:"company"`
	PersonIDs []string `json:"person_ids"`
	Emails    []string `json:"emails"`
}

// SweepReport is the outcome of a duplicate sweep.
type SweepReport struct {
	EmailGroups int              `json:"email_groups"`
	Merged      int              `json:"merged"`
	Failed      int              `json:"failed"`
	Candidates  []CandidateGroup `json:"candidates"`
}

// Engine deduplicates contacts against one owner's graph.
type Engine struct {
	store             Store
	placeholderSuffix string
	companyMode       contact.MatchMode
	policy            Policy
	logger            *zap.Logger
}

// NewEngine creates a deduplication engine. An invalid policy falls back to
// DefaultPolicy.
func NewEngine(store Store, placeholderSuffix string, companyMode contact.MatchMode, policy Policy) *Engine {
	log := logger.Named("dedup")
	if policy == nil {
		policy = DefaultPolicy
	}
	if err := policy.Validate(); err != nil {
		log.Warn("Invalid merge policy, using default", zap.Error(err))
		policy = DefaultPolicy
	}
	if companyMode == "" {
		companyMode = contact.MatchExact
	}
	return &Engine{
		store:             store,
		placeholderSuffix: placeholderSuffix,
		companyMode:       companyMode,
		policy:            policy,
		logger:            log,
	}
}

// Deduplicate collapses the batch by email, then resolves each record against
// the stored graph: exact email, then first name and company, then full name
// and company. Unmatched placeholder contacts are dropped. A lookup that fails
// for one record is logged and skips that record; an unreachable store aborts.
func (e *Engine) Deduplicate(ctx context.Context, contacts []contact.Contact, ownerID string) (*Result, error) {
	result := &Result{Received: len(contacts), Contacts: make([]Resolved, 0, len(contacts))}

	batch, invalid := collapseBatch(contacts)
	result.Dropped += invalid

	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewContextCancelled("deduplicate", err)
		}

		resolved, ok, err := e.resolve(ctx, ownerID, rec)
		if err != nil {
			if apperrors.IsRetryable(err) {
				return nil, err
			}
			result.Failed++
			e.logger.Warn("Dedup lookup failed, skipping contact",
				zap.String("owner_id", ownerID),
				zap.String("email", rec.Contact.Email),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			result.Dropped++
			e.logger.Debug("Dropping unmatched placeholder contact",
				zap.String("owner_id", ownerID),
				zap.String("email", rec.Contact.Email),
			)
			continue
		}

		if resolved.Existing {
			result.Updates++
		} else {
			result.Inserts++
		}
		result.Contacts = append(result.Contacts, resolved)
	}

	e.logger.Info("Batch deduplicated",
		zap.String("owner_id", ownerID),
		zap.Int("received", result.Received),
		zap.Int("unique", len(result.Contacts)),
		zap.Int("inserts", result.Inserts),
		zap.Int("updates", result.Updates),
		zap.Int("dropped", result.Dropped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// resolve returns ok=false when the record must be dropped.
func (e *Engine) resolve(ctx context.Context, ownerID string, rec Record) (Resolved, bool, error) {
	c := rec.Contact

	if !contact.IsPlaceholder(c.Email, e.placeholderSuffix) {
		existing, err := e.store.FindPersonByEmail(ctx, ownerID, c.Email)
		if err != nil {
			return Resolved{}, false, err
		}
		if existing == nil {
			return Resolved{Contact: c, Sources: rec.Sources}, true, nil
		}
		return e.mergeInto(*existing, rec, MatchedByEmail), true, nil
	}

	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.Company) == "" {
		return Resolved{}, false, nil
	}

	people, err := e.store.FindPersonsByFirstName(ctx, ownerID, c.FirstName)
	if err != nil {
		return Resolved{}, false, err
	}

	var sameCompany []graph.Person
	for _, p := range people {
		if contact.SameCompany(p.Company, c.Company, e.companyMode) {
			sameCompany = append(sameCompany, p)
		}
	}

	switch {
	case len(sameCompany) == 0:
		return Resolved{}, false, nil
	case len(sameCompany) == 1:
		return e.mergeInto(sameCompany[0], rec, MatchedByFirstNameCompany), true, nil
	}

	// Several people share first name and company. The last name narrows it
	// down; otherwise the oldest Person wins.
	if last := strings.ToLower(strings.TrimSpace(c.LastName)); last != "" {
		for _, p := range sameCompany {
			if strings.ToLower(strings.TrimSpace(p.LastName)) == last {
				return e.mergeInto(p, rec, MatchedByFullNameCompany), true, nil
			}
		}
	}
	e.logger.Debug("Ambiguous fuzzy match, using oldest person",
		zap.String("owner_id", ownerID),
		zap.String("first_name", c.FirstName),
		zap.Int("candidates", len(sameCompany)),
	)
	return e.mergeInto(sameCompany[0], rec, MatchedByFirstNameCompany), true, nil
}

func (e *Engine) mergeInto(p graph.Person, rec Record, matchedBy string) Resolved {
	merged := e.policy.Apply(recordFromPerson(p), rec)
	return Resolved{
		Contact:   merged.Contact,
		Sources:   merged.Sources,
		PersonID:  p.ID,
		Existing:  true,
		MatchedBy: matchedBy,
	}
}

func recordFromPerson(p graph.Person) Record {
	return Record{
		Contact: contact.Contact{
			Email:       p.Email,
			Name:        p.Name,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Phone:       p.Phone,
			Company:     p.Company,
			Title:       p.Title,
			LinkedInURL: p.LinkedInURL,
			Location:    p.Location,
		},
		Sources: p.Sources,
	}
}

// collapseBatch merges records sharing a normalized email, keeping first-seen
// order. Records without an email are counted as invalid.
func collapseBatch(contacts []contact.Contact) ([]Record, int) {
	index := make(map[string]int, len(contacts))
	out := make([]Record, 0, len(contacts))
	invalid := 0

	for _, c := range contacts {
		email := contact.NormalizeEmail(c.Email)
		if email == "" {
			invalid++
			continue
		}
		c.Email = email
		rec := Record{Contact: c, Sources: contact.CanonicalSources([]string{c.Source})}

		i, seen := index[email]
		if !seen {
			index[email] = len(out)
			out = append(out, rec)
			continue
		}
		prev := out[i]
		merged := BatchPolicy.Apply(prev, rec)
		merged.Contact.Activity = prev.Contact.Activity.Merge(c.Activity)
		if strings.TrimSpace(c.Source) == "" {
			merged.Contact.Source = prev.Contact.Source
		}
		out[i] = merged
	}
	return out, invalid
}

// FindAndMergeDuplicates merges Persons sharing an exact email into the oldest
// one and reports first-name/company look-alikes without merging them. A
// failed merge is logged and the sweep continues.
func (e *Engine) FindAndMergeDuplicates(ctx context.Context, ownerID string) (*SweepReport, error) {
	groups, err := e.store.FindDuplicateEmailGroups(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{EmailGroups: len(groups), Candidates: []CandidateGroup{}}
	for _, g := range groups {
		if len(g.PersonIDs) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewContextCancelled("merge duplicates", err)
		}
		canonical, dups := g.PersonIDs[0], g.PersonIDs[1:]
		if err := e.store.MergePersons(ctx, ownerID, canonical, dups); err != nil {
			report.Failed++
			e.logger.Error("Failed to merge duplicate persons",
				zap.String("owner_id", ownerID),
				zap.String("email", g.Email),
				zap.Error(err),
			)
			continue
		}
		report.Merged += len(dups)
	}

	people, err := e.store.ListPersonIdentities(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	report.Candidates = e.candidateGroups(people)

	e.logger.Info("Duplicate sweep finished",
		zap.String("owner_id", ownerID),
		zap.Int("email_groups", report.EmailGroups),
		zap.Int("merged", report.Merged),
		zap.Int("failed", report.Failed),
		zap.Int("candidates", len(report.Candidates)),
	)
	return report, nil
}

// candidateGroups groups people by lower-cased first name and company key.
func (e *Engine) candidateGroups(people []graph.Person) []CandidateGroup {
	type key struct{ first, company string }
	byKey := make(map[key]*CandidateGroup)
	var order []key

	for _, p := range people {
		first := strings.ToLower(strings.TrimSpace(p.FirstName))
		company := contact.CompanyKey(p.Company, e.companyMode)
		if first == "" || company == "" {
			continue
		}
		k := key{first, company}
		g, ok := byKey[k]
		if !ok {
			g = &CandidateGroup{FirstName: first, Company: company}
			byKey[k] = g
			order = append(order, k)
		}
		g.PersonIDs = append(g.PersonIDs, p.ID)
		g.Emails = append(g.Emails, p.Email)
	}

	out := []CandidateGroup{}
	for _, k := range order {
		if g := byKey[k]; len(g.PersonIDs) > 1 {
			out = append(out, *g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].PersonIDs) > len(out[j].PersonIDs)
	})
	return out
}
