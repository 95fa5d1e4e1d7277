package graph

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"warmintro/backend/internal/contact"
)

// ============================================================================
// Person Operations
// ============================================================================

// maxColleagueLinks caps COLLEAGUES_WITH edges created per upsert.
const maxColleagueLinks = 50

// UpsertResult reports what an upsert touched.
type UpsertResult struct {
	PersonID string `json:"person_id"`
	Created  bool   `json:"created"`
	Company  string `json:"company,omitempty"`
}

// UpsertContact merges a deduplicated contact into the owner's graph as one
// transaction: Person by (email, owner), KNOWS counters accumulate, sources are
// unioned, and the company is resolved by domain then by name. Strength is not
// touched here.
func (r *Repository) UpsertContact(ctx context.Context, ownerID string, c contact.Contact, sources []string) (*UpsertResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	email := contact.NormalizeEmail(c.Email)
	params := map[string]interface{}{
		"ownerID":      ownerID,
		"email":        email,
		"newID":        uuid.New().String(),
		"name":         nullIfEmpty(c.FullName()),
		"firstName":    nullIfEmpty(c.FirstName),
		"lastName":     nullIfEmpty(c.LastName),
		"phone":        nullIfEmpty(c.Phone),
		"title":        nullIfEmpty(c.Title),
		"company":      nullIfEmpty(c.Company),
		"location":     nullIfEmpty(c.Location),
		"linkedinURL":  nullIfEmpty(c.LinkedInURL),
		"source":       nullIfEmpty(contact.CanonicalSource(c.Source)),
		"sources":      contact.CanonicalSources(append(append([]string{}, sources...), c.Source)),
		"sent":         0,
		"received":     0,
		"meetings":     0,
		"interactions": 0,
		"firstSeen":    nil,
		"lastSeen":     nil,
	}
	if a := c.Activity; a != nil {
		params["sent"] = a.EmailsSent
		params["received"] = a.EmailsReceived
		params["meetings"] = a.Meetings
		params["interactions"] = a.Interactions()
		params["firstSeen"] = timeParam(&a.FirstSeen)
		params["lastSeen"] = timeParam(&a.LastSeen)
	}

	personQuery := `
		MERGE (u:User {id: $ownerID})
		ON CREATE SET u.created_at = datetime()
		MERGE (p:Person {email: $email, owner_id: $ownerID})
		ON CREATE SET p.id = $newID,
		              p.created_at = datetime(),
		              p.sources = []
		SET p.updated_at = datetime(),
		    p.name = coalesce($name, p.name),
		    p.first_name = coalesce($firstName, p.first_name),
		    p.last_name = coalesce($lastName, p.last_name),
		    p.first_name_lower = toLower(coalesce($firstName, p.first_name, '')),
		    p.phone = coalesce($phone, p.phone),
		    p.title = coalesce($title, p.title),
		    p.company = coalesce($company, p.company),
		    p.location = coalesce($location, p.location),
		    p.linkedin_url = coalesce($linkedinURL, p.linkedin_url),
		    p.sources = coalesce(p.sources, []) + [s IN $sources WHERE NOT s IN coalesce(p.sources, [])]
		MERGE (u)-[k:KNOWS]->(p)
		ON CREATE SET k.interaction_count = 0,
		              k.emails_sent = 0,
		              k.emails_received = 0,
		              k.meeting_count = 0,
		              k.strength = 0.0,
		              k.created_at = datetime()
		SET k.interaction_count = k.interaction_count + $interactions,
		    k.emails_sent = k.emails_sent + $sent,
		    k.emails_received = k.emails_received + $received,
		    k.meeting_count = k.meeting_count + $meetings,
		    k.first_contact = CASE
		        WHEN $firstSeen IS NULL THEN k.first_contact
		        WHEN k.first_contact IS NULL OR datetime($firstSeen) < k.first_contact THEN datetime($firstSeen)
		        ELSE k.first_contact END,
		    k.last_contact = CASE
		        WHEN $lastSeen IS NULL THEN k.last_contact
		        WHEN k.last_contact IS NULL OR datetime($lastSeen) > k.last_contact THEN datetime($lastSeen)
		        ELSE k.last_contact END,
		    k.source = coalesce($source, k.source)
		RETURN p.id as id, p.id = $newID as created, p.company as company
	`

	domain := contact.CompanyDomain(email)
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, personQuery, params)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}

		res := &UpsertResult{
			PersonID: getStringFromRecord(record, "id"),
			Company:  getStringFromRecord(record, "company"),
		}
		if created, ok := record.Get("created"); ok {
			res.Created, _ = created.(bool)
		}

		if err := r.linkCompany(ctx, tx, res.PersonID, domain, res.Company); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return nil, wrapErr("upsert contact", err)
	}

	res := out.(*UpsertResult)
	r.logger.Debug("Contact upserted",
		zap.String("owner_id", ownerID),
		zap.String("person_id", res.PersonID),
		zap.Bool("created", res.Created),
	)
	return res, nil
}

// linkCompany resolves the Person's company, preferring the email domain,
// and merges WORKS_AT. Domain matches also link colleagues across owners.
func (r *Repository) linkCompany(ctx context.Context, tx neo4j.ManagedTransaction, personID, domain, company string) error {
	company = strings.TrimSpace(company)
	switch {
	case domain != "":
		name := company
		if name == "" {
			name = domain
		}
		// A domainless Company created from a personal-mail contact is
		// adopted by the first contact that brings its domain.
		query := `
			MATCH (p:Person {id: $personID})
			OPTIONAL MATCH (known:Company {domain: $domain})
			OPTIONAL MATCH (orphan:Company {name_key: $companyKey})
			WHERE known IS NULL AND orphan.domain IS NULL
			WITH p, known, orphan ORDER BY orphan.created_at LIMIT 1
			FOREACH (_ IN CASE WHEN known IS NULL AND orphan IS NOT NULL THEN [1] ELSE [] END |
				SET orphan.domain = $domain)
			WITH p
			MERGE (c:Company {domain: $domain})
			ON CREATE SET c.name = $name,
			              c.name_key = $nameKey,
			              c.created_at = datetime()
			WITH p, c, (c.name = c.domain AND $company IS NOT NULL) AS rename
			SET c.name = CASE WHEN rename THEN $company ELSE c.name END,
			    c.name_key = CASE WHEN rename THEN $companyKey ELSE c.name_key END
			MERGE (p)-[:WORKS_AT]->(c)
			WITH p, c
			MATCH (c)<-[:WORKS_AT]-(other:Person)
			WHERE other <> p AND NOT (p)-[:COLLEAGUES_WITH]-(other)
			WITH p, other LIMIT $maxLinks
			MERGE (p)-[:COLLEAGUES_WITH]->(other)
		`
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"personID":   personID,
			"domain":     domain,
			"name":       name,
			"nameKey":    contact.CompanyKey(name, r.companyMode),
			"company":    nullIfEmpty(company),
			"companyKey": r.companyKeyParam(company),
			"maxLinks":   maxColleagueLinks,
		})
		return err
	case company != "":
		query := `
			MATCH (p:Person {id: $personID})
			OPTIONAL MATCH (existing:Company {name_key: $nameKey})
			WITH p, existing ORDER BY existing.created_at LIMIT 1
			FOREACH (_ IN CASE WHEN existing IS NULL THEN [1] ELSE [] END |
				CREATE (:Company {name: $company, name_key: $nameKey, created_at: datetime()}))
			WITH p
			MATCH (c:Company {name_key: $nameKey})
			WITH p, c ORDER BY c.created_at LIMIT 1
			MERGE (p)-[:WORKS_AT]->(c)
		`
		_, err := tx.Run(ctx, query, map[string]interface{}{
			"personID": personID,
			"company":  company,
			"nameKey":  contact.CompanyKey(company, r.companyMode),
		})
		return err
	}
	return nil
}

// FindPersonByEmail looks up the owner's Person by exact email.
func (r *Repository) FindPersonByEmail(ctx context.Context, ownerID, email string) (*Person, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (p:Person {email: $email, owner_id: $ownerID})
		RETURN properties(p) as person
		ORDER BY p.created_at
		LIMIT 1
	`
	records, err := r.read(ctx, "find person by email", query, map[string]interface{}{
		"ownerID": ownerID,
		"email":   contact.NormalizeEmail(email),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	p, _ := personFromRecord(records[0], "person")
	return &p, nil
}

// FindPersonsByFirstName returns the owner's Persons whose first name matches
// case-insensitively, oldest first. Company and last-name comparison is left
// to the caller so match strictness stays configurable.
func (r *Repository) FindPersonsByFirstName(ctx context.Context, ownerID, firstName string) ([]Person, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (p:Person {owner_id: $ownerID})
		WHERE p.first_name_lower = $firstName
		RETURN properties(p) as person
		ORDER BY p.created_at
	`
	records, err := r.read(ctx, "find persons by first name", query, map[string]interface{}{
		"ownerID":   ownerID,
		"firstName": strings.ToLower(strings.TrimSpace(firstName)),
	})
	if err != nil {
		return nil, err
	}
	return personsFromRecords(records), nil
}

// FindPersonByName resolves a person by fuzzy name among the owner's direct
// connections and the people they can reach. The first match wins: exact name,
// then prefix, then substring, strongest connection first.
func (r *Repository) FindPersonByName(ctx context.Context, ownerID, name string) (*Person, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (p:Person)
		WHERE toLower(p.name) CONTAINS $name
		OPTIONAL MATCH (:User {id: $ownerID})-[k:KNOWS]->(p)
		WITH p, k,
		     CASE
		         WHEN toLower(p.name) = $name THEN 0
		         WHEN toLower(p.name) STARTS WITH $name THEN 1
		         ELSE 2
		     END as rank
		RETURN properties(p) as person
		ORDER BY rank, CASE WHEN p.owner_id = $ownerID THEN 0 ELSE 1 END, coalesce(k.strength, 0) DESC, p.created_at
		LIMIT 1
	`
	records, err := r.read(ctx, "find person by name", query, map[string]interface{}{
		"ownerID": ownerID,
		"name":    strings.ToLower(strings.TrimSpace(name)),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	p, _ := personFromRecord(records[0], "person")
	return &p, nil
}

// ListPersonIdentities returns every Person owned by ownerID, oldest first.
func (r *Repository) ListPersonIdentities(ctx context.Context, ownerID string) ([]Person, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		MATCH (p:Person {owner_id: $ownerID})
		RETURN properties(p) as person
		ORDER BY p.created_at
	`
	records, err := r.read(ctx, "list person identities", query, map[string]interface{}{
		"ownerID": ownerID,
	})
	if err != nil {
		return nil, err
	}
	return personsFromRecords(records), nil
}

func personsFromRecords(records []*neo4j.Record) []Person {
	people := make([]Person, 0, len(records))
	for _, rec := range records {
		if p, ok := personFromRecord(rec, "person"); ok {
			people = append(people, p)
		}
	}
	return people
}

// companyKeyParam is the name_key for a company name, or nil when the name
// is empty so it never matches.
func (r *Repository) companyKeyParam(name string) interface{} {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return contact.CompanyKey(name, r.companyMode)
}

func nullIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.TrimSpace(s)
}
