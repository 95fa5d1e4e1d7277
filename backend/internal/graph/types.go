package graph

import "time"

// ============================================================================
// Graph Labels and Relationship Types
// ============================================================================

const (
	LabelUser    = "User"
	LabelPerson  = "Person"
	LabelCompany = "Company"

	RelKnows          = "KNOWS"
	RelWorksAt        = "WORKS_AT"
	RelColleaguesWith = "COLLEAGUES_WITH"
)

// ============================================================================
// Node Types
// ============================================================================

// Person is a contact known to a specific owner. (Email, OwnerID) is unique.
type Person struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Title       string     `json:"title,omitempty"`
	Company     string     `json:"company,omitempty"`
	Location    string     `json:"location,omitempty"`
	LinkedInURL string     `json:"linkedin_url,omitempty"`
	Bio         string     `json:"bio,omitempty"`
	Sources     []string   `json:"sources,omitempty"`
	EnrichedAt  *time.Time `json:"enriched_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Company is an organization matched by domain, falling back to name.
type Company struct {
	Name           string     `json:"name"`
	Domain         string     `json:"domain,omitempty"`
	Industry       string     `json:"industry,omitempty"`
	Size           string     `json:"size,omitempty"`
	Location       string     `json:"location,omitempty"`
	EnrichedAt     *time.Time `json:"enriched_at,omitempty"`
	EnrichAttempts int        `json:"enrich_attempts,omitempty"`
}

// CompanyEnrichment carries provider data. Empty fields are ignored and
// populated fields on the Company are never overwritten.
type CompanyEnrichment struct {
	Name     string `json:"name,omitempty"`
	Industry string `json:"industry,omitempty"`
	Size     string `json:"size,omitempty"`
	Location string `json:"location,omitempty"`
}

// Node is the lightweight view of any node used by traversals.
type Node struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	OwnerID string `json:"owner_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
}

// ============================================================================
// Relationship Types
// ============================================================================

// ScoreBreakdown is the cached per-signal score stored on a KNOWS edge.
type ScoreBreakdown struct {
	Recency     float64 `json:"recency"`
	Frequency   float64 `json:"frequency"`
	Reciprocity float64 `json:"reciprocity"`
	Diversity   float64 `json:"diversity"`
	Duration    float64 `json:"duration"`
}

// KnowsEdge is the scored User -> Person relationship with its raw counters.
type KnowsEdge struct {
	OwnerID          string          `json:"owner_id"`
	PersonID         string          `json:"person_id"`
	Email            string          `json:"email"`
	Name             string          `json:"name,omitempty"`
	Strength         float64         `json:"strength"`
	InteractionCount int             `json:"interaction_count"`
	EmailsSent       int             `json:"emails_sent"`
	EmailsReceived   int             `json:"emails_received"`
	MeetingCount     int             `json:"meeting_count"`
	FirstContact     *time.Time      `json:"first_contact,omitempty"`
	LastContact      *time.Time      `json:"last_contact,omitempty"`
	Source           string          `json:"source,omitempty"`
	Sources          []string        `json:"sources,omitempty"`
	Breakdown        *ScoreBreakdown `json:"breakdown,omitempty"`
}

// Hop is one undirected edge step discovered while expanding a frontier.
// Strength is set only for KNOWS edges.
type Hop struct {
	From     Node     `json:"from"`
	To       Node     `json:"to"`
	Type     string   `json:"type"`
	Strength *float64 `json:"strength,omitempty"`
}

// Connection is a direct KNOWS relationship of an owner.
type Connection struct {
	Person   Node    `json:"person"`
	Strength float64 `json:"strength"`
}

// ============================================================================
// Result Types
// ============================================================================

// NetworkStats aggregates an owner's subgraph.
type NetworkStats struct {
	TotalContacts int            `json:"total_contacts"`
	Companies     int            `json:"companies"`
	Sources       map[string]int `json:"sources"`
	AvgStrength   float64        `json:"avg_strength"`
}

// PersonResult is a person-shaped search hit.
type PersonResult struct {
	Person      Person     `json:"person"`
	Strength    float64    `json:"strength"`
	LastContact *time.Time `json:"last_contact,omitempty"`
	Degree      int        `json:"degree"`
	Via         *Node      `json:"via,omitempty"`
	Industry    string     `json:"industry,omitempty"`
	Relevance   float64    `json:"relevance,omitempty"`
}

// RosterEntry is one owned contact working at a matched company.
type RosterEntry struct {
	PersonID string  `json:"person_id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Title    string  `json:"title,omitempty"`
	Strength float64 `json:"strength"`
}

// CompanyResult is a company-shaped search hit with its roster.
type CompanyResult struct {
	Company  Company       `json:"company"`
	Contacts []RosterEntry `json:"contacts"`
}

// PlanResult holds whichever result shape the executed plan produced.
type PlanResult struct {
	People    []PersonResult  `json:"people,omitempty"`
	Companies []CompanyResult `json:"companies,omitempty"`
}

// Total returns the number of result records.
func (r *PlanResult) Total() int {
	if r == nil {
		return 0
	}
	return len(r.People) + len(r.Companies)
}

// DuplicateGroup lists Person ids sharing an email within one owner, oldest
// first.
type DuplicateGroup struct {
	Email     string   `json:"email"`
	PersonIDs []string `json:"person_ids"`
}

// StaleRelationship is a fading KNOWS edge.
type StaleRelationship struct {
	PersonID    string    `json:"person_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Company     string    `json:"company,omitempty"`
	Strength    float64   `json:"strength"`
	LastContact time.Time `json:"last_contact"`
}
