// Package traversal answers network questions by walking the graph: who is
// reachable through a mutual connection, and how to get introduced.
package traversal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"warmintro/backend/internal/graph"
	"warmintro/backend/pkg/logger"
)

// MaxIntroHops bounds introduction path length.
const MaxIntroHops = 4

// SecondDegree is always the reported degree of a second-degree candidate.
const SecondDegree = 2

// DefaultSecondDegreeLimit applies when the caller sets no limit.
const DefaultSecondDegreeLimit = 50

// PathPolicy decides how non-KNOWS edges count towards path strength.
type PathPolicy string

const (
	// PolicyExclude averages KNOWS edges only; other edges are walked but
	// carry no strength.
	PolicyExclude PathPolicy = "exclude"
	// PolicyZeroFill counts every non-KNOWS edge as strength 0.
	PolicyZeroFill PathPolicy = "zero_fill"
	// PolicyKnowsOnly walks KNOWS edges only.
	PolicyKnowsOnly PathPolicy = "knows_only"
)

// ParsePathPolicy maps a config value to a policy, defaulting to exclude.
func ParsePathPolicy(s string) (PathPolicy, error) {
	switch p := PathPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyExclude, nil
	case PolicyExclude, PolicyZeroFill, PolicyKnowsOnly:
		return p, nil
	}
	return PolicyExclude, fmt.Errorf("unknown path strength policy %q", s)
}

// Store is the subset of the graph adapter the engine needs.
type Store interface {
	DirectConnections(ctx context.Context, ownerID string) ([]graph.Connection, error)
	Neighbors(ctx context.Context, nodeIDs []string, relTypes []string) ([]graph.Hop, error)
	GetNode(ctx context.Context, id string) (*graph.Node, error)
	Stats(ctx context.Context, ownerID string) (*graph.NetworkStats, error)
}

// SecondDegreeOptions narrows second-degree discovery.
type SecondDegreeOptions struct {
	Limit       int
	MinStrength float64
}

// Candidate is a person reachable through one of the owner's connections.
type Candidate struct {
	Person      graph.Node `json:"person"`
	Degree      int        `json:"degree"`
	Via         graph.Node `json:"via"`
	ViaStrength float64    `json:"via_strength"`
}

// PathEdge is one step of an introduction path.
type PathEdge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Type     string   `json:"type"`
	Strength *float64 `json:"strength,omitempty"`
}

// Path is a found introduction path, owner first and target last.
type Path struct {
	Nodes    []graph.Node `json:"nodes"`
	Edges    []PathEdge   `json:"edges"`
	Hops     int          `json:"hops"`
	Strength float64      `json:"strength"`
}

// Engine runs traversals over a Store.
type Engine struct {
	store  Store
	policy PathPolicy
	logger *zap.Logger
}

// NewEngine creates a traversal engine.
func NewEngine(store Store, policy PathPolicy) *Engine {
	if policy == "" {
		policy = PolicyExclude
	}
	return &Engine{
		store:  store,
		policy: policy,
		logger: logger.Named("traversal"),
	}
}

// Policy returns the configured path strength policy.
func (e *Engine) Policy() PathPolicy {
	return e.policy
}

// FindSecondDegree finds people one or two hops beyond the owner's direct
// connections who belong to other owners and are not already known. Only
// connections with strength at least MinStrength are expanded. Results are
// ordered by the mediating connection's strength.
func (e *Engine) FindSecondDegree(ctx context.Context, ownerID string, opts SecondDegreeOptions) ([]Candidate, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSecondDegreeLimit
	}

	direct, err := e.store.DirectConnections(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(direct))
	knownEmails := make(map[string]bool, len(direct))
	mediators := make(map[string]graph.Connection)
	var frontier []string
	for _, c := range direct {
		known[c.Person.ID] = true
		if c.Person.Email != "" {
			knownEmails[strings.ToLower(c.Person.Email)] = true
		}
		if c.Strength >= opts.MinStrength {
			mediators[c.Person.ID] = c
			frontier = append(frontier, c.Person.ID)
		}
	}
	if len(frontier) == 0 {
		return []Candidate{}, nil
	}

	// origin tracks the mediating direct connection of every reached node.
	origin := make(map[string]graph.Connection, len(frontier))
	for id, c := range mediators {
		origin[id] = c
	}
	reached := make(map[string]graph.Node)
	expanded := make(map[string]bool, len(frontier))
	relTypes := []string{graph.RelKnows, graph.RelColleaguesWith}

	for hop := 1; hop <= 2 && len(frontier) > 0; hop++ {
		for _, id := range frontier {
			expanded[id] = true
		}
		hops, err := e.store.Neighbors(ctx, frontier, relTypes)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, h := range hops {
			if h.To.Label != graph.LabelPerson || h.To.ID == "" || known[h.To.ID] {
				continue
			}
			via, ok := origin[h.From.ID]
			if !ok {
				continue
			}
			if cur, seen := origin[h.To.ID]; !seen || via.Strength > cur.Strength {
				origin[h.To.ID] = via
			}
			if _, seen := reached[h.To.ID]; !seen {
				reached[h.To.ID] = h.To
				if !expanded[h.To.ID] {
					next = append(next, h.To.ID)
				}
			}
		}
		frontier = dedupe(next)
	}

	candidates := make([]Candidate, 0, len(reached))
	for id, node := range reached {
		if known[id] || node.OwnerID == ownerID || knownEmails[strings.ToLower(node.Email)] {
			continue
		}
		via := origin[id]
		candidates = append(candidates, Candidate{
			Person:      node,
			Degree:      SecondDegree,
			Via:         via.Person,
			ViaStrength: via.Strength,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ViaStrength != b.ViaStrength {
			return a.ViaStrength > b.ViaStrength
		}
		if a.Person.Name != b.Person.Name {
			return a.Person.Name < b.Person.Name
		}
		return a.Person.ID < b.Person.ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	e.logger.Debug("Second-degree discovery finished",
		zap.String("owner_id", ownerID),
		zap.Int("mediators", len(mediators)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

type parentLink struct {
	prev string
	edge PathEdge
}

// FindIntroPath finds the shortest path by hop count from the owner to the
// target within MaxIntroHops. It returns nil when the target is unknown or
// unreachable; the owner's path to itself is trivial.
func (e *Engine) FindIntroPath(ctx context.Context, ownerID, targetID string) (*Path, error) {
	start, err := e.store.GetNode(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, nil
	}
	if targetID == ownerID {
		return &Path{Nodes: []graph.Node{*start}, Edges: []PathEdge{}}, nil
	}

	relTypes := []string{graph.RelKnows, graph.RelColleaguesWith}
	if e.policy == PolicyKnowsOnly {
		relTypes = []string{graph.RelKnows}
	}

	nodes := map[string]graph.Node{ownerID: *start}
	parents := make(map[string]parentLink)
	frontier := []string{ownerID}

	for depth := 1; depth <= MaxIntroHops && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hops, err := e.store.Neighbors(ctx, frontier, relTypes)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, h := range hops {
			if _, seen := nodes[h.To.ID]; seen || h.To.ID == "" {
				continue
			}
			nodes[h.To.ID] = h.To
			parents[h.To.ID] = parentLink{
				prev: h.From.ID,
				edge: PathEdge{From: h.From.ID, To: h.To.ID, Type: h.Type, Strength: h.Strength},
			}
			if h.To.ID == targetID {
				path := e.buildPath(ownerID, targetID, nodes, parents)
				e.logger.Debug("Intro path found",
					zap.String("owner_id", ownerID),
					zap.String("target_id", targetID),
					zap.Int("hops", path.Hops),
				)
				return path, nil
			}
			next = append(next, h.To.ID)
		}
		frontier = next
	}

	e.logger.Debug("No intro path within bound",
		zap.String("owner_id", ownerID),
		zap.String("target_id", targetID),
	)
	return nil, nil
}

func (e *Engine) buildPath(ownerID, targetID string, nodes map[string]graph.Node, parents map[string]parentLink) *Path {
	var edges []PathEdge
	ids := []string{targetID}
	for cur := targetID; cur != ownerID; {
		link := parents[cur]
		edges = append(edges, link.edge)
		ids = append(ids, link.prev)
		cur = link.prev
	}

	path := &Path{
		Nodes: make([]graph.Node, len(ids)),
		Edges: make([]PathEdge, len(edges)),
		Hops:  len(edges),
	}
	for i := range ids {
		path.Nodes[i] = nodes[ids[len(ids)-1-i]]
	}
	for i := range edges {
		path.Edges[i] = edges[len(edges)-1-i]
	}
	path.Strength = PathStrength(path.Edges, e.policy)
	return path
}

// PathStrength averages edge strengths under policy. A path with nothing to
// average has strength 0.
func PathStrength(edges []PathEdge, policy PathPolicy) float64 {
	var sum float64
	var n int
	for _, edge := range edges {
		switch {
		case edge.Type == graph.RelKnows && edge.Strength != nil:
			sum += *edge.Strength
			n++
		case edge.Type == graph.RelKnows || policy == PolicyZeroFill:
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}

// GetStats aggregates the owner's network.
func (e *Engine) GetStats(ctx context.Context, ownerID string) (*graph.NetworkStats, error) {
	return e.store.Stats(ctx, ownerID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
