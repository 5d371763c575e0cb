package explorer

import (
	"fmt"
	"sort"
	"strings"
)

// Sort keys accepted by RelationshipQuery.Sort.
const (
	SortAsymmetry    = "asymmetry"
	SortProbability  = "p_broader_given_narrower"
	SortCooccurrence = "cooc_count"
	SortNarrower     = "narrower_name"
	SortBroader      = "broader_name"
)

// SortKeys lists the accepted sort keys.
var SortKeys = []string{SortAsymmetry, SortProbability, SortCooccurrence, SortNarrower, SortBroader}

// RelationshipQuery filters and orders the directional relationship table.
// All minimums are inclusive.
type RelationshipQuery struct {
	MinNarrowerCount int
	MinCooc          int
	MinP             float64
	MinAsymmetry     float64
	// Filter keeps pairs where either name contains it, case-insensitively.
	Filter string
	Sort   string
	Desc   bool
	Limit  int
}

// DefaultRelationshipQuery returns the table defaults.
func DefaultRelationshipQuery() RelationshipQuery {
	return RelationshipQuery{
		MinNarrowerCount: 10,
		MinCooc:          5,
		MinP:             0.3,
		MinAsymmetry:     1.5,
		Sort:             SortAsymmetry,
		Desc:             true,
		Limit:            500,
	}
}

// DefaultExportQuery returns the stricter thresholds used for YAML export.
func DefaultExportQuery() RelationshipQuery {
	return RelationshipQuery{
		MinNarrowerCount: 10,
		MinCooc:          5,
		MinP:             0.6,
		MinAsymmetry:     2.5,
		Sort:             SortBroader,
		Limit:            5000,
	}
}

// Validate rejects unknown sort keys and negative limits.
func (q RelationshipQuery) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", q.Limit)
	}
	if q.Sort == "" {
		return nil
	}
	for _, k := range SortKeys {
		if q.Sort == k {
			return nil
		}
	}
	return fmt.Errorf("unknown sort key %q (want one of %s)", q.Sort, strings.Join(SortKeys, ", "))
}

func (q RelationshipQuery) match(r Relationship, filter string) bool {
	if !r.Directional() {
		return false
	}
	if r.NarrowerCount < q.MinNarrowerCount || r.CoocCount < q.MinCooc {
		return false
	}
	if r.PBroaderGivenNarrower < q.MinP || r.Asymmetry < q.MinAsymmetry {
		return false
	}
	if filter != "" &&
		!strings.Contains(strings.ToLower(r.NarrowerName), filter) &&
		!strings.Contains(strings.ToLower(r.BroaderName), filter) {
		return false
	}
	return true
}

// RelationshipPage is one page of the relationship table. Total counts every
// match before the limit was applied.
type RelationshipPage struct {
	Results []Relationship `json:"results"`
	Total   int            `json:"total"`
}

// Relationships returns the directional pairs matching q.
func (s *Snapshot) Relationships(q RelationshipQuery) (RelationshipPage, error) {
	if err := q.Validate(); err != nil {
		return RelationshipPage{}, err
	}
	filter := strings.ToLower(strings.TrimSpace(q.Filter))

	results := make([]Relationship, 0, 64)
	for _, r := range s.relationships {
		if q.match(r, filter) {
			results = append(results, r)
		}
	}
	sortRelationships(results, q.Sort, q.Desc)

	return RelationshipPage{Results: truncate(results, q.Limit), Total: len(results)}, nil
}

// sortRelationships is stable so equal keys keep the snapshot order
// (strength desc, then subject pair).
func sortRelationships(rels []Relationship, key string, desc bool) {
	var less func(a, b Relationship) bool
	switch key {
	case SortAsymmetry:
		less = func(a, b Relationship) bool { return a.Asymmetry < b.Asymmetry }
	case SortProbability:
		less = func(a, b Relationship) bool { return a.PBroaderGivenNarrower < b.PBroaderGivenNarrower }
	case SortCooccurrence:
		less = func(a, b Relationship) bool { return a.CoocCount < b.CoocCount }
	case SortNarrower:
		less = func(a, b Relationship) bool { return strings.ToLower(a.NarrowerName) < strings.ToLower(b.NarrowerName) }
	case SortBroader:
		less = func(a, b Relationship) bool { return strings.ToLower(a.BroaderName) < strings.ToLower(b.BroaderName) }
	default:
		return
	}
	sort.SliceStable(rels, func(i, j int) bool {
		if desc {
			return less(rels[j], rels[i])
		}
		return less(rels[i], rels[j])
	})
}
