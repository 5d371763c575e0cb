// Package explorer serves read-only views over a computed result set: the
// filtered relationship table, per-concept trees, the global hierarchy and
// the grouped listing used for YAML export.
//
// A Snapshot is built once and never mutated, so every method is safe for
// concurrent use without locking.
package explorer

import (
	"sort"
	"strings"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// Relationship is a retained pair oriented as broader/narrower. Subject names
// double as identifiers.
type Relationship struct {
	BroaderID             string          `json:"broader_id"`
	BroaderName           string          `json:"broader_name"`
	NarrowerID            string          `json:"narrower_id"`
	NarrowerName          string          `json:"narrower_name"`
	BroaderCount          int             `json:"broader_count"`
	NarrowerCount         int             `json:"narrower_count"`
	CoocCount             int             `json:"cooc_count"`
	PBroaderGivenNarrower float64         `json:"p_broader_given_narrower"`
	PNarrowerGivenBroader float64         `json:"p_narrower_given_broader"`
	Asymmetry             float64         `json:"asymmetry"`
	Verdict               cooccur.Verdict `json:"verdict"`
}

// Directional reports whether the pair was classified with a direction.
func (r Relationship) Directional() bool {
	return r.Verdict != cooccur.VerdictNoDirection
}

func (r Relationship) involves(name string) bool {
	return r.BroaderID == name || r.NarrowerID == name
}

// Concept is a subject with its record count.
type Concept struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarizes a snapshot.
type Stats struct {
	TotalConcepts      int                     `json:"total_concepts"`
	TotalCitations     int                     `json:"total_citations"`
	TotalPairs         int                     `json:"total_pairs"`
	TotalRelationships int                     `json:"total_relationships"`
	RecordsSkipped     int                     `json:"records_skipped"`
	CountsByVerdict    map[cooccur.Verdict]int `json:"counts_by_verdict"`
	Partial            bool                    `json:"partial,omitempty"`
}

// Snapshot is an immutable, query-ready view of one ResultSet.
type Snapshot struct {
	summary       cooccur.Summary
	concepts      []Concept // count desc, name asc
	counts        map[string]int
	byLower       map[string]string
	relationships []Relationship // result set order
}

// NewSnapshot indexes rs. rs is not retained.
func NewSnapshot(rs *cooccur.ResultSet) *Snapshot {
	s := &Snapshot{
		counts:  make(map[string]int, len(rs.Subjects)),
		byLower: make(map[string]string, len(rs.Subjects)),
	}
	s.summary = rs.Summary
	s.summary.CountsByVerdict = make(map[cooccur.Verdict]int, len(rs.Summary.CountsByVerdict))
	for v, n := range rs.Summary.CountsByVerdict {
		s.summary.CountsByVerdict[v] = n
	}

	subjects := append([]cooccur.SubjectCount(nil), rs.Subjects...)
	cooccur.SortSubjects(subjects)
	s.concepts = make([]Concept, 0, len(subjects))
	for _, sc := range subjects {
		s.concepts = append(s.concepts, Concept{ID: sc.Subject, Name: sc.Subject, Count: sc.Count})
		s.counts[sc.Subject] = sc.Count
		// The most frequent spelling wins a case-insensitive lookup.
		lower := strings.ToLower(sc.Subject)
		if _, ok := s.byLower[lower]; !ok {
			s.byLower[lower] = sc.Subject
		}
	}

	records := append([]cooccur.CooccurrenceRecord(nil), rs.Records...)
	cooccur.SortRecords(records)
	s.relationships = make([]Relationship, 0, len(records))
	for _, rec := range records {
		broader, narrower, p := rec.Oriented()
		q := rec.PBGivenA
		if broader == rec.SubjectB {
			q = rec.PAGivenB
		}
		s.relationships = append(s.relationships, Relationship{
			BroaderID:             broader,
			BroaderName:           broader,
			NarrowerID:            narrower,
			NarrowerName:          narrower,
			BroaderCount:          s.counts[broader],
			NarrowerCount:         s.counts[narrower],
			CoocCount:             rec.CooccurrenceCount,
			PBroaderGivenNarrower: p,
			PNarrowerGivenBroader: q,
			Asymmetry:             rec.Strength,
			Verdict:               rec.Verdict,
		})
	}
	return s
}

// Stats returns corpus-level counts.
func (s *Snapshot) Stats() Stats {
	byVerdict := make(map[cooccur.Verdict]int, len(s.summary.CountsByVerdict))
	for v, n := range s.summary.CountsByVerdict {
		byVerdict[v] = n
	}
	return Stats{
		TotalConcepts:      len(s.concepts),
		TotalCitations:     s.summary.TotalRecordsScanned,
		TotalPairs:         s.summary.TotalPairsConsidered,
		TotalRelationships: len(s.relationships),
		RecordsSkipped:     s.summary.RecordsSkipped,
		CountsByVerdict:    byVerdict,
		Partial:            s.summary.Partial,
	}
}

// Concepts returns every subject carried by at least minCount records, most
// frequent first.
func (s *Snapshot) Concepts(minCount int) []Concept {
	out := make([]Concept, 0, len(s.concepts))
	for _, c := range s.concepts {
		if c.Count >= minCount {
			out = append(out, c)
		}
	}
	return out
}

// Lookup resolves name case-insensitively to the stored subject.
func (s *Snapshot) Lookup(name string) (Concept, bool) {
	canonical, ok := s.byLower[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Concept{}, false
	}
	return Concept{ID: canonical, Name: canonical, Count: s.counts[canonical]}, true
}

// suggest returns up to limit concepts whose name contains fragment.
func (s *Snapshot) suggest(fragment string, limit int) []Concept {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	out := make([]Concept, 0, limit)
	for _, c := range s.concepts {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(c.Name), fragment) {
			out = append(out, c)
		}
	}
	return out
}

// sortByP orders relationships by descending P(broader|narrower) and keeps
// the snapshot order for ties.
func sortByP(rels []Relationship) {
	sort.SliceStable(rels, func(i, j int) bool {
		return rels[i].PBroaderGivenNarrower > rels[j].PBroaderGivenNarrower
	})
}

func truncate(rels []Relationship, n int) []Relationship {
	if len(rels) > n {
		return rels[:n]
	}
	return rels
}
