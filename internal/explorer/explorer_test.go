package explorer

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// pair builds a record for the pair (x, y) in canonical order from
// P(x|y) and P(y|x), deriving verdict and strength the way the classifier
// does for well-separated probabilities.
func pair(x, y string, cooc int, pXgivenY, pYgivenX float64) cooccur.CooccurrenceRecord {
	if x > y {
		x, y = y, x
		pXgivenY, pYgivenX = pYgivenX, pXgivenY
	}
	r := cooccur.CooccurrenceRecord{SubjectA: x, SubjectB: y, CooccurrenceCount: cooc, PAGivenB: pXgivenY, PBGivenA: pYgivenX}
	hi, lo := pXgivenY, pYgivenX
	if lo > hi {
		hi, lo = lo, hi
	}
	r.Strength = hi / lo
	switch {
	case r.Strength < 1.5:
		r.Verdict = cooccur.VerdictNoDirection
	case pXgivenY > pYgivenX:
		r.Verdict = cooccur.VerdictABroader
	default:
		r.Verdict = cooccur.VerdictBBroader
	}
	return r
}

func resultSet(subjects map[string]int, records ...cooccur.CooccurrenceRecord) *cooccur.ResultSet {
	rs := &cooccur.ResultSet{
		Summary: cooccur.Summary{
			TotalRecordsScanned:  100,
			RecordsSkipped:       3,
			TotalPairsConsidered: 42,
			TotalPairsRetained:   len(records),
			CountsByVerdict:      map[cooccur.Verdict]int{},
		},
		Records: records,
	}
	for name, n := range subjects {
		rs.Subjects = append(rs.Subjects, cooccur.SubjectCount{Subject: name, Count: n})
	}
	for _, r := range records {
		rs.Summary.CountsByVerdict[r.Verdict]++
	}
	return rs
}

// sampleSnapshot: Science > {Physics, Biology, Optics}, Physics > Optics,
// Botany ~ Plants and Biology ~ Botany without direction.
func sampleSnapshot() *Snapshot {
	return NewSnapshot(resultSet(
		map[string]int{"Science": 40, "Physics": 20, "Optics": 10, "Biology": 15, "Botany": 12, "Plants": 12, "Art": 5},
		pair("Science", "Physics", 20, 1.0, 0.5),
		pair("Physics", "Optics", 10, 1.0, 0.5),
		pair("Science", "Biology", 15, 1.0, 0.375),
		pair("Botany", "Plants", 10, 10.0/12, 10.0/12),
		pair("Biology", "Botany", 9, 0.75, 0.6),
		pair("Science", "Optics", 10, 1.0, 0.25),
	))
}

func names(rels []Relationship) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = r.BroaderName + ">" + r.NarrowerName
	}
	return out
}

func TestNewSnapshot_Orientation(t *testing.T) {
	s := sampleSnapshot()
	page, err := s.Relationships(RelationshipQuery{Limit: 100})
	require.NoError(t, err)

	var phys Relationship
	for _, r := range page.Results {
		if r.NarrowerName == "Physics" {
			phys = r
		}
	}
	assert.Equal(t, "Science", phys.BroaderName)
	assert.Equal(t, "Science", phys.BroaderID)
	assert.Equal(t, 40, phys.BroaderCount)
	assert.Equal(t, 20, phys.NarrowerCount)
	assert.Equal(t, 1.0, phys.PBroaderGivenNarrower)
	assert.Equal(t, 0.5, phys.PNarrowerGivenBroader)
	assert.Equal(t, 2.0, phys.Asymmetry)
	assert.Equal(t, cooccur.VerdictBBroader, phys.Verdict)
}

func TestStats(t *testing.T) {
	st := sampleSnapshot().Stats()
	assert.Equal(t, 7, st.TotalConcepts)
	assert.Equal(t, 100, st.TotalCitations)
	assert.Equal(t, 42, st.TotalPairs)
	assert.Equal(t, 6, st.TotalRelationships)
	assert.Equal(t, 3, st.RecordsSkipped)
	assert.Equal(t, 2, st.CountsByVerdict[cooccur.VerdictNoDirection])
}

func TestSnapshot_DoesNotAliasResultSet(t *testing.T) {
	rs := resultSet(map[string]int{"a": 5, "b": 5}, pair("a", "b", 5, 1, 0.2))
	s := NewSnapshot(rs)
	rs.Records[0].SubjectA = "mutated"
	rs.Summary.CountsByVerdict[cooccur.VerdictABroader] = 99

	page, err := s.Relationships(RelationshipQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "a", page.Results[0].BroaderName)
	assert.Equal(t, 1, s.Stats().CountsByVerdict[cooccur.VerdictABroader])
}

func TestRelationships_Defaults(t *testing.T) {
	page, err := sampleSnapshot().Relationships(DefaultRelationshipQuery())
	require.NoError(t, err)

	assert.Equal(t, 4, page.Total)
	assert.Equal(t, []string{
		"Science>Optics",  // 4.0
		"Science>Biology", // 2.67
		"Physics>Optics",  // 2.0, Optics/Physics sorts first
		"Science>Physics", // 2.0
	}, names(page.Results))
}

func TestRelationships_ExcludesUndirectedPairs(t *testing.T) {
	page, err := sampleSnapshot().Relationships(RelationshipQuery{Filter: "botany", Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)
}

func TestRelationships_FilterSortLimit(t *testing.T) {
	s := sampleSnapshot()

	q := DefaultRelationshipQuery()
	q.Filter = "  PHYS "
	page, err := s.Relationships(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Physics>Optics", "Science>Physics"}, names(page.Results))

	q = DefaultRelationshipQuery()
	q.Sort = SortNarrower
	q.Desc = false
	page, err = s.Relationships(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Science>Biology", "Science>Optics", "Physics>Optics", "Science>Physics"}, names(page.Results))

	q.Sort = SortCooccurrence
	q.Desc = true
	q.Limit = 2
	page, err = s.Relationships(q)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, []string{"Science>Physics", "Science>Biology"}, names(page.Results))

	q = DefaultRelationshipQuery()
	q.MinNarrowerCount = 11
	page, err = s.Relationships(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Science>Biology", "Science>Physics"}, names(page.Results), "Optics has exactly 10 records")

	q = DefaultRelationshipQuery()
	q.MinAsymmetry = 2.0
	page, err = s.Relationships(q)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total, "asymmetry minimum is inclusive")
}

func TestRelationships_InvalidQuery(t *testing.T) {
	s := sampleSnapshot()
	_, err := s.Relationships(RelationshipQuery{Sort: "popularity"})
	assert.ErrorContains(t, err, "unknown sort key")

	_, err = s.Relationships(RelationshipQuery{Limit: -1})
	assert.Error(t, err)
}

func TestConcepts(t *testing.T) {
	got := sampleSnapshot().Concepts(12)
	assert.Equal(t, []Concept{
		{ID: "Science", Name: "Science", Count: 40},
		{ID: "Physics", Name: "Physics", Count: 20},
		{ID: "Biology", Name: "Biology", Count: 15},
		{ID: "Botany", Name: "Botany", Count: 12},
		{ID: "Plants", Name: "Plants", Count: 12},
	}, got)
}

func TestConceptTree_Found(t *testing.T) {
	tree := sampleSnapshot().ConceptTree("  physics", DefaultTreeQuery())
	require.True(t, tree.Found())
	assert.Equal(t, "Physics", tree.ConceptName)
	assert.Equal(t, 20, tree.ConceptCount)
	assert.Equal(t, []string{"Science>Physics"}, names(tree.Broader))
	assert.Equal(t, []string{"Physics>Optics"}, names(tree.Narrower))
	assert.Empty(t, tree.Symmetric)
	assert.Nil(t, tree.Suggestions)
}

func TestConceptTree_Symmetric(t *testing.T) {
	tree := sampleSnapshot().ConceptTree("Botany", DefaultTreeQuery())
	require.True(t, tree.Found())
	assert.Empty(t, tree.Broader)
	assert.Empty(t, tree.Narrower)
	require.Len(t, tree.Symmetric, 2)
	assert.Equal(t, 10, tree.Symmetric[0].CoocCount)
	assert.Equal(t, 9, tree.Symmetric[1].CoocCount)
}

func TestConceptTree_Suggestions(t *testing.T) {
	tree := sampleSnapshot().ConceptTree("o", DefaultTreeQuery())
	assert.False(t, tree.Found())
	assert.Equal(t, []Concept{
		{ID: "Biology", Name: "Biology", Count: 15},
		{ID: "Botany", Name: "Botany", Count: 12},
		{ID: "Optics", Name: "Optics", Count: 10},
	}, tree.Suggestions)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "concept_id")
	assert.Contains(t, string(data), `"broader":[]`)
}

func TestConceptTree_SuggestionsJSON(t *testing.T) {
	snap := sampleSnapshot()

	data, err := json.Marshal(snap.ConceptTree("zzz", DefaultTreeQuery()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"suggestions":[]`)

	data, err = json.Marshal(ConceptTree{Broader: []Relationship{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"suggestions":[]`)

	data, err = json.Marshal(snap.ConceptTree("Physics", DefaultTreeQuery()))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suggestions")
	assert.Contains(t, string(data), `"concept_name":"Physics"`)
}

func TestConceptTree_SuggestionCap(t *testing.T) {
	subjects := map[string]int{}
	for i := 0; i < 30; i++ {
		subjects[fmt.Sprintf("Topic %02d", i)] = i + 1
	}
	tree := NewSnapshot(resultSet(subjects)).ConceptTree("topic", DefaultTreeQuery())
	require.Len(t, tree.Suggestions, 20)
	assert.Equal(t, "Topic 29", tree.Suggestions[0].Name)
}

func TestHierarchyTree(t *testing.T) {
	forest := sampleSnapshot().HierarchyTree(DefaultHierarchyQuery())
	require.Len(t, forest, 1)

	root := forest[0]
	assert.Equal(t, "Science", root.Name)
	assert.Equal(t, 40, root.Count)
	assert.Zero(t, root.P)

	var kids []string
	for _, c := range root.Children {
		kids = append(kids, c.Name)
	}
	assert.Equal(t, []string{"Optics", "Biology", "Physics"}, kids)
	assert.Empty(t, root.Children[0].Children)
	require.Len(t, root.Children[2].Children, 1)
	assert.Equal(t, "Optics", root.Children[2].Children[0].Name)
}

func TestHierarchyTree_CycleTerminates(t *testing.T) {
	counts := map[string]int{"Root": 50, "A": 20, "B": 20, "C": 20}
	s := NewSnapshot(resultSet(counts,
		pair("Root", "A", 10, 1, 0.2),
		pair("A", "B", 10, 1, 0.2),
		pair("B", "C", 10, 1, 0.2),
		pair("C", "A", 10, 1, 0.2),
	))
	forest := s.HierarchyTree(DefaultHierarchyQuery())
	require.Len(t, forest, 1)

	a := forest[0].Children[0]
	require.Equal(t, "A", a.Name)
	b := a.Children[0]
	c := b.Children[0]
	require.Equal(t, "C", c.Name)
	require.Len(t, c.Children, 1)
	assert.Equal(t, "A", c.Children[0].Name)
	assert.Empty(t, c.Children[0].Children, "A is already on the path")
}

func TestHierarchyTree_DepthLimit(t *testing.T) {
	counts := map[string]int{}
	var recs []cooccur.CooccurrenceRecord
	for i := 0; i < 8; i++ {
		counts[fmt.Sprintf("N%d", i)] = 100 - i
		if i > 0 {
			recs = append(recs, pair(fmt.Sprintf("N%d", i-1), fmt.Sprintf("N%d", i), 10, 1, 0.2))
		}
	}
	forest := NewSnapshot(resultSet(counts, recs...)).HierarchyTree(DefaultHierarchyQuery())
	require.Len(t, forest, 1)

	node := forest[0]
	deepest := node.Name
	for len(node.Children) > 0 {
		node = node.Children[0]
		deepest = node.Name
	}
	assert.Equal(t, "N6", deepest)
}

func TestHierarchyGroups(t *testing.T) {
	h, err := sampleSnapshot().HierarchyGroups(DefaultExportQuery())
	require.NoError(t, err)
	assert.Equal(t, 2, h.Total)
	require.Len(t, h.Groups, 1)
	assert.Equal(t, "Science", h.Groups[0].Broader)
	assert.Equal(t, []NarrowerTerm{{Name: "Biology", P: 1}, {Name: "Optics", P: 1}}, h.Groups[0].Narrower)

	q := DefaultExportQuery()
	q.MinAsymmetry = 1.5
	h, err = sampleSnapshot().HierarchyGroups(q)
	require.NoError(t, err)
	require.Len(t, h.Groups, 2)
	assert.Equal(t, "Physics", h.Groups[0].Broader)
	assert.Equal(t, "Science", h.Groups[1].Broader)
	assert.Len(t, h.Groups[1].Narrower, 3)
}
