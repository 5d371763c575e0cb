package explorer

import (
	"encoding/json"
	"sort"
)

const (
	maxSuggestions    = 20
	maxBroader        = 50
	maxNarrower       = 50
	maxSymmetric      = 30
	minSymmetricP     = 0.2
	maxHierarchyDepth = 5
)

// TreeQuery holds the thresholds for ConceptTree and HierarchyTree. MinCount
// applies to the narrower side of a pair.
type TreeQuery struct {
	MinP         float64
	MinAsymmetry float64
	MinCooc      int
	MinCount     int
}

// DefaultTreeQuery returns the per-concept tree defaults.
func DefaultTreeQuery() TreeQuery {
	return TreeQuery{MinP: 0.3, MinAsymmetry: 1.5, MinCooc: 3, MinCount: 5}
}

// DefaultHierarchyQuery returns the global hierarchy defaults.
func DefaultHierarchyQuery() TreeQuery {
	return TreeQuery{MinP: 0.5, MinAsymmetry: 2.0, MinCooc: 5, MinCount: 10}
}

func (q TreeQuery) directional(r Relationship) bool {
	return r.Directional() &&
		r.CoocCount >= q.MinCooc &&
		r.NarrowerCount >= q.MinCount &&
		r.PBroaderGivenNarrower >= q.MinP &&
		r.Asymmetry >= q.MinAsymmetry
}

// ConceptTree is the neighbourhood of one concept. When the name does not
// match a concept exactly, only Suggestions is populated.
type ConceptTree struct {
	ConceptID    string         `json:"concept_id,omitempty"`
	ConceptName  string         `json:"concept_name,omitempty"`
	ConceptCount int            `json:"concept_count,omitempty"`
	Suggestions  []Concept      `json:"suggestions,omitempty"`
	Broader      []Relationship `json:"broader"`
	Narrower     []Relationship `json:"narrower"`
	Symmetric    []Relationship `json:"symmetric"`
}

// Found reports whether the tree was resolved to a concept.
func (t ConceptTree) Found() bool { return t.ConceptID != "" }

// MarshalJSON always writes "suggestions" for an unresolved name, as an
// empty list when nothing matched, and leaves it out otherwise.
func (t ConceptTree) MarshalJSON() ([]byte, error) {
	type plain ConceptTree
	if t.Found() {
		return json.Marshal(plain(t))
	}
	out := struct {
		plain
		Suggestions []Concept `json:"suggestions"`
	}{plain: plain(t), Suggestions: t.Suggestions}
	if out.Suggestions == nil {
		out.Suggestions = []Concept{}
	}
	return json.Marshal(out)
}

// ConceptTree returns the broader terms, narrower terms and symmetric
// associates of name. Broader and narrower are ordered by descending
// P(broader|narrower); symmetric by descending co-occurrence.
func (s *Snapshot) ConceptTree(name string, q TreeQuery) ConceptTree {
	tree := ConceptTree{
		Broader:   []Relationship{},
		Narrower:  []Relationship{},
		Symmetric: []Relationship{},
	}
	concept, ok := s.Lookup(name)
	if !ok {
		tree.Suggestions = s.suggest(name, maxSuggestions)
		return tree
	}
	tree.ConceptID = concept.ID
	tree.ConceptName = concept.Name
	tree.ConceptCount = concept.Count

	for _, r := range s.relationships {
		if q.directional(r) {
			switch concept.ID {
			case r.NarrowerID:
				tree.Broader = append(tree.Broader, r)
			case r.BroaderID:
				tree.Narrower = append(tree.Narrower, r)
			}
		}
		if r.CoocCount >= q.MinCooc && r.involves(concept.ID) &&
			r.Asymmetry < q.MinAsymmetry && r.PBroaderGivenNarrower >= minSymmetricP {
			tree.Symmetric = append(tree.Symmetric, r)
		}
	}

	sortByP(tree.Broader)
	sortByP(tree.Narrower)
	sort.SliceStable(tree.Symmetric, func(i, j int) bool {
		return tree.Symmetric[i].CoocCount > tree.Symmetric[j].CoocCount
	})
	tree.Broader = truncate(tree.Broader, maxBroader)
	tree.Narrower = truncate(tree.Narrower, maxNarrower)
	tree.Symmetric = truncate(tree.Symmetric, maxSymmetric)
	return tree
}

// HierarchyNode is one node of the global hierarchy. Roots carry no P or
// Asymmetry.
type HierarchyNode struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Count     int             `json:"count"`
	P         float64         `json:"p,omitempty"`
	Asymmetry float64         `json:"asymmetry,omitempty"`
	Children  []HierarchyNode `json:"children"`
}

// HierarchyTree assembles every qualifying broader->narrower edge into a
// forest. Roots are broader terms that are nobody's narrower term, most
// frequent first; children are ordered by descending P(broader|narrower).
// Descent stops below depth 5 and at any node already on the current path,
// so cycles terminate. Roots without children are dropped.
func (s *Snapshot) HierarchyTree(q TreeQuery) []HierarchyNode {
	childrenOf := make(map[string][]HierarchyNode)
	hasParent := make(map[string]bool)
	var parents []string

	for _, r := range s.relationships {
		if !q.directional(r) {
			continue
		}
		if _, seen := childrenOf[r.BroaderID]; !seen {
			parents = append(parents, r.BroaderID)
		}
		childrenOf[r.BroaderID] = append(childrenOf[r.BroaderID], HierarchyNode{
			ID:        r.NarrowerID,
			Name:      r.NarrowerName,
			Count:     r.NarrowerCount,
			P:         r.PBroaderGivenNarrower,
			Asymmetry: r.Asymmetry,
		})
		hasParent[r.NarrowerID] = true
	}
	for _, kids := range childrenOf {
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].P > kids[j].P })
	}

	roots := make([]HierarchyNode, 0, len(parents))
	for _, id := range parents {
		if !hasParent[id] {
			roots = append(roots, HierarchyNode{ID: id, Name: id, Count: s.counts[id]})
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		if roots[i].Count != roots[j].Count {
			return roots[i].Count > roots[j].Count
		}
		return roots[i].Name < roots[j].Name
	})

	onPath := make(map[string]bool)
	var subtree func(id string, depth int) []HierarchyNode
	subtree = func(id string, depth int) []HierarchyNode {
		out := []HierarchyNode{}
		if onPath[id] || depth > maxHierarchyDepth {
			return out
		}
		onPath[id] = true
		for _, child := range childrenOf[id] {
			child.Children = subtree(child.ID, depth+1)
			out = append(out, child)
		}
		delete(onPath, id)
		return out
	}

	forest := make([]HierarchyNode, 0, len(roots))
	for _, root := range roots {
		root.Children = subtree(root.ID, 0)
		if len(root.Children) > 0 {
			forest = append(forest, root)
		}
	}
	return forest
}

// NarrowerTerm is one entry of a HierarchyGroup.
type NarrowerTerm struct {
	Name string
	P    float64
}

// HierarchyGroup lists the narrower terms of one broader term.
type HierarchyGroup struct {
	Broader  string
	Narrower []NarrowerTerm
}

// Hierarchy is the grouped broader -> narrower listing used for export.
type Hierarchy struct {
	Query  RelationshipQuery
	Total  int
	Groups []HierarchyGroup
}

// HierarchyGroups groups the relationships matching q by broader term. Groups
// are ordered by broader name and narrower terms by descending probability.
func (s *Snapshot) HierarchyGroups(q RelationshipQuery) (*Hierarchy, error) {
	page, err := s.Relationships(q)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var groups []HierarchyGroup
	for _, r := range page.Results {
		i, ok := index[r.BroaderName]
		if !ok {
			i = len(groups)
			index[r.BroaderName] = i
			groups = append(groups, HierarchyGroup{Broader: r.BroaderName})
		}
		groups[i].Narrower = append(groups[i].Narrower, NarrowerTerm{Name: r.NarrowerName, P: r.PBroaderGivenNarrower})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Broader < groups[j].Broader })
	for _, g := range groups {
		terms := g.Narrower
		sort.SliceStable(terms, func(i, j int) bool {
			if terms[i].P != terms[j].P {
				return terms[i].P > terms[j].P
			}
			return terms[i].Name < terms[j].Name
		})
	}
	return &Hierarchy{Query: q, Total: page.Total, Groups: groups}, nil
}
