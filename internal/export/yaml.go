package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/subjectgraph/internal/explorer"
)

// HierarchyRootKey is the top-level key of the hierarchy YAML document.
const HierarchyRootKey = "cb_cooccurrence"

// WriteHierarchyYAML writes h as a commented YAML listing:
//
//	cb_cooccurrence:
//	  - broader: Science
//	    narrower:
//	      - Physics # 100.0%
//
// Each narrower term carries P(broader|narrower) as a percentage comment. A
// header comment records the filters and the number of relationships.
func WriteHierarchyYAML(w io.Writer, h *explorer.Hierarchy) error {
	bw := bufio.NewWriter(w)
	q := h.Query
	fmt.Fprintln(bw, "# CB Co-occurrence Relationships (Empirically Derived)")
	fmt.Fprintf(bw, "# Filters: P(broader|narrower) >= %s, asymmetry >= %s, co-occurrences >= %d, min citations >= %d\n",
		formatThreshold(q.MinP), formatThreshold(q.MinAsymmetry), q.MinCooc, q.MinNarrowerCount)
	fmt.Fprintf(bw, "# Total relationships: %d\n\n", h.Total)

	groups := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, g := range h.Groups {
		narrower := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, t := range g.Narrower {
			narrower.Content = append(narrower.Content, &yaml.Node{
				Kind:        yaml.ScalarNode,
				Tag:         "!!str",
				Value:       t.Name,
				LineComment: "# " + Percent(t.P) + "%",
			})
		}
		groups.Content = append(groups.Content, &yaml.Node{
			Kind: yaml.MappingNode,
			Tag:  "!!map",
			Content: []*yaml.Node{
				strNode("broader"), strNode(g.Broader),
				strNode("narrower"), narrower,
			},
		})
	}
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{strNode(HierarchyRootKey), groups}}

	enc := yaml.NewEncoder(bw)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding hierarchy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding hierarchy: %w", err)
	}
	return bw.Flush()
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// Percent renders a probability as a percentage rounded to one decimal.
func Percent(p float64) string {
	return strconv.FormatFloat(math.Round(p*1000)/10, 'f', 1, 64)
}

// formatThreshold prints whole numbers with one decimal (2.0, not 2).
func formatThreshold(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
