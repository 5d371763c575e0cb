// Package mcp provides a Model Context Protocol server for subjectgraph.
//
// It exposes the explorer queries over a computed co-occurrence snapshot
// (corpus stats, the relationship table, per-concept trees and the global
// hierarchy) as read-only MCP tools, and the corpus statistics as an MCP
// resource. Served over stdio for desktop agents and editors.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/subjectgraph/internal/explorer"
	"github.com/hurttlocker/subjectgraph/internal/export"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Snapshot *explorer.Snapshot
	Version  string // version string for MCP server info
}

// NewServer creates a configured MCP server with all explorer tools and
// resources. The snapshot is immutable, so handlers need no locking.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"subjectgraph",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerStatsTool(s, cfg.Snapshot)
	registerConceptsTool(s, cfg.Snapshot)
	registerRelationshipsTool(s, cfg.Snapshot)
	registerTreeTool(s, cfg.Snapshot)
	registerHierarchyTool(s, cfg.Snapshot)

	registerStatsResource(s, cfg.Snapshot)

	return s
}

// ServeStdio runs the server over in/out until ctx is cancelled or in is
// closed.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

// --- Tools ---

func registerStatsTool(s *server.MCPServer, snap *explorer.Snapshot) {
	tool := mcp.NewTool("subject_stats",
		mcp.WithDescription("Corpus statistics: number of subjects, records scanned and skipped, pairs considered, and relationships by verdict."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(snap.Stats())
	})
}

func registerConceptsTool(s *server.MCPServer, snap *explorer.Snapshot) {
	tool := mcp.NewTool("subject_concepts",
		mcp.WithDescription("List subjects carried by at least min_count records, most frequent first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("min_count",
			mcp.Description("Minimum number of records carrying the subject (default: 5)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of subjects (default: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		minCount := 5
		if v, err := req.RequireFloat("min_count"); err == nil {
			minCount = int(v)
		}
		limit := 100
		if v, err := req.RequireFloat("limit"); err == nil {
			if v < 0 {
				return mcp.NewToolResultError("limit must be >= 0"), nil
			}
			limit = int(v)
		}

		concepts := snap.Concepts(minCount)
		total := len(concepts)
		if len(concepts) > limit {
			concepts = concepts[:limit]
		}
		return jsonResult(map[string]interface{}{
			"concepts": concepts,
			"count":    len(concepts),
			"total":    total,
		})
	})
}

func registerRelationshipsTool(s *server.MCPServer, snap *explorer.Snapshot) {
	tool := mcp.NewTool("subject_relationships",
		mcp.WithDescription("Query the directional broader/narrower subject table. Each row is a pair where records carrying the narrower subject usually also carry the broader one, but not the reverse."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("min_count",
			mcp.Description("Minimum records carrying the narrower subject (default: 10)"),
		),
		mcp.WithNumber("min_cooc",
			mcp.Description("Minimum records carrying both subjects (default: 5)"),
		),
		mcp.WithNumber("min_p",
			mcp.Description("Minimum P(broader|narrower), 0-1 (default: 0.3)"),
		),
		mcp.WithNumber("min_asym",
			mcp.Description("Minimum asymmetry ratio (default: 1.5)"),
		),
		mcp.WithString("filter",
			mcp.Description("Keep pairs where either subject contains this text, case-insensitive"),
		),
		mcp.WithString("sort",
			mcp.Description("Sort column (default: asymmetry)"),
			mcp.Enum(explorer.SortKeys...),
		),
		mcp.WithBoolean("desc",
			mcp.Description("Sort descending (default: true)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of rows (default: 500)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := explorer.DefaultRelationshipQuery()
		if v, err := req.RequireFloat("min_count"); err == nil {
			q.MinNarrowerCount = int(v)
		}
		if v, err := req.RequireFloat("min_cooc"); err == nil {
			q.MinCooc = int(v)
		}
		if v, err := req.RequireFloat("min_p"); err == nil {
			q.MinP = v
		}
		if v, err := req.RequireFloat("min_asym"); err == nil {
			q.MinAsymmetry = v
		}
		if v, err := req.RequireString("filter"); err == nil {
			q.Filter = v
		}
		if v, err := req.RequireString("sort"); err == nil && v != "" {
			q.Sort = v
		}
		if v, err := req.RequireBool("desc"); err == nil {
			q.Desc = v
		}
		if v, err := req.RequireFloat("limit"); err == nil {
			q.Limit = int(v)
		}

		page, err := snap.Relationships(q)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(page)
	})
}

func registerTreeTool(s *server.MCPServer, snap *explorer.Snapshot) {
	tool := mcp.NewTool("subject_tree",
		mcp.WithDescription("Broader terms, narrower terms and symmetric associates of one subject. Unknown subjects return up to 20 suggestions containing the text."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("concept",
			mcp.Required(),
			mcp.Description("Subject name, case-insensitive"),
		),
		mcp.WithNumber("min_p",
			mcp.Description("Minimum P(broader|narrower), 0-1 (default: 0.3)"),
		),
		mcp.WithNumber("min_asym",
			mcp.Description("Minimum asymmetry ratio for directional links (default: 1.5)"),
		),
		mcp.WithNumber("min_cooc",
			mcp.Description("Minimum records carrying both subjects (default: 3)"),
		),
		mcp.WithNumber("min_count",
			mcp.Description("Minimum records carrying the narrower subject (default: 5)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		concept, err := req.RequireString("concept")
		if err != nil || concept == "" {
			return mcp.NewToolResultError("concept is required"), nil
		}
		return jsonResult(snap.ConceptTree(concept, treeQuery(req, explorer.DefaultTreeQuery())))
	})
}

func registerHierarchyTool(s *server.MCPServer, snap *explorer.Snapshot) {
	tool := mcp.NewTool("subject_hierarchy",
		mcp.WithDescription("The global broader -> narrower hierarchy. format=tree returns a nested JSON forest (depth capped at 5); format=yaml returns the grouped YAML listing used for export."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("format",
			mcp.Description("Output format (default: tree)"),
			mcp.Enum("tree", "yaml"),
		),
		mcp.WithNumber("min_p",
			mcp.Description("Minimum P(broader|narrower), 0-1 (default: 0.5 tree, 0.6 yaml)"),
		),
		mcp.WithNumber("min_asym",
			mcp.Description("Minimum asymmetry ratio (default: 2.0 tree, 2.5 yaml)"),
		),
		mcp.WithNumber("min_cooc",
			mcp.Description("Minimum records carrying both subjects (default: 5)"),
		),
		mcp.WithNumber("min_count",
			mcp.Description("Minimum records carrying the narrower subject (default: 10)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		format := "tree"
		if v, err := req.RequireString("format"); err == nil && v != "" {
			format = v
		}

		switch format {
		case "tree":
			return jsonResult(snap.HierarchyTree(treeQuery(req, explorer.DefaultHierarchyQuery())))
		case "yaml":
			q := explorer.DefaultExportQuery()
			t := treeQuery(req, explorer.TreeQuery{
				MinP:         q.MinP,
				MinAsymmetry: q.MinAsymmetry,
				MinCooc:      q.MinCooc,
				MinCount:     q.MinNarrowerCount,
			})
			q.MinP, q.MinAsymmetry, q.MinCooc, q.MinNarrowerCount = t.MinP, t.MinAsymmetry, t.MinCooc, t.MinCount

			hier, err := snap.HierarchyGroups(q)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			var buf bytes.Buffer
			if err := export.WriteHierarchyYAML(&buf, hier); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("rendering hierarchy: %v", err)), nil
			}
			return mcp.NewToolResultText(buf.String()), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("invalid format %q (want tree or yaml)", format)), nil
		}
	})
}

// treeQuery overlays any threshold arguments present in req onto q.
func treeQuery(req mcp.CallToolRequest, q explorer.TreeQuery) explorer.TreeQuery {
	if v, err := req.RequireFloat("min_p"); err == nil {
		q.MinP = v
	}
	if v, err := req.RequireFloat("min_asym"); err == nil {
		q.MinAsymmetry = v
	}
	if v, err := req.RequireFloat("min_cooc"); err == nil {
		q.MinCooc = int(v)
	}
	if v, err := req.RequireFloat("min_count"); err == nil {
		q.MinCount = int(v)
	}
	return q
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
