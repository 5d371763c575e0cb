package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/subjectgraph/internal/explorer"
)

// StatsResourceURI identifies the corpus statistics resource.
const StatsResourceURI = "subjectgraph://stats"

func registerStatsResource(s *server.MCPServer, snap *explorer.Snapshot) {
	resource := mcp.NewResource(
		StatsResourceURI,
		"Corpus Statistics",
		mcp.WithResourceDescription("Subject, record and relationship counts for the loaded co-occurrence run."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.MarshalIndent(snap.Stats(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding stats resource: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
