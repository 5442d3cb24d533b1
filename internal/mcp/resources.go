package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	pagesURI         = "maglink://pages"
	pageBlocksPrefix = "maglink://page/"
	pageBlocksSuffix = "/blocks"
)

func (s *Server) registerResources() {
	// ── maglink://pages ────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		pagesURI,
		"All Pages",
		mcp.WithMIMEType("application/json"),
	), s.handlePagesResource)

	// ── maglink://page/{pageId}/blocks ─────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			pageBlocksPrefix+"{pageId}"+pageBlocksSuffix,
			"Blocks on a Page",
		),
		s.handlePageBlocksResource,
	)
}

func (s *Server) handlePagesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	pages, err := s.pages.ListPages(ctx, "")
	if err != nil {
		return nil, err
	}

	type pageSummary struct {
		ID    string `json:"id"`
		Slug  string `json:"slug"`
		Title string `json:"title"`
	}
	summaries := make([]pageSummary, len(pages))
	for i, p := range pages {
		summaries[i] = pageSummary{ID: p.ID, Slug: p.Slug, Title: p.Title}
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      pagesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePageBlocksResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	pageID := extractPageIDFromURI(uri)
	if pageID == "" {
		return nil, fmt.Errorf("could not extract pageId from URI: %s", uri)
	}

	blocks, err := s.blocks.ListBlocks(ctx, pageID)
	if err != nil {
		return nil, err
	}

	summaries := make([]blockSummary, len(blocks))
	for i, b := range blocks {
		summaries[i] = summarizeBlock(b)
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// extractPageIDFromURI extracts the page ID from "maglink://page/{id}/blocks".
func extractPageIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, pageBlocksPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, pageBlocksSuffix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
