package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"maglink/internal/domain"
)

func (s *Server) registerLayoutTools() {
	// ── check_overlaps ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("check_overlaps",
		mcp.WithDescription("List every pair of blocks on a page that share a grid cell. Changes nothing."),
		mcp.WithString("pageId", mcp.Description("Page ID or slug"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleCheckOverlaps)

	// ── repack_page ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("repack_page",
		mcp.WithDescription("Repack a page if any blocks overlap. Blocks in conflict move to the first free spot; the previous layout is kept as a snapshot."),
		mcp.WithString("pageId", mcp.Description("Page ID or slug"), mcp.Required()),
	), s.handleRepackPage)

	// ── list_snapshots ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_snapshots",
		mcp.WithDescription("List a page's saved layouts, newest first"),
		mcp.WithString("pageId", mcp.Description("Page ID or slug"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListSnapshots)

	// ── restore_snapshot ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("restore_snapshot",
		mcp.WithDescription("Put a page's blocks back where a snapshot recorded them. The current layout is saved first."),
		mcp.WithString("pageId", mcp.Description("Page ID or slug"), mcp.Required()),
		mcp.WithString("snapshotId", mcp.Description("Snapshot ID"), mcp.Required()),
	), s.handleRestoreSnapshot)
}

func (s *Server) handleCheckOverlaps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePage(ctx, req.GetArguments())
	if err != nil {
		return s.toolError("check_overlaps", err)
	}
	collisions, err := s.blocks.CheckPage(ctx, pageID)
	if err != nil {
		return s.toolError("check_overlaps", err)
	}
	if len(collisions) == 0 {
		return textResult("No overlapping blocks"), nil
	}
	return jsonResult(collisions)
}

func (s *Server) handleRepackPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePage(ctx, req.GetArguments())
	if err != nil {
		return s.toolError("repack_page", err)
	}
	outcome, err := s.blocks.RepackPage(ctx, pageID)
	if err != nil {
		return s.toolError("repack_page", err)
	}
	return jsonResult(outcome)
}

func (s *Server) handleListSnapshots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePage(ctx, req.GetArguments())
	if err != nil {
		return s.toolError("list_snapshots", err)
	}
	snaps, err := s.blocks.ListSnapshots(ctx, pageID)
	if err != nil {
		return s.toolError("list_snapshots", err)
	}

	type snapshotSummary struct {
		ID     string `json:"id"`
		Label  string `json:"label"`
		Blocks int    `json:"blocks"`
		Taken  string `json:"takenAt"`
	}
	summaries := make([]snapshotSummary, len(snaps))
	for i, snap := range snaps {
		summaries[i] = snapshotSummary{
			ID:     snap.ID,
			Label:  snap.Label,
			Blocks: len(snap.Placements),
			Taken:  snap.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return jsonResult(summaries)
}

func (s *Server) handleRestoreSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	pageID, err := s.resolvePage(ctx, args)
	if err != nil {
		return s.toolError("restore_snapshot", err)
	}
	snapshotID, err := requireString(args, "snapshotId")
	if err != nil {
		return s.toolError("restore_snapshot", err)
	}
	outcome, err := s.blocks.RestoreSnapshot(ctx, pageID, snapshotID)
	if err != nil {
		return s.toolError("restore_snapshot", err)
	}
	return jsonResult(outcome)
}

type blockSummary struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Preview string `json:"preview"` // first 200 chars of content
}

func summarizeBlock(b domain.Block) blockSummary {
	preview := b.Content
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return blockSummary{
		ID:      b.ID,
		Type:    string(b.Type),
		X:       b.X,
		Y:       b.Y,
		Width:   b.Width,
		Height:  b.Height,
		Preview: preview,
	}
}
