package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"maglink/internal/errs"
	"maglink/internal/service"
)

func (s *Server) registerBlockTools() {
	// ── create_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_block",
		mcp.WithDescription("Create a block on a page. Without x/y it goes to the first free grid spot; a block placed over others triggers a repack."),
		mcp.WithString("pageId", mcp.Description("Page ID or slug"), mcp.Required()),
		mcp.WithString("type",
			mcp.Description("Block type: text, html, image, video, link, separator, title (default text)"),
		),
		mcp.WithNumber("x", mcp.Description("Column of the top-left cell (optional)")),
		mcp.WithNumber("y", mcp.Description("Row of the top-left cell (optional)")),
		mcp.WithNumber("width", mcp.Description("Width in columns (optional, type default)")),
		mcp.WithNumber("height", mcp.Description("Height in rows (optional, type default)")),
		mcp.WithString("title", mcp.Description("Block title (optional)")),
		mcp.WithString("content", mcp.Description("Initial content (optional)")),
	), s.handleCreateBlock)

	// ── move_blocks ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_blocks",
		mcp.WithDescription("Move blocks to new grid cells. Pass a JSON array of {id, x, y}. Invalid entries are skipped and reported; pages left with overlaps are repacked."),
		mcp.WithString("positions",
			mcp.Description("JSON array of moves [{\"id\": \"...\", \"x\": 0, \"y\": 0}, ...]"),
			mcp.Required(),
		),
	), s.handleMoveBlocks)

	// ── resize_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("resize_block",
		mcp.WithDescription("Resize a block. Neighbours it now covers are moved out of the way."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("width", mcp.Description("New width in columns"), mcp.Required()),
		mcp.WithNumber("height", mcp.Description("New height in rows"), mcp.Required()),
	), s.handleResizeBlock)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("DESTRUCTIVE: Delete a block."),
		mcp.WithString("blockId", mcp.Description("Block ID to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleCreateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	pageID, err := s.resolvePage(ctx, args)
	if err != nil {
		return s.toolError("create_block", err)
	}

	in := service.CreateBlockInput{
		PageID:  pageID,
		Type:    getString(args, "type"),
		Title:   getString(args, "title"),
		Content: getString(args, "content"),
	}
	for key, dst := range map[string]**int{"x": &in.X, "y": &in.Y, "width": &in.Width, "height": &in.Height} {
		v, err := getInt(args, key)
		if err != nil {
			return s.toolError("create_block", err)
		}
		*dst = v
	}

	block, outcome, err := s.blocks.CreateBlock(ctx, in)
	if err != nil {
		return s.toolError("create_block", err)
	}
	return jsonResult(map[string]any{"block": summarizeBlock(*block), "layout": outcome})
}

type moveArg struct {
	ID string   `json:"id"`
	X  *float64 `json:"x"`
	Y  *float64 `json:"y"`
}

func (s *Server) handleMoveBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := requireString(req.GetArguments(), "positions")
	if err != nil {
		return s.toolError("move_blocks", err)
	}
	var moves []moveArg
	if err := parseJSON(raw, &moves); err != nil {
		return s.toolError("move_blocks", errs.New(errs.ErrCodeInvalidInput, "positions must be a JSON array of {id, x, y}"))
	}
	if len(moves) == 0 {
		return s.toolError("move_blocks", errs.New(errs.ErrCodeInvalidInput, "positions must not be empty"))
	}

	updates := make([]service.PositionUpdate, len(moves))
	for i, m := range moves {
		updates[i] = service.PositionUpdate{ID: m.ID, X: wholeNumber(m.X), Y: wholeNumber(m.Y)}
	}
	res, err := s.blocks.UpdatePositions(ctx, updates)
	if err != nil {
		return s.toolError("move_blocks", err)
	}
	return jsonResult(res)
}

// wholeNumber drops fractional coordinates so the entry is skipped as
// missing instead of silently truncated.
func wholeNumber(f *float64) *int {
	if f == nil {
		return nil
	}
	n := int(*f)
	if float64(n) != *f {
		return nil
	}
	return &n
}

func (s *Server) handleResizeBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := requireString(args, "blockId")
	if err != nil {
		return s.toolError("resize_block", err)
	}
	w, err := requireInt(args, "width")
	if err != nil {
		return s.toolError("resize_block", err)
	}
	h, err := requireInt(args, "height")
	if err != nil {
		return s.toolError("resize_block", err)
	}

	block, outcome, err := s.blocks.UpdateSize(ctx, id, w, h)
	if err != nil {
		return s.toolError("resize_block", err)
	}
	return jsonResult(map[string]any{"block": summarizeBlock(*block), "layout": outcome})
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(req.GetArguments(), "blockId")
	if err != nil {
		return s.toolError("delete_block", err)
	}
	if err := s.blocks.DeleteBlock(ctx, id); err != nil {
		return s.toolError("delete_block", err)
	}
	return textResult(fmt.Sprintf("Block %s deleted", id)), nil
}
