package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("tidy_page",
		mcp.WithPromptDescription("Check a page for overlapping blocks and clean up its layout"),
		mcp.WithArgument("page",
			mcp.ArgumentDescription("Page ID or slug"),
			mcp.RequiredArgument(),
		),
	), s.handleTidyPagePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("build_link_page",
		mcp.WithPromptDescription("Lay out a new link page with a title, a separator and a column of links"),
		mcp.WithArgument("title",
			mcp.ArgumentDescription("Title of the page"),
			mcp.RequiredArgument(),
		),
	), s.handleBuildLinkPagePrompt)
}

func (s *Server) handleTidyPagePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	page := req.Params.Arguments["page"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Tidy the layout of page %s", page),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Tidy the layout of page "%s". Follow these steps:

1. Use get_page_state to see every block and its grid cell
2. Use check_overlaps to list blocks sharing a cell
3. If anything overlaps, call repack_page and report which blocks moved
4. If the result looks worse than before, use list_snapshots and restore_snapshot to go back

Blocks live on a grid: x is the column, y is the row, width and height count cells.`, page),
				},
			},
		},
	}, nil
}

func (s *Server) handleBuildLinkPagePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	title := req.Params.Arguments["title"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Build a link page: %s", title),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a link page titled "%s". Follow these steps:

1. Use create_page with the title
2. Add a title block (create_block type "title") with the page title
3. Add a separator block below it
4. Add one link block per link; omit x and y so each goes to the next free spot
5. Finish with get_page_state and confirm nothing overlaps`, title),
				},
			},
		},
	}, nil
}
