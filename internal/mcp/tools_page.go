package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"maglink/internal/service"
)

func (s *Server) registerPageTools() {
	// ── list_pages ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List pages, newest first"),
		mcp.WithString("tenantId",
			mcp.Description("Only list this tenant's pages (optional)"),
		),
	), s.handleListPages)

	// ── create_page ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create a page. The slug is derived from the title unless given."),
		mcp.WithString("title", mcp.Description("Page title"), mcp.Required()),
		mcp.WithString("tenantId", mcp.Description("Owning tenant (optional)")),
		mcp.WithString("slug", mcp.Description("Preferred slug (optional)")),
		mcp.WithString("description", mcp.Description("Page description (optional)")),
	), s.handleCreatePage)

	// ── get_page_state ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_page_state",
		mcp.WithDescription("Get a page with all of its blocks and their grid geometry"),
		mcp.WithString("page", mcp.Description("Page ID or slug"), mcp.Required()),
	), s.handleGetPageState)
}

func (s *Server) handleListPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := s.pages.ListPages(ctx, getString(req.GetArguments(), "tenantId"))
	if err != nil {
		return s.toolError("list_pages", err)
	}

	type pageSummary struct {
		ID        string `json:"id"`
		Slug      string `json:"slug"`
		Title     string `json:"title"`
		Published bool   `json:"published"`
	}
	summaries := make([]pageSummary, len(pages))
	for i, p := range pages {
		summaries[i] = pageSummary{ID: p.ID, Slug: p.Slug, Title: p.Title, Published: p.IsPublished()}
	}
	return jsonResult(summaries)
}

func (s *Server) handleCreatePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	p, err := s.pages.CreatePage(ctx, service.CreatePageInput{
		TenantID:    getString(args, "tenantId"),
		Title:       getString(args, "title"),
		Slug:        getString(args, "slug"),
		Description: getString(args, "description"),
	})
	if err != nil {
		return s.toolError("create_page", err)
	}
	return jsonResult(p)
}

func (s *Server) handleGetPageState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := requireString(req.GetArguments(), "page")
	if err != nil {
		return s.toolError("get_page_state", err)
	}
	state, err := s.pages.GetPageState(ctx, ref)
	if err != nil {
		return s.toolError("get_page_state", err)
	}
	return jsonResult(state)
}

// resolvePage turns an id-or-slug argument into a page id.
func (s *Server) resolvePage(ctx context.Context, args map[string]any) (string, error) {
	ref, err := requireString(args, "pageId")
	if err != nil {
		return "", err
	}
	p, err := s.pages.GetPage(ctx, ref)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}
