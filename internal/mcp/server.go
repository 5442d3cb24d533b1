package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"maglink/internal/errs"
	"maglink/internal/service"
)

// Server is the MCP server for maglink.
// It exposes tools, resources, and prompts so AI agents can lay out pages.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger

	pages  *service.PageService
	blocks *service.BlockService
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Pages   *service.PageService
	Blocks  *service.BlockService
	Logger  *zap.Logger
	Version string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		logger: deps.Logger,
		pages:  deps.Pages,
		blocks: deps.Blocks,
	}

	s.mcp = server.NewMCPServer(
		"maglink-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)

	s.registerPageTools()
	s.registerBlockTools()
	s.registerLayoutTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp stdio server starting")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// toolError reports a coded error back to the agent as a failed tool call.
// Uncoded errors are protocol errors.
func (s *Server) toolError(tool string, err error) (*mcp.CallToolResult, error) {
	code := errs.GetCode(err)
	if code == "" || code == errs.ErrCodeInternal {
		s.logger.Error("mcp tool failed", zap.String("tool", tool), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", tool, err)
	}
	res := textResult(fmt.Sprintf("%s: %s", code, errs.Message(err)))
	res.IsError = true
	return res, nil
}
