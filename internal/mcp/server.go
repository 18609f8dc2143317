package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server exposing the saved analysis history.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("AFDash", version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Cardiac rhythm analysis history server. Query saved AF prediction and detection records and their aggregated dashboard summary. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListRecords, Handler: h.listRecords},
		server.ServerTool{Tool: toolGetRecord, Handler: h.getRecord},
		server.ServerTool{Tool: toolDashboardSummary, Handler: h.dashboardSummary},
	)

	return s
}

// handlers holds dependencies for MCP tool handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}
