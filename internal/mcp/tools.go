package mcp

import (
	"context"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/mark3labs/mcp-go/mcp"
)

var toolListRecords = mcp.NewTool("list_records",
	mcp.WithDescription("List the user's saved analysis records, oldest first. Optionally filter by record type."),
	mcp.WithString("type", mcp.Description("Filter by record type"), mcp.Enum("prediction", "detection")),
)

var toolGetRecord = mcp.NewTool("get_record",
	mcp.WithDescription("Fetch a single saved analysis record by its ID."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Record ID (UUID)")),
)

var toolDashboardSummary = mcp.NewTool("dashboard_summary",
	mcp.WithDescription("Aggregated dashboard view: per-type totals, alerting counts, and probability trend series built from the user's saved records."),
)

func (h *handlers) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := h.ds.ListRecordsByUser(ctx, UserIDFromContext(ctx))
	if err != nil {
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	if filter := req.GetString("type", ""); filter != "" {
		filtered := make([]analysis.Record, 0, len(records))
		for _, r := range records {
			if string(r.Type) == filter {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	result, err := mcp.NewToolResultJSON(records)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	rec, err := h.ds.GetRecord(ctx, UserIDFromContext(ctx), id)
	if err != nil {
		return mcp.NewToolResultError("record not found: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rec)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) dashboardSummary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := h.ds.ListRecordsByUser(ctx, UserIDFromContext(ctx))
	if err != nil {
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(analysis.Aggregate(records))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
