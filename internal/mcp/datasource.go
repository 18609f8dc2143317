package mcp

import (
	"context"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/cardiolab/afdash/internal/storage"
)

// DataSource abstracts the record store for MCP tools.
type DataSource interface {
	ListRecordsByUser(ctx context.Context, userID string) ([]analysis.Record, error)
	GetRecord(ctx context.Context, userID, recordID string) (*analysis.Record, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
