package storage

import (
	"context"
	"fmt"

	"github.com/cardiolab/afdash/internal/analysis"
)

// InsertRecord saves an analysis record. The record's ID and CreatedAt must
// already be set by the caller.
func (db *DB) InsertRecord(ctx context.Context, rec *analysis.Record) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO records (id, user_id, type, date, created_at, record_id,
			file_name, metadata_file_name, zip_name,
			probability, risk, af_detected, probabilities)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID, rec.UserID, rec.Type, rec.Date, rec.CreatedAt, rec.RecordID,
		rec.FileName, rec.MetadataFileName, rec.ZipName,
		rec.Probability, rec.Risk, rec.AFDetected, rec.Probabilities)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// ListRecordsByUser returns all saved records for a user, oldest first.
func (db *DB) ListRecordsByUser(ctx context.Context, userID string) ([]analysis.Record, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, type, date, created_at, record_id,
			file_name, metadata_file_name, zip_name,
			probability, risk, af_detected, probabilities
		FROM records
		WHERE user_id = $1
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []analysis.Record
	for rows.Next() {
		var rec analysis.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Type, &rec.Date, &rec.CreatedAt,
			&rec.RecordID, &rec.FileName, &rec.MetadataFileName, &rec.ZipName,
			&rec.Probability, &rec.Risk, &rec.AFDetected, &rec.Probabilities); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRecord fetches a single record, scoped to the owning user.
func (db *DB) GetRecord(ctx context.Context, userID, recordID string) (*analysis.Record, error) {
	var rec analysis.Record
	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, type, date, created_at, record_id,
			file_name, metadata_file_name, zip_name,
			probability, risk, af_detected, probabilities
		FROM records
		WHERE user_id = $1 AND id = $2`, userID, recordID).
		Scan(&rec.ID, &rec.UserID, &rec.Type, &rec.Date, &rec.CreatedAt,
			&rec.RecordID, &rec.FileName, &rec.MetadataFileName, &rec.ZipName,
			&rec.Probability, &rec.Risk, &rec.AFDetected, &rec.Probabilities)
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}
	return &rec, nil
}
