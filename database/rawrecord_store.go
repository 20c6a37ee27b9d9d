// database/rawrecord_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Themichaelreimer/medistat/models"
)

// InsertRawRecord records the metadata of a stored raw payload. The file
// itself has already been written by the datalake; the ledger row, not the
// file, is the source of truth for "do we have this".
func (s *Store) InsertRawRecord(ctx context.Context, rec *models.RawRecord) error {
	return insertRawRecord(ctx, s.DB, rec)
}

func insertRawRecord(ctx context.Context, db execer, rec *models.RawRecord) error {
	// loaded_at is bound from the record so the row matches the audit
	// timestamp the caller already holds.
	res, err := db.ExecContext(ctx, `
		INSERT INTO raw_records
			(source_id, published_at, loaded_at, processed_at, file_path, link, hash)
		VALUES (?, ?, ?, NULL, ?, ?, ?)`,
		rec.SourceID, rec.PublishedAt, rec.LoadedAt, rec.FilePath, rec.Link, rec.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert raw record for source %d: %w", rec.SourceID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get raw record insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// HasRawRecord reports whether a record already exists for (source, hash).
// The hash stands in for byte-equality of the payload.
func (s *Store) HasRawRecord(ctx context.Context, sourceID int64, hash string) (bool, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM raw_records WHERE source_id = ? AND hash = ? LIMIT 1`,
		sourceID, hash,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check raw record existence: %w", err)
	}
	return true, nil
}

// GetUnprocessedRawRecords returns every record for the source that has
// not been transformed yet. Order is unspecified.
func (s *Store) GetUnprocessedRawRecords(ctx context.Context, sourceID int64) ([]models.RawRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, source_id, published_at, loaded_at, processed_at, file_path, link, hash
		FROM raw_records
		WHERE source_id = ? AND processed_at IS NULL`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed raw records: %w", err)
	}
	defer rows.Close()

	var records []models.RawRecord
	for rows.Next() {
		var rec models.RawRecord
		var processedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.SourceID, &rec.PublishedAt, &rec.LoadedAt,
			&processedAt, &rec.FilePath, &rec.Link, &rec.Hash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan raw record row: %w", err)
		}
		if processedAt.Valid {
			rec.ProcessedAt = &processedAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw record rows: %w", err)
	}
	return records, nil
}

// MarkRawRecordProcessed stamps processed_at. Idempotent on repeat calls.
// There is no transaction tying this to the datum inserts that precede it;
// a crash between the two leaves the record unprocessed and the rerun
// re-inserts its datums. Known correctness gap, kept append-only on
// purpose rather than papered over with an upsert.
func (s *Store) MarkRawRecordProcessed(ctx context.Context, recordID int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE raw_records SET processed_at = NOW() WHERE id = ? AND processed_at IS NULL`,
		recordID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark raw record %d processed: %w", recordID, err)
	}
	return nil
}
