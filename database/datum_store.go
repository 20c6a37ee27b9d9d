// database/datum_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Themichaelreimer/medistat/models"
)

// execer is the slice of *sql.DB the insert helpers need; it exists so
// statement construction can be tested without a live database.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// datumInsertChunkSize bounds the rows per INSERT statement. MySQL caps
// prepared-statement parameters at 65,535 and a full-size 1x1 table runs
// to tens of thousands of datums, so one statement per file cannot work;
// 1,000 rows is 5,000 placeholders, comfortably under the cap and under
// default max_allowed_packet.
const datumInsertChunkSize = 1000

// InsertData bulk-inserts a batch of datums, chunked into multi-row
// statements. Values are bound as their exact decimal text so nothing
// passes through a float64. Datums are append-only; reruns over the same
// raw record will insert duplicates rather than upsert.
func (s *Store) InsertData(ctx context.Context, data []models.Datum) error {
	return insertData(ctx, s.DB, data)
}

func insertData(ctx context.Context, db execer, data []models.Datum) error {
	for start := 0; start < len(data); start += datumInsertChunkSize {
		end := start + datumInsertChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := insertDatumChunk(ctx, db, data[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertDatumChunk(ctx context.Context, db execer, chunk []models.Datum) error {
	if len(chunk) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO data (series_id, date, age, value, raw_record_id) VALUES `)
	args := make([]interface{}, 0, len(chunk)*5)
	for i, d := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, d.SeriesID, d.Date, d.Age, d.Value.String(), d.RawRecordID)
	}

	if _, err := db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to bulk insert %d datums: %w", len(chunk), err)
	}
	return nil
}
