// models/models.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source is one external data origin. Created once per origin; immutable.
type Source struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Link string `db:"link"`
}

// RawRecord is the ledger entry over one stored raw payload.
// (SourceID, Hash) identify a payload for dedup purposes.
type RawRecord struct {
	ID          int64      `db:"id"`
	SourceID    int64      `db:"source_id"`
	PublishedAt time.Time  `db:"published_at"` // when the source published this document
	LoadedAt    time.Time  `db:"loaded_at"`    // audit only
	ProcessedAt *time.Time `db:"processed_at"` // nil until transform completes
	FilePath    string     `db:"file_path"`
	Link        string     `db:"link"`
	Hash        string     `db:"hash"` // md5 hex of the exact payload bytes
}

// Tags and series travel through the pipeline as bare ids: the resolver
// hands out series ids and the stores key them by name/tag-set directly,
// so neither needs a row struct here.

// Datum is a single dated, aged observation belonging to a series.
type Datum struct {
	ID          int64           `db:"id"`
	SeriesID    int64           `db:"series_id"`
	Date        time.Time       `db:"date"`
	Age         int             `db:"age"`
	Value       decimal.Decimal `db:"value"`
	RawRecordID int64           `db:"raw_record_id"`
}

// ParsedDatum is one observation as it comes out of the table parser,
// before its tag set has been resolved to a series.
type ParsedDatum struct {
	Tags  []string
	Date  time.Time
	Age   int
	Value decimal.Decimal
}
