// datalake/lake.go
package datalake

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Themichaelreimer/medistat/models"
	"github.com/Themichaelreimer/medistat/utils"
)

// RecordLedger is the slice of the database the lake needs: metadata over
// stored payloads. Satisfied by *database.Store.
type RecordLedger interface {
	InsertRawRecord(ctx context.Context, rec *models.RawRecord) error
	HasRawRecord(ctx context.Context, sourceID int64, hash string) (bool, error)
}

// Lake archives raw payloads immutably under a content-addressed path and
// records their metadata in the ledger.
type Lake struct {
	Root    string
	Records RecordLedger
}

func New(root string, records RecordLedger) *Lake {
	return &Lake{Root: root, Records: records}
}

// HashBytes returns the md5 hex digest of the exact payload bytes.
// Callers with text payloads must UTF-8 encode before hashing, which is
// what a Go string conversion already does.
func HashBytes(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// PathFor derives the storage path for a payload. It is a pure function of
// (sanitized source name, publish y/m/d, hash): identical inputs always
// yield the identical path. Source names that sanitize identically collide
// (accepted risk).
func (l *Lake) PathFor(sourceName string, publishedAt time.Time, hash string) string {
	return filepath.Join(
		l.Root,
		utils.CleanString(sourceName),
		strconv.Itoa(publishedAt.Year()),
		strconv.Itoa(int(publishedAt.Month())),
		strconv.Itoa(publishedAt.Day()),
		hash,
	)
}

// Store writes the payload to its content-addressed path and then records
// its metadata. Write-then-record: a crash between the two leaves an
// orphan file, which is harmless because the ledger is the source of
// truth.
func (l *Lake) Store(ctx context.Context, source *models.Source, payload []byte, publishedAt time.Time, link string) (*models.RawRecord, error) {
	hash := HashBytes(payload)
	fullPath := l.PathFor(source.Name, publishedAt, hash)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create datalake directory for %s: %w", fullPath, err)
	}
	if err := os.WriteFile(fullPath, payload, 0644); err != nil {
		return nil, fmt.Errorf("failed to write datalake file %s: %w", fullPath, err)
	}

	rec := &models.RawRecord{
		SourceID:    source.ID,
		PublishedAt: publishedAt,
		LoadedAt:    time.Now().UTC(),
		FilePath:    fullPath,
		Link:        link,
		Hash:        hash,
	}
	if err := l.Records.InsertRawRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record stored payload: %w", err)
	}
	return rec, nil
}

// HasAlready reports whether this exact payload is already stored for the
// source, trusting the content hash as a stand-in for byte equality.
func (l *Lake) HasAlready(ctx context.Context, source *models.Source, payload []byte) (bool, error) {
	return l.Records.HasRawRecord(ctx, source.ID, HashBytes(payload))
}

// Read returns the exact stored bytes of a record's payload.
func (l *Lake) Read(rec *models.RawRecord) ([]byte, error) {
	data, err := os.ReadFile(rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read datalake file %s: %w", rec.FilePath, err)
	}
	return data, nil
}
