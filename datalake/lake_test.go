package datalake

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Themichaelreimer/medistat/models"
)

// fakeLedger records raw-record metadata in memory.
type fakeLedger struct {
	records []models.RawRecord
	nextID  int64
}

func (f *fakeLedger) InsertRawRecord(_ context.Context, rec *models.RawRecord) error {
	f.nextID++
	rec.ID = f.nextID
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeLedger) HasRawRecord(_ context.Context, sourceID int64, hash string) (bool, error) {
	for _, rec := range f.records {
		if rec.SourceID == sourceID && rec.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func TestPathForIsDeterministic(t *testing.T) {
	lake := New("/lake", &fakeLedger{})
	published := time.Date(2023, 4, 3, 15, 30, 0, 0, time.UTC)

	a := lake.PathFor("Human Mortality Database", published, "abc123")
	b := lake.PathFor("Human Mortality Database", published, "abc123")
	assert.Equal(t, a, b)
	assert.Equal(t, filepath.Join("/lake", "humanmortalitydatabase", "2023", "4", "3", "abc123"), a)
}

func TestStoreThenHasAlready(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	lake := New(t.TempDir(), ledger)
	source := &models.Source{ID: 1, Name: "Human Mortality Database"}
	payload := []byte("some raw statistics payload")
	published := time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)

	has, err := lake.HasAlready(ctx, source, payload)
	require.NoError(t, err)
	assert.False(t, has)

	rec, err := lake.Store(ctx, source, payload, published, "https://example.org/data.zip")
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, HashBytes(payload), rec.Hash)

	has, err = lake.HasAlready(ctx, source, payload)
	require.NoError(t, err)
	assert.True(t, has)

	// Even one byte different is a new payload.
	altered := []byte("Some raw statistics payload")
	has, err = lake.HasAlready(ctx, source, altered)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestReadReturnsExactBytes(t *testing.T) {
	ctx := context.Background()
	lake := New(t.TempDir(), &fakeLedger{})
	source := &models.Source{ID: 1, Name: "Human Mortality Database"}
	payload := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff}

	rec, err := lake.Store(ctx, source, payload, time.Now(), "")
	require.NoError(t, err)

	got, err := lake.Read(rec)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestHashBytesMatchesMD5Hex(t *testing.T) {
	// md5("") is the well-known empty digest.
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", HashBytes(nil))
	assert.Len(t, HashBytes([]byte("x")), 32)
}
