// database/tag_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// GetOrCreateTag returns the id of the tag with the exact given name,
// creating it on first sight. Tags are append-only.
func (s *Store) GetOrCreateTag(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT id FROM tags WHERE name = ?`, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query tag %q: %w", name, err)
	}

	res, err := s.DB.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert tag %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get tag insert id: %w", err)
	}
	return id, nil
}

// seriesKey canonicalises a tag-id set into the lookup key stored on the
// series row: ids sorted ascending, comma-joined. Order-independent by
// construction.
func seriesKey(tagIDs []int64) string {
	sorted := make([]int64, len(tagIDs))
	copy(sorted, tagIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// GetOrCreateSeries returns the id of the series whose tag set is exactly
// tagIDs, creating it (and its tag links) on first sight. Two concurrent
// first-encounters of the same set can create two series rows; the
// deterministic key means both carry identical tags, so reads stay
// correct even when that race loses.
func (s *Store) GetOrCreateSeries(ctx context.Context, tagIDs []int64) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, fmt.Errorf("cannot create a series with no tags")
	}
	key := seriesKey(tagIDs)

	var id int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT id FROM series WHERE tag_key = ?`, key,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to query series %q: %w", key, err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin series transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO series (tag_key) VALUES (?)`, key)
	if err != nil {
		return 0, fmt.Errorf("failed to insert series %q: %w", key, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get series insert id: %w", err)
	}

	for position, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO series_tags (series_id, tag_id, position) VALUES (?, ?, ?)`,
			id, tagID, position,
		); err != nil {
			return 0, fmt.Errorf("failed to link series %d to tag %d: %w", id, tagID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit series %q: %w", key, err)
	}
	return id, nil
}
