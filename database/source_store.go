// database/source_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Themichaelreimer/medistat/models"
)

// GetSourceByName looks a source up by its unique name.
func (s *Store) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	var src models.Source
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, link FROM sources WHERE name = ?`, name,
	).Scan(&src.ID, &src.Name, &src.Link)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source %q: %w", name, err)
	}
	return &src, nil
}

// GetOrCreateSource returns the source with the given name, creating it on
// first sight. Sources are immutable after creation.
func (s *Store) GetOrCreateSource(ctx context.Context, name, link string) (*models.Source, error) {
	src, err := s.GetSourceByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if src != nil {
		return src, nil
	}

	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO sources (name, link) VALUES (?, ?)`, name, link,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert source %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get source insert id: %w", err)
	}
	return &models.Source{ID: id, Name: name, Link: link}, nil
}
