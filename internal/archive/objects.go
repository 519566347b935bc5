package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// PutObject archives one raw object body. The write is idempotent: writing
// the same identifier again replaces the previous body (last write wins).
// The write is committed before the call returns, so HasObject reports true
// only for durable records.
func (s *Store) PutObject(ctx context.Context, kind model.Kind, id string, body []byte) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: object %s/%s", ErrEmptyBody, kind, id)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO raw_objects (kind, id, body, fetched_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, string(kind), id, string(body))
	if err != nil {
		return fmt.Errorf("failed to archive object %s/%s: %w", kind, id, err)
	}

	return nil
}

// HasObject reports whether a readable object is archived for the identifier.
// A corrupted record is reported as absent, not as an error.
func (s *Store) HasObject(ctx context.Context, kind model.Kind, id string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM raw_objects WHERE kind = ? AND id = ?
	`, string(kind), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read object %s/%s: %w", kind, id, err)
	}

	if !json.Valid([]byte(body)) {
		slog.Warn("Archived object is corrupted, treating as absent",
			"kind", kind,
			"id", id)
		return false, nil
	}

	return true, nil
}

// ListObjectIDs returns the set of identifiers with a readable archived
// object for the kind. Corrupted records are skipped with a warning so they
// are re-fetched on the next run.
func (s *Store) ListObjectIDs(ctx context.Context, kind model.Kind) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body FROM raw_objects WHERE kind = ?
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list objects for %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]bool)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		if !json.Valid([]byte(body)) {
			slog.Warn("Skipping corrupted archived object",
				"kind", kind,
				"id", id)
			continue
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate objects for %s: %w", kind, err)
	}

	return ids, nil
}

// GetObjects returns every readable archived object body for the kind.
// A failure to read the table at all is fatal; individual corrupted records
// are skipped with a warning.
func (s *Store) GetObjects(ctx context.Context, kind model.Kind) ([]json.RawMessage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body FROM raw_objects WHERE kind = ? ORDER BY id
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to read archived %s objects: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var bodies []json.RawMessage
	skipped := 0
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan object row: %w", err)
		}
		if !json.Valid([]byte(body)) {
			slog.Warn("Skipping corrupted archived object",
				"kind", kind,
				"id", id)
			skipped++
			continue
		}
		bodies = append(bodies, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archived %s objects: %w", kind, err)
	}

	if skipped > 0 {
		slog.Warn("Corrupted objects excluded from snapshot",
			"kind", kind,
			"count", skipped)
	}

	return bodies, nil
}

// CountObjects returns the number of archived objects for a kind, including
// corrupted ones.
func (s *Store) CountObjects(ctx context.Context, kind model.Kind) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM raw_objects WHERE kind = ?
	`, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count objects for %s: %w", kind, err)
	}
	return count, nil
}
