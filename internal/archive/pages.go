package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// PutPage archives one raw list page verbatim. Idempotent, last write wins.
func (s *Store) PutPage(ctx context.Context, kind model.Kind, page int, body []byte, recordCount int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if page < 0 {
		return fmt.Errorf("page number must be non-negative, got %d", page)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: page %s/%d", ErrEmptyBody, kind, page)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO raw_pages (kind, page, body, record_count, fetched_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, string(kind), page, string(body), recordCount)
	if err != nil {
		return fmt.Errorf("failed to archive page %s/%d: %w", kind, page, err)
	}

	return nil
}

// GetPage returns one archived page body, with ok false when the page is not
// archived.
func (s *Store) GetPage(ctx context.Context, kind model.Kind, page int) ([]byte, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}

	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM raw_pages WHERE kind = ? AND page = ?
	`, string(kind), page).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read page %s/%d: %w", kind, page, err)
	}

	return []byte(body), true, nil
}

// ListPages returns the archived page numbers for a kind in ascending order.
func (s *Store) ListPages(ctx context.Context, kind model.Kind) ([]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT page FROM raw_pages WHERE kind = ? ORDER BY page
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages for %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var pages []int
	for rows.Next() {
		var page int
		if err := rows.Scan(&page); err != nil {
			return nil, fmt.Errorf("failed to scan page row: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pages for %s: %w", kind, err)
	}

	return pages, nil
}
