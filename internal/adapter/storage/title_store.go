package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
)

func (s *SQLAdapter) CreateTitle(ctx context.Context, t domain.Title) error {
	if t.CopiesAvailable < 0 {
		return fmt.Errorf("create title %s: negative copies", t.ID)
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.Status = domain.DeriveStatus(t.CopiesAvailable, t.Status)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO titles (id, name, author, price_cents, restricted, content_key, cover_key,
			copies_available, availability_status, created_unix, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Author, t.PriceCents, t.Restricted, t.ContentKey, t.CoverKey,
		t.CopiesAvailable, string(t.Status), toUnix(t.CreatedAt), toUnix(now),
	)
	if err != nil {
		return fmt.Errorf("insert title: %w", err)
	}
	return nil
}

func (s *SQLAdapter) GetTitle(ctx context.Context, titleID string) (*domain.Title, error) {
	var (
		t                      domain.Title
		status                 string
		createdUnix, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, author, price_cents, restricted, content_key, cover_key,
			copies_available, availability_status, created_unix, updated_unix
		FROM titles WHERE id = ?`, titleID,
	).Scan(&t.ID, &t.Name, &t.Author, &t.PriceCents, &t.Restricted, &t.ContentKey, &t.CoverKey,
		&t.CopiesAvailable, &status, &createdUnix, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query title: %w", err)
	}

	t.Status = domain.AvailabilityStatus(status)
	t.CreatedAt = fromUnix(createdUnix)
	t.UpdatedAt = fromUnix(updatedAt)
	return &t, nil
}

// ReserveStock decrements in one statement so concurrent reservations
// converge. The status assignment comes first: MySQL applies SET clauses
// left to right, SQLite evaluates them against the old row, so in both the
// CASE sees the pre-update count.
func (s *SQLAdapter) ReserveStock(ctx context.Context, titleID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("reserve stock: invalid quantity %d", quantity)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE titles
		SET availability_status = CASE WHEN copies_available - ? = 0 THEN 'OUT_OF_STOCK' ELSE availability_status END,
			copies_available = copies_available - ?,
			updated_unix = ?
		WHERE id = ? AND availability_status = 'AVAILABLE' AND copies_available >= ?`,
		quantity, quantity, toUnix(time.Now()), titleID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", err)
	}
	return rows == 1, nil
}

func (s *SQLAdapter) ReleaseStock(ctx context.Context, titleID string, quantity int) error {
	return releaseCopies(ctx, s.db, titleID, quantity)
}

func releaseCopies(ctx context.Context, ex execer, titleID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("release stock: invalid quantity %d", quantity)
	}
	result, err := ex.ExecContext(ctx, `
		UPDATE titles
		SET availability_status = CASE WHEN availability_status = 'OUT_OF_STOCK' AND copies_available + ? > 0 THEN 'AVAILABLE' ELSE availability_status END,
			copies_available = copies_available + ?,
			updated_unix = ?
		WHERE id = ?`,
		quantity, quantity, toUnix(time.Now()), titleID,
	)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("release stock: title %s not found", titleID)
	}
	return nil
}
