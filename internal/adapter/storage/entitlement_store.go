package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
)

const entitlementColumns = `id, user_id, title_id, order_id, status, provenance, granted_unix,
	expires_unix, progress_cursor, bookmarks, updated_unix`

func (s *SQLAdapter) CreateEntitlement(ctx context.Context, e domain.Entitlement) error {
	bookmarks, err := encodeBookmarks(e.Bookmarks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entitlements (`+entitlementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.TitleID, e.OrderID, string(e.Status), string(e.Provenance),
		toUnix(e.GrantedAt), nullUnix(e.ExpiresAt), e.ProgressCursor, bookmarks, toUnix(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert entitlement: %w", err)
	}
	return nil
}

func (s *SQLAdapter) UpdateEntitlement(ctx context.Context, e domain.Entitlement) error {
	bookmarks, err := encodeBookmarks(e.Bookmarks)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE entitlements
		SET order_id = ?, status = ?, provenance = ?, granted_unix = ?, expires_unix = ?,
			progress_cursor = ?, bookmarks = ?, updated_unix = ?
		WHERE id = ?`,
		e.OrderID, string(e.Status), string(e.Provenance), toUnix(e.GrantedAt), nullUnix(e.ExpiresAt),
		e.ProgressCursor, bookmarks, toUnix(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update entitlement: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("update entitlement %s: not found", e.ID)
	}
	return nil
}

// LatestFor is the single place the most-recent-wins rule lives.
func (s *SQLAdapter) LatestFor(ctx context.Context, userID, titleID string) (*domain.Entitlement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entitlementColumns+`
		FROM entitlements
		WHERE user_id = ? AND title_id = ?
		ORDER BY granted_unix DESC, updated_unix DESC, id DESC
		LIMIT 1`, userID, titleID)

	e, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query entitlement: %w", err)
	}
	return e, nil
}

func (s *SQLAdapter) ListEntitlements(ctx context.Context, userID string) ([]domain.Entitlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entitlementColumns+`
		FROM entitlements WHERE user_id = ?
		ORDER BY granted_unix DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query entitlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) CountManualGrantsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entitlements
		WHERE user_id = ? AND granted_unix >= ? AND provenance <> ?`,
		userID, toUnix(since), string(domain.ProvenanceOrder),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count grants: %w", err)
	}
	return count, nil
}

func (s *SQLAdapter) DeletePlaceholders(ctx context.Context, userID string, titleIDs []string) (int64, error) {
	if len(titleIDs) == 0 {
		return 0, nil
	}
	args := append([]any{userID}, toAny(titleIDs)...)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM entitlements
		WHERE user_id = ? AND expires_unix IS NULL AND title_id IN (`+placeholders(len(titleIDs))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete placeholders: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLAdapter) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entitlements
		SET status = ?, updated_unix = ?
		WHERE status = ? AND expires_unix IS NOT NULL AND expires_unix < ?`,
		string(domain.EntitlementExpired), toUnix(now), string(domain.EntitlementActive), toUnix(now),
	)
	if err != nil {
		return 0, fmt.Errorf("expire entitlements: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLAdapter) DeleteEntitlements(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entitlements WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete entitlements: %w", err)
	}
	return result.RowsAffected()
}

func scanEntitlement(row rowScanner) (*domain.Entitlement, error) {
	var (
		e                        domain.Entitlement
		status, provenance       string
		bookmarks                string
		grantedUnix, updatedUnix int64
		expires                  sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.UserID, &e.TitleID, &e.OrderID, &status, &provenance,
		&grantedUnix, &expires, &e.ProgressCursor, &bookmarks, &updatedUnix)
	if err != nil {
		return nil, err
	}

	e.Status = domain.EntitlementStatus(status)
	e.Provenance = domain.Provenance(provenance)
	e.GrantedAt = fromUnix(grantedUnix)
	e.ExpiresAt = fromNullUnix(expires)
	e.UpdatedAt = fromUnix(updatedUnix)
	if bookmarks != "" {
		if err := json.Unmarshal([]byte(bookmarks), &e.Bookmarks); err != nil {
			return nil, fmt.Errorf("decode bookmarks: %w", err)
		}
	}
	return &e, nil
}

func encodeBookmarks(pages []int) (string, error) {
	if pages == nil {
		pages = []int{}
	}
	b, err := json.Marshal(pages)
	if err != nil {
		return "", fmt.Errorf("encode bookmarks: %w", err)
	}
	return string(b), nil
}
