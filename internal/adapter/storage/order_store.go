package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
)

const orderColumns = `id, user_id, address_id, subtotal_cents, delivery_fee_cents, total_cents, status,
	delivered_unix, return_reason, refund_account_name, refund_bank_name, refund_account_number,
	refund_routing_code, refund_submitted_unix, stock_released_unix, access_granted_unix,
	updated_by, created_unix, updated_unix`

func (s *SQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	refund := refundColumns(order.RefundDetails)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.AddressID, order.SubtotalCents, order.DeliveryFeeCents,
		order.TotalCents, string(order.Status), nullUnix(order.DeliveredAt), order.ReturnReason,
		refund.accountName, refund.bankName, refund.accountNumber, refund.routingCode, refund.submitted,
		nullUnix(order.StockReleasedAt), nullUnix(order.AccessGrantedAt), order.UpdatedBy,
		toUnix(order.CreatedAt), toUnix(order.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (id, order_id, position, title_id, quantity, unit_price_cents)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer stmt.Close()

	for i, it := range order.Items {
		if _, err := stmt.ExecContext(ctx, it.ID, order.ID, i, it.TitleID, it.Quantity, it.UnitPriceCents); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	items, err := listItems(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *SQLAdapter) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_unix DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// release the connection before loading items; SQLite runs on one
	rows.Close()

	for i := range out {
		items, err := listItems(ctx, s.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *SQLAdapter) UpdateOrder(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	refund := refundColumns(order.RefundDetails)
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, delivered_unix = ?, return_reason = ?,
			refund_account_name = ?, refund_bank_name = ?, refund_account_number = ?,
			refund_routing_code = ?, refund_submitted_unix = ?,
			updated_by = ?, updated_unix = ?
		WHERE id = ? AND status = ?`,
		string(order.Status), nullUnix(order.DeliveredAt), order.ReturnReason,
		refund.accountName, refund.bankName, refund.accountNumber, refund.routingCode, refund.submitted,
		order.UpdatedBy, toUnix(order.UpdatedAt),
		order.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// ReleaseOrderStock puts every item of the order back on the ledger and
// stamps stock_released_unix in the same transaction. It returns false
// without touching stock when the order was already released.
func (s *SQLAdapter) ReleaseOrderStock(ctx context.Context, orderID string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET stock_released_unix = ?
		WHERE id = ? AND stock_released_unix IS NULL`,
		toUnix(at), orderID,
	)
	if err != nil {
		return false, fmt.Errorf("claim release: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim release: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	items, err := listItems(ctx, tx, orderID)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if err := releaseCopies(ctx, tx, it.TitleID, it.Quantity); err != nil {
			return false, fmt.Errorf("title %s: %w", it.TitleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit release: %w", err)
	}
	return true, nil
}

func (s *SQLAdapter) MarkAccessGranted(ctx context.Context, orderID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE orders SET access_granted_unix = ? WHERE id = ?`, toUnix(at), orderID)
	if err != nil {
		return fmt.Errorf("mark access granted: %w", err)
	}
	return nil
}

func listItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title_id, quantity, unit_price_cents
		FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.TitleID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                             domain.Order
		status                        string
		delivered, refunded, released sql.NullInt64
		granted                       sql.NullInt64
		accountName, bankName         string
		accountNumber, routingCode    string
		createdUnix, updatedUnix      int64
	)
	err := row.Scan(&o.ID, &o.UserID, &o.AddressID, &o.SubtotalCents, &o.DeliveryFeeCents, &o.TotalCents,
		&status, &delivered, &o.ReturnReason, &accountName, &bankName, &accountNumber, &routingCode,
		&refunded, &released, &granted, &o.UpdatedBy, &createdUnix, &updatedUnix)
	if err != nil {
		return nil, err
	}

	o.Status = domain.OrderStatus(status)
	o.DeliveredAt = fromNullUnix(delivered)
	o.StockReleasedAt = fromNullUnix(released)
	o.AccessGrantedAt = fromNullUnix(granted)
	o.CreatedAt = fromUnix(createdUnix)
	o.UpdatedAt = fromUnix(updatedUnix)
	if refunded.Valid {
		o.RefundDetails = &domain.RefundDetails{
			AccountName:   accountName,
			BankName:      bankName,
			AccountNumber: accountNumber,
			RoutingCode:   routingCode,
			SubmittedAt:   fromUnix(refunded.Int64),
		}
	}
	return &o, nil
}

type refundRow struct {
	accountName, bankName, accountNumber, routingCode string
	submitted                                         sql.NullInt64
}

func refundColumns(r *domain.RefundDetails) refundRow {
	if r == nil {
		return refundRow{}
	}
	submitted := r.SubmittedAt
	return refundRow{
		accountName:   r.AccountName,
		bankName:      r.BankName,
		accountNumber: r.AccountNumber,
		routingCode:   r.RoutingCode,
		submitted:     nullUnix(&submitted),
	}
}
