package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

// orderChange describes one committed transition.
type orderChange struct {
	from       domain.OrderStatus
	to         domain.OrderStatus
	order      domain.Order
	actorID    string
	accessDays int
}

// effects may stamp completion markers on c.order.
type effect func(ctx context.Context, c *orderChange) error

// effectTable lists what entering each status does, beyond the user
// notification every transition sends. Legality lives in domain.CanTransition.
func (s *OrderService) effectTable() map[domain.OrderStatus][]effect {
	return map[domain.OrderStatus][]effect{
		domain.OrderStatusCancelled:       {s.releaseStock, s.purgePlaceholders},
		domain.OrderStatusReturned:        {s.releaseStock, s.purgePlaceholders},
		domain.OrderStatusShipped:         {s.sendInvoice},
		domain.OrderStatusDelivered:       {s.grantAccess, s.sendInvoice},
		domain.OrderStatusReturnRequested: {s.alertAdmins},
	}
}

var statusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusProcessing:      "Your order %s is being processed.",
	domain.OrderStatusShipped:         "Your order %s has shipped.",
	domain.OrderStatusDelivered:       "Your order %s was delivered and your reading access is active.",
	domain.OrderStatusCancelled:       "Your order %s was cancelled.",
	domain.OrderStatusReturnRequested: "We received your return request for order %s.",
	domain.OrderStatusReturnAccepted:  "Your return for order %s was accepted.",
	domain.OrderStatusReturnRejected:  "Your return for order %s was rejected.",
	domain.OrderStatusReturned:        "The returned items of order %s arrived.",
	domain.OrderStatusRefundInitiated: "A refund for order %s was started. Please submit your refund details.",
	domain.OrderStatusRefunded:        "Your refund for order %s was completed.",
}

// applyEffects runs every effect of c.to even if an earlier one failed.
// Only ledger and entitlement writes can fail it; outbound calls are queued.
func (s *OrderService) applyEffects(ctx context.Context, c *orderChange) error {
	var errs []error
	for _, fx := range s.effects[c.to] {
		if err := fx(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	if msg, ok := statusMessages[c.to]; ok {
		s.notify(c.order.UserID, c.order, fmt.Sprintf(msg, c.order.ID))
	}
	return errors.Join(errs...)
}

// releaseStock returns the order's copies at most once. The marker and the
// ledger move in one transaction, so a failure leaves both untouched.
func (s *OrderService) releaseStock(ctx context.Context, c *orderChange) error {
	now := s.opts.now()
	released, err := s.db.ReleaseOrderStock(ctx, c.order.ID, now)
	if err != nil {
		s.opts.logger.Error().Err(err).
			Str("order_id", c.order.ID).
			Str("status", string(c.to)).
			Msg("stock release failed")
		return fmt.Errorf("release stock: %w", err)
	}
	if released {
		c.order.StockReleasedAt = &now
	}
	return nil
}

// purgePlaceholders runs after the stock release as a separate write. A
// crash in between leaves a placeholder behind, which never grants access.
func (s *OrderService) purgePlaceholders(ctx context.Context, c *orderChange) error {
	n, err := s.db.DeletePlaceholders(ctx, c.order.UserID, c.order.TitleIDs())
	if err != nil {
		s.opts.logger.Warn().Err(err).Str("order_id", c.order.ID).Msg("placeholder purge failed")
		return nil
	}
	if n > 0 {
		s.opts.logger.Debug().Str("order_id", c.order.ID).Int64("purged", n).Msg("placeholders purged")
	}
	return nil
}

// grantAccess upserts an ACTIVE record per title. The latest record is
// refreshed in place so LatestFor keeps a single authoritative row, which
// also makes a rerun for the same delivery write the same values.
func (s *OrderService) grantAccess(ctx context.Context, c *orderChange) error {
	now := *c.order.DeliveredAt
	var errs []error
	for _, titleID := range c.order.TitleIDs() {
		if err := s.upsertOrderGrant(ctx, c.order, titleID, now, c.accessDays); err != nil {
			s.opts.logger.Error().Err(err).
				Str("order_id", c.order.ID).
				Str("user_id", c.order.UserID).
				Str("title_id", titleID).
				Msg("access grant failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := s.db.MarkAccessGranted(ctx, c.order.ID, now); err != nil {
		return fmt.Errorf("grant access: %w", err)
	}
	c.order.AccessGrantedAt = &now
	return nil
}

func (s *OrderService) upsertOrderGrant(ctx context.Context, order domain.Order, titleID string, now time.Time, days int) error {
	latest, err := s.db.LatestFor(ctx, order.UserID, titleID)
	if err != nil {
		return fmt.Errorf("latest entitlement: %w", err)
	}
	if latest == nil {
		e := domain.Entitlement{ID: uuid.NewString(), UserID: order.UserID, TitleID: titleID, OrderID: order.ID}
		e.Activate(now, days, domain.ProvenanceOrder)
		return s.db.CreateEntitlement(ctx, e)
	}

	latest.OrderID = order.ID
	if latest.IsLive(now) && latest.Provenance == domain.ProvenanceManual {
		// keep the manual grant's cycle accounting, extend its expiry
		expires := now.AddDate(0, 0, days)
		latest.ExpiresAt = &expires
		latest.UpdatedAt = now
	} else {
		latest.Activate(now, days, domain.ProvenanceOrder)
	}
	return s.db.UpdateEntitlement(ctx, *latest)
}

func (s *OrderService) alertAdmins(_ context.Context, c *orderChange) error {
	s.notifyRole(domain.RoleAdmin, fmt.Sprintf("Return requested for order %s: %s", c.order.ID, c.order.ReturnReason))
	return nil
}

// sendInvoice renders and mails the invoice off the request path.
func (s *OrderService) sendInvoice(_ context.Context, c *orderChange) error {
	if s.opts.invoices == nil || s.opts.mailer == nil {
		return nil
	}
	order := c.order
	s.enqueue("invoice:"+order.ID, func(ctx context.Context) error {
		return s.mailInvoice(ctx, order)
	})
	return nil
}

func (s *OrderService) mailInvoice(ctx context.Context, order domain.Order) error {
	member, err := s.db.GetMember(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if member == nil || member.Email == "" {
		return fmt.Errorf("member %s has no email: %w", order.UserID, ErrNotFound)
	}

	names := make(map[string]string, len(order.Items))
	for _, titleID := range order.TitleIDs() {
		t, err := s.db.GetTitle(ctx, titleID)
		if err != nil || t == nil {
			names[titleID] = titleID
			continue
		}
		names[titleID] = t.Name
	}

	body, err := s.opts.invoices.Render(ctx, port.InvoiceSnapshot{Order: order, CustomerEmail: member.Email, TitleNames: names})
	if err != nil {
		return fmt.Errorf("render invoice: %w: %w", ErrUpstream, err)
	}

	err = s.opts.mailer.Send(ctx, port.Mail{
		To:       member.Email,
		Subject:  fmt.Sprintf("Invoice for order %s (%s)", order.ID, order.Status),
		TextBody: string(body),
		Attachments: []port.Attachment{{
			Filename:    fmt.Sprintf("invoice-%s.txt", order.ID),
			ContentType: "text/plain; charset=utf-8",
			Data:        body,
		}},
	})
	if err != nil {
		return fmt.Errorf("send invoice: %w: %w", ErrUpstream, err)
	}
	return nil
}

func (s *OrderService) notify(userID string, order domain.Order, message string) {
	if s.opts.notifier == nil {
		return
	}
	n := port.Notification{
		RecipientUserID: userID,
		Category:        "order",
		Message:         message,
		RelatedEntityID: order.ID,
	}
	if ids := order.TitleIDs(); len(ids) > 0 {
		n.RelatedTitleID = ids[0]
	}
	s.enqueue("notify:"+order.ID, func(ctx context.Context) error {
		return s.opts.notifier.Notify(ctx, n)
	})
}

func (s *OrderService) notifyRole(role domain.Role, message string) {
	if s.opts.notifier == nil {
		return
	}
	s.enqueue("notify-role:"+string(role), func(ctx context.Context) error {
		return s.opts.notifier.NotifyRole(ctx, role, message)
	})
}

func (s *OrderService) enqueue(name string, run func(ctx context.Context) error) {
	if !s.opts.tasks.Enqueue(port.Task{Name: name, Run: run}) {
		s.opts.logger.Warn().Str("task", name).Msg("task queue full, dropping")
	}
}
