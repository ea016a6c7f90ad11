package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

type CartItem struct {
	TitleID  string
	Quantity int
}

type PlaceOrderRequest struct {
	RequestID string
	UserID    string
	Items     []CartItem
	AddressID string
}

// BulkResult reports a batch transition; the maps are keyed by order ID.
// An order in EffectErrors changed status and is counted as modified, but
// one of its follow-up writes failed and is finished by the next request
// for the same status.
type BulkResult struct {
	Modified     int
	Skipped      int
	SkipReasons  map[string]string
	EffectErrors map[string]string
}

type OrderService struct {
	db      port.DatabaseRepository
	cache   port.CacheRepository
	opts    options
	effects map[domain.OrderStatus][]effect
}

// NewOrderService wires the order engine. cache may be nil, in which case
// checkout request IDs are not deduplicated.
func NewOrderService(db port.DatabaseRepository, cache port.CacheRepository, opts ...Option) *OrderService {
	s := &OrderService{
		db:    db,
		cache: cache,
		opts:  buildOptions(opts),
	}
	s.effects = s.effectTable()
	return s
}

func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *domain.Order, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "OrderService.PlaceOrder")
	defer func() { endSpan(span, err) }()

	if err := validateCart(req); err != nil {
		return nil, err
	}

	addr, err := s.db.GetAddress(ctx, req.AddressID)
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if addr == nil || addr.UserID != req.UserID {
		return nil, ErrAddressNotFound
	}

	member, err := s.db.GetMember(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("member %s: %w", req.UserID, ErrNotFound)
	}
	plan, err := s.db.GetPlan(ctx, member.PlanID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	titles := make(map[string]*domain.Title, len(req.Items))
	wanted := make(map[string]int, len(req.Items))
	for _, it := range req.Items {
		wanted[it.TitleID] += it.Quantity
		if _, ok := titles[it.TitleID]; ok {
			continue
		}
		t, err := s.db.GetTitle(ctx, it.TitleID)
		if err != nil {
			return nil, fmt.Errorf("get title: %w", err)
		}
		if t == nil {
			return nil, fmt.Errorf("title %s: %w", it.TitleID, ErrNotFound)
		}
		titles[it.TitleID] = t
	}
	for _, it := range req.Items {
		t := titles[it.TitleID]
		if !t.Orderable(wanted[it.TitleID]) {
			return nil, &StockError{TitleID: t.ID, Requested: wanted[t.ID], Available: t.CopiesAvailable}
		}
	}

	if s.cache != nil && req.RequestID != "" {
		key := fmt.Sprintf("checkout:%s:%s", req.UserID, req.RequestID)
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
		// a checkout that creates no order must not burn its request ID
		defer func() {
			if err != nil {
				s.clearIdempotency(context.WithoutCancel(ctx), key)
			}
		}()
	}

	now := s.opts.now()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		AddressID: req.AddressID,
		Status:    domain.OrderStatusPending,
		UpdatedBy: req.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Reserve line by line; a line that loses a race undoes the earlier ones.
	reserved := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		ok, err := s.db.ReserveStock(ctx, it.TitleID, it.Quantity)
		if err != nil {
			s.releaseItems(ctx, order.ID, reserved)
			return nil, fmt.Errorf("reserve stock: %w", err)
		}
		if !ok {
			s.releaseItems(ctx, order.ID, reserved)
			return nil, &StockError{TitleID: it.TitleID, Requested: it.Quantity, Available: s.available(ctx, it.TitleID)}
		}
		reserved = append(reserved, domain.OrderItem{
			ID:             uuid.NewString(),
			TitleID:        it.TitleID,
			Quantity:       it.Quantity,
			UnitPriceCents: titles[it.TitleID].PriceCents,
		})
	}

	order.Items = reserved
	for _, it := range order.Items {
		order.SubtotalCents += it.LineCents()
	}
	order.DeliveryFeeCents = s.opts.deliveryFee
	if plan != nil && plan.DeliveryFeeWaived {
		order.DeliveryFeeCents = 0
	}
	order.TotalCents = order.SubtotalCents + order.DeliveryFeeCents

	if err := s.db.CreateOrder(ctx, order); err != nil {
		s.releaseItems(ctx, order.ID, reserved)
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.createPlaceholders(ctx, order)
	s.notify(order.UserID, order, fmt.Sprintf("Your order %s was placed.", order.ID))
	s.notifyRole(domain.RoleStaff, fmt.Sprintf("New order %s is awaiting processing.", order.ID))

	s.opts.logger.Info().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Int64("total_cents", order.TotalCents).
		Msg("order placed")

	return &order, nil
}

func validateCart(req PlaceOrderRequest) error {
	if req.UserID == "" {
		return invalid("user_id", "required")
	}
	if len(req.Items) == 0 {
		return ErrCartEmpty
	}
	if req.AddressID == "" {
		return invalid("address_id", "required")
	}
	for i, it := range req.Items {
		if it.TitleID == "" {
			return invalid(fmt.Sprintf("items[%d].title_id", i), "required")
		}
		if it.Quantity <= 0 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
	}
	return nil
}

func (s *OrderService) available(ctx context.Context, titleID string) int {
	t, err := s.db.GetTitle(ctx, titleID)
	if err != nil || t == nil {
		return 0
	}
	return t.CopiesAvailable
}

func (s *OrderService) clearIdempotency(ctx context.Context, key string) {
	if err := s.cache.ClearIdempotency(ctx, key); err != nil {
		s.opts.logger.Warn().Err(err).Str("key", key).Msg("idempotency key not cleared")
	}
}

func (s *OrderService) releaseItems(ctx context.Context, orderID string, items []domain.OrderItem) {
	for _, it := range items {
		if err := s.db.ReleaseStock(ctx, it.TitleID, it.Quantity); err != nil {
			s.opts.logger.Error().Err(err).
				Str("order_id", orderID).
				Str("title_id", it.TitleID).
				Int("quantity", it.Quantity).
				Msg("CRITICAL: rollback of reserved stock failed")
		}
	}
}

// createPlaceholders records access promised by the order for titles the
// user has never held. Failures only cost the placeholder.
func (s *OrderService) createPlaceholders(ctx context.Context, order domain.Order) {
	for _, titleID := range order.TitleIDs() {
		latest, err := s.db.LatestFor(ctx, order.UserID, titleID)
		if err != nil {
			s.opts.logger.Warn().Err(err).Str("order_id", order.ID).Str("title_id", titleID).Msg("placeholder lookup failed")
			continue
		}
		if latest != nil {
			continue
		}
		err = s.db.CreateEntitlement(ctx, domain.Entitlement{
			ID:         uuid.NewString(),
			UserID:     order.UserID,
			TitleID:    titleID,
			OrderID:    order.ID,
			Status:     domain.EntitlementActive,
			Provenance: domain.ProvenanceOrder,
			GrantedAt:  order.CreatedAt,
			UpdatedAt:  order.CreatedAt,
		})
		if err != nil {
			s.opts.logger.Warn().Err(err).Str("order_id", order.ID).Str("title_id", titleID).Msg("placeholder insert failed")
		}
	}
}

func (s *OrderService) TransitionOrder(ctx context.Context, orderID string, target domain.OrderStatus, actorID string) (_ *domain.Order, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "OrderService.TransitionOrder")
	defer func() { endSpan(span, err) }()

	order, _, err := s.transition(ctx, transitionInput{orderID: orderID, target: target, actorID: actorID})
	return order, err
}

// BulkTransitionOrders applies the same transition to each order on its
// own. Only an unknown target status fails the whole batch.
func (s *OrderService) BulkTransitionOrders(ctx context.Context, orderIDs []string, target domain.OrderStatus, actorID string) (BulkResult, error) {
	ctx, span := s.opts.tracer.Start(ctx, "OrderService.BulkTransitionOrders")
	defer span.End()

	result := BulkResult{SkipReasons: make(map[string]string), EffectErrors: make(map[string]string)}
	if !target.Valid() {
		return result, invalid("status", fmt.Sprintf("unknown status %q", target))
	}

	for _, id := range orderIDs {
		_, changed, err := s.transition(ctx, transitionInput{orderID: id, target: target, actorID: actorID})
		switch {
		case changed:
			result.Modified++
			if err != nil {
				result.EffectErrors[id] = err.Error()
			}
		case err != nil:
			result.Skipped++
			result.SkipReasons[id] = err.Error()
		case !changed:
			result.Skipped++
			result.SkipReasons[id] = fmt.Sprintf("already %s", target)
		}
	}

	s.opts.logger.Info().
		Str("target", string(target)).
		Int("modified", result.Modified).
		Int("skipped", result.Skipped).
		Int("effect_errors", len(result.EffectErrors)).
		Msg("bulk transition finished")

	return result, nil
}

// RequestReturn is the purchaser's path into RETURN_REQUESTED.
func (s *OrderService) RequestReturn(ctx context.Context, orderID, userID, reason string) (_ *domain.Order, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "OrderService.RequestReturn")
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "required")
	}

	order, _, err := s.transition(ctx, transitionInput{
		orderID: orderID,
		target:  domain.OrderStatusReturnRequested,
		actorID: userID,
		ownerID: userID,
		prepare: func(next *domain.Order) { next.ReturnReason = reason },
	})
	return order, err
}

// SubmitRefundDetails stores where a refund should go. It is not a status
// transition and is only accepted while the refund is initiated.
func (s *OrderService) SubmitRefundDetails(ctx context.Context, orderID, userID string, details domain.RefundDetails) (_ *domain.Order, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "OrderService.SubmitRefundDetails")
	defer func() { endSpan(span, err) }()

	details.AccountNumber = strings.TrimSpace(details.AccountNumber)
	if details.AccountNumber == "" {
		return nil, invalid("account_number", "required")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if order.Status != domain.OrderStatusRefundInitiated {
		return nil, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrRefundNotOpen)
	}

	now := s.opts.now()
	details.SubmittedAt = now
	next := *order
	next.RefundDetails = &details
	next.UpdatedBy = userID
	next.UpdatedAt = now

	if err := s.db.UpdateOrder(ctx, next, order.Status); err != nil {
		if errors.Is(err, port.ErrOptimisticLock) {
			return nil, ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("update order: %w", err)
	}

	s.notifyRole(domain.RoleAdmin, fmt.Sprintf("Refund details were submitted for order %s.", order.ID))
	return &next, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := s.db.ListOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.db.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return order, nil
}

type transitionInput struct {
	orderID string
	target  domain.OrderStatus
	actorID string
	ownerID string // when set, the order must belong to this user
	prepare func(next *domain.Order)
}

// transition reads the order, checks the move, writes it with a
// compare-and-swap on the previous status and then fires the effects of the
// target status. changed is false for a repeat of the current status. A
// committed move whose effects failed returns changed with the error; the
// unfinished ledger or grant work is picked up by the next transition call
// on that order.
func (s *OrderService) transition(ctx context.Context, in transitionInput) (_ *domain.Order, changed bool, err error) {
	if !in.target.Valid() {
		return nil, false, invalid("status", fmt.Sprintf("unknown status %q", in.target))
	}

	order, err := s.loadOrder(ctx, in.orderID)
	if err != nil {
		return nil, false, err
	}
	if in.ownerID != "" && order.UserID != in.ownerID {
		return nil, false, fmt.Errorf("order %s: %w", in.orderID, ErrNotFound)
	}
	if err := s.resume(ctx, order); err != nil {
		return nil, false, fmt.Errorf("order %s: %w", order.ID, err)
	}
	if order.Status == in.target {
		return order, false, nil
	}

	now := s.opts.now()
	if err := s.guard(*order, in.target, now); err != nil {
		return nil, false, err
	}

	change := orderChange{from: order.Status, to: in.target, actorID: in.actorID}
	if in.target == domain.OrderStatusDelivered {
		if change.accessDays, err = s.accessDays(ctx, order.UserID); err != nil {
			return nil, false, err
		}
	}

	next := *order
	next.Status = in.target
	next.UpdatedBy = in.actorID
	next.UpdatedAt = now
	if in.target == domain.OrderStatusDelivered {
		next.DeliveredAt = &now
	}
	if in.prepare != nil {
		in.prepare(&next)
	}

	if err := s.db.UpdateOrder(ctx, next, order.Status); err != nil {
		if !errors.Is(err, port.ErrOptimisticLock) {
			return nil, false, fmt.Errorf("update order: %w", err)
		}
		// A concurrent request that reached the same status is a repeat.
		current, lerr := s.db.GetOrder(ctx, in.orderID)
		if lerr == nil && current != nil && current.Status == in.target {
			return current, false, nil
		}
		return nil, false, ErrConcurrentUpdate
	}

	change.order = next
	if err := s.applyEffects(ctx, &change); err != nil {
		return nil, true, fmt.Errorf("order %s moved to %s: %w", next.ID, next.Status, err)
	}

	s.opts.logger.Info().
		Str("order_id", next.ID).
		Str("from", string(change.from)).
		Str("to", string(change.to)).
		Str("actor_id", in.actorID).
		Msg("order transitioned")

	return &change.order, true, nil
}

// resume finishes the stock release or access grant of the order's current
// status when an earlier call committed the status but failed the write.
func (s *OrderService) resume(ctx context.Context, order *domain.Order) error {
	if !order.StockReleasePending() && !order.AccessPending() {
		return nil
	}
	c := orderChange{from: order.Status, to: order.Status, order: *order, actorID: order.UpdatedBy}

	var err error
	if order.StockReleasePending() {
		if err = s.releaseStock(ctx, &c); err == nil {
			err = s.purgePlaceholders(ctx, &c)
		}
	} else {
		if c.accessDays, err = s.accessDays(ctx, order.UserID); err == nil {
			err = s.grantAccess(ctx, &c)
		}
	}
	if err != nil {
		return err
	}

	order.StockReleasedAt = c.order.StockReleasedAt
	order.AccessGrantedAt = c.order.AccessGrantedAt
	s.opts.logger.Info().
		Str("order_id", order.ID).
		Str("status", string(order.Status)).
		Msg("order effects resumed")
	return nil
}

// guard holds the checks that depend on more than the two statuses.
func (s *OrderService) guard(order domain.Order, target domain.OrderStatus, now time.Time) error {
	if !domain.CanTransition(order.Status, target) {
		return &TransitionError{From: order.Status, To: target, Allowed: domain.AllowedTargets(order.Status)}
	}
	switch target {
	case domain.OrderStatusRefunded:
		if !order.RefundDetails.Complete() {
			return ErrRefundDetailsMissing
		}
	case domain.OrderStatusReturnRequested:
		if !order.ReturnWindowOpen(now, s.opts.returnWindow) {
			return ErrReturnWindowClosed
		}
	}
	return nil
}

func (s *OrderService) accessDays(ctx context.Context, userID string) (int, error) {
	member, err := s.db.GetMember(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get member: %w", err)
	}
	if member == nil {
		return 0, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	plan, err := s.db.GetPlan(ctx, member.PlanID)
	if err != nil {
		return 0, fmt.Errorf("get plan: %w", err)
	}
	if plan == nil {
		return 0, fmt.Errorf("plan %s: %w", member.PlanID, ErrNotFound)
	}
	return plan.AccessDurationDays, nil
}
