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

// QuotaStatus is the member's position in the current cycle.
type QuotaStatus struct {
	CycleStart time.Time
	Used       int
	Limit      int
	Remaining  int
}

type ProgressUpdate struct {
	Cursor    string
	Bookmarks []int
	Completed bool
}

type QuotaService struct {
	db    port.DatabaseRepository
	cache port.CacheRepository
	opts  options
}

// NewQuotaService wires the quota engine. With a nil cache, decisions for
// the same user are not serialized.
func NewQuotaService(db port.DatabaseRepository, cache port.CacheRepository, opts ...Option) *QuotaService {
	return &QuotaService{db: db, cache: cache, opts: buildOptions(opts)}
}

// RequestEntitlement adds a title to the member's reading list, consuming
// one grant of the current cycle.
func (s *QuotaService) RequestEntitlement(ctx context.Context, userID, titleID string) (_ *domain.Entitlement, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "QuotaService.RequestEntitlement")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, invalid("user_id", "required")
	}
	if titleID == "" {
		return nil, invalid("title_id", "required")
	}

	member, plan, err := s.memberPlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	title, err := s.db.GetTitle(ctx, titleID)
	if err != nil {
		return nil, fmt.Errorf("get title: %w", err)
	}
	if title == nil {
		return nil, fmt.Errorf("title %s: %w", titleID, ErrNotFound)
	}

	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if title.Restricted && !plan.CanAccessRestrictedTitles {
		return nil, ErrUpgradeRequired
	}

	now := s.opts.now()
	latest, err := s.db.LatestFor(ctx, userID, titleID)
	if err != nil {
		return nil, fmt.Errorf("latest entitlement: %w", err)
	}
	if latest != nil && latest.IsLive(now) {
		return nil, &AlreadyActiveError{TitleID: titleID, ExpiresAt: *latest.ExpiresAt}
	}

	window := domain.CycleWindow(*plan, *member, now)
	used, err := s.db.CountManualGrantsSince(ctx, userID, window.Start)
	if err != nil {
		return nil, fmt.Errorf("count grants: %w", err)
	}
	if limit := plan.GrantLimit(); used >= limit {
		return nil, &QuotaError{Limit: limit, Used: used, CycleStart: window.Start}
	}

	if latest != nil {
		latest.Activate(now, plan.AccessDurationDays, domain.ProvenanceManual)
		if err := s.db.UpdateEntitlement(ctx, *latest); err != nil {
			return nil, fmt.Errorf("reactivate entitlement: %w", err)
		}
		s.logGrant(*latest, "reactivated")
		return latest, nil
	}

	e := domain.Entitlement{ID: uuid.NewString(), UserID: userID, TitleID: titleID}
	e.Activate(now, plan.AccessDurationDays, domain.ProvenanceManual)
	if err := s.db.CreateEntitlement(ctx, e); err != nil {
		return nil, fmt.Errorf("create entitlement: %w", err)
	}
	s.logGrant(e, "granted")
	return &e, nil
}

func (s *QuotaService) QuotaStatus(ctx context.Context, userID string) (QuotaStatus, error) {
	member, plan, err := s.memberPlan(ctx, userID)
	if err != nil {
		return QuotaStatus{}, err
	}

	window := domain.CycleWindow(*plan, *member, s.opts.now())
	used, err := s.db.CountManualGrantsSince(ctx, userID, window.Start)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("count grants: %w", err)
	}

	status := QuotaStatus{CycleStart: window.Start, Used: used, Limit: plan.GrantLimit()}
	status.Remaining = max(status.Limit-used, 0)
	return status, nil
}

// SaveProgress updates the reading position on the authoritative record.
func (s *QuotaService) SaveProgress(ctx context.Context, userID, titleID string, update ProgressUpdate) (*domain.Entitlement, error) {
	for i, page := range update.Bookmarks {
		if page < 1 {
			return nil, invalid(fmt.Sprintf("bookmarks[%d]", i), "page numbers start at 1")
		}
	}

	latest, err := s.db.LatestFor(ctx, userID, titleID)
	if err != nil {
		return nil, fmt.Errorf("latest entitlement: %w", err)
	}
	if latest == nil || latest.IsPlaceholder() {
		return nil, &AccessDeniedError{Reason: ReasonNeverGranted}
	}
	now := s.opts.now()
	if !latest.IsLive(now) {
		return nil, &AccessDeniedError{Reason: ReasonExpiredNotRenewed}
	}

	latest.ProgressCursor = strings.TrimSpace(update.Cursor)
	latest.Bookmarks = update.Bookmarks
	latest.UpdatedAt = now
	if update.Completed {
		latest.Status = domain.EntitlementCompleted
	}
	if err := s.db.UpdateEntitlement(ctx, *latest); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return latest, nil
}

func (s *QuotaService) ListEntitlements(ctx context.Context, userID string) ([]domain.Entitlement, error) {
	list, err := s.db.ListEntitlements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	return list, nil
}

// EraseAccount is the only path that hard-deletes entitlements.
func (s *QuotaService) EraseAccount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, invalid("user_id", "required")
	}
	n, err := s.db.DeleteEntitlements(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("erase entitlements: %w", err)
	}
	s.opts.logger.Info().Str("user_id", userID).Int64("deleted", n).Msg("entitlements erased")
	return n, nil
}

func (s *QuotaService) memberPlan(ctx context.Context, userID string) (*domain.Member, *domain.MembershipPlan, error) {
	member, err := s.db.GetMember(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get member: %w", err)
	}
	if member == nil {
		return nil, nil, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	plan, err := s.db.GetPlan(ctx, member.PlanID)
	if err != nil {
		return nil, nil, fmt.Errorf("get plan: %w", err)
	}
	if plan == nil {
		return nil, nil, fmt.Errorf("plan %s: %w", member.PlanID, ErrNotFound)
	}
	return member, plan, nil
}

// lock serializes quota decisions per user so two concurrent requests
// cannot both pass the cap check.
func (s *QuotaService) lock(ctx context.Context, userID string) (func(), error) {
	if s.cache == nil {
		return func() {}, nil
	}
	key := "quota:" + userID
	token, ok, err := s.cache.AcquireLock(ctx, key, s.opts.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire quota lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("quota decision in progress for %s: %w", userID, ErrConcurrentUpdate)
	}
	return func() {
		if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil && !errors.Is(err, context.Canceled) {
			s.opts.logger.Warn().Err(err).Str("user_id", userID).Msg("quota lock release failed")
		}
	}, nil
}

func (s *QuotaService) logGrant(e domain.Entitlement, action string) {
	s.opts.logger.Info().
		Str("user_id", e.UserID).
		Str("title_id", e.TitleID).
		Time("expires_at", *e.ExpiresAt).
		Msg("entitlement " + action)
}
