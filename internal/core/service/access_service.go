package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

type AccessReason string

const (
	ReasonExpiredNotRenewed AccessReason = "ExpiredNotRenewed"
	ReasonNeverGranted      AccessReason = "NeverGranted"
	ReasonPlanInsufficient  AccessReason = "PlanInsufficient"
)

// AccessDecision carries a Reason only when access is refused.
type AccessDecision struct {
	Authorized bool
	Reason     AccessReason
}

type AccessService struct {
	db   port.DatabaseRepository
	opts options
}

func NewAccessService(db port.DatabaseRepository, opts ...Option) *AccessService {
	return &AccessService{db: db, opts: buildOptions(opts)}
}

// CheckAccess decides whether userID may read titleID now. The plan's
// restricted capability is read live on every call.
func (s *AccessService) CheckAccess(ctx context.Context, userID, titleID string) (_ AccessDecision, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "AccessService.CheckAccess")
	defer func() { endSpan(span, err) }()

	member, err := s.db.GetMember(ctx, userID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("get member: %w", err)
	}
	if member == nil {
		return AccessDecision{}, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	title, err := s.db.GetTitle(ctx, titleID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("get title: %w", err)
	}
	if title == nil {
		return AccessDecision{}, fmt.Errorf("title %s: %w", titleID, ErrNotFound)
	}

	// staff and admins read everything without grants
	if member.BypassesEntitlements() {
		return AccessDecision{Authorized: true}, nil
	}

	if title.Restricted {
		plan, err := s.db.GetPlan(ctx, member.PlanID)
		if err != nil {
			return AccessDecision{}, fmt.Errorf("get plan: %w", err)
		}
		if plan == nil || !plan.CanAccessRestrictedTitles {
			return AccessDecision{Reason: ReasonPlanInsufficient}, nil
		}
	}

	latest, err := s.db.LatestFor(ctx, userID, titleID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("latest entitlement: %w", err)
	}
	return decide(latest, s.opts.now()), nil
}

func decide(latest *domain.Entitlement, now time.Time) AccessDecision {
	switch {
	case latest == nil || latest.IsPlaceholder():
		return AccessDecision{Reason: ReasonNeverGranted}
	case latest.IsLive(now):
		return AccessDecision{Authorized: true}
	default:
		return AccessDecision{Reason: ReasonExpiredNotRenewed}
	}
}
