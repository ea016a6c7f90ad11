package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

// PlanCache fronts a repository with an LRU of membership plans. Plans are
// read-only reference data; members, and therefore the plan a member
// currently holds, are always read through.
type PlanCache struct {
	port.DatabaseRepository
	plans *lru.Cache[string, domain.MembershipPlan]
}

func NewPlanCache(repo port.DatabaseRepository, size int) (*PlanCache, error) {
	plans, err := lru.New[string, domain.MembershipPlan](size)
	if err != nil {
		return nil, err
	}
	return &PlanCache{DatabaseRepository: repo, plans: plans}, nil
}

func (c *PlanCache) GetPlan(ctx context.Context, planID string) (*domain.MembershipPlan, error) {
	if p, ok := c.plans.Get(planID); ok {
		return &p, nil
	}

	p, err := c.DatabaseRepository.GetPlan(ctx, planID)
	if err != nil || p == nil {
		return p, err
	}
	c.plans.Add(planID, *p)
	return p, nil
}

func (c *PlanCache) CreatePlan(ctx context.Context, plan domain.MembershipPlan) error {
	if err := c.DatabaseRepository.CreatePlan(ctx, plan); err != nil {
		return err
	}
	c.plans.Remove(plan.ID)
	return nil
}
