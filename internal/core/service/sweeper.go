package service

import (
	"context"
	"fmt"

	"github.com/rl1809/lending/internal/port"
)

type SweepResult struct {
	ExpiredCount int64
}

// Sweeper demotes lapsed ACTIVE entitlements to EXPIRED. A run that finds
// nothing is a no-op, so it is safe at any cadence.
type Sweeper struct {
	db   port.EntitlementRepository
	opts options
}

func NewSweeper(db port.EntitlementRepository, opts ...Option) *Sweeper {
	return &Sweeper{db: db, opts: buildOptions(opts)}
}

func (s *Sweeper) SweepExpiredEntitlements(ctx context.Context) (_ SweepResult, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "Sweeper.SweepExpiredEntitlements")
	defer func() { endSpan(span, err) }()

	n, err := s.db.ExpireLapsed(ctx, s.opts.now())
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep: %w", err)
	}

	s.opts.logger.Info().Int64("expired", n).Msg("entitlement sweep finished")
	return SweepResult{ExpiredCount: n}, nil
}
