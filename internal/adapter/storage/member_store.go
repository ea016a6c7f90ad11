package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/lending/internal/core/domain"
)

func (s *SQLAdapter) CreatePlan(ctx context.Context, p domain.MembershipPlan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (id, tier_name, monthly_grant_limit, access_duration_days,
			delivery_fee_waived, can_access_restricted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.TierName, p.MonthlyGrantLimit, p.AccessDurationDays,
		p.DeliveryFeeWaived, p.CanAccessRestrictedTitles,
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *SQLAdapter) GetPlan(ctx context.Context, planID string) (*domain.MembershipPlan, error) {
	var p domain.MembershipPlan
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tier_name, monthly_grant_limit, access_duration_days,
			delivery_fee_waived, can_access_restricted
		FROM plans WHERE id = ?`, planID,
	).Scan(&p.ID, &p.TierName, &p.MonthlyGrantLimit, &p.AccessDurationDays,
		&p.DeliveryFeeWaived, &p.CanAccessRestrictedTitles)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	return &p, nil
}

func (s *SQLAdapter) CreateMember(ctx context.Context, m domain.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, email, display_name, role, plan_id, enrollment_start_unix)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Email, m.DisplayName, string(m.Role), m.PlanID, toUnix(m.EnrollmentStartDate),
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *SQLAdapter) GetMember(ctx context.Context, userID string) (*domain.Member, error) {
	var (
		m          domain.Member
		role       string
		enrolledAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, plan_id, enrollment_start_unix
		FROM members WHERE id = ?`, userID,
	).Scan(&m.ID, &m.Email, &m.DisplayName, &role, &m.PlanID, &enrolledAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	m.Role = domain.Role(role)
	m.EnrollmentStartDate = fromUnix(enrolledAt)
	return &m, nil
}

func (s *SQLAdapter) CreateAddress(ctx context.Context, a domain.Address) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, line1, city, postal_code, country)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Line1, a.City, a.PostalCode, a.Country,
	)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (s *SQLAdapter) GetAddress(ctx context.Context, addressID string) (*domain.Address, error) {
	var a domain.Address
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, line1, city, postal_code, country
		FROM addresses WHERE id = ?`, addressID,
	).Scan(&a.ID, &a.UserID, &a.Line1, &a.City, &a.PostalCode, &a.Country)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query address: %w", err)
	}
	return &a, nil
}
