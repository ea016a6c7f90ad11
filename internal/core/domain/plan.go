package domain

import (
	"strings"
	"time"
)

const (
	TierFree = "free"

	// DefaultFreeGrantLimit applies when a free plan was seeded without a limit.
	DefaultFreeGrantLimit = 3
)

// MembershipPlan is read-only reference data.
type MembershipPlan struct {
	ID                        string
	TierName                  string
	MonthlyGrantLimit         int
	AccessDurationDays        int
	DeliveryFeeWaived         bool
	CanAccessRestrictedTitles bool
}

func (p MembershipPlan) IsFree() bool {
	return strings.EqualFold(p.TierName, TierFree)
}

// GrantLimit resolves the monthly cap on manual grants.
func (p MembershipPlan) GrantLimit() int {
	if p.MonthlyGrantLimit == 0 && p.IsFree() {
		return DefaultFreeGrantLimit
	}
	return p.MonthlyGrantLimit
}

type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

type Member struct {
	ID                  string
	Email               string
	DisplayName         string
	Role                Role
	PlanID              string
	EnrollmentStartDate time.Time
}

// BypassesEntitlements reports whether the member reads without grants.
func (m Member) BypassesEntitlements() bool {
	return m.Role == RoleStaff || m.Role == RoleAdmin
}

type Address struct {
	ID         string
	UserID     string
	Line1      string
	City       string
	PostalCode string
	Country    string
}
