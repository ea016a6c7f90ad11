package domain

import "time"

type EntitlementStatus string

const (
	EntitlementActive    EntitlementStatus = "ACTIVE"
	EntitlementCompleted EntitlementStatus = "COMPLETED"
	EntitlementExpired   EntitlementStatus = "EXPIRED"
)

type Provenance string

const (
	ProvenanceManual Provenance = "MANUAL"
	ProvenanceOrder  Provenance = "ORDER"
)

// Entitlement is a time-boxed grant of reading access to one title. Several
// historical records can exist per (user, title); the most recently granted
// one is authoritative.
type Entitlement struct {
	ID             string
	UserID         string
	TitleID        string
	OrderID        string
	Status         EntitlementStatus
	Provenance     Provenance
	GrantedAt      time.Time
	ExpiresAt      *time.Time // nil until access is actually granted
	ProgressCursor string
	Bookmarks      []int
	UpdatedAt      time.Time
}

// IsLive reports whether the record grants access at now.
func (e Entitlement) IsLive(now time.Time) bool {
	return e.Status == EntitlementActive && e.ExpiresAt != nil && e.ExpiresAt.After(now)
}

// IsPlaceholder reports whether access was promised by an order but never activated.
func (e Entitlement) IsPlaceholder() bool {
	return e.ExpiresAt == nil
}

// Lapsed reports whether an active record has run past its expiry.
func (e Entitlement) Lapsed(now time.Time) bool {
	return e.Status == EntitlementActive && e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Activate turns the record into a live grant starting at now.
func (e *Entitlement) Activate(now time.Time, days int, provenance Provenance) {
	expires := now.AddDate(0, 0, days)
	e.Status = EntitlementActive
	e.GrantedAt = now
	e.ExpiresAt = &expires
	e.Provenance = provenance
	e.UpdatedAt = now
}
