package domain

import "time"

type AvailabilityStatus string

const (
	AvailabilityAvailable  AvailabilityStatus = "AVAILABLE"
	AvailabilityOutOfStock AvailabilityStatus = "OUT_OF_STOCK"
	AvailabilityArchived   AvailabilityStatus = "ARCHIVED"
	AvailabilityDamaged    AvailabilityStatus = "DAMAGED"
)

// StockLedger is the per-title copy counter. Status OUT_OF_STOCK holds
// exactly when CopiesAvailable is zero; every mutation re-derives it.
type StockLedger struct {
	CopiesAvailable int
	Status          AvailabilityStatus
}

// DeriveStatus returns the status a ledger must carry after its count
// changes to copies. ARCHIVED and DAMAGED survive restocking.
func DeriveStatus(copies int, current AvailabilityStatus) AvailabilityStatus {
	switch {
	case copies <= 0:
		return AvailabilityOutOfStock
	case current == AvailabilityOutOfStock || current == "":
		return AvailabilityAvailable
	default:
		return current
	}
}

// Orderable reports whether quantity copies can be reserved right now.
func (l StockLedger) Orderable(quantity int) bool {
	return l.Status == AvailabilityAvailable && quantity > 0 && l.CopiesAvailable >= quantity
}

type Title struct {
	ID         string
	Name       string
	Author     string
	PriceCents int64
	Restricted bool   // readable only on plans with restricted access
	ContentKey string // blob store key of the readable file
	CoverKey   string
	StockLedger
	CreatedAt time.Time
	UpdatedAt time.Time
}
