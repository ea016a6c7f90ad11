package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusProcessing      OrderStatus = "PROCESSING"
	OrderStatusShipped         OrderStatus = "SHIPPED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturnAccepted  OrderStatus = "RETURN_ACCEPTED"
	OrderStatusReturnRejected  OrderStatus = "RETURN_REJECTED"
	OrderStatusReturned        OrderStatus = "RETURNED"
	OrderStatusRefundInitiated OrderStatus = "REFUND_INITIATED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
)

// DefaultReturnWindow is how long after delivery a return may be requested.
const DefaultReturnWindow = 7 * 24 * time.Hour

// OrderItem is immutable once the order exists; the unit price is the
// catalog price at checkout.
type OrderItem struct {
	ID             string
	TitleID        string
	Quantity       int
	UnitPriceCents int64
}

func (i OrderItem) LineCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

type RefundDetails struct {
	AccountName   string
	BankName      string
	AccountNumber string
	RoutingCode   string
	SubmittedAt   time.Time
}

func (r *RefundDetails) Complete() bool {
	return r != nil && r.AccountNumber != ""
}

type Order struct {
	ID               string
	UserID           string
	Items            []OrderItem
	AddressID        string
	SubtotalCents    int64
	DeliveryFeeCents int64
	TotalCents       int64
	Status           OrderStatus
	DeliveredAt      *time.Time
	ReturnReason     string
	RefundDetails    *RefundDetails
	StockReleasedAt  *time.Time // set the first time reserved copies go back to the ledger
	AccessGrantedAt  *time.Time // set once the grants of the latest delivery are written
	UpdatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StockReleasePending reports whether the order sits in a status that
// returns its copies but the release has not been recorded yet.
func (o Order) StockReleasePending() bool {
	switch o.Status {
	case OrderStatusCancelled, OrderStatusReturned:
		return o.StockReleasedAt == nil
	}
	return false
}

// AccessPending reports whether the latest delivery still lacks its grants.
func (o Order) AccessPending() bool {
	if o.Status != OrderStatusDelivered || o.DeliveredAt == nil {
		return false
	}
	return o.AccessGrantedAt == nil || o.AccessGrantedAt.Before(*o.DeliveredAt)
}

// ReturnWindowOpen reports whether a return can still be requested at now.
func (o Order) ReturnWindowOpen(now time.Time, window time.Duration) bool {
	if o.DeliveredAt == nil {
		return false
	}
	return !now.After(o.DeliveredAt.Add(window))
}

// TitleIDs lists the distinct titles in the order, in item order.
func (o Order) TitleIDs() []string {
	seen := make(map[string]bool, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if seen[it.TitleID] {
			continue
		}
		seen[it.TitleID] = true
		ids = append(ids, it.TitleID)
	}
	return ids
}
