package domain

// orderTransitions is the complete legality table. A status absent from a
// row cannot be reached from that row's status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:         {OrderStatusDelivered},
	OrderStatusDelivered:       {OrderStatusReturnRequested},
	OrderStatusReturnRequested: {OrderStatusReturnAccepted, OrderStatusReturnRejected, OrderStatusRefundInitiated},
	OrderStatusReturnAccepted:  {OrderStatusReturned, OrderStatusRefundInitiated},
	OrderStatusReturned:        {OrderStatusProcessing, OrderStatusRefundInitiated},
	OrderStatusRefundInitiated: {OrderStatusRefunded},
}

var knownStatuses = map[OrderStatus]bool{
	OrderStatusPending:         true,
	OrderStatusProcessing:      true,
	OrderStatusShipped:         true,
	OrderStatusDelivered:       true,
	OrderStatusCancelled:       true,
	OrderStatusReturnRequested: true,
	OrderStatusReturnAccepted:  true,
	OrderStatusReturnRejected:  true,
	OrderStatusReturned:        true,
	OrderStatusRefundInitiated: true,
	OrderStatusRefunded:        true,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	return knownStatuses[s]
}

// CanTransition reports whether an order may move from one status to another.
// It depends on nothing but the two statuses.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns the statuses reachable from s in one step.
func AllowedTargets(s OrderStatus) []OrderStatus {
	out := make([]OrderStatus, len(orderTransitions[s]))
	copy(out, orderTransitions[s])
	return out
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}
