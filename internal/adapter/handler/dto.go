package handler

import (
	"time"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/core/service"
)

// Wire types shared by the HTTP and gRPC transports.

type CartItemRequest struct {
	TitleID  string `json:"title_id"`
	Quantity int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	RequestID string            `json:"request_id"`
	UserID    string            `json:"user_id"`
	AddressID string            `json:"address_id"`
	Items     []CartItemRequest `json:"items"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type ListOrdersRequest struct {
	UserID string `json:"user_id"`
}

type TransitionRequest struct {
	OrderID string `json:"order_id,omitempty"`
	Target  string `json:"target"`
	ActorID string `json:"actor_id"`
}

type BulkTransitionRequest struct {
	OrderIDs []string `json:"order_ids"`
	Target   string   `json:"target"`
	ActorID  string   `json:"actor_id"`
}

type ReturnRequest struct {
	OrderID string `json:"order_id,omitempty"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}

type RefundDetailsRequest struct {
	OrderID       string `json:"order_id,omitempty"`
	UserID        string `json:"user_id"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	RoutingCode   string `json:"routing_code"`
}

type EntitlementRequest struct {
	UserID  string `json:"user_id"`
	TitleID string `json:"title_id"`
}

type ProgressRequest struct {
	UserID    string `json:"user_id,omitempty"`
	TitleID   string `json:"title_id,omitempty"`
	Cursor    string `json:"cursor"`
	Bookmarks []int  `json:"bookmarks"`
	Completed bool   `json:"completed"`
}

type UserRequest struct {
	UserID string `json:"user_id"`
}

type TitleRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Author          string `json:"author"`
	PriceCents      int64  `json:"price_cents"`
	Restricted      bool   `json:"restricted"`
	ContentKey      string `json:"content_key"`
	CoverKey        string `json:"cover_key"`
	CopiesAvailable int    `json:"copies_available"`
	Status          string `json:"status,omitempty"`
}

type Empty struct{}

type OrderItemResponse struct {
	ID             string `json:"id"`
	TitleID        string `json:"title_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type OrderResponse struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	AddressID        string              `json:"address_id"`
	Status           string              `json:"status"`
	Items            []OrderItemResponse `json:"items"`
	SubtotalCents    int64               `json:"subtotal_cents"`
	DeliveryFeeCents int64               `json:"delivery_fee_cents"`
	TotalCents       int64               `json:"total_cents"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
	ReturnReason     string              `json:"return_reason,omitempty"`
	RefundSubmitted  bool                `json:"refund_details_submitted"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type BulkResultResponse struct {
	Modified     int               `json:"modified"`
	Skipped      int               `json:"skipped"`
	SkipReasons  map[string]string `json:"skip_reasons,omitempty"`
	EffectErrors map[string]string `json:"effect_errors,omitempty"`
}

type EntitlementResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	TitleID        string     `json:"title_id"`
	OrderID        string     `json:"order_id,omitempty"`
	Status         string     `json:"status"`
	Provenance     string     `json:"provenance"`
	GrantedAt      time.Time  `json:"granted_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ProgressCursor string     `json:"progress_cursor,omitempty"`
	Bookmarks      []int      `json:"bookmarks,omitempty"`
}

type EntitlementListResponse struct {
	Entitlements []EntitlementResponse `json:"entitlements"`
}

type AccessResponse struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason,omitempty"`
}

type QuotaResponse struct {
	CycleStart time.Time `json:"cycle_start"`
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
}

type SweepResponse struct {
	ExpiredCount int64 `json:"expired_count"`
}

type EraseResponse struct {
	Deleted int64 `json:"deleted"`
}

type TitleResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Author          string `json:"author"`
	PriceCents      int64  `json:"price_cents"`
	Restricted      bool   `json:"restricted"`
	CopiesAvailable int    `json:"copies_available"`
	Status          string `json:"status"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

func (r PlaceOrderRequest) toService() service.PlaceOrderRequest {
	items := make([]service.CartItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, service.CartItem{TitleID: it.TitleID, Quantity: it.Quantity})
	}
	return service.PlaceOrderRequest{
		RequestID: r.RequestID,
		UserID:    r.UserID,
		Items:     items,
		AddressID: r.AddressID,
	}
}

func (r RefundDetailsRequest) toDomain() domain.RefundDetails {
	return domain.RefundDetails{
		AccountName:   r.AccountName,
		BankName:      r.BankName,
		AccountNumber: r.AccountNumber,
		RoutingCode:   r.RoutingCode,
	}
}

func (r TitleRequest) toDomain() domain.Title {
	return domain.Title{
		ID:         r.ID,
		Name:       r.Name,
		Author:     r.Author,
		PriceCents: r.PriceCents,
		Restricted: r.Restricted,
		ContentKey: r.ContentKey,
		CoverKey:   r.CoverKey,
		StockLedger: domain.StockLedger{
			CopiesAvailable: r.CopiesAvailable,
			Status:          domain.AvailabilityStatus(r.Status),
		},
	}
}

func toOrderResponse(o *domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ID:             it.ID,
			TitleID:        it.TitleID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return &OrderResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		AddressID:        o.AddressID,
		Status:           string(o.Status),
		Items:            items,
		SubtotalCents:    o.SubtotalCents,
		DeliveryFeeCents: o.DeliveryFeeCents,
		TotalCents:       o.TotalCents,
		DeliveredAt:      o.DeliveredAt,
		ReturnReason:     o.ReturnReason,
		RefundSubmitted:  o.RefundDetails.Complete(),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrderList(orders []domain.Order) *OrderListResponse {
	resp := &OrderListResponse{Orders: make([]OrderResponse, 0, len(orders))}
	for i := range orders {
		resp.Orders = append(resp.Orders, *toOrderResponse(&orders[i]))
	}
	return resp
}

func toEntitlementResponse(e *domain.Entitlement) *EntitlementResponse {
	return &EntitlementResponse{
		ID:             e.ID,
		UserID:         e.UserID,
		TitleID:        e.TitleID,
		OrderID:        e.OrderID,
		Status:         string(e.Status),
		Provenance:     string(e.Provenance),
		GrantedAt:      e.GrantedAt,
		ExpiresAt:      e.ExpiresAt,
		ProgressCursor: e.ProgressCursor,
		Bookmarks:      e.Bookmarks,
	}
}

func toEntitlementList(list []domain.Entitlement) *EntitlementListResponse {
	resp := &EntitlementListResponse{Entitlements: make([]EntitlementResponse, 0, len(list))}
	for i := range list {
		resp.Entitlements = append(resp.Entitlements, *toEntitlementResponse(&list[i]))
	}
	return resp
}

func toTitleResponse(t *domain.Title) *TitleResponse {
	return &TitleResponse{
		ID:              t.ID,
		Name:            t.Name,
		Author:          t.Author,
		PriceCents:      t.PriceCents,
		Restricted:      t.Restricted,
		CopiesAvailable: t.CopiesAvailable,
		Status:          string(t.Status),
	}
}

func toBulkResponse(r service.BulkResult) *BulkResultResponse {
	return &BulkResultResponse{
		Modified:     r.Modified,
		Skipped:      r.Skipped,
		SkipReasons:  r.SkipReasons,
		EffectErrors: r.EffectErrors,
	}
}
