package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/core/service"
)

const maxUploadBytes = 64 << 20

// Services bundles the application services the transports expose.
type Services struct {
	Orders  *service.OrderService
	Quota   *service.QuotaService
	Access  *service.AccessService
	Content *service.ContentService
	Stock   *service.StockService
	Sweeper *service.Sweeper
}

type HTTPHandler struct {
	svc    Services
	logger zerolog.Logger
}

func NewHTTPHandler(svc Services, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger.With().Str("component", "http").Logger()}
}

// Routes registers every endpoint on a fresh mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{orderID}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{orderID}/transition", h.TransitionOrder)
	mux.HandleFunc("POST /api/orders/bulk-transition", h.BulkTransition)
	mux.HandleFunc("POST /api/orders/{orderID}/return", h.RequestReturn)
	mux.HandleFunc("POST /api/orders/{orderID}/refund-details", h.SubmitRefundDetails)

	mux.HandleFunc("POST /api/entitlements", h.RequestEntitlement)
	mux.HandleFunc("GET /api/users/{userID}/orders", h.ListOrders)
	mux.HandleFunc("GET /api/users/{userID}/entitlements", h.ListEntitlements)
	mux.HandleFunc("DELETE /api/users/{userID}/entitlements", h.EraseAccount)
	mux.HandleFunc("GET /api/users/{userID}/quota", h.QuotaStatus)
	mux.HandleFunc("GET /api/users/{userID}/titles/{titleID}/access", h.CheckAccess)
	mux.HandleFunc("GET /api/users/{userID}/titles/{titleID}/content", h.OpenTitle)
	mux.HandleFunc("PUT /api/users/{userID}/titles/{titleID}/progress", h.SaveProgress)

	mux.HandleFunc("POST /api/titles", h.AddTitle)
	mux.HandleFunc("GET /api/titles/{titleID}", h.GetTitle)
	mux.HandleFunc("PUT /api/titles/{titleID}/content", h.UploadContent)
	mux.HandleFunc("POST /api/titles/{titleID}/borrow", h.BorrowCopy)
	mux.HandleFunc("POST /api/titles/{titleID}/return", h.ReturnCopy)

	mux.HandleFunc("POST /api/admin/sweep", h.Sweep)
	return mux
}

// Handler wraps the routes with CORS and request logging.
func (h *HTTPHandler) Handler(allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return h.logRequests(c.Handler(h.Routes()))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.svc.Orders.PlaceOrder(r.Context(), req.toService())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Orders.GetOrder(r.Context(), r.PathValue("orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListOrders(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *HTTPHandler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.svc.Orders.TransitionOrder(r.Context(), r.PathValue("orderID"), domain.OrderStatus(req.Target), req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) BulkTransition(w http.ResponseWriter, r *http.Request) {
	var req BulkTransitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Orders.BulkTransitionOrders(r.Context(), req.OrderIDs, domain.OrderStatus(req.Target), req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkResponse(result))
}

func (h *HTTPHandler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.svc.Orders.RequestReturn(r.Context(), r.PathValue("orderID"), req.UserID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) SubmitRefundDetails(w http.ResponseWriter, r *http.Request) {
	var req RefundDetailsRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.svc.Orders.SubmitRefundDetails(r.Context(), r.PathValue("orderID"), req.UserID, req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) RequestEntitlement(w http.ResponseWriter, r *http.Request) {
	var req EntitlementRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.svc.Quota.RequestEntitlement(r.Context(), req.UserID, req.TitleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntitlementResponse(e))
}

func (h *HTTPHandler) ListEntitlements(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Quota.ListEntitlements(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementList(list))
}

func (h *HTTPHandler) EraseAccount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Quota.EraseAccount(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EraseResponse{Deleted: n})
}

func (h *HTTPHandler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Quota.QuotaStatus(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuotaResponse{CycleStart: st.CycleStart, Used: st.Used, Limit: st.Limit, Remaining: st.Remaining})
}

func (h *HTTPHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Access.CheckAccess(r.Context(), r.PathValue("userID"), r.PathValue("titleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccessResponse{Authorized: d.Authorized, Reason: string(d.Reason)})
}

func (h *HTTPHandler) OpenTitle(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.Content.OpenTitle(r.Context(), r.PathValue("userID"), r.PathValue("titleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer content.Body.Close()

	w.Header().Set("Content-Type", content.ContentType)
	if content.Length >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.Length, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Body); err != nil {
		h.logger.Warn().Err(err).Str("title_id", r.PathValue("titleID")).Msg("content stream interrupted")
	}
}

func (h *HTTPHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.svc.Quota.SaveProgress(r.Context(), r.PathValue("userID"), r.PathValue("titleID"), service.ProgressUpdate{
		Cursor:    req.Cursor,
		Bookmarks: req.Bookmarks,
		Completed: req.Completed,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementResponse(e))
}

func (h *HTTPHandler) AddTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Stock.AddTitle(r.Context(), req.toDomain()); err != nil {
		h.writeError(w, r, err)
		return
	}
	title, err := h.svc.Stock.GetTitle(r.Context(), req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTitleResponse(title))
}

func (h *HTTPHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	title, err := h.svc.Stock.GetTitle(r.Context(), r.PathValue("titleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTitleResponse(title))
}

func (h *HTTPHandler) UploadContent(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Kind: string(service.KindValidation), Message: "content too large"})
		return
	}
	url, err := h.svc.Content.UploadContent(r.Context(), r.PathValue("titleID"), data, r.Header.Get("Content-Type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{URL: url})
}

func (h *HTTPHandler) BorrowCopy(w http.ResponseWriter, r *http.Request) {
	title, err := h.svc.Stock.BorrowCopy(r.Context(), r.PathValue("titleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTitleResponse(title))
}

func (h *HTTPHandler) ReturnCopy(w http.ResponseWriter, r *http.Request) {
	title, err := h.svc.Stock.ReturnCopy(r.Context(), r.PathValue("titleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTitleResponse(title))
}

func (h *HTTPHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Sweeper.SweepExpiredEntitlements(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{ExpiredCount: result.ExpiredCount})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Kind:    string(service.KindValidation),
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, toErrorResponse(err))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
