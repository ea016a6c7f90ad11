package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type httpClient struct {
	t      *testing.T
	server *httptest.Server
}

func newHTTPClient(t *testing.T) *httpClient {
	t.Helper()
	h := NewHTTPHandler(newServices(t), nopLogger())
	srv := httptest.NewServer(h.Handler([]string{"*"}))
	t.Cleanup(srv.Close)
	return &httpClient{t: t, server: srv}
}

func (c *httpClient) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("encode: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.server.URL+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (c *httpClient) placeOrder(requestID string, qty int) (int, OrderResponse) {
	var out OrderResponse
	code := c.do(http.MethodPost, "/api/orders", PlaceOrderRequest{
		RequestID: requestID,
		UserID:    "u1",
		AddressID: "addr-1",
		Items:     []CartItemRequest{{TitleID: "t1", Quantity: qty}},
	}, &out)
	return code, out
}

func TestHTTP_HealthCheck(t *testing.T) {
	c := newHTTPClient(t)
	var out map[string]string
	if code := c.do(http.MethodGet, "/health", nil, &out); code != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", code, out)
	}
}

func TestHTTP_PlaceOrder(t *testing.T) {
	c := newHTTPClient(t)

	code, order := c.placeOrder("req-1", 2)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if order.Status != "PENDING" || order.TotalCents != 2000+499 {
		t.Errorf("unexpected order %+v", order)
	}

	var title TitleResponse
	c.do(http.MethodGet, "/api/titles/t1", nil, &title)
	if title.CopiesAvailable != 0 || title.Status != "OUT_OF_STOCK" {
		t.Errorf("expected drained ledger, got %+v", title)
	}

	var fetched OrderResponse
	if code := c.do(http.MethodGet, "/api/orders/"+order.ID, nil, &fetched); code != http.StatusOK || fetched.ID != order.ID {
		t.Errorf("get order: %d %+v", code, fetched)
	}

	var list OrderListResponse
	c.do(http.MethodGet, "/api/users/u1/orders", nil, &list)
	if len(list.Orders) != 1 {
		t.Errorf("expected one order, got %d", len(list.Orders))
	}
}

func TestHTTP_PlaceOrderErrors(t *testing.T) {
	c := newHTTPClient(t)

	var errResp ErrorResponse
	if code, _ := c.placeOrder("req-1", 1); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	code := c.do(http.MethodPost, "/api/orders", PlaceOrderRequest{
		RequestID: "req-1", UserID: "u1", AddressID: "addr-1",
		Items: []CartItemRequest{{TitleID: "t1", Quantity: 1}},
	}, &errResp)
	if code != http.StatusConflict || errResp.Kind != "state_conflict" {
		t.Errorf("duplicate request: expected 409 state_conflict, got %d %+v", code, errResp)
	}

	code = c.do(http.MethodPost, "/api/orders", PlaceOrderRequest{
		RequestID: "req-2", UserID: "u1", AddressID: "addr-1",
		Items: []CartItemRequest{{TitleID: "t1", Quantity: 5}},
	}, &errResp)
	if code != http.StatusGone {
		t.Errorf("insufficient stock: expected 410, got %d", code)
	}

	code = c.do(http.MethodPost, "/api/orders", PlaceOrderRequest{RequestID: "req-3", UserID: "u1", AddressID: "addr-1"}, &errResp)
	if code != http.StatusBadRequest || errResp.Kind != "validation" {
		t.Errorf("empty cart: expected 400 validation, got %d %+v", code, errResp)
	}

	code = c.do(http.MethodPost, "/api/orders", PlaceOrderRequest{
		RequestID: "req-4", UserID: "u1", AddressID: "nope",
		Items: []CartItemRequest{{TitleID: "t2", Quantity: 1}},
	}, &errResp)
	if code != http.StatusNotFound {
		t.Errorf("unknown address: expected 404, got %d", code)
	}
}

func TestHTTP_MalformedBody(t *testing.T) {
	c := newHTTPClient(t)
	resp, err := http.Post(c.server.URL+"/api/orders", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHTTP_TransitionOrder(t *testing.T) {
	c := newHTTPClient(t)
	_, order := c.placeOrder("req-1", 1)

	var out OrderResponse
	code := c.do(http.MethodPost, "/api/orders/"+order.ID+"/transition", TransitionRequest{Target: "PROCESSING", ActorID: "admin"}, &out)
	if code != http.StatusOK || out.Status != "PROCESSING" {
		t.Fatalf("expected PROCESSING, got %d %+v", code, out)
	}

	var errResp ErrorResponse
	code = c.do(http.MethodPost, "/api/orders/"+order.ID+"/transition", TransitionRequest{Target: "REFUNDED", ActorID: "admin"}, &errResp)
	if code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if len(errResp.Allowed) == 0 {
		t.Errorf("expected allowed targets in error, got %+v", errResp)
	}

	code = c.do(http.MethodPost, "/api/orders/missing/transition", TransitionRequest{Target: "PROCESSING", ActorID: "admin"}, &errResp)
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHTTP_BulkTransition(t *testing.T) {
	c := newHTTPClient(t)
	_, a := c.placeOrder("req-1", 1)
	_, b := c.placeOrder("req-2", 1)
	c.do(http.MethodPost, "/api/orders/"+b.ID+"/transition", TransitionRequest{Target: "CANCELLED", ActorID: "admin"}, nil)

	var out BulkResultResponse
	code := c.do(http.MethodPost, "/api/orders/bulk-transition", BulkTransitionRequest{
		OrderIDs: []string{a.ID, b.ID},
		Target:   "PROCESSING",
		ActorID:  "admin",
	}, &out)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if out.Modified != 1 || out.Skipped != 1 || out.SkipReasons[b.ID] == "" {
		t.Errorf("unexpected bulk result %+v", out)
	}
}

func TestHTTP_EntitlementFlow(t *testing.T) {
	c := newHTTPClient(t)

	var access AccessResponse
	c.do(http.MethodGet, "/api/users/u1/titles/t2/access", nil, &access)
	if access.Authorized || access.Reason != "NeverGranted" {
		t.Fatalf("expected NeverGranted, got %+v", access)
	}

	var e EntitlementResponse
	if code := c.do(http.MethodPost, "/api/entitlements", EntitlementRequest{UserID: "u1", TitleID: "t2"}, &e); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if e.Status != "ACTIVE" || e.Provenance != "MANUAL" || e.ExpiresAt == nil {
		t.Errorf("unexpected entitlement %+v", e)
	}

	c.do(http.MethodGet, "/api/users/u1/titles/t2/access", nil, &access)
	if !access.Authorized {
		t.Errorf("expected access after grant, got %+v", access)
	}

	var errResp ErrorResponse
	code := c.do(http.MethodPost, "/api/entitlements", EntitlementRequest{UserID: "u1", TitleID: "t2"}, &errResp)
	if code != http.StatusConflict || errResp.ExpiresAt == nil {
		t.Errorf("already active: expected 409 with expiry, got %d %+v", code, errResp)
	}

	code = c.do(http.MethodPost, "/api/entitlements", EntitlementRequest{UserID: "u1", TitleID: "t1"}, &errResp)
	if code != http.StatusTooManyRequests || errResp.Limit == nil || *errResp.Limit != 1 || *errResp.Used != 1 {
		t.Errorf("quota: expected 429 with limit 1 used 1, got %d %+v", code, errResp)
	}

	code = c.do(http.MethodPost, "/api/entitlements", EntitlementRequest{UserID: "u1", TitleID: "tr"}, &errResp)
	if code != http.StatusForbidden {
		t.Errorf("restricted: expected 403, got %d", code)
	}

	var quota QuotaResponse
	c.do(http.MethodGet, "/api/users/u1/quota", nil, &quota)
	if quota.Used != 1 || quota.Remaining != 0 {
		t.Errorf("unexpected quota %+v", quota)
	}

	var progressed EntitlementResponse
	code = c.do(http.MethodPut, "/api/users/u1/titles/t2/progress", ProgressRequest{Cursor: "ch-2", Bookmarks: []int{4}}, &progressed)
	if code != http.StatusOK || progressed.ProgressCursor != "ch-2" {
		t.Errorf("save progress: %d %+v", code, progressed)
	}

	var list EntitlementListResponse
	c.do(http.MethodGet, "/api/users/u1/entitlements", nil, &list)
	if len(list.Entitlements) != 1 {
		t.Errorf("expected one entitlement, got %d", len(list.Entitlements))
	}

	var erased EraseResponse
	c.do(http.MethodDelete, "/api/users/u1/entitlements", nil, &erased)
	if erased.Deleted != 1 {
		t.Errorf("expected one deletion, got %d", erased.Deleted)
	}
}

func TestHTTP_Content(t *testing.T) {
	c := newHTTPClient(t)

	req, _ := http.NewRequest(http.MethodPut, c.server.URL+"/api/titles/t1/content", strings.NewReader("call me ishmael"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	if code := c.do(http.MethodGet, "/api/users/u1/titles/t1/content", nil, &errResp); code != http.StatusForbidden || errResp.Reason != "NeverGranted" {
		t.Fatalf("expected 403 NeverGranted, got %d %+v", code, errResp)
	}

	resp, err = http.Get(c.server.URL + "/api/users/admin/titles/t1/content")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "call me ishmael" {
		t.Errorf("admin read: %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Content-Type") != "text/plain" {
		t.Errorf("unexpected content type %s", resp.Header.Get("Content-Type"))
	}
}

func TestHTTP_StockEndpoints(t *testing.T) {
	c := newHTTPClient(t)

	var title TitleResponse
	code := c.do(http.MethodPost, "/api/titles", TitleRequest{ID: "t9", Name: "Middlemarch", PriceCents: 800, CopiesAvailable: 1}, &title)
	if code != http.StatusCreated || title.Status != "AVAILABLE" {
		t.Fatalf("add title: %d %+v", code, title)
	}

	c.do(http.MethodPost, "/api/titles/t9/borrow", nil, &title)
	if title.CopiesAvailable != 0 || title.Status != "OUT_OF_STOCK" {
		t.Errorf("after borrow: %+v", title)
	}
	if code := c.do(http.MethodPost, "/api/titles/t9/borrow", nil, nil); code != http.StatusGone {
		t.Errorf("second borrow: expected 410, got %d", code)
	}
	c.do(http.MethodPost, "/api/titles/t9/return", nil, &title)
	if title.CopiesAvailable != 1 || title.Status != "AVAILABLE" {
		t.Errorf("after return: %+v", title)
	}

	if code := c.do(http.MethodGet, "/api/titles/none", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown title: expected 404, got %d", code)
	}
}

func TestHTTP_Sweep(t *testing.T) {
	c := newHTTPClient(t)
	var out SweepResponse
	if code := c.do(http.MethodPost, "/api/admin/sweep", nil, &out); code != http.StatusOK || out.ExpiredCount != 0 {
		t.Errorf("sweep: %d %+v", code, out)
	}
}
