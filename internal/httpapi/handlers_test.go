package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"voxhall.org/internal/gateway"
	"voxhall.org/internal/stream"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	return New(ReadyProbe{}, "test", stream.New())
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	a.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["service"] != "voxhall-core" || body["version"] != "test" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReadyWithoutDatabase(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	a.Ready(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGatewayTicketIssued(t *testing.T) {
	gateway.ResetSecretForTests()
	t.Setenv("VOXHALL_GATEWAY_SECRET", "test-secret")
	t.Cleanup(gateway.ResetSecretForTests)

	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/ticket", nil)
	req.Header.Set(userHeader, "42")
	rec := httptest.NewRecorder()

	a.GatewayTicket(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ExpiresIn <= 0 {
		t.Fatalf("expected a positive ttl, got %d", body.ExpiresIn)
	}

	claims, err := gateway.ParseAndValidate(body.Ticket)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	userID, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if userID != 42 {
		t.Fatalf("ticket issued for wrong user: %d", userID)
	}
}

func TestGatewayTicketRejectsBadRequests(t *testing.T) {
	a := newTestAPI(t)

	rec := httptest.NewRecorder()
	a.GatewayTicket(rec, httptest.NewRequest(http.MethodGet, "/v1/gateway/ticket", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.GatewayTicket(rec, httptest.NewRequest(http.MethodPost, "/v1/gateway/ticket", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without the user header, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/ticket", nil)
	req.Header.Set(userHeader, "not-a-number")
	rec = httptest.NewRecorder()
	a.GatewayTicket(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad user header, got %d", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()

	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
