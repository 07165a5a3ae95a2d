package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taracart/api/internal/risk"
)

type fixedHistory struct {
	history map[string]map[string]any
}

func (f fixedHistory) FetchHistory(context.Context, string) (map[string]map[string]any, error) {
	return f.history, nil
}

func newRiskHandlers(t *testing.T, history map[string]map[string]any) *RiskHandlers {
	t.Helper()
	service, err := risk.NewService(risk.ServiceDeps{History: fixedHistory{history: history}})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewRiskHandlers(service)
}

func getVerify(h *RiskHandlers, phone string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/risk/verify?phone="+phone, nil)
	rr := httptest.NewRecorder()
	h.verify(rr, req)
	return rr
}

func TestVerifyEndpointAllowsNewCustomer(t *testing.T) {
	h := newRiskHandlers(t, map[string]map[string]any{})

	rr := getVerify(h, "01711111111")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp verifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Allowed {
		t.Fatalf("expected allowed for empty history")
	}
	if resp.Reason != "New customer" {
		t.Fatalf("unexpected reason %q", resp.Reason)
	}
	if resp.SuccessRate != 100 {
		t.Fatalf("expected success rate 100, got %v", resp.SuccessRate)
	}
}

func TestVerifyEndpointRejectsPoorHistory(t *testing.T) {
	h := newRiskHandlers(t, map[string]map[string]any{
		"pathao": {"total_parcel": float64(10), "success_parcel": float64(2), "cancelled_parcel": float64(8)},
	})

	rr := getVerify(h, "01711111111")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp verifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Allowed {
		t.Fatalf("expected rejection for 20%% success rate")
	}
}

func TestVerifyEndpointRequiresValidPhone(t *testing.T) {
	h := newRiskHandlers(t, map[string]map[string]any{})

	rr := getVerify(h, "12345")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
