package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taracart/api/internal/checkout"
	"github.com/taracart/api/internal/commerce"
	"github.com/taracart/api/internal/domain"
	"github.com/taracart/api/internal/platform/kvstore"
	"github.com/taracart/api/internal/risk"
)

type fakeCommerce struct {
	placeFunc func(ctx context.Context, token string, input commerce.OrderInput) (domain.PlacedOrder, string, error)
}

func (f *fakeCommerce) EnsureSession(context.Context) (string, error) { return "tok", nil }

func (f *fakeCommerce) AddCartLine(context.Context, string, domain.CartLine) (string, error) {
	return "", nil
}

func (f *fakeCommerce) GetCart(context.Context, string) (domain.RemoteCart, string, error) {
	return domain.RemoteCart{}, "", nil
}

func (f *fakeCommerce) PlaceOrder(ctx context.Context, token string, input commerce.OrderInput) (domain.PlacedOrder, string, error) {
	if f.placeFunc != nil {
		return f.placeFunc(ctx, token, input)
	}
	return domain.PlacedOrder{OrderNumber: "1001", Total: domain.FromTaka(580)}, "", nil
}

type allowAllVerifier struct{}

func (allowAllVerifier) Verify(context.Context, string) risk.Verdict {
	return risk.Verdict{Allowed: true, Reason: "New customer"}
}

type rejectVerifier struct{}

func (rejectVerifier) Verify(context.Context, string) risk.Verdict {
	return risk.Verdict{Allowed: false, Reason: "Delivery success rate 0% is below the required 30%"}
}

func newCheckoutHandlers(t *testing.T, mutate ...func(*checkout.OrchestratorDeps)) *CheckoutHandlers {
	t.Helper()
	deps := checkout.OrchestratorDeps{
		Commerce:        &fakeCommerce{},
		Risk:            allowAllVerifier{},
		Store:           kvstore.NewChain(nil, kvstore.NewMemoryStore()),
		OrderTimeout:    time.Second,
		ShippingInside:  domain.FromTaka(80),
		ShippingOutside: domain.FromTaka(150),
	}
	for _, m := range mutate {
		m(&deps)
	}
	orchestrator, err := checkout.NewOrchestrator(deps)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return NewCheckoutHandlers(orchestrator)
}

const validSubmitBody = `{
	"fullName": "Rahim Uddin",
	"phone": "01711111111",
	"address": "House 12, Road 5, Dhanmondi, Dhaka",
	"deliveryZone": "inside",
	"cart": [
		{"productId": 7, "quantity": 2, "unitPrice": "150", "lineTotal": "300"},
		{"productId": 9, "quantity": 1, "unitPrice": "200", "lineTotal": "200"}
	]
}`

func postCheckout(h *CheckoutHandlers, session, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", strings.NewReader(body))
	if session != "" {
		req.Header.Set("X-Storefront-Session", session)
	}
	rr := httptest.NewRecorder()
	h.submit(rr, req)
	return rr
}

func TestSubmitEndpointSuccess(t *testing.T) {
	h := newCheckoutHandlers(t)

	rr := postCheckout(h, "sess-1", validSubmitBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var receipt checkout.Receipt
	if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.OrderNumber != "1001" {
		t.Fatalf("expected order number 1001, got %q", receipt.OrderNumber)
	}
	if receipt.RedirectURL != "/order-received/1001" {
		t.Fatalf("unexpected redirect %q", receipt.RedirectURL)
	}
}

func TestSubmitEndpointRequiresSession(t *testing.T) {
	h := newCheckoutHandlers(t)
	rr := postCheckout(h, "", validSubmitBody)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSubmitEndpointFieldErrorDetails(t *testing.T) {
	h := newCheckoutHandlers(t)

	body := strings.Replace(validSubmitBody, "01711111111", "12345", 1)
	rr := postCheckout(h, "sess-1", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var envelope struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error != "invalid_phone" {
		t.Fatalf("expected invalid_phone code, got %q", envelope.Error)
	}
	if envelope.Field != "phone" {
		t.Fatalf("expected field detail, got %v", envelope.Field)
	}
}

func TestSubmitEndpointRiskRejection(t *testing.T) {
	h := newCheckoutHandlers(t, func(d *checkout.OrchestratorDeps) {
		d.Risk = rejectVerifier{}
	})

	rr := postCheckout(h, "sess-1", validSubmitBody)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSubmitEndpointTimeoutMapsToGatewayTimeout(t *testing.T) {
	h := newCheckoutHandlers(t, func(d *checkout.OrchestratorDeps) {
		d.OrderTimeout = 10 * time.Millisecond
		d.Commerce = &fakeCommerce{
			placeFunc: func(ctx context.Context, token string, input commerce.OrderInput) (domain.PlacedOrder, string, error) {
				<-ctx.Done()
				return domain.PlacedOrder{}, "", ctx.Err()
			},
		}
	})

	rr := postCheckout(h, "sess-1", validSubmitBody)
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestLastOrderEndpoint(t *testing.T) {
	h := newCheckoutHandlers(t)

	if rr := postCheckout(h, "sess-1", validSubmitBody); rr.Code != http.StatusOK {
		t.Fatalf("seed submit failed: %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/checkout/last-order", nil)
	req.Header.Set("X-Storefront-Session", "sess-1")
	rr := httptest.NewRecorder()
	h.lastOrder(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.OrderNumber != "1001" {
		t.Fatalf("expected order 1001, got %q", snapshot.OrderNumber)
	}

	missing := httptest.NewRequest(http.MethodGet, "/v1/checkout/last-order", nil)
	missing.Header.Set("X-Storefront-Session", "sess-2")
	rr = httptest.NewRecorder()
	h.lastOrder(rr, missing)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rr.Code)
	}
}
