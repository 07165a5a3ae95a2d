package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taracart/api/internal/checkout"
	"github.com/taracart/api/internal/commerce"
	"github.com/taracart/api/internal/domain"
	"github.com/taracart/api/internal/platform/httpx"
)

const maxCheckoutRequestBody = 32 * 1024

// sessionHeader carries the storefront's anonymous session identifier.
const sessionHeader = "X-Storefront-Session"

// CheckoutHandlers exposes the order submission and receipt endpoints.
type CheckoutHandlers struct {
	orchestrator *checkout.Orchestrator
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(orchestrator *checkout.Orchestrator) *CheckoutHandlers {
	return &CheckoutHandlers{orchestrator: orchestrator}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout", h.submit)
	r.Get("/checkout/state", h.state)
	r.Get("/checkout/profile", h.profile)
	r.Get("/checkout/last-order", h.lastOrder)
}

type submitRequestBody struct {
	FullName      string           `json:"fullName"`
	Phone         string           `json:"phone"`
	Address       string           `json:"address"`
	DeliveryZone  string           `json:"deliveryZone"`
	PaymentMethod string           `json:"paymentMethod"`
	CustomerNote  string           `json:"customerNote"`
	Cart          []submitCartLine `json:"cart"`
}

type submitCartLine struct {
	Key         string `json:"key"`
	ProductID   int    `json:"productId"`
	VariationID int    `json:"variationId"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orchestrator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session identifier is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req submitRequestBody
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lines := make([]domain.CartLine, 0, len(req.Cart))
	for _, item := range req.Cart {
		line := domain.CartLine{
			Key:         item.Key,
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Quantity:    item.Quantity,
		}
		if amount, err := domain.ParseAmount(item.UnitPrice); err == nil {
			line.UnitPrice = amount
		}
		if amount, err := domain.ParseAmount(item.LineTotal); err == nil {
			line.LineTotal = amount
		}
		lines = append(lines, line)
	}

	receipt, err := h.orchestrator.Submit(ctx, checkout.SubmitRequest{
		SessionID: sessionID,
		Form: checkout.SubmitInput{
			FullName:      req.FullName,
			Phone:         req.Phone,
			Address:       req.Address,
			DeliveryZone:  req.DeliveryZone,
			PaymentMethod: req.PaymentMethod,
		},
		Lines:        lines,
		CustomerNote: req.CustomerNote,
	})
	if err != nil {
		writeSubmitError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, receipt)
}

func (h *CheckoutHandlers) state(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "session identifier is required", http.StatusBadRequest))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"state": string(h.orchestrator.State(sessionID)),
	})
}

func (h *CheckoutHandlers) profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	phone, ok := checkout.NormalizePhone(r.URL.Query().Get("phone"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "a valid phone number is required", http.StatusBadRequest))
		return
	}
	profile, ok := h.orchestrator.Profile(ctx, phone)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "no saved profile for this number", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

func (h *CheckoutHandlers) lastOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session identifier is required", http.StatusBadRequest))
		return
	}
	snapshot, ok := h.orchestrator.LastOrder(ctx, sessionID)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "no recent order for this session", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshot)
}

func sessionIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(sessionHeader))
}

func writeSubmitError(ctx context.Context, w http.ResponseWriter, err error) {
	message := checkout.UserMessage(err)

	var fieldErr checkout.FieldError
	switch {
	case errors.As(err, &fieldErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_"+fieldErr.Field, message, http.StatusBadRequest).
			WithDetails(map[string]any{"field": fieldErr.Field}))
	case errors.Is(err, checkout.ErrSubmitRateLimited):
		httpx.WriteError(ctx, w, httpx.NewError("too_many_attempts", message, http.StatusTooManyRequests))
	case errors.Is(err, checkout.ErrSubmitInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("submission_in_progress", message, http.StatusConflict))
	case errors.Is(err, checkout.ErrRiskRejected):
		httpx.WriteError(ctx, w, httpx.NewError("order_blocked", message, http.StatusForbidden))
	case errors.Is(err, commerce.ErrSessionRequired):
		httpx.WriteError(ctx, w, httpx.NewError("session_expired", message, http.StatusConflict))
	case errors.Is(err, commerce.ErrCartRejected):
		httpx.WriteError(ctx, w, httpx.NewError("cart_rejected", message, http.StatusConflict))
	case errors.Is(err, commerce.ErrOrderRejected):
		httpx.WriteError(ctx, w, httpx.NewError("order_rejected", message, http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, checkout.ErrPlacementFailed):
		httpx.WriteError(ctx, w, httpx.NewError("order_timeout", message, http.StatusGatewayTimeout))
	case errors.Is(err, commerce.ErrTransport):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_unavailable", message, http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", message, http.StatusInternalServerError))
	}
}
