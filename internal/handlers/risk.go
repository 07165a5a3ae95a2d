package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taracart/api/internal/checkout"
	"github.com/taracart/api/internal/platform/httpx"
	"github.com/taracart/api/internal/risk"
)

// RiskHandlers exposes courier risk verification for the storefront's
// pre-submit check.
type RiskHandlers struct {
	risk *risk.Service
}

// NewRiskHandlers constructs risk handlers.
func NewRiskHandlers(service *risk.Service) *RiskHandlers {
	return &RiskHandlers{risk: service}
}

// Routes registers risk endpoints under the provided router.
func (h *RiskHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/risk/verify", h.verify)
}

type verifyResponse struct {
	Allowed     bool    `json:"allowed"`
	Reason      string  `json:"reason"`
	SuccessRate float64 `json:"successRate"`
}

func (h *RiskHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.risk == nil {
		httpx.WriteError(ctx, w, httpx.NewError("risk_unavailable", "verification service unavailable", http.StatusServiceUnavailable))
		return
	}

	phone, ok := checkout.NormalizePhone(r.URL.Query().Get("phone"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "a valid 11-digit mobile number is required", http.StatusBadRequest))
		return
	}

	verdict := h.risk.Verify(ctx, phone)
	writeJSONResponse(w, http.StatusOK, verifyResponse{
		Allowed:     verdict.Allowed,
		Reason:      verdict.Reason,
		SuccessRate: verdict.SuccessRate,
	})
}
