package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taracart/api/internal/analytics"
	"github.com/taracart/api/internal/checkout"
	"github.com/taracart/api/internal/platform/httpx"
)

const maxTrackRequestBody = 16 * 1024

// TrackHandlers accepts storefront tracking events and feeds the batcher.
type TrackHandlers struct {
	batcher *analytics.Batcher
}

// NewTrackHandlers constructs track handlers.
func NewTrackHandlers(batcher *analytics.Batcher) *TrackHandlers {
	return &TrackHandlers{batcher: batcher}
}

// Routes registers tracking endpoints under the provided router.
func (h *TrackHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/track", h.track)
}

type trackRequestBody struct {
	Name     string                     `json:"name"`
	Query    string                     `json:"query"`
	Phone    string                     `json:"phone"`
	Commerce *analytics.CommercePayload `json:"commerce"`
	Extra    map[string]any             `json:"extra"`
}

func (h *TrackHandlers) track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.batcher == nil {
		httpx.WriteError(ctx, w, httpx.NewError("tracking_unavailable", "event tracking unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxTrackRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req trackRequestBody
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event name is required", http.StatusBadRequest))
		return
	}

	kind := kindFor(name)
	event := analytics.NewEvent(kind)
	if kind == analytics.KindCustom {
		event.CustomName = name
	}
	event.Query = strings.TrimSpace(req.Query)
	event.Commerce = req.Commerce
	event.Extra = req.Extra
	if phone, ok := checkout.NormalizePhone(req.Phone); ok {
		event.CustomerID = phone
	}

	h.batcher.Add(event, priorityFor(kind))
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"eventId": event.ID})
}

func kindFor(name string) analytics.Kind {
	switch analytics.Kind(name) {
	case analytics.KindViewContent, analytics.KindAddToCart, analytics.KindInitiateCheckout,
		analytics.KindPurchase, analytics.KindSearch:
		return analytics.Kind(name)
	default:
		return analytics.KindCustom
	}
}

func priorityFor(kind analytics.Kind) analytics.Priority {
	switch kind {
	case analytics.KindPurchase:
		return analytics.PriorityHigh
	case analytics.KindAddToCart, analytics.KindInitiateCheckout:
		return analytics.PriorityMedium
	default:
		return analytics.PriorityLow
	}
}
