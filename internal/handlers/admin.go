package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taracart/api/internal/analytics"
	"github.com/taracart/api/internal/checkout"
	"github.com/taracart/api/internal/platform/httpx"
)

const maxAdminRequestBody = 4 * 1024

// Clearer is a named cache that can be invalidated wholesale.
type Clearer interface {
	Clear()
}

// AdminHandlers exposes bearer-guarded operational endpoints: audience
// exclusion management and cache revalidation.
type AdminHandlers struct {
	secret   string
	audience *analytics.Audience
	caches   map[string]Clearer
}

// NewAdminHandlers constructs admin handlers. An empty secret disables the
// whole group.
func NewAdminHandlers(secret string, audience *analytics.Audience, caches map[string]Clearer) *AdminHandlers {
	return &AdminHandlers{
		secret:   strings.TrimSpace(secret),
		audience: audience,
		caches:   caches,
	}
}

// Routes registers admin endpoints under the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r.With(h.requireBearer)
	group.Post("/admin/audience/exclusions", h.addExclusion)
	group.Delete("/admin/audience/exclusions", h.clearExclusions)
	group.Post("/admin/revalidate", h.revalidate)
}

func (h *AdminHandlers) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.secret == "" {
			httpx.WriteError(r.Context(), w, httpx.NewError("admin_disabled", "admin endpoints are not configured", http.StatusNotFound))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthorized", "a valid bearer token is required", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type exclusionRequestBody struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

func (h *AdminHandlers) addExclusion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audience == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audience_unavailable", "audience tracking unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req exclusionRequestBody
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	phone, ok := checkout.NormalizePhone(req.Phone)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "a valid phone number is required", http.StatusBadRequest))
		return
	}

	if err := h.audience.AddToExclusions(ctx, phone, strings.TrimSpace(req.Reason)); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("exclusion_failed", "could not persist exclusion", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "excluded"})
}

func (h *AdminHandlers) clearExclusions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audience == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audience_unavailable", "audience tracking unavailable", http.StatusServiceUnavailable))
		return
	}
	if err := h.audience.ClearExclusions(ctx); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("exclusion_failed", "could not clear exclusions", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type revalidateRequestBody struct {
	Target string `json:"target"`
}

func (h *AdminHandlers) revalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil && !errors.Is(err, errEmptyBody) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	target := "all"
	if len(body) > 0 {
		var req revalidateRequestBody
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
		if t := strings.TrimSpace(req.Target); t != "" {
			target = t
		}
	}

	cleared := make([]string, 0, len(h.caches))
	for name, cache := range h.caches {
		if cache == nil {
			continue
		}
		if target != "all" && target != name {
			continue
		}
		cache.Clear()
		cleared = append(cleared, name)
	}
	if target != "all" && len(cleared) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_target", "no cache named "+target, http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cleared": cleared})
}
