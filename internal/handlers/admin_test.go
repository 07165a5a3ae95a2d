package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/taracart/api/internal/analytics"
	"github.com/taracart/api/internal/platform/cache"
	"github.com/taracart/api/internal/platform/kvstore"
)

func newAdminRouter(t *testing.T, secret string, caches map[string]Clearer) (chi.Router, *analytics.Audience) {
	t.Helper()
	audience, err := analytics.NewAudience(context.Background(), analytics.AudienceDeps{
		Store: kvstore.NewChain(nil, kvstore.NewMemoryStore()),
	})
	if err != nil {
		t.Fatalf("NewAudience: %v", err)
	}

	r := chi.NewRouter()
	NewAdminHandlers(secret, audience, caches).Routes(r)
	return r, audience
}

func TestAdminRequiresBearerToken(t *testing.T) {
	r, _ := newAdminRouter(t, "s3cret", nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/audience/exclusions", strings.NewReader(`{"phone":"01711111111"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/audience/exclusions", strings.NewReader(`{"phone":"01711111111"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rr.Code)
	}
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	r, _ := newAdminRouter(t, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/revalidate", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when admin is unconfigured, got %d", rr.Code)
	}
}

func TestAdminAddAndClearExclusions(t *testing.T) {
	r, audience := newAdminRouter(t, "s3cret", nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/audience/exclusions", strings.NewReader(`{"phone":"+8801711111111","reason":"repeat customer"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !audience.IsExcluded("01711111111") {
		t.Fatalf("expected normalised phone excluded")
	}

	req = httptest.NewRequest(http.MethodDelete, "/admin/audience/exclusions", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if audience.IsExcluded("01711111111") {
		t.Fatalf("expected exclusions cleared")
	}
}

func TestAdminRevalidateClearsNamedCache(t *testing.T) {
	verdicts := cache.New[string](0)
	defer verdicts.Close()
	verdicts.Set("01711111111", "allowed")

	r, _ := newAdminRouter(t, "s3cret", map[string]Clearer{"risk_verdicts": verdicts})

	req := httptest.NewRequest(http.MethodPost, "/admin/revalidate", strings.NewReader(`{"target":"risk_verdicts"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if _, ok := verdicts.Get("01711111111"); ok {
		t.Fatalf("expected cache cleared")
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/revalidate", strings.NewReader(`{"target":"unknown"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown target, got %d", rr.Code)
	}
}
