package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/taracart/api/internal/domain"
	"github.com/taracart/api/internal/platform/kvstore"
)

func newTestAudience(t *testing.T, clock func() time.Time) (*Audience, *kvstore.Chain) {
	t.Helper()
	chain := kvstore.NewChain(nil, kvstore.NewMemoryStore())
	a, err := NewAudience(context.Background(), AudienceDeps{
		Store: chain,
		Clock: clock,
	})
	if err != nil {
		t.Fatalf("NewAudience: %v", err)
	}
	return a, chain
}

func TestUpdateCustomerValueAccumulates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newTestAudience(t, func() time.Time { return now })

	if err := a.UpdateCustomerValue(ctx, "01711111111", domain.FromTaka(500)); err != nil {
		t.Fatalf("UpdateCustomerValue: %v", err)
	}
	if err := a.UpdateCustomerValue(ctx, "01711111111", domain.FromTaka(700)); err != nil {
		t.Fatalf("UpdateCustomerValue: %v", err)
	}

	event := NewEvent(KindViewContent)
	event.CustomerID = "01711111111"
	enhanced, ok := a.EnhanceEvent(ctx, event)
	if !ok {
		t.Fatalf("expected event to pass")
	}
	if got := enhanced.Extra["lifetime_value"]; got != 1200.0 {
		t.Fatalf("lifetime_value = %v, want 1200", got)
	}
	if got := enhanced.Extra["order_count"]; got != 2 {
		t.Fatalf("order_count = %v, want 2", got)
	}
	if got := enhanced.Extra["average_order_value"]; got != 600.0 {
		t.Fatalf("average_order_value = %v, want 600", got)
	}
	if got := enhanced.Extra["high_value"]; got != false {
		t.Fatalf("high_value = %v, want false", got)
	}
}

func TestEnhanceEventMarksHighValueCustomer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newTestAudience(t, func() time.Time { return now })

	if err := a.UpdateCustomerValue(ctx, "01811111111", domain.FromTaka(12000)); err != nil {
		t.Fatalf("UpdateCustomerValue: %v", err)
	}

	event := NewEvent(KindPurchase)
	event.CustomerID = "01811111111"
	enhanced, ok := a.EnhanceEvent(ctx, event)
	if !ok {
		t.Fatalf("expected event to pass")
	}
	if got := enhanced.Extra["high_value"]; got != true {
		t.Fatalf("high_value = %v, want true", got)
	}
}

func TestEnhanceEventAnonymousAndZeroHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newTestAudience(t, func() time.Time { return now })

	// No customer identifier: unchanged.
	anon := NewEvent(KindSearch)
	got, ok := a.EnhanceEvent(ctx, anon)
	if !ok || got.Extra != nil {
		t.Fatalf("expected anonymous event unchanged")
	}

	// Known identifier but no order history: annotated with zero values.
	fresh := NewEvent(KindSearch)
	fresh.CustomerID = "01911111111"
	got, ok = a.EnhanceEvent(ctx, fresh)
	if !ok {
		t.Fatalf("expected zero-history event kept")
	}
	if got.Extra["lifetime_value"] != 0.0 || got.Extra["order_count"] != 0 {
		t.Fatalf("expected zero value annotations, got %v", got.Extra)
	}
	if got.Extra["high_value"] != false {
		t.Fatalf("expected high_value false, got %v", got.Extra["high_value"])
	}
	if got.Extra["value_score"] != 0.0 {
		t.Fatalf("expected zero value score, got %v", got.Extra["value_score"])
	}
}

func TestExcludedCustomerSuppressesEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newTestAudience(t, func() time.Time { return now })

	if err := a.AddToExclusions(ctx, "01711111111", "existing customer"); err != nil {
		t.Fatalf("AddToExclusions: %v", err)
	}
	if !a.IsExcluded("01711111111") {
		t.Fatalf("expected customer excluded")
	}

	event := NewEvent(KindViewContent)
	event.CustomerID = "01711111111"
	if _, ok := a.EnhanceEvent(ctx, event); ok {
		t.Fatalf("expected event suppressed")
	}

	if err := a.ClearExclusions(ctx); err != nil {
		t.Fatalf("ClearExclusions: %v", err)
	}
	if a.IsExcluded("01711111111") {
		t.Fatalf("expected exclusion cleared")
	}
}

func TestExclusionsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a, chain := newTestAudience(t, func() time.Time { return now })

	if err := a.AddToExclusions(ctx, "01711111111", "manual"); err != nil {
		t.Fatalf("AddToExclusions: %v", err)
	}

	reloaded, err := NewAudience(ctx, AudienceDeps{Store: chain})
	if err != nil {
		t.Fatalf("NewAudience: %v", err)
	}
	if !reloaded.IsExcluded("01711111111") {
		t.Fatalf("expected exclusion persisted across instances")
	}
}

func TestValueScoreCaps(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a, _ := newTestAudience(t, func() time.Time { return now })

	huge := domain.CustomerValue{
		OrderCount:        100,
		TotalSpent:        domain.FromTaka(1000000),
		AverageOrderValue: domain.FromTaka(10000),
		LastOrderDate:     now,
	}
	if score := a.valueScore(huge); score != 100 {
		t.Fatalf("expected score capped at 100, got %v", score)
	}

	// 10 for orders, 10 for spend, 10 for AOV, 5 for recency.
	modest := domain.CustomerValue{
		OrderCount:        2,
		TotalSpent:        domain.FromTaka(1000),
		AverageOrderValue: domain.FromTaka(500),
		LastOrderDate:     now.AddDate(0, 0, -5),
	}
	if score := a.valueScore(modest); score != 35 {
		t.Fatalf("expected score 35, got %v", score)
	}
}
