package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taracart/api/internal/domain"
	"github.com/taracart/api/internal/platform/kvstore"
)

const (
	exclusionsKey     = "audience:exclusions"
	customerKeyPrefix = "audience:value:"

	// LifetimeValue at or above this marks a customer high value.
	highValueThresholdTaka = 10000
)

// AudienceDeps wires the dependencies required by the audience tracker.
type AudienceDeps struct {
	Store  *kvstore.Chain
	Logger *zap.Logger
	Clock  func() time.Time
}

// Audience maintains durable per-customer value and exclusion state. It is a
// client-local approximation of a CRM segment; its only consumer is outbound
// analytics enrichment, never business logic.
type Audience struct {
	store  *kvstore.Chain
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	exclusions map[string]domain.ExclusionRecord
}

// NewAudience constructs the tracker and reloads persisted exclusion state.
func NewAudience(ctx context.Context, deps AudienceDeps) (*Audience, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("audience: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	a := &Audience{
		store:      deps.Store,
		logger:     logger,
		now:        func() time.Time { return clock().UTC() },
		exclusions: make(map[string]domain.ExclusionRecord),
	}

	data, err := deps.Store.Get(ctx, exclusionsKey)
	if err == nil {
		var records []domain.ExclusionRecord
		if err := json.Unmarshal(data, &records); err == nil {
			for _, record := range records {
				a.exclusions[record.CustomerID] = record
			}
		}
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		logger.Warn("audience: exclusion reload failed", zap.Error(err))
	}

	return a, nil
}

// UpdateCustomerValue folds one completed order into the customer's durable
// value record.
func (a *Audience) UpdateCustomerValue(ctx context.Context, customerID string, orderValue domain.Amount) error {
	if customerID == "" {
		return fmt.Errorf("audience: customer id is required")
	}

	value, err := a.loadValue(ctx, customerID)
	if err != nil {
		return err
	}
	value.ApplyOrder(orderValue, a.now())

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("audience: encode customer value: %w", err)
	}
	if err := a.store.Set(ctx, customerKeyPrefix+customerID, data); err != nil {
		return fmt.Errorf("audience: persist customer value: %w", err)
	}
	return nil
}

// AddToExclusions marks a customer suppressed from acquisition-style events.
// The set grows monotonically until ClearExclusions.
func (a *Audience) AddToExclusions(ctx context.Context, customerID, reason string) error {
	if customerID == "" {
		return fmt.Errorf("audience: customer id is required")
	}

	a.mu.Lock()
	a.exclusions[customerID] = domain.ExclusionRecord{
		CustomerID: customerID,
		Reason:     reason,
		AddedAt:    a.now(),
	}
	records := make([]domain.ExclusionRecord, 0, len(a.exclusions))
	for _, record := range a.exclusions {
		records = append(records, record)
	}
	a.mu.Unlock()

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("audience: encode exclusions: %w", err)
	}
	if err := a.store.Set(ctx, exclusionsKey, data); err != nil {
		return fmt.Errorf("audience: persist exclusions: %w", err)
	}
	return nil
}

// ClearExclusions empties the exclusion set. Admin-only operation.
func (a *Audience) ClearExclusions(ctx context.Context) error {
	a.mu.Lock()
	a.exclusions = make(map[string]domain.ExclusionRecord)
	a.mu.Unlock()
	return a.store.Set(ctx, exclusionsKey, []byte("[]"))
}

// IsExcluded reports whether the customer is suppressed.
func (a *Audience) IsExcluded(customerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.exclusions[customerID]
	return ok
}

// EnhanceEvent annotates the event with audience value data. The second return
// is false when the customer is excluded and the event must be suppressed
// entirely. Events without a customer identifier pass through unchanged; an
// identified customer with no purchase history is annotated with zero values.
func (a *Audience) EnhanceEvent(ctx context.Context, event Event) (Event, bool) {
	if event.CustomerID == "" {
		return event, true
	}
	if a.IsExcluded(event.CustomerID) {
		return Event{}, false
	}

	value, err := a.loadValue(ctx, event.CustomerID)
	if err != nil {
		a.logger.Warn("audience: value lookup failed",
			zap.String("customer_id", event.CustomerID),
			zap.Error(err),
		)
		return event, true
	}

	extra := make(map[string]any, len(event.Extra)+5)
	for k, v := range event.Extra {
		extra[k] = v
	}
	extra["lifetime_value"] = value.LifetimeValue.Taka()
	extra["order_count"] = value.OrderCount
	extra["average_order_value"] = value.AverageOrderValue.Taka()
	extra["high_value"] = value.LifetimeValue >= domain.FromTaka(highValueThresholdTaka)
	extra["value_score"] = a.valueScore(value)
	event.Extra = extra
	return event, true
}

// valueScore is a 0-100 optimisation score: order count ×5 (≤30), total spent
// /100 (≤40), average order value /50 (≤20), recency bonus 10-days (≤10).
func (a *Audience) valueScore(value domain.CustomerValue) float64 {
	score := capped(float64(value.OrderCount)*5, 30)
	score += capped(value.TotalSpent.Taka()/100, 40)
	score += capped(value.AverageOrderValue.Taka()/50, 20)

	if !value.LastOrderDate.IsZero() {
		days := a.now().Sub(value.LastOrderDate).Hours() / 24
		score += capped(10-days, 10)
	}

	return capped(score, 100)
}

func capped(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

func (a *Audience) loadValue(ctx context.Context, customerID string) (domain.CustomerValue, error) {
	value := domain.CustomerValue{CustomerID: customerID}
	data, err := a.store.Get(ctx, customerKeyPrefix+customerID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return value, nil
		}
		return value, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return domain.CustomerValue{CustomerID: customerID}, nil
	}
	value.CustomerID = customerID
	return value, nil
}
