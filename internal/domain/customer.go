package domain

import "time"

// CustomerValue accumulates per-customer purchase value. Mutated additively on
// each completed purchase; AverageOrderValue is recomputed from the running
// totals.
type CustomerValue struct {
	CustomerID        string    `json:"customerId"`
	TotalSpent        Amount    `json:"totalSpent"`
	OrderCount        int       `json:"orderCount"`
	LastOrderDate     time.Time `json:"lastOrderDate"`
	AverageOrderValue Amount    `json:"averageOrderValue"`
	LifetimeValue     Amount    `json:"lifetimeValue"`
}

// ApplyOrder folds one completed order into the running value figures.
func (v *CustomerValue) ApplyOrder(orderValue Amount, placedAt time.Time) {
	v.TotalSpent += orderValue
	v.OrderCount++
	v.AverageOrderValue = v.TotalSpent / Amount(v.OrderCount)
	v.LifetimeValue += orderValue
	v.LastOrderDate = placedAt
}

// ExclusionRecord marks a customer suppressed from acquisition-style analytics.
// The set grows monotonically; entries are cleared only by explicit admin
// action.
type ExclusionRecord struct {
	CustomerID string    `json:"customerId"`
	Reason     string    `json:"reason"`
	AddedAt    time.Time `json:"addedAt"`
}
