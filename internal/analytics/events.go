// Package analytics queues, enriches, and flushes outbound tracking events to
// the client-visible and server-side delivery channels.
package analytics

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind is the closed set of known event kinds. Unknown storefront events pass
// through as KindCustom with their original name.
type Kind string

const (
	KindViewContent      Kind = "ViewContent"
	KindAddToCart        Kind = "AddToCart"
	KindInitiateCheckout Kind = "InitiateCheckout"
	KindPurchase         Kind = "Purchase"
	KindSearch           Kind = "Search"
	KindCustom           Kind = "Custom"
)

// Priority orders flushing; lower values flush first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// ContentItem is one product entry in a commerce event payload.
type ContentItem struct {
	ID        string  `json:"id"`
	Quantity  int     `json:"quantity"`
	ItemPrice float64 `json:"item_price,omitempty"`
}

// CommercePayload is the shared shape for commerce events across both
// delivery channels.
type CommercePayload struct {
	IDs         []string      `json:"ids"`
	ContentType string        `json:"type"`
	Contents    []ContentItem `json:"contents"`
	Currency    string        `json:"currency"`
	Value       float64       `json:"value"`
	NumItems    int           `json:"num_items,omitempty"`
}

// Event is one queued tracking event.
type Event struct {
	ID         string
	Kind       Kind
	CustomName string
	Commerce   *CommercePayload
	Query      string
	Extra      map[string]any
	CustomerID string
	Priority   Priority
	EnqueuedAt time.Time
}

// Name resolves the outbound event name for dispatch.
func (e Event) Name() string {
	if e.Kind == KindCustom {
		if e.CustomName != "" {
			return e.CustomName
		}
		return "CustomEvent"
	}
	return string(e.Kind)
}

// NewEvent builds an event with a fresh identifier.
func NewEvent(kind Kind) Event {
	return Event{
		ID:   ulid.Make().String(),
		Kind: kind,
	}
}
