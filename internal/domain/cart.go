package domain

import "time"

// CartLine is one client-held cart entry. Key is unique per line; a line with
// a variation carries the variation identifier alongside the parent product.
type CartLine struct {
	Key         string
	ProductID   int
	VariationID int
	Quantity    int
	UnitPrice   Amount
	LineTotal   Amount
}

// Subtotal sums line totals, falling back to quantity × unit price when the
// line total is absent.
func Subtotal(lines []CartLine) Amount {
	var total Amount
	for _, line := range lines {
		if line.LineTotal > 0 {
			total += line.LineTotal
			continue
		}
		if line.Quantity > 0 && line.UnitPrice > 0 {
			total += line.UnitPrice * Amount(line.Quantity)
		}
	}
	return total
}

// RemoteCart mirrors the server-side session cart returned by the commerce API.
type RemoteCart struct {
	Lines []RemoteCartLine
	Total Amount
}

// RemoteCartLine is a line as the remote session cart reports it.
type RemoteCartLine struct {
	Key       string
	ProductID int
	Quantity  int
}

// OrderLineSnapshot captures a cart line at order time together with the
// delivery estimate label shown on the receipt.
type OrderLineSnapshot struct {
	ProductID     int
	VariationID   int
	Quantity      int
	LineTotal     Amount
	DeliveryLabel string
}

// OrderSnapshot is the receipt-page record persisted locally after a
// successful placement.
type OrderSnapshot struct {
	OrderNumber string
	Total       Amount
	Subtotal    Amount
	Shipping    Amount
	Lines       []OrderLineSnapshot
	PlacedAt    time.Time
}
