package domain

import "strings"

// DeliveryZone distinguishes Dhaka-metro delivery from the rest of the country.
type DeliveryZone string

const (
	// ZoneInsideDhaka covers Dhaka metro addresses.
	ZoneInsideDhaka DeliveryZone = "inside"
	// ZoneOutsideDhaka covers everywhere else.
	ZoneOutsideDhaka DeliveryZone = "outside"
)

// ParseDeliveryZone accepts the zone spellings the storefront sends.
func ParseDeliveryZone(value string) (DeliveryZone, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "inside", "dhaka", "inside_dhaka":
		return ZoneInsideDhaka, true
	case "outside", "outside_dhaka":
		return ZoneOutsideDhaka, true
	default:
		return "", false
	}
}

// PaymentMethod names the supported payment flows. Capture is external; the
// engine only records the chosen method on the order.
type PaymentMethod string

const (
	// PaymentCOD is cash on delivery, the default for this market.
	PaymentCOD PaymentMethod = "cod"
)

// CheckoutForm carries validated customer input for an order submission.
type CheckoutForm struct {
	FullName      string
	Phone         string
	Address       string
	DeliveryZone  DeliveryZone
	PaymentMethod PaymentMethod
}

// PlacedOrder is the remote API's confirmation of a submitted order, already
// validated for logical completeness.
type PlacedOrder struct {
	OrderNumber string
	Total       Amount
}

// CustomerProfile is persisted locally after a successful order so future
// visits can pre-fill the checkout form.
type CustomerProfile struct {
	FullName     string       `json:"fullName"`
	Phone        string       `json:"phone"`
	Address      string       `json:"address"`
	DeliveryZone DeliveryZone `json:"deliveryZone"`
}
