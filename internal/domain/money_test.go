package domain

import (
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input string
		want  Amount
		ok    bool
	}{
		{input: "580", want: 58000, ok: true},
		{input: "580.50", want: 58050, ok: true},
		{input: "৳580", want: 58000, ok: true},
		{input: "1,250.75", want: 125075, ok: true},
		{input: "  80  ", want: 8000, ok: true},
		{input: "0", want: 0, ok: true},
		{input: "", ok: false},
		{input: "abc", ok: false},
	}

	for _, tc := range cases {
		got, err := ParseAmount(tc.input)
		if tc.ok && err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.input, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("ParseAmount(%q): expected error", tc.input)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestAmountString(t *testing.T) {
	if got := FromTaka(580).String(); got != "580" {
		t.Fatalf("expected whole amounts without decimals, got %q", got)
	}
	if got := Amount(58050).String(); got != "580.50" {
		t.Fatalf("expected two decimal places, got %q", got)
	}
}

func TestAmountTakaRoundTrip(t *testing.T) {
	if got := Amount(58050).Taka(); got != 580.5 {
		t.Fatalf("expected 580.5, got %v", got)
	}
	if got := FromTaka(500); got != 50000 {
		t.Fatalf("expected 50000 poisha, got %d", got)
	}
}

func TestSubtotalPrefersLineTotals(t *testing.T) {
	lines := []CartLine{
		{ProductID: 7, Quantity: 2, UnitPrice: FromTaka(150), LineTotal: FromTaka(300)},
		{ProductID: 9, Quantity: 3, UnitPrice: FromTaka(100)},
	}
	if got := Subtotal(lines); got != FromTaka(600) {
		t.Fatalf("expected 600 taka subtotal, got %d", got)
	}
}

func TestCustomerValueApplyOrder(t *testing.T) {
	placed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var value CustomerValue

	value.ApplyOrder(FromTaka(500), placed)
	value.ApplyOrder(FromTaka(700), placed.Add(time.Hour))

	if value.OrderCount != 2 {
		t.Fatalf("expected 2 orders, got %d", value.OrderCount)
	}
	if value.TotalSpent != FromTaka(1200) || value.LifetimeValue != FromTaka(1200) {
		t.Fatalf("unexpected totals %d/%d", value.TotalSpent, value.LifetimeValue)
	}
	if value.AverageOrderValue != FromTaka(600) {
		t.Fatalf("expected AOV 600, got %d", value.AverageOrderValue)
	}
	if !value.LastOrderDate.Equal(placed.Add(time.Hour)) {
		t.Fatalf("unexpected last order date %v", value.LastOrderDate)
	}
}

func TestParseDeliveryZoneSpellings(t *testing.T) {
	accepted := map[string]DeliveryZone{
		"inside":        ZoneInsideDhaka,
		"Dhaka":         ZoneInsideDhaka,
		"INSIDE_DHAKA":  ZoneInsideDhaka,
		"outside":       ZoneOutsideDhaka,
		"outside_dhaka": ZoneOutsideDhaka,
	}
	for input, want := range accepted {
		got, ok := ParseDeliveryZone(input)
		if !ok || got != want {
			t.Fatalf("ParseDeliveryZone(%q) = %q/%v, want %q", input, got, ok, want)
		}
	}
	if _, ok := ParseDeliveryZone("chittagong"); ok {
		t.Fatalf("expected unknown zone rejected")
	}
}
