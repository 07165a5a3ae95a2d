package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Amount is a monetary value in poisha (1/100 BDT). The remote commerce API
// exchanges decimal strings; amounts are converted at the boundary so totals
// arithmetic stays integral.
type Amount int64

// ParseAmount converts a decimal string such as "580" or "580.50" to an Amount.
func ParseAmount(value string) (Amount, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(trimmed, "৳")
	trimmed = strings.ReplaceAll(trimmed, ",", "")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return 0, fmt.Errorf("amount: empty value")
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("amount: parse %q: %w", value, err)
	}
	return Amount(math.Round(parsed * 100)), nil
}

// FromTaka builds an Amount from whole BDT.
func FromTaka(taka int64) Amount {
	return Amount(taka * 100)
}

// Taka returns the amount in BDT as a float for analytics payloads.
func (a Amount) Taka() float64 {
	return float64(a) / 100
}

// String renders the amount as a plain decimal, e.g. "580" or "580.50".
func (a Amount) String() string {
	if a%100 == 0 {
		return strconv.FormatInt(int64(a)/100, 10)
	}
	return strconv.FormatFloat(a.Taka(), 'f', 2, 64)
}

var bengaliPrinter = message.NewPrinter(language.MustParse("bn-BD"))

// DisplayBDT renders the amount with the taka sign and locale digit grouping
// for receipts and delivery labels.
func (a Amount) DisplayBDT() string {
	if a%100 == 0 {
		return bengaliPrinter.Sprintf("৳%d", int64(a)/100)
	}
	return bengaliPrinter.Sprintf("৳%.2f", a.Taka())
}
