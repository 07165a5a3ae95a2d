package checkout

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/taracart/api/internal/domain"
)

const (
	nameMinLen    = 3
	nameMaxLen    = 100
	addressMinLen = 10
	addressMaxLen = 500
)

var stripPolicy = bluemonday.StrictPolicy()

// FieldError reports a single invalid form field. Validation failures abort a
// submission without side effects.
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("checkout: invalid %s: %s", e.Field, e.Message)
}

// SubmitInput is the raw, unvalidated form a storefront client sends.
type SubmitInput struct {
	FullName      string
	Phone         string
	Address       string
	DeliveryZone  string
	PaymentMethod string
}

// ValidateForm normalises and validates the submitted form, returning the
// canonical CheckoutForm or the first field-level error.
func ValidateForm(input SubmitInput) (domain.CheckoutForm, error) {
	name := strings.TrimSpace(input.FullName)
	if len(name) < nameMinLen || len(name) > nameMaxLen {
		return domain.CheckoutForm{}, FieldError{Field: "fullName", Message: "name must be between 3 and 100 characters"}
	}
	if containsMarkup(name) {
		return domain.CheckoutForm{}, FieldError{Field: "fullName", Message: "name contains invalid characters"}
	}

	phone, ok := NormalizePhone(input.Phone)
	if !ok {
		return domain.CheckoutForm{}, FieldError{Field: "phone", Message: "enter a valid 11-digit mobile number starting with 01"}
	}

	address := strings.TrimSpace(input.Address)
	if len(address) < addressMinLen || len(address) > addressMaxLen {
		return domain.CheckoutForm{}, FieldError{Field: "address", Message: "address must be between 10 and 500 characters"}
	}
	if containsMarkup(address) {
		return domain.CheckoutForm{}, FieldError{Field: "address", Message: "address contains invalid characters"}
	}

	zone, ok := domain.ParseDeliveryZone(input.DeliveryZone)
	if !ok {
		return domain.CheckoutForm{}, FieldError{Field: "deliveryZone", Message: "delivery zone must be inside or outside Dhaka"}
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(input.PaymentMethod)))
	if method == "" {
		method = domain.PaymentCOD
	}
	if method != domain.PaymentCOD {
		return domain.CheckoutForm{}, FieldError{Field: "paymentMethod", Message: "unsupported payment method"}
	}

	return domain.CheckoutForm{
		FullName:      name,
		Phone:         phone,
		Address:       address,
		DeliveryZone:  zone,
		PaymentMethod: method,
	}, nil
}

// containsMarkup detects script/markup injection attempts. The strict policy
// strips every tag, so any difference from the original input means markup was
// present.
func containsMarkup(value string) bool {
	if html.UnescapeString(stripPolicy.Sanitize(value)) != value {
		return true
	}
	lowered := strings.ToLower(value)
	for _, pattern := range []string{"javascript:", "data:text/html", "onerror=", "onload="} {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

// ValidateLines rejects submissions with an empty or malformed cart.
func ValidateLines(lines []domain.CartLine) error {
	if len(lines) == 0 {
		return FieldError{Field: "cart", Message: "cart is empty"}
	}
	for _, line := range lines {
		if line.ProductID <= 0 {
			return FieldError{Field: "cart", Message: "cart line is missing a product"}
		}
		if line.Quantity <= 0 {
			return FieldError{Field: "cart", Message: "cart line quantity must be positive"}
		}
	}
	return nil
}
