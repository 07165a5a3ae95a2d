package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/taracart/api/internal/commerce"
)

var (
	// ErrSubmitRateLimited indicates too many submissions from one session.
	ErrSubmitRateLimited = errors.New("checkout: too many submission attempts")
	// ErrSubmitInProgress indicates a concurrent submission for the session.
	ErrSubmitInProgress = errors.New("checkout: submission already in progress")
	// ErrRiskRejected indicates the risk service blocked the order.
	ErrRiskRejected = errors.New("checkout: order blocked by risk verification")
	// ErrOrderIncomplete indicates a 200-level response without a valid order.
	ErrOrderIncomplete = errors.New("checkout: order response incomplete")
	// ErrPlacementFailed indicates order placement failed after retries.
	ErrPlacementFailed = errors.New("checkout: order placement failed")
)

// UserMessage maps a submission failure to the message shown to the customer.
// Unrecognised errors fall back to a generic contact-support message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var fieldErr FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Message
	}

	switch {
	case errors.Is(err, ErrSubmitRateLimited):
		return "Too many attempts. Please wait a few minutes before trying again."
	case errors.Is(err, ErrSubmitInProgress):
		return "Your order is already being processed. Please wait."
	case errors.Is(err, context.DeadlineExceeded):
		return "The order is taking longer than expected. Please check your connection and try again."
	case errors.Is(err, commerce.ErrSessionRequired):
		return "Your shopping session expired. Please refresh the page and try again."
	case errors.Is(err, commerce.ErrCartRejected):
		return "We could not update your cart. Please review the items and try again."
	case errors.Is(err, commerce.ErrOrderRejected):
		return "The payment step could not be completed. Please try again or choose another method."
	case errors.Is(err, commerce.ErrTransport), isNetworkMessage(err):
		return "A network problem interrupted your order. Please check your connection and try again."
	case errors.Is(err, ErrOrderIncomplete), errors.Is(err, ErrPlacementFailed):
		return "We could not confirm your order. If money was deducted, please contact support."
	default:
		return "Something went wrong while placing your order. Please contact support."
	}
}

func isNetworkMessage(err error) bool {
	message := strings.ToLower(err.Error())
	for _, fragment := range []string{"network", "connection refused", "no such host", "broken pipe"} {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}
