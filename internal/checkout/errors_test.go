package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/taracart/api/internal/commerce"
)

func TestUserMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "field error passes through",
			err:  FieldError{Field: "phone", Message: "Please enter a valid Bangladeshi phone number"},
			want: "Please enter a valid Bangladeshi phone number",
		},
		{
			name: "rate limited",
			err:  ErrSubmitRateLimited,
			want: "Too many attempts. Please wait a few minutes before trying again.",
		},
		{
			name: "in progress",
			err:  ErrSubmitInProgress,
			want: "Your order is already being processed. Please wait.",
		},
		{
			name: "timeout",
			err:  fmt.Errorf("place order: %w", context.DeadlineExceeded),
			want: "The order is taking longer than expected. Please check your connection and try again.",
		},
		{
			name: "session expired",
			err:  commerce.ErrSessionRequired,
			want: "Your shopping session expired. Please refresh the page and try again.",
		},
		{
			name: "cart rejected",
			err:  commerce.ErrCartRejected,
			want: "We could not update your cart. Please review the items and try again.",
		},
		{
			name: "order rejected",
			err:  commerce.ErrOrderRejected,
			want: "The payment step could not be completed. Please try again or choose another method.",
		},
		{
			name: "transport",
			err:  fmt.Errorf("%w: dial tcp", commerce.ErrTransport),
			want: "A network problem interrupted your order. Please check your connection and try again.",
		},
		{
			name: "network substring",
			err:  errors.New("dial tcp 10.0.0.1:443: connection refused"),
			want: "A network problem interrupted your order. Please check your connection and try again.",
		},
		{
			name: "incomplete order",
			err:  ErrOrderIncomplete,
			want: "We could not confirm your order. If money was deducted, please contact support.",
		},
		{
			name: "placement failed",
			err:  fmt.Errorf("%w: after retry", ErrPlacementFailed),
			want: "We could not confirm your order. If money was deducted, please contact support.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UserMessage(tc.err); got != tc.want {
				t.Fatalf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestUserMessageFallback(t *testing.T) {
	got := UserMessage(errors.New("unexpected internal failure"))
	if !strings.Contains(got, "contact support") {
		t.Fatalf("expected contact-support fallback, got %q", got)
	}
}
