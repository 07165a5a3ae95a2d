// Package risk decides whether a phone identifier may place an order based on
// historical delivery success across courier partners.
package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taracart/api/internal/platform/cache"
	"github.com/taracart/api/internal/platform/observability"
)

const (
	defaultVerdictTTL = 5 * time.Minute

	// Accept thresholds per history volume tier.
	smallHistoryMaxParcels = 3
	smallHistoryMinRate    = 30.0
	largeHistoryMinRate    = 50.0
)

// Verdict is the accept/reject decision for one phone identifier.
type Verdict struct {
	Allowed     bool
	Reason      string
	Totals      *Totals
	SuccessRate float64
}

// ServiceDeps wires the dependencies required by the risk service.
type ServiceDeps struct {
	History        HistoryClient
	Cache          *cache.Cache[Verdict]
	BypassSuffixes []string
	FailOpen       bool
	VerdictTTL     time.Duration
	Logger         *zap.Logger
	Clock          func() time.Time
}

// Service computes and caches risk verdicts. It has no side effects beyond its
// cache; it never mutates the remote order or cart.
type Service struct {
	history        HistoryClient
	cache          *cache.Cache[Verdict]
	bypassSuffixes []string
	failOpen       bool
	verdictTTL     time.Duration
	logger         *zap.Logger
}

// NewService constructs a Service validating required dependencies.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.History == nil {
		return nil, fmt.Errorf("risk service: history client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.VerdictTTL
	if ttl <= 0 {
		ttl = defaultVerdictTTL
	}
	return &Service{
		history:        deps.History,
		cache:          deps.Cache,
		bypassSuffixes: deps.BypassSuffixes,
		failOpen:       deps.FailOpen,
		verdictTTL:     ttl,
		logger:         logger,
	}, nil
}

// Verify returns the accept/reject verdict for a normalised phone number.
//
// Order of evaluation: bypass allow-list, cached verdict, external history.
// Bypass and fail-open verdicts are never cached; only computed verdicts are.
func (s *Service) Verify(ctx context.Context, phone string) Verdict {
	phone = strings.TrimSpace(phone)

	for _, suffix := range s.bypassSuffixes {
		if suffix != "" && strings.HasSuffix(phone, suffix) {
			return Verdict{Allowed: true, Reason: "Verified account"}
		}
	}

	if s.cache != nil {
		if verdict, ok := s.cache.Get(phone); ok {
			return verdict
		}
	}

	history, err := s.history.FetchHistory(ctx, phone)
	if err != nil {
		s.logger.Warn("risk: history lookup failed",
			zap.String("phone", observability.SanitizePhone(phone)),
			zap.Bool("fail_open", s.failOpen),
			zap.Error(err),
		)
		if s.failOpen {
			return Verdict{Allowed: true, Reason: "Verification service unavailable; order permitted"}
		}
		return Verdict{Allowed: false, Reason: "Verification service unavailable; please try again later"}
	}

	verdict := Decide(Aggregate(history))
	if s.cache != nil {
		s.cache.Set(phone, verdict, s.verdictTTL)
	}
	return verdict
}

// Decide applies the tiered accept/reject policy to aggregated totals.
func Decide(totals Totals) Verdict {
	rate := successRate(totals)
	verdict := Verdict{
		Totals:      &totals,
		SuccessRate: rate,
	}

	switch {
	case totals.TotalParcels == 0:
		verdict.Allowed = true
		verdict.Reason = "New customer"
	case totals.TotalParcels <= smallHistoryMaxParcels:
		if rate >= smallHistoryMinRate {
			verdict.Allowed = true
			verdict.Reason = fmt.Sprintf("Delivery success rate %.0f%%", rate)
		} else {
			verdict.Reason = fmt.Sprintf("Delivery success rate %.0f%% is below the required 30%%", rate)
		}
	default:
		if rate >= largeHistoryMinRate {
			verdict.Allowed = true
			verdict.Reason = fmt.Sprintf("Delivery success rate %.0f%%", rate)
		} else {
			verdict.Reason = fmt.Sprintf("Order declined due to repeated cancellations (success rate %.0f%%, required 50%%)", rate)
		}
	}
	return verdict
}

// successRate is delivered/total as a percentage; no history means fully
// trusted, so an empty record scores 100.
func successRate(totals Totals) float64 {
	if totals.TotalParcels == 0 {
		return 100
	}
	return float64(totals.TotalDelivered) / float64(totals.TotalParcels) * 100
}
