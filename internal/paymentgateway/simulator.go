package paymentgateway

import (
	"math/rand"
	"sync"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	paymentgatewaytypes "github.com/frahmantamala/isp-billing/internal/core/datamodel/paymentgateway"
)

// RandomOutcome simulates the mobile-money gateway: each draw succeeds with
// probability SuccessRate.
type RandomOutcome struct {
	SuccessRate   float64
	FailureReason string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomOutcome seeds from the clock when src is nil.
func NewRandomOutcome(successRate float64, failureReason string, src rand.Source) *RandomOutcome {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if failureReason == "" {
		failureReason = internal.DefaultFailureReason
	}
	return &RandomOutcome{
		SuccessRate:   successRate,
		FailureReason: failureReason,
		rng:           rand.New(src),
	}
}

func (r *RandomOutcome) Draw(job paymentgatewaytypes.SettlementJob) paymentgatewaytypes.Outcome {
	r.mu.Lock()
	roll := r.rng.Float64()
	r.mu.Unlock()

	if roll < r.SuccessRate {
		return paymentgatewaytypes.Outcome{Status: paymentgatewaytypes.OutcomeSuccess}
	}
	return paymentgatewaytypes.Outcome{
		Status:        paymentgatewaytypes.OutcomeFailed,
		FailureReason: r.FailureReason,
	}
}
