package quota

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Policy is the single rate and retry policy for one external dependency.
type Policy struct {
	// Rate is the sustained number of calls per second; zero disables limiting.
	Rate           float64
	Burst          int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// PerMinute builds a policy from a calls-per-minute budget. The whole
// minute's budget may be spent at once; refill is spread over the minute.
func PerMinute(calls int, retries int, initial, max time.Duration) Policy {
	burst := calls
	if burst < 1 {
		burst = 1
	}
	return Policy{
		Rate:           float64(calls) / 60,
		Burst:          burst,
		MaxRetries:     retries,
		InitialBackoff: initial,
		MaxBackoff:     max,
	}
}

// Guard enforces a Policy at fetch and classification call sites.
type Guard struct {
	limiter *rate.Limiter
	policy  Policy
}

// NewGuard builds a guard; a nil *Guard allows everything and never retries.
func NewGuard(p Policy) *Guard {
	limit := rate.Inf
	if p.Rate > 0 {
		limit = rate.Limit(p.Rate)
	}
	burst := p.Burst
	if burst < 1 {
		burst = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return &Guard{limiter: rate.NewLimiter(limit, burst), policy: p}
}

// Wait blocks until a call is allowed or ctx ends.
func (g *Guard) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// Allow takes a token without blocking. Callers that must not queue behind
// the limit (the classifier) treat false as a rate-limit signal.
func (g *Guard) Allow() bool {
	if g == nil {
		return true
	}
	return g.limiter.Allow()
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op once plus up to MaxRetries more times with exponential
// backoff. Errors wrapped with Permanent stop immediately and are returned
// unwrapped.
func (g *Guard) Retry(ctx context.Context, op func() error) error {
	if g == nil {
		return unwrapPermanent(op())
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.policy.InitialBackoff
	policy.MaxInterval = g.policy.MaxBackoff
	policy.MaxElapsedTime = 0

	retries := g.policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	return unwrapPermanent(backoff.Retry(op, b))
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
