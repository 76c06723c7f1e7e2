package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate limiter for one explorer API. Blockscout
// deployments enforce per-source request budgets; exceeding them turns into
// widespread 429s, so every request waits here first.
type Limiter struct {
	limiter   *rate.Limiter
	originKey string
}

// NewLimiter creates a limiter allowing rps requests per second with a burst
// capacity of burst tokens, labeled with the network's origin key.
func NewLimiter(rps float64, burst int, originKey string) *Limiter {
	return &Limiter{
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		originKey: originKey,
	}
}

// Wait blocks until the limiter allows one event, or ctx is done.
// Uses Reserve() to guarantee exactly one token is consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.ExplorerRateLimitWaits.WithLabelValues(l.originKey).Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}
