package client

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// reconnectPolicy hands out deterministic exponential delays for one outage,
// bounded by an attempt count.
type reconnectPolicy struct {
	backoff     *backoff.ExponentialBackOff
	maxAttempts int
	attempts    int
}

func newReconnectPolicy(cfg Config) *reconnectPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectBaseDelay
	b.Multiplier = cfg.ReconnectMultiplier
	b.MaxInterval = cfg.ReconnectMaxDelay
	b.RandomizationFactor = 0
	b.Reset()
	return &reconnectPolicy{backoff: b, maxAttempts: cfg.MaxReconnectAttempts}
}

// next returns the wait before the next attempt, or false once the attempts
// are spent.
func (p *reconnectPolicy) next() (time.Duration, bool) {
	if p.attempts >= p.maxAttempts {
		return 0, false
	}
	p.attempts++
	return min(p.backoff.NextBackOff(), p.backoff.MaxInterval), true
}

func (p *reconnectPolicy) reset() {
	p.attempts = 0
	p.backoff.Reset()
}
