package services

import (
	"errors"
	"time"

	"badgerland/internal/metrics"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned instead of calling a provider that keeps failing.
var ErrCircuitOpen = errors.New("provider circuit open")

type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
	return c
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger, m *metrics.Metrics) *gobreaker.CircuitBreaker[any] {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: isProviderHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, int(to))
		},
	})
}

// isProviderHealthy keeps client errors (bad request, card declined, missing
// customer) from tripping the breaker. Only outages count.
func isProviderHealthy(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != 429
	}
	return false
}

func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	var zero T
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, ErrCircuitOpen
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}
