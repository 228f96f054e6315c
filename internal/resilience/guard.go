package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Guard composes the three protections every outbound call goes through:
// a rate limiter, a circuit breaker and retry with backoff. The limiter is
// waited on before each attempt, and the breaker sees every attempt.
type Guard struct {
	Service string
	Limiter *rate.Limiter
	Breaker *CircuitBreaker
	Retry   RetryConfig
}

// NewGuard builds a guard for service. ratePerSecond <= 0 disables limiting.
// A nil breakers registry disables circuit breaking.
func NewGuard(service string, ratePerSecond float64, breakers *ServiceBreakers, retry RetryConfig) *Guard {
	g := &Guard{Service: service, Retry: retry}
	if ratePerSecond > 0 {
		g.Limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	if breakers != nil {
		g.Breaker = breakers.Get(service)
	}
	return g
}

// Call runs fn under the guard.
func (g *Guard) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := CallVal(ctx, g, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CallVal runs fn under g and returns its value. A nil guard calls fn directly.
func CallVal[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}

	retry := g.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(g.Service, op)
	}
	if retry.ShouldRetry == nil {
		// An open circuit will not close within a backoff window.
		retry.ShouldRetry = func(err error) bool {
			return !eris.Is(err, ErrCircuitOpen) && IsTransient(err)
		}
	}

	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		var zero T
		if g.Limiter != nil {
			if err := g.Limiter.Wait(ctx); err != nil {
				return zero, eris.Wrapf(err, "%s: rate limit wait", g.Service)
			}
		}
		if g.Breaker == nil {
			return fn(ctx)
		}
		val, err := ExecuteVal(ctx, g.Breaker, fn)
		if eris.Is(err, ErrCircuitOpen) {
			zap.L().Debug("circuit open, skipping call",
				zap.String("service", g.Service),
				zap.String("operation", op),
			)
		}
		return val, err
	})
}
