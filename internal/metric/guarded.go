package metric

import (
	"context"
	"time"

	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Guarded bounds the request rate to an upstream provider and retries its
// transient failures with exponential backoff.
type Guarded struct {
	next        Provider
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

type GuardOptions struct {
	RatePerSecond  float64
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewGuarded(next Provider, opts GuardOptions) *Guarded {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	burst := int(opts.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Guarded{
		next:        next,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.InitialBackoff,
		maxBackoff:  opts.MaxBackoff,
	}
}

func (g *Guarded) GetValue(ctx context.Context, metricType Type, scope Scope, window Range) (decimal.Decimal, error) {
	log := config.WithContext(ctx).WithFields(logrus.Fields{
		"metric_type": metricType,
		"scope":       scope.String(),
	})

	delay := g.backoff
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return decimal.Zero, lastErr
			}
			return decimal.Zero, err
		}

		value, err := g.next.GetValue(ctx, metricType, scope, window)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt == g.maxAttempts {
			break
		}

		log.WithError(err).WithField("attempt", attempt).Warn("Transient metric provider failure, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return decimal.Zero, lastErr
		case <-timer.C:
		}

		delay *= 2
		if delay > g.maxBackoff {
			delay = g.maxBackoff
		}
	}

	return decimal.Zero, lastErr
}
