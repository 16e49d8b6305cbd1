package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockScreener/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerOptions configures the circuit placed around a provider.
type BreakerOptions struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ConsecutiveFails uint32
}

// DefaultBreakerOptions trips after 5 consecutive failures and probes again after 30s.
func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{MaxRequests: 1, Interval: time.Minute, Timeout: 30 * time.Second, ConsecutiveFails: 5}
}

// BreakerProvider fails fast while the wrapped provider keeps failing.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps p in a circuit breaker.
func WithBreaker(p Provider, opts BreakerOptions) *BreakerProvider {
	fails := opts.ConsecutiveFails
	if fails == 0 {
		fails = 5
	}
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		// unsupported calls and caller cancellation say nothing about provider health;
		// timeouts do count
		IsSuccessful: func(err error) bool {
			var ce *callerCancelled
			return err == nil || errors.Is(err, ErrUnsupported) || errors.As(err, &ce)
		},
	}
	return &BreakerProvider{inner: p, cb: gobreaker.NewCircuitBreaker(settings)}
}

// callerCancelled marks an error returned after the caller cancelled ctx.
type callerCancelled struct{ err error }

func (c *callerCancelled) Error() string { return c.err.Error() }
func (c *callerCancelled) Unwrap() error { return c.err }

// execute runs fn inside the breaker and strips the cancellation marker.
func (b *BreakerProvider) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		v, err := fn()
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return v, &callerCancelled{err: err}
		}
		return v, err
	})
	var ce *callerCancelled
	if errors.As(err, &ce) {
		err = ce.err
	}
	return v, err
}

func (b *BreakerProvider) Name() string { return b.inner.Name() }

// State reports the current breaker state.
func (b *BreakerProvider) State() gobreaker.State { return b.cb.State() }

func (b *BreakerProvider) ListBoard(ctx context.Context, board model.Board) ([]ListingRow, error) {
	v, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.ListBoard(ctx, board)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return v.([]ListingRow), nil
}

func (b *BreakerProvider) DailyBars(ctx context.Context, sym model.Symbol, r model.DateRange, adjust model.AdjustMode) ([]model.DailyBar, error) {
	v, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.DailyBars(ctx, sym, r, adjust)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return v.([]model.DailyBar), nil
}

func (b *BreakerProvider) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", b.inner.Name(), model.ErrProviderUnavailable, err)
	}
	return err
}
