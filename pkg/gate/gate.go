package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrTimedOut is returned when a single attempt outlives the gate timeout.
// The attempt's context is cancelled and any late result is discarded.
var ErrTimedOut = errors.New("request timed out")

// Config controls how outbound calls are shaped
type Config struct {
	// Burst is the token bucket capacity
	Burst int

	// Window is the time in which a full bucket is refilled
	Window time.Duration

	// Timeout bounds each attempt
	Timeout time.Duration

	// Retries is the number of attempts after the first
	Retries int

	// RetryDelay is the base backoff; attempt n waits RetryDelay * 2^n
	RetryDelay time.Duration
}

// DefaultConfig returns the gate settings used for appliance calls
func DefaultConfig() Config {
	return Config{
		Burst:      20,
		Window:     time.Second,
		Timeout:    10 * time.Second,
		Retries:    2,
		RetryDelay: time.Second,
	}
}

// Gate fronts every outbound appliance call with a rate limiter, in-flight
// de-duplication, a per-attempt timeout and retry with exponential backoff.
// A Gate owns all of that state; tests create a fresh one per case.
type Gate struct {
	cfg     Config
	limiter *rate.Limiter
	flight  singleflight.Group
	logger  zerolog.Logger
}

// New creates a gate. Non-positive Burst, Window and Timeout take their
// default.
func New(cfg Config) *Gate {
	defaults := DefaultConfig()
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	return &Gate{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.Burst)), cfg.Burst),
		logger:  log.WithComponent("gate"),
	}
}

// Config returns the effective configuration
func (g *Gate) Config() Config {
	return g.cfg
}

// Acquire blocks until a token is available or ctx is done
func (g *Gate) Acquire(ctx context.Context) error {
	timer := metrics.NewTimer()
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	timer.ObserveDuration(metrics.GateWaitDuration)
	return nil
}

// Do runs fn once rate limited, then retried with a timeout on each attempt.
// Calls that share a non-empty key while one is outstanding receive that
// call's result instead of issuing their own. Mutating calls must pass an
// empty key.
func Do[T any](ctx context.Context, g *Gate, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := g.Acquire(ctx); err != nil {
		return zero, err
	}

	attempt := func(ctx context.Context) (T, error) {
		return Retry(ctx, g.cfg.Retries, g.cfg.RetryDelay, func(ctx context.Context) (T, error) {
			return WithTimeout(ctx, g.cfg.Timeout, fn)
		})
	}

	if key == "" {
		v, err := attempt(ctx)
		record(err)
		return v, err
	}

	executed := false
	ch := g.flight.DoChan(key, func() (any, error) {
		executed = true
		// The shared call outlives any single caller's cancellation
		v, err := attempt(context.WithoutCancel(ctx))
		record(err)
		return v, err
	})

	select {
	case res := <-ch:
		if !executed {
			metrics.GateDedupedTotal.Inc()
			g.logger.Debug().Str("key", keyDigest(key)).Msg("Joined in-flight request")
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// keyDigest identifies a de-dup key in logs without revealing its contents
func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

// Once runs fn a single time, rate limited and bounded by the gate timeout.
// It is used for probes whose failure should be reported immediately.
func Once[T any](ctx context.Context, g *Gate, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := g.Acquire(ctx); err != nil {
		return zero, err
	}
	v, err := WithTimeout(ctx, g.cfg.Timeout, fn)
	record(err)
	return v, err
}

// WithTimeout runs fn and gives up after timeout. A non-positive timeout
// runs fn without a bound.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- result{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrTimedOut, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Retry calls fn until it succeeds, retrying up to retries times. Before
// retry n (counting from 0) it waits delay * 2^n. The last attempt's error
// is returned. Cancellation of ctx stops retrying immediately.
func Retry[T any](ctx context.Context, retries int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if attempt == retries {
			break
		}

		backoff := delay * time.Duration(1<<attempt)
		log.Logger.Debug().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Retrying request")
		metrics.GateRetriesTotal.Inc()

		if err := sleep(ctx, backoff); err != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func record(err error) {
	switch {
	case err == nil:
		metrics.GateCallsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrTimedOut):
		metrics.GateCallsTotal.WithLabelValues("timeout").Inc()
	default:
		metrics.GateCallsTotal.WithLabelValues("error").Inc()
	}
}
