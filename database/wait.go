package database

import (
	"context"
	"errors"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/getpup/glpi-bootstrap"
)

// WaitConfig configures a Waiter.
type WaitConfig struct {
	// Prober checks the server (required).
	Prober Prober

	// InitialDelay is the pause after the first failed probe (default: 1s).
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff (default: 10s).
	MaxDelay time.Duration

	// Timeout bounds the whole wait (default: 2m).
	Timeout time.Duration

	// Clock is the time source (default: wall clock).
	Clock clock.Clock

	// Logger is an optional logger for observability.
	Logger es.Logger

	// OnAttempt, when set, is called after every probe with its result.
	OnAttempt func(attempt int, err error)
}

// Waiter blocks until the database accepts connections.
type Waiter struct {
	config WaitConfig
}

// NewWaiter creates a Waiter, applying defaults for zero-valued fields.
func NewWaiter(cfg WaitConfig) *Waiter {
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 1 * time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	return &Waiter{config: cfg}
}

// Wait probes until one probe succeeds, doubling the delay between attempts
// up to MaxDelay. It returns the number of probes made.
//
// When Timeout elapses first the error is a *bootstrap.NotReadyError carrying
// the last probe error. When ctx is cancelled the context error is returned.
func (w *Waiter) Wait(ctx context.Context) (int, error) {
	if w.config.Prober == nil {
		return 0, errors.New("prober is required")
	}

	start := w.config.Clock.Now()
	attempts := 0
	var last error

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			last = w.config.Prober.Probe(ctx)
			if w.config.OnAttempt != nil {
				w.config.OnAttempt(attempts, last)
			}
			return last
		},
		IsFatalError: func(error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			if w.config.Logger != nil {
				w.config.Logger.Debug(ctx, "database not ready", "attempt", attempt, "error", err)
			}
		},
		Attempts:    -1,
		Delay:       w.config.InitialDelay,
		MaxDelay:    w.config.MaxDelay,
		MaxDuration: w.config.Timeout,
		BackoffFunc: retry.DoubleDelay,
		Clock:       w.config.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		if w.config.Logger != nil {
			w.config.Logger.Info(ctx, "database ready", "attempts", attempts,
				"elapsed", w.config.Clock.Now().Sub(start).Round(time.Millisecond))
		}
		return attempts, nil
	}

	if ctx.Err() != nil {
		return attempts, ctx.Err()
	}

	return attempts, &bootstrap.NotReadyError{
		Attempts: attempts,
		Elapsed:  w.config.Clock.Now().Sub(start),
		Last:     last,
	}
}
