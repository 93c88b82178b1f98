// Package verify checks that a bootstrapped GLPI instance answers on the web
// and, when API tokens are configured, on its REST API.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/getpup/glpi-bootstrap"
	"github.com/getpup/glpi-bootstrap/glpi/api"
)

// ErrNoProfiles indicates the API user has no profile, so it cannot act on
// the instance even though the session opened.
var ErrNoProfiles = errors.New("API user has no profile")

// Config configures a Checker.
type Config struct {
	// URL is the web root to poll (default: "http://localhost:8000/").
	URL string

	// HTTPClient performs the requests (default: client with a 10s timeout
	// that does not follow redirects).
	HTTPClient *http.Client

	// API, when set, is used by CheckAPI to open and close a session.
	API *api.Client

	// InitialDelay is the pause after the first failed request (default: 1s).
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff (default: 10s).
	MaxDelay time.Duration

	// Timeout bounds WaitHTTP (default: 2m).
	Timeout time.Duration

	// Clock is the time source (default: wall clock).
	Clock clock.Clock

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Checker verifies a deployment from the outside.
type Checker struct {
	config Config
}

// New creates a Checker, applying defaults for zero-valued fields.
func New(cfg Config) *Checker {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8000/"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
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

	return &Checker{config: cfg}
}

// StatusError reports a web root that answered with something other than 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned %d", e.URL, e.StatusCode)
}

// CheckHTTP makes one request to the web root and succeeds only on HTTP 200.
func (c *Checker) CheckHTTP(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: c.config.URL, StatusCode: resp.StatusCode}
	}
	return nil
}

// WaitHTTP polls the web root until it returns HTTP 200. Exhaustion yields a
// *bootstrap.NotReadyError; cancellation returns the context error.
func (c *Checker) WaitHTTP(ctx context.Context) (int, error) {
	start := c.config.Clock.Now()
	attempts := 0
	var last error

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			last = c.CheckHTTP(ctx)
			return last
		},
		IsFatalError: func(error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			if c.config.Logger != nil {
				c.config.Logger.Debug(ctx, "web root not ready", "attempt", attempt, "error", err)
			}
		},
		Attempts:    -1,
		Delay:       c.config.InitialDelay,
		MaxDelay:    c.config.MaxDelay,
		MaxDuration: c.config.Timeout,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.config.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		if c.config.Logger != nil {
			c.config.Logger.Info(ctx, "web root ready", "url", c.config.URL, "attempts", attempts)
		}
		return attempts, nil
	}
	if ctx.Err() != nil {
		return attempts, ctx.Err()
	}

	return attempts, &bootstrap.NotReadyError{
		Attempts: attempts,
		Elapsed:  c.config.Clock.Now().Sub(start),
		Last:     last,
	}
}

// CheckAPI opens a REST session, reads the GLPI configuration, requires the
// user to hold at least one profile and closes the session. It is a no-op
// when no API client is configured.
func (c *Checker) CheckAPI(ctx context.Context) error {
	if c.config.API == nil {
		if c.config.Logger != nil {
			c.config.Logger.Debug(ctx, "API check skipped, no tokens configured")
		}
		return nil
	}

	return c.config.API.WithSession(ctx, func(token string) error {
		cfg, err := c.config.API.GetGlpiConfig(ctx, token)
		if err != nil {
			return err
		}
		profiles, err := c.config.API.GetMyProfiles(ctx, token)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			return ErrNoProfiles
		}
		if c.config.Logger != nil {
			c.config.Logger.Info(ctx, "GLPI API answered", "version", cfg["version"], "profiles", len(profiles))
		}
		return nil
	})
}

// Verify waits for the web root and then checks the API.
func (c *Checker) Verify(ctx context.Context) error {
	if _, err := c.WaitHTTP(ctx); err != nil {
		return fmt.Errorf("failed to reach web root: %w", err)
	}
	if err := c.CheckAPI(ctx); err != nil {
		return fmt.Errorf("failed to verify REST API: %w", err)
	}
	return nil
}
