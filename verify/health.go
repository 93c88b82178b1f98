package verify

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoProbes is returned by Health when called without probes.
var ErrNoProbes = errors.New("no probes to run")

// Probe is a named one-shot check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// ProbeResult is the outcome of one Probe.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Health runs all probes concurrently and returns their results in the
// order given. A failing probe does not cancel the others.
func Health(ctx context.Context, probes ...Probe) ([]ProbeResult, error) {
	if len(probes) == 0 {
		return nil, ErrNoProbes
	}

	results := make([]ProbeResult, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			start := time.Now()
			err := p.Check(ctx)
			results[i] = ProbeResult{
				Name:      p.Name,
				OK:        err == nil,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

// Healthy reports whether every result is OK.
func Healthy(results []ProbeResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}
