package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_RunsProbesConcurrently(t *testing.T) {
	slow := func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	start := time.Now()
	results, err := Health(context.Background(),
		Probe{Name: "database", Check: slow},
		Probe{Name: "web", Check: slow},
		Probe{Name: "api", Check: slow},
	)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Less(t, elapsed, 140*time.Millisecond)
	assert.True(t, Healthy(results))
}

func TestHealth_ReportsFailuresInOrder(t *testing.T) {
	results, err := Health(context.Background(),
		Probe{Name: "database", Check: func(context.Context) error { return errors.New("connection refused") }},
		Probe{Name: "web", Check: func(context.Context) error { return nil }},
	)

	require.NoError(t, err)
	assert.Equal(t, "database", results[0].Name)
	assert.False(t, results[0].OK)
	assert.Equal(t, "connection refused", results[0].Error)
	assert.Equal(t, "web", results[1].Name)
	assert.True(t, results[1].OK)
	assert.Empty(t, results[1].Error)
	assert.False(t, Healthy(results))
}

func TestHealth_RequiresProbes(t *testing.T) {
	_, err := Health(context.Background())

	assert.ErrorIs(t, err, ErrNoProbes)
}
