package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/glpi-bootstrap"
)

var errRefused = errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")

type fakeProber struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeProber) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errRefused
	}
	return nil
}

func (f *fakeProber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastWaiter(p Prober, timeout time.Duration) *Waiter {
	return NewWaiter(WaitConfig{
		Prober:       p,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Timeout:      timeout,
	})
}

func TestNewWaiter_AppliesDefaults(t *testing.T) {
	w := NewWaiter(WaitConfig{})

	assert.Equal(t, 1*time.Second, w.config.InitialDelay)
	assert.Equal(t, 10*time.Second, w.config.MaxDelay)
	assert.Equal(t, 2*time.Minute, w.config.Timeout)
	assert.Equal(t, clock.WallClock, w.config.Clock)
}

func TestNewWaiter_MaxDelayNeverBelowInitialDelay(t *testing.T) {
	w := NewWaiter(WaitConfig{InitialDelay: 5 * time.Second, MaxDelay: time.Second})

	assert.Equal(t, 5*time.Second, w.config.MaxDelay)
}

func TestWait_ReturnsAfterFirstSuccess(t *testing.T) {
	prober := &fakeProber{}

	attempts, err := fastWaiter(prober, time.Second).Wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, prober.Calls())
}

func TestWait_RetriesUntilProbeSucceeds(t *testing.T) {
	prober := &fakeProber{failures: 3}

	attempts, err := fastWaiter(prober, 5*time.Second).Wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, prober.Calls(), "must not return before a probe succeeds")
}

func TestWait_TimeoutReturnsNotReadyError(t *testing.T) {
	prober := &fakeProber{failures: 1 << 30}

	attempts, err := fastWaiter(prober, 30*time.Millisecond).Wait(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, bootstrap.ErrDeploymentNotReady)
	assert.ErrorIs(t, err, errRefused)

	var notReady *bootstrap.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, attempts, notReady.Attempts)
	assert.GreaterOrEqual(t, attempts, 2)
	assert.Equal(t, attempts, prober.Calls())
}

func TestWait_ContextCancellation(t *testing.T) {
	prober := &fakeProber{failures: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := NewWaiter(WaitConfig{
			Prober:       prober,
			InitialDelay: 10 * time.Millisecond,
			Timeout:      time.Minute,
		}).Wait(ctx)
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, bootstrap.ErrDeploymentNotReady)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return promptly after context cancellation")
	}
}

func TestWait_ReportsEveryAttempt(t *testing.T) {
	prober := &fakeProber{failures: 2}
	var seen []error

	w := NewWaiter(WaitConfig{
		Prober:       prober,
		InitialDelay: time.Millisecond,
		Timeout:      time.Second,
		OnAttempt: func(attempt int, err error) {
			seen = append(seen, err)
		},
	})

	_, err := w.Wait(context.Background())
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.ErrorIs(t, seen[0], errRefused)
	assert.ErrorIs(t, seen[1], errRefused)
	assert.NoError(t, seen[2])
}

func TestWait_RequiresProber(t *testing.T) {
	_, err := NewWaiter(WaitConfig{}).Wait(context.Background())

	assert.Error(t, err)
}
