package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"x402-gateway/clock"
)

var (
	testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	errBoom   = errors.New("boom")
)

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestOpensAfterThreshold(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	b := New(3, 30*time.Second, clk)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(failing), errBoom)
		assert.Equal(t, Closed, b.State())
	}
	assert.ErrorIs(t, b.Execute(failing), errBoom)
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 3, b.Failures())
}

func TestOpenFailsFastWithoutInvoking(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	b := New(1, 30*time.Second, clk)
	b.Execute(failing)

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "open breaker must not invoke the call")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	b := New(3, 30*time.Second, clk)

	b.Execute(failing)
	b.Execute(failing)
	assert.NoError(t, b.Execute(succeeding))
	assert.Zero(t, b.Failures())

	// Counting starts over; two more failures don't trip it.
	b.Execute(failing)
	b.Execute(failing)
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenProbeSuccessCloses(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	b := New(1, 30*time.Second, clk)
	b.Execute(failing)
	assert.Equal(t, Open, b.State())

	clk.Advance(30 * time.Second)
	assert.NoError(t, b.Execute(succeeding))
	assert.Equal(t, Closed, b.State())
	assert.Zero(t, b.Failures())
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	b := New(1, 30*time.Second, clk)
	b.Execute(failing)

	clk.Advance(30 * time.Second)
	assert.ErrorIs(t, b.Execute(failing), errBoom)
	assert.Equal(t, Open, b.State())

	// The cool-down clock restarted at the probe failure.
	clk.Advance(29 * time.Second)
	assert.ErrorIs(t, b.Execute(succeeding), ErrOpen)
	clk.Advance(time.Second)
	assert.NoError(t, b.Execute(succeeding))
}

func TestSingleProbeInHalfOpen(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	b := New(1, 30*time.Second, clk)
	b.Execute(failing)
	clk.Advance(30 * time.Second)

	probeDone := make(chan struct{})
	release := make(chan struct{})
	go func() {
		defer close(probeDone)
		b.Execute(func() error {
			<-release
			return nil
		})
	}()

	// Wait until the probe is in flight, then everyone else fails fast.
	assert.Eventually(t, func() bool { return b.State() == HalfOpen }, time.Second, time.Millisecond)
	assert.ErrorIs(t, b.Execute(succeeding), ErrOpen)

	close(release)
	<-probeDone
	assert.Equal(t, Closed, b.State())
}

func TestReset(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	b := New(1, 30*time.Second, clk)
	b.Execute(failing)
	assert.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())
	assert.Zero(t, b.Failures())
	assert.True(t, b.LastFailureAt().IsZero())
	assert.NoError(t, b.Execute(succeeding))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
}
