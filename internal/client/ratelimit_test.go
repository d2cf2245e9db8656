package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the rate window deterministically. Sleeping advances
// the clock instead of blocking.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.current = c.current.Add(d)
}

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestWindow(clock *fakeClock) *rateWindow {
	w := newRateWindow(rateLimit, rateWindowLength)
	w.now = clock.now
	w.sleep = clock.sleep
	return w
}

func TestRateWindowUnderLimitProceedsImmediately(t *testing.T) {
	clock := newFakeClock()
	w := newTestWindow(clock)

	for i := 0; i < 49; i++ {
		w.reserve()
		clock.advance(10 * time.Millisecond)
	}
	w.reserve()

	assert.Empty(t, clock.slept, "no call should have blocked")
	assert.Equal(t, 50, w.pending())
}

func TestRateWindowBlocksAtLimit(t *testing.T) {
	clock := newFakeClock()
	w := newTestWindow(clock)

	first := clock.now()
	for i := 0; i < 50; i++ {
		w.reserve()
		clock.advance(100 * time.Millisecond)
	}
	require.Empty(t, clock.slept)

	// 51st call: the window is full, so it must wait until the oldest
	// timestamp ages past the window.
	w.reserve()

	require.Len(t, clock.slept, 1)
	elapsed := clock.now().Sub(first)
	assert.GreaterOrEqual(t, elapsed, rateWindowLength)
	// After sleeping, the oldest slot has aged out and the new one is in.
	assert.LessOrEqual(t, w.pending(), rateLimit)
}

func TestRateWindowPrunesAgedSlots(t *testing.T) {
	clock := newFakeClock()
	w := newTestWindow(clock)

	for i := 0; i < 50; i++ {
		w.reserve()
	}
	clock.advance(rateWindowLength + time.Second)

	w.reserve()
	assert.Empty(t, clock.slept, "an aged-out window must not block")
	assert.Equal(t, 1, w.pending())
}
