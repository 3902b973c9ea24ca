package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerMinuteAllowsBurstThenBlocks(t *testing.T) {
	now := time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)
	l := PerMinute(5)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("10.0.0.1|cashier"), "attempt %d", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1|cashier"))
	assert.True(t, l.Allow("10.0.0.2|cashier"), "keys are independent")

	now = now.Add(13 * time.Second)
	assert.True(t, l.Allow("10.0.0.1|cashier"), "one token refills every 12s")
	assert.False(t, l.Allow("10.0.0.1|cashier"))
}

func TestResetClearsKey(t *testing.T) {
	l := PerMinute(1)
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
	l.Reset("k")
	assert.True(t, l.Allow("k"))
}

func TestSweepDropsIdleKeys(t *testing.T) {
	now := time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)
	l := PerMinute(3)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(11 * time.Minute)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Sweep())
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow("anything"))
	assert.Equal(t, 0, l.Sweep())
}
