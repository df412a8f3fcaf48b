package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowRejectsTwentyFirstWithinMinute(t *testing.T) {
	w := NewWindow(20, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < 20; i++ {
		// 21 messages inside 10 seconds
		assert.True(t, w.Allow("u1", start.Add(time.Duration(i)*450*time.Millisecond)), "message %d", i+1)
	}
	assert.False(t, w.Allow("u1", start.Add(9*time.Second)))
	assert.True(t, w.Allow("u2", start.Add(9*time.Second)), "limits are per user")
}

func TestWindowSlides(t *testing.T) {
	w := NewWindow(2, time.Minute)
	t0 := time.Unix(1_700_000_000, 0)
	assert.True(t, w.Allow("u", t0))
	assert.True(t, w.Allow("u", t0.Add(30*time.Second)))
	assert.False(t, w.Allow("u", t0.Add(59*time.Second)))
	// first hit leaves the window; rejected attempts were not recorded
	assert.True(t, w.Allow("u", t0.Add(61*time.Second)))
	assert.False(t, w.Allow("u", t0.Add(62*time.Second)))
}

func TestWindowPrune(t *testing.T) {
	w := NewWindow(5, time.Minute)
	t0 := time.Unix(1_700_000_000, 0)
	w.Allow("old", t0)
	w.Allow("fresh", t0.Add(50*time.Second))
	assert.Equal(t, 2, w.Size())
	w.Prune(t0.Add(90 * time.Second))
	assert.Equal(t, 1, w.Size())
}
