package forecast

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResetDisplay(t *testing.T) {
	loc := newYork(t)
	resetsAt := at(loc, 2026, 1, 17, 21, 5)

	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"already reset", 0, "resetting..."},
		{"negative", -30, "resetting..."},
		{"minutes only", 59*60 + 59, "resets in 0h 59m"},
		{"hours and minutes", 3*3600 + 7*60 + 20, "resets in 3h 7m"},
		{"just under a day", 24*3600 - 1, "resets in 23h 59m"},
		{"exactly a day", 24 * 3600, "resets Sat 9:05 PM"},
		{"days away", 48*3600 + 5*60, "resets Sat 9:05 PM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResetDisplay(tt.seconds, resetsAt, loc))
		})
	}
}

func TestResetDisplay_MorningHasNoPadding(t *testing.T) {
	loc := newYork(t)
	got := ResetDisplay(72*3600, at(loc, 2026, 1, 19, 9, 0), loc)
	assert.Equal(t, "resets Mon 9:00 AM", got)
}

func TestGapDisplay(t *testing.T) {
	tests := []struct {
		name        string
		utilization float64
		projected   float64
		remaining   time.Duration
		want        string
	}{
		{"not projected over", 80, 100, 5 * time.Hour, ""},
		{"no online time left", 99, 150, 0, ""},
		{"worked example", 96, 112, 2 * time.Hour, "1h 30m gap"},
		{"already saturated", 100, 130, 3*time.Hour + 20*time.Minute, "3h 20m gap"},
		{"over saturated", 120, 180, 45 * time.Minute, "45m gap"},
		{"rounds minutes up", 50, 150, 122 * time.Second, "2m gap"},
		{"tiny gap floors to a minute", 99.99, 100.0001, time.Minute, "1m gap"},
		{"carries full hour", 0, 101, 101*time.Hour - 101*time.Second, "1h 0m gap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GapDisplay(tt.utilization, tt.projected, tt.remaining))
		})
	}
}

// Independent check of the lock-out formula: moving linearly from
// utilization now to projected at reset, usage must sit exactly at 100 when
// the gap begins.
func TestLockoutSeconds_CrossesHundredAtGapStart(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		utilization := r.Float64() * 99.9
		projected := 100 + r.Float64()*300 + 1e-6
		remaining := 60 + r.Float64()*7*24*3600

		gap := lockoutSeconds(utilization, projected, remaining)
		crossing := remaining - gap
		level := utilization + (projected-utilization)*crossing/remaining

		assert.InDelta(t, 100.0, level, 1e-6)
		assert.GreaterOrEqual(t, gap, 0.0)
		assert.LessOrEqual(t, gap, remaining)
	}
}

func TestLockoutSeconds_Saturated(t *testing.T) {
	assert.Equal(t, 500.0, lockoutSeconds(100, 150, 500))
	assert.Equal(t, 500.0, lockoutSeconds(140, 150, 500))
}

func TestFormatGap(t *testing.T) {
	assert.Equal(t, "1m", formatGap(0))
	assert.Equal(t, "2m", formatGap(61))
	assert.Equal(t, "1h 0m", formatGap(3600))
	assert.Equal(t, "1h 1m", formatGap(3601))
	assert.Equal(t, "2h 0m", formatGap(2*3600-0.5))
	assert.False(t, math.IsNaN(lockoutSeconds(50, 150, 0)))
}
