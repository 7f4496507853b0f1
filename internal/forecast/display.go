package forecast

import (
	"fmt"
	"math"
	"time"
)

// ResetDisplay renders the countdown to resetsAt. Under a day it is relative
// ("resets in 4h 12m"); beyond that it is the local weekday and time.
func ResetDisplay(secondsRemaining float64, resetsAt time.Time, loc *time.Location) string {
	if secondsRemaining <= 0 {
		return "resetting..."
	}

	hours := int64(math.Floor(secondsRemaining / 3600))
	minutes := int64(math.Floor(math.Mod(secondsRemaining, 3600) / 60))
	if hours < 24 {
		return fmt.Sprintf("resets in %dh %dm", hours, minutes)
	}

	if loc == nil {
		loc = time.Local
	}
	return resetsAt.In(loc).Format("resets Mon 3:04 PM")
}

// GapDisplay estimates how long, in online time, the caller will be locked
// out before the window resets. It returns "" when no lock-out is projected.
func GapDisplay(utilization, projected float64, remainingOnline time.Duration) string {
	remaining := remainingOnline.Seconds()
	if projected <= 100 || remaining <= 0 {
		return ""
	}
	return formatGap(lockoutSeconds(utilization, projected, remaining)) + " gap"
}

// lockoutSeconds is the part of the remaining online time spent at or over
// 100 if usage moves linearly from utilization now to projected at reset.
func lockoutSeconds(utilization, projected, remaining float64) float64 {
	if utilization >= 100 {
		return remaining
	}
	gap := remaining * (projected - 100) / (projected - utilization)
	if gap < 0 {
		return 0
	}
	return gap
}

func formatGap(seconds float64) string {
	hours := int64(math.Floor(seconds / 3600))
	minutes := int64(math.Ceil(math.Mod(seconds, 3600) / 60))
	if minutes == 60 {
		hours++
		minutes = 0
	}

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%dm", minutes)
}
