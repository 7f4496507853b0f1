package forecast

import (
	"fmt"
	"time"
)

const (
	FiveHourWindow = 5 * time.Hour
	SevenDayWindow = 7 * 24 * time.Hour
)

// Kind identifies a quota bucket and selects its window length and
// classifier policy.
type Kind int

const (
	KindSession Kind = iota
	KindWeekly
)

func (k Kind) Label() string {
	switch k {
	case KindSession:
		return "Session"
	case KindWeekly:
		return "Weekly"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) String() string { return k.Label() }

// Window is the nominal full duration of the bucket's quota window.
func (k Kind) Window() time.Duration {
	if k == KindSession {
		return FiveHourWindow
	}
	return SevenDayWindow
}

// Classify maps current and projected utilization to a severity using the
// policy of k. All comparisons are strict.
func (k Kind) Classify(utilization, projected float64) Severity {
	if k == KindSession {
		return classifySession(utilization, projected)
	}
	return classifyWeekly(projected)
}

// Classify is k.Classify(utilization, projected).
func Classify(k Kind, utilization, projected float64) Severity {
	return k.Classify(utilization, projected)
}

// The session window resets every few hours, so only sustained saturation
// or a wildly implausible projection blinks.
func classifySession(utilization, projected float64) Severity {
	switch {
	case (utilization > 90 && projected > 100) || projected > 200:
		return RedBlink
	case projected > 100:
		return Red
	case projected > 90:
		return Yellow
	default:
		return Green
	}
}

func classifyWeekly(projected float64) Severity {
	switch {
	case projected > 100:
		return RedBlink
	case projected > 95:
		return Red
	case projected > 90:
		return Yellow
	default:
		return Green
	}
}
