package forecast

import (
	"time"
)

// Below this much online time in the current window the projection is the
// raw utilization; early samples are too noisy to extrapolate.
const MinProjectionElapsed = 10 * time.Minute

// fallbackReset is how far ahead an unparseable reset timestamp is assumed to be.
const fallbackReset = time.Hour

// Bucket is one raw quota window as received from the usage API.
type Bucket struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

// Projection is the estimated utilization at window reset together with the
// online time it was derived from.
type Projection struct {
	Projected       float64
	ElapsedOnline   time.Duration
	RemainingOnline time.Duration
}

// Engine evaluates buckets against a fixed active-hours policy. It holds no
// mutable state; every method is a pure function of its arguments.
type Engine struct {
	Hours ActiveHours
}

func NewEngine(hours ActiveHours) Engine {
	return Engine{Hours: hours}
}

// OnlineDuration is the active time between start and end.
func (e Engine) OnlineDuration(start, end time.Time) time.Duration {
	return e.Hours.Online(start, end)
}

// Project extrapolates utilization to resetsAt assuming the burn rate seen
// during online hours since the window opened continues.
func (e Engine) Project(utilization float64, resetsAt time.Time, window time.Duration, now time.Time) Projection {
	windowStart := resetsAt.Add(-window.Round(time.Second))
	elapsed := e.Hours.Online(windowStart, now)
	remaining := e.Hours.Online(now, resetsAt)
	total := elapsed + remaining

	p := Projection{
		Projected:       utilization,
		ElapsedOnline:   elapsed,
		RemainingOnline: remaining,
	}
	if elapsed < MinProjectionElapsed || total <= 0 {
		return p
	}

	rate := utilization / elapsed.Hours()
	p.Projected = rate * total.Hours()
	return p
}

// ParseResetsAt parses an ISO-8601 reset timestamp. Unparseable input yields
// now plus one hour so evaluation can proceed with a degraded bar.
func ParseResetsAt(s string, now time.Time) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return now.Add(fallbackReset)
	}
	return t
}

// Bar evaluates one bucket of the given kind at now.
func (e Engine) Bar(kind Kind, bucket Bucket, now time.Time) UsageBar {
	return e.bar(kind, kind.Window(), bucket, now)
}

func (e Engine) bar(kind Kind, window time.Duration, bucket Bucket, now time.Time) UsageBar {
	resetsAt := ParseResetsAt(bucket.ResetsAt, now)

	secondsRemaining := resetsAt.Sub(now).Truncate(time.Second).Seconds()
	if secondsRemaining < 0 {
		secondsRemaining = 0
	}

	p := e.Project(bucket.Utilization, resetsAt, window, now)

	return UsageBar{
		Kind:             kind,
		Label:            kind.Label(),
		Utilization:      bucket.Utilization,
		ResetsAt:         bucket.ResetsAt,
		SecondsRemaining: secondsRemaining,
		Projected:        p.Projected,
		Color:            kind.Classify(bucket.Utilization, p.Projected),
		ResetDisplay:     ResetDisplay(secondsRemaining, resetsAt, e.Hours.location()),
		GapDisplay:       GapDisplay(bucket.Utilization, p.Projected, p.RemainingOnline),
	}
}
