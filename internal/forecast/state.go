package forecast

import (
	"fmt"
	"time"
)

// UsageBar is the evaluated view of one bucket. A new value is produced on
// every evaluation.
type UsageBar struct {
	Kind             Kind     `json:"-"`
	Label            string   `json:"label"`
	Utilization      float64  `json:"utilization"`
	ResetsAt         string   `json:"resets_at"`
	SecondsRemaining float64  `json:"seconds_remaining"`
	Projected        float64  `json:"projected"`
	Color            Severity `json:"color"`
	ResetDisplay     string   `json:"reset_display"`
	GapDisplay       string   `json:"gap_display,omitempty"`
}

// State is the result of one poll cycle: either bars or an error, never both.
type State struct {
	Session     *UsageBar `json:"session"`
	Weekly      *UsageBar `json:"weekly"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`

	// Err is the failure behind Error, kept for errors.Is checks.
	Err error `json:"-"`
}

// Evaluate builds the data state for a snapshot. Either bucket may be nil
// when the upstream response omitted it.
func (e Engine) Evaluate(session, weekly *Bucket, now time.Time) State {
	s := State{LastUpdated: now}
	if session != nil {
		bar := e.Bar(KindSession, *session, now)
		s.Session = &bar
	}
	if weekly != nil {
		bar := e.Bar(KindWeekly, *weekly, now)
		s.Weekly = &bar
	}
	return s
}

// ErrorState is the state for a cycle whose fetch failed.
func ErrorState(err error, now time.Time) State {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return State{LastUpdated: now, Error: msg, Err: err}
}

func (s State) IsError() bool {
	return s.Error != ""
}

// Bars returns the present bars, session first.
func (s State) Bars() []UsageBar {
	bars := make([]UsageBar, 0, 2)
	if s.Session != nil {
		bars = append(bars, *s.Session)
	}
	if s.Weekly != nil {
		bars = append(bars, *s.Weekly)
	}
	return bars
}

// Worst reduces the present bars to the most severe color, or Gray when
// there are none.
func (s State) Worst() Severity {
	worst := Gray
	for _, bar := range s.Bars() {
		if bar.Color > worst {
			worst = bar.Color
		}
	}
	return worst
}

// Title is the compact tray title, e.g. "S:42 W:17".
func (s State) Title() string {
	return fmt.Sprintf("%s %s", shortPct("S", s.Session), shortPct("W", s.Weekly))
}

func shortPct(prefix string, bar *UsageBar) string {
	if bar == nil {
		return prefix + ":--"
	}
	return fmt.Sprintf("%s:%.0f", prefix, bar.Utilization)
}
