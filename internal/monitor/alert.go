package monitor

import (
	"fmt"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

// Alert is a desktop notification raised when usage escalates.
type Alert struct {
	Title   string
	Body    string
	Urgency Urgency
}

// escalation returns an alert when the worst severity of cur rose above
// prev and reached Red or RedBlink. Error states never alert.
func escalation(prev forecast.Severity, cur forecast.State) *Alert {
	worst := cur.Worst()
	if cur.IsError() || worst <= prev || worst < forecast.Red {
		return nil
	}

	var bar forecast.UsageBar
	for _, b := range cur.Bars() {
		if b.Color == worst {
			bar = b
			break
		}
	}

	body := fmt.Sprintf("%s at %.0f%%, projected %.0f%%", bar.Label, bar.Utilization, bar.Projected)
	if bar.GapDisplay != "" {
		body += " (" + bar.GapDisplay + ")"
	}
	if worst == forecast.RedBlink {
		return &Alert{Title: "Claude usage critical", Body: body, Urgency: UrgencyCritical}
	}
	return &Alert{Title: "Claude usage warning", Body: body + ", " + bar.ResetDisplay, Urgency: UrgencyNormal}
}
