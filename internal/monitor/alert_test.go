package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

func stateWith(session, weekly forecast.Severity) forecast.State {
	return forecast.State{
		LastUpdated: time.Now(),
		Session: &forecast.UsageBar{
			Label: "Session", Utilization: 96, Projected: 112, Color: session,
			ResetDisplay: "resets in 2h 0m", GapDisplay: "1h 30m gap",
		},
		Weekly: &forecast.UsageBar{
			Label: "Weekly", Utilization: 40, Projected: 97, Color: weekly,
			ResetDisplay: "resets Mon 9:00 AM",
		},
	}
}

func TestEscalation(t *testing.T) {
	tests := []struct {
		name    string
		prev    forecast.Severity
		state   forecast.State
		urgency Urgency
		body    string
	}{
		{"green to yellow", forecast.Green, stateWith(forecast.Yellow, forecast.Green), "", ""},
		{"yellow to red", forecast.Yellow, stateWith(forecast.Green, forecast.Red), UrgencyNormal,
			"Weekly at 40%, projected 97%, resets Mon 9:00 AM"},
		{"red to blink", forecast.Red, stateWith(forecast.RedBlink, forecast.Red), UrgencyCritical,
			"Session at 96%, projected 112% (1h 30m gap)"},
		{"gray to red", forecast.Gray, stateWith(forecast.Red, forecast.Green), UrgencyNormal,
			"Session at 96%, projected 112% (1h 30m gap), resets in 2h 0m"},
		{"red stays red", forecast.Red, stateWith(forecast.Red, forecast.Green), "", ""},
		{"de-escalation", forecast.RedBlink, stateWith(forecast.Red, forecast.Green), "", ""},
		{"error state", forecast.Green, forecast.ErrorState(assert.AnError, time.Now()), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := escalation(tt.prev, tt.state)
			if tt.urgency == "" {
				assert.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			assert.Equal(t, tt.urgency, alert.Urgency)
			assert.Equal(t, tt.body, alert.Body)
		})
	}
}
