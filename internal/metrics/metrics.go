package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

var (
	// Bar metrics, labelled by bar kind ("session", "weekly")
	Utilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokentorch_utilization_percent",
			Help: "Reported utilization of the usage window",
		},
		[]string{"kind"},
	)

	Projected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokentorch_projected_percent",
			Help: "Projected utilization at window reset",
		},
		[]string{"kind"},
	)

	Severity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokentorch_severity",
			Help: "Bar severity (0=gray 1=green 2=yellow 3=red 4=red_blink)",
		},
		[]string{"kind"},
	)

	SecondsRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokentorch_reset_seconds_remaining",
			Help: "Seconds until the usage window resets",
		},
		[]string{"kind"},
	)

	// Poll metrics
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokentorch_polls_total",
			Help: "Poll cycles by outcome",
		},
		[]string{"result"},
	)

	LastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokentorch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll",
		},
	)

	WorstSeverity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tokentorch_worst_severity",
			Help: "Most severe color across present bars",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Utilization,
		Projected,
		Severity,
		SecondsRemaining,
		PollsTotal,
		LastSuccess,
		WorstSeverity,
	)
}

// Observe publishes one poll result. Error states only count the failure;
// the last good bar values stay exported.
func Observe(state forecast.State) {
	if state.IsError() {
		PollsTotal.WithLabelValues("error").Inc()
		return
	}
	PollsTotal.WithLabelValues("ok").Inc()
	LastSuccess.Set(float64(state.LastUpdated.Unix()))
	WorstSeverity.Set(float64(state.Worst()))

	observeBar(forecast.KindSession, state.Session)
	observeBar(forecast.KindWeekly, state.Weekly)
}

func observeBar(kind forecast.Kind, bar *forecast.UsageBar) {
	label := kindLabel(kind)
	if bar == nil {
		Utilization.DeleteLabelValues(label)
		Projected.DeleteLabelValues(label)
		Severity.DeleteLabelValues(label)
		SecondsRemaining.DeleteLabelValues(label)
		return
	}
	Utilization.WithLabelValues(label).Set(bar.Utilization)
	Projected.WithLabelValues(label).Set(bar.Projected)
	Severity.WithLabelValues(label).Set(float64(bar.Color))
	SecondsRemaining.WithLabelValues(label).Set(bar.SecondsRemaining)
}

func kindLabel(kind forecast.Kind) string {
	if kind == forecast.KindWeekly {
		return "weekly"
	}
	return "session"
}
