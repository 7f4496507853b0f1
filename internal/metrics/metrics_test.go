package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

type fakeSource struct {
	state     forecast.State
	refreshes int
}

func (f *fakeSource) State() forecast.State { return f.state }
func (f *fakeSource) Refresh()              { f.refreshes++ }

func testState() forecast.State {
	return forecast.State{
		LastUpdated: time.Unix(1768500000, 0),
		Session: &forecast.UsageBar{
			Kind: forecast.KindSession, Label: "Session", Utilization: 96,
			Projected: 112, Color: forecast.RedBlink, SecondsRemaining: 43200,
			ResetDisplay: "resets in 12h 0m", GapDisplay: "1h 30m gap",
		},
	}
}

func TestObserve(t *testing.T) {
	Observe(testState())

	assert.Equal(t, 96.0, testutil.ToFloat64(Utilization.WithLabelValues("session")))
	assert.Equal(t, 112.0, testutil.ToFloat64(Projected.WithLabelValues("session")))
	assert.Equal(t, float64(forecast.RedBlink), testutil.ToFloat64(Severity.WithLabelValues("session")))
	assert.Equal(t, 43200.0, testutil.ToFloat64(SecondsRemaining.WithLabelValues("session")))
	assert.Equal(t, 1768500000.0, testutil.ToFloat64(LastSuccess))
	assert.Equal(t, float64(forecast.RedBlink), testutil.ToFloat64(WorstSeverity))
	assert.Equal(t, 1, testutil.CollectAndCount(Utilization))
}

func TestObserve_ErrorCountsFailure(t *testing.T) {
	before := testutil.ToFloat64(PollsTotal.WithLabelValues("error"))
	Observe(forecast.ErrorState(assert.AnError, time.Now()))
	assert.Equal(t, before+1, testutil.ToFloat64(PollsTotal.WithLabelValues("error")))
}

func TestHandler_Status(t *testing.T) {
	src := &fakeSource{state: testState()}
	h := newHandler(src)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got forecast.State
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Session)
	assert.Equal(t, forecast.RedBlink, got.Session.Color)
	assert.Equal(t, "1h 30m gap", got.Session.GapDisplay)
	assert.Nil(t, got.Weekly)
	assert.Contains(t, rec.Body.String(), `"color":"RedBlink"`)
}

func TestHandler_Refresh(t *testing.T) {
	src := &fakeSource{}
	h := newHandler(src)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, src.refreshes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refresh", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	h := newHandler(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tokentorch_last_success_timestamp_seconds"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
