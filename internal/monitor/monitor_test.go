package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnunamak/tokentorch/internal/api"
	"github.com/tnunamak/tokentorch/internal/cache"
	"github.com/tnunamak/tokentorch/internal/forecast"
)

var testNow = time.Date(2026, 1, 15, 21, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	result *api.Result
	err    error
}

func (f *fakeFetcher) FetchUsage(context.Context) (*api.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeFetcher) set(result *api.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = result, err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	cycles []string
	states []forecast.State
}

func (r *fakeRecorder) Record(_ context.Context, cycleID string, state forecast.State) error {
	r.cycles = append(r.cycles, cycleID)
	r.states = append(r.states, state)
	return nil
}

// usage builds a snapshot at testNow whose session window resets at 23:00,
// so 3 of its 4 online hours have elapsed.
func usage(session float64) *api.Result {
	return &api.Result{Usage: &api.UsageResponse{
		FiveHour: &forecast.Bucket{Utilization: session, ResetsAt: "2026-01-15T23:00:00Z"},
		SevenDay: &forecast.Bucket{Utilization: 10, ResetsAt: "2026-01-20T21:00:00Z"},
	}}
}

func newTestMonitor(f Fetcher, opts Options) *Monitor {
	opts.Engine = forecast.NewEngine(forecast.ActiveHours{Start: 8, End: 22, Location: time.UTC})
	opts.Logger = zerolog.Nop()
	opts.Now = func() time.Time { return testNow }
	return New(f, opts)
}

func TestPoll_Success(t *testing.T) {
	f := &fakeFetcher{result: usage(60)}
	rec := &fakeRecorder{}
	m := newTestMonitor(f, Options{History: rec})

	var updates []Update
	m.Subscribe(func(u Update) { updates = append(updates, u) })

	state := m.Poll(context.Background(), false)

	require.False(t, state.IsError())
	require.NotNil(t, state.Session)
	require.NotNil(t, state.Weekly)
	assert.InDelta(t, 80.0, state.Session.Projected, 1e-9)
	assert.Equal(t, forecast.Green, state.Session.Color)
	assert.InDelta(t, 35.0, state.Weekly.Projected, 1e-9)
	assert.Equal(t, testNow, state.LastUpdated)

	assert.Equal(t, state, m.State())
	assert.False(t, m.Blinking())

	require.Len(t, updates, 1)
	assert.Equal(t, state, updates[0].State)
	assert.Nil(t, updates[0].Alert)
	require.Len(t, rec.cycles, 1)
	assert.Equal(t, updates[0].CycleID, rec.cycles[0])
}

func TestPoll_ErrorClearsBlink(t *testing.T) {
	f := &fakeFetcher{result: usage(95)}
	rec := &fakeRecorder{}
	m := newTestMonitor(f, Options{History: rec})

	state := m.Poll(context.Background(), false)
	assert.Equal(t, forecast.RedBlink, state.Session.Color)
	assert.True(t, m.Blinking())

	f.set(nil, errors.New("API error: HTTP 500"))
	state = m.Poll(context.Background(), false)

	assert.True(t, state.IsError())
	assert.Equal(t, "API error: HTTP 500", state.Error)
	assert.Nil(t, state.Session)
	assert.False(t, m.Blinking())
	require.Len(t, rec.states, 2)
	assert.True(t, rec.states[1].IsError())
}

func TestPoll_SessionExpired(t *testing.T) {
	f := &fakeFetcher{err: api.ErrSessionExpired}
	m := newTestMonitor(f, Options{})

	state := m.Poll(context.Background(), true)
	assert.Equal(t, api.ErrSessionExpired.Error(), state.Error)
}

func TestPoll_Escalation(t *testing.T) {
	f := &fakeFetcher{result: usage(60)}
	m := newTestMonitor(f, Options{})

	var alerts []*Alert
	m.Subscribe(func(u Update) {
		if u.Alert != nil {
			alerts = append(alerts, u.Alert)
		}
	})

	ctx := context.Background()
	m.Poll(ctx, true)
	assert.Empty(t, alerts)

	f.set(usage(80), nil) // projected ~107%: Red
	m.Poll(ctx, true)
	require.Len(t, alerts, 1)
	assert.Equal(t, UrgencyNormal, alerts[0].Urgency)

	m.Poll(ctx, true)
	assert.Len(t, alerts, 1, "unchanged severity does not alert again")

	f.set(usage(95), nil)
	m.Poll(ctx, true)
	require.Len(t, alerts, 2)
	assert.Equal(t, UrgencyCritical, alerts[1].Urgency)

	f.set(nil, errors.New("network error: timeout"))
	m.Poll(ctx, true)
	f.set(usage(95), nil)
	m.Poll(ctx, true)
	assert.Len(t, alerts, 2, "recovering from an error at the same severity does not alert")
}

func TestPoll_RotatedSessionKey(t *testing.T) {
	result := usage(60)
	result.RefreshedSessionKey = "sk-new"
	f := &fakeFetcher{result: result}

	var got string
	m := newTestMonitor(f, Options{OnSessionKey: func(key string) { got = key }})
	m.Poll(context.Background(), true)

	assert.Equal(t, "sk-new", got)
}

func TestPoll_Cache(t *testing.T) {
	store := cache.NewFileStore(t.TempDir(), "org-1")
	f := &fakeFetcher{result: usage(60)}
	m := newTestMonitor(f, Options{Cache: store, CacheTTL: time.Minute})
	ctx := context.Background()

	m.Poll(ctx, false)
	assert.Equal(t, 1, f.Calls(), "empty cache fetches")

	entry, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNow, entry.FetchedAt.UTC())

	f.set(usage(80), nil)
	state := m.Poll(ctx, false)
	assert.Equal(t, 1, f.Calls(), "fresh cache is used")
	assert.InDelta(t, 60.0, state.Session.Utilization, 1e-9)

	state = m.Poll(ctx, true)
	assert.Equal(t, 2, f.Calls(), "forced poll bypasses cache")
	assert.InDelta(t, 80.0, state.Session.Utilization, 1e-9)
}

func TestReconfigure_ReevaluatesLastSnapshot(t *testing.T) {
	f := &fakeFetcher{result: usage(60)}
	m := newTestMonitor(f, Options{})

	m.Poll(context.Background(), true)
	require.Equal(t, forecast.Green, m.State().Session.Color)

	// Around the clock, 3 of 5 hours have elapsed: 60 / 3 * 5 = 100.
	m.Reconfigure(forecast.NewEngine(forecast.ActiveHours{Start: 0, End: 24, Location: time.UTC}), time.Minute)

	state := m.State()
	assert.InDelta(t, 100.0, state.Session.Projected, 1e-9)
	assert.Equal(t, forecast.Yellow, state.Session.Color)
	assert.Equal(t, time.Minute, m.currentInterval())
	assert.Equal(t, 1, f.Calls())
}

func TestRun_RefreshAndStop(t *testing.T) {
	f := &fakeFetcher{result: usage(60)}
	m := newTestMonitor(f, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	m.Refresh()
	require.Eventually(t, func() bool { return f.Calls() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReconfigure_KeepsErrorState(t *testing.T) {
	f := &fakeFetcher{result: usage(95)}
	m := newTestMonitor(f, Options{})
	ctx := context.Background()

	m.Poll(ctx, true)
	require.True(t, m.Blinking())

	f.set(nil, api.ErrSessionExpired)
	m.Poll(ctx, true)

	var updates []Update
	m.Subscribe(func(u Update) { updates = append(updates, u) })
	m.Reconfigure(forecast.NewEngine(forecast.ActiveHours{Start: 0, End: 24, Location: time.UTC}), time.Minute)

	state := m.State()
	assert.True(t, state.IsError())
	assert.Equal(t, api.ErrSessionExpired.Error(), state.Error)
	assert.Nil(t, state.Session)
	assert.False(t, m.Blinking())
	assert.Empty(t, updates, "a failed poll leaves nothing to re-evaluate")
	assert.Equal(t, time.Minute, m.currentInterval())

	f.set(usage(60), nil)
	m.Poll(ctx, true)
	m.Reconfigure(forecast.NewEngine(forecast.ActiveHours{Start: 8, End: 22, Location: time.UTC}), time.Minute)
	require.Len(t, updates, 2)
	assert.False(t, updates[1].State.IsError())
}

func TestPoll_UpdateSource(t *testing.T) {
	store := cache.NewFileStore(t.TempDir(), "org-1")
	f := &fakeFetcher{result: usage(60)}
	m := newTestMonitor(f, Options{Cache: store, CacheTTL: time.Minute})
	ctx := context.Background()

	var updates []Update
	m.Subscribe(func(u Update) { updates = append(updates, u) })

	m.Poll(ctx, false)
	m.Poll(ctx, false)
	f.set(nil, api.ErrSessionExpired)
	state := m.Poll(ctx, true)

	require.Len(t, updates, 3)
	assert.Equal(t, SourceAPI, updates[0].Source)
	assert.Equal(t, testNow, updates[0].FetchedAt)
	assert.Equal(t, SourceCache, updates[1].Source)
	assert.Equal(t, testNow, updates[1].FetchedAt.UTC())
	assert.Empty(t, updates[2].Source)
	assert.True(t, updates[2].FetchedAt.IsZero())
	assert.ErrorIs(t, state.Err, api.ErrSessionExpired)
}

func TestUseCache(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{result: usage(60)}
	m := newTestMonitor(f, Options{Cache: cache.NewFileStore(dir, "org-old"), CacheTTL: time.Minute})
	ctx := context.Background()

	m.Poll(ctx, false)
	require.Equal(t, 1, f.Calls())

	m.UseCache(cache.NewFileStore(dir, "org-new"))
	m.Poll(ctx, false)
	assert.Equal(t, 2, f.Calls(), "the new organization's cache starts empty")
}
