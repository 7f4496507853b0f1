package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tnunamak/tokentorch/internal/api"
	"github.com/tnunamak/tokentorch/internal/cache"
	"github.com/tnunamak/tokentorch/internal/forecast"
)

// Fetcher retrieves a usage snapshot from the upstream service.
type Fetcher interface {
	FetchUsage(ctx context.Context) (*api.Result, error)
}

// Recorder persists every evaluated state.
type Recorder interface {
	Record(ctx context.Context, cycleID string, state forecast.State) error
}

// Where a cycle's snapshot came from.
const (
	SourceAPI   = "api"
	SourceCache = "cache"
)

// Update is delivered to subscribers after every cycle.
type Update struct {
	CycleID  string
	State    forecast.State
	Previous forecast.State
	// Source and FetchedAt are empty for failed cycles and re-evaluations.
	Source    string
	FetchedAt time.Time
	// Alert is set when the worst severity escalated into Red or RedBlink.
	Alert *Alert
}

type Options struct {
	Engine   forecast.Engine
	Interval time.Duration

	// Cache is consulted before fetching and written after a fetch.
	Cache    cache.Store
	CacheTTL time.Duration

	History Recorder

	// OnSessionKey is called when the server rotates the session cookie.
	OnSessionKey func(key string)

	Logger zerolog.Logger
	Now    func() time.Time
}

// Monitor polls the usage endpoint and owns the shared display state. Each
// cycle replaces the state in one step; readers never see a partial update.
type Monitor struct {
	fetcher Fetcher
	opts    Options
	logger  zerolog.Logger

	mu        sync.RWMutex
	engine    forecast.Engine
	interval  time.Duration
	cache     cache.Store
	state     forecast.State
	lastUsage *api.UsageResponse
	lastWorst forecast.Severity
	subs      []func(Update)

	blink atomic.Bool

	pollMu   sync.Mutex
	refresh  chan struct{}
	reconfig chan struct{}
}

func New(fetcher Fetcher, opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	return &Monitor{
		fetcher:  fetcher,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "monitor").Logger(),
		engine:   opts.Engine,
		interval: opts.Interval,
		cache:    opts.Cache,
		state:    forecast.State{LastUpdated: opts.Now()},
		refresh:  make(chan struct{}, 1),
		reconfig: make(chan struct{}, 1),
	}
}

// State returns the most recent state.
func (m *Monitor) State() forecast.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Blinking reports whether the worst bar is RedBlink.
func (m *Monitor) Blinking() bool {
	return m.blink.Load()
}

// Subscribe registers fn to receive every update. Callbacks run on the
// polling goroutine and must not block.
func (m *Monitor) Subscribe(fn func(Update)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Refresh asks Run to poll now, bypassing the cache. Requests made while a
// poll is pending are coalesced.
func (m *Monitor) Refresh() {
	select {
	case m.refresh <- struct{}{}:
	default:
	}
}

// Reconfigure swaps the engine and poll interval. The last snapshot is
// re-evaluated immediately with the new engine unless the latest poll failed.
func (m *Monitor) Reconfigure(engine forecast.Engine, interval time.Duration) {
	m.mu.Lock()
	m.engine = engine
	if interval > 0 {
		m.interval = interval
	}
	m.mu.Unlock()

	m.pollMu.Lock()
	m.mu.RLock()
	usage := m.lastUsage
	m.mu.RUnlock()
	if usage != nil {
		m.publish(Update{CycleID: uuid.NewString(), State: m.evaluate(usage)})
	}
	m.pollMu.Unlock()

	select {
	case m.reconfig <- struct{}{}:
	default:
	}
}

// UseCache replaces the snapshot cache, e.g. after the organization changed.
func (m *Monitor) UseCache(store cache.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = store
}

// Run polls once immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Poll(ctx, false)

	ticker := time.NewTicker(m.currentInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx, false)
		case <-m.refresh:
			m.Poll(ctx, true)
		case <-m.reconfig:
			ticker.Reset(m.currentInterval())
		}
	}
}

func (m *Monitor) currentInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interval
}

// Poll runs one cycle and returns the new state. When force is false a
// fresh cached snapshot is used instead of calling the API.
func (m *Monitor) Poll(ctx context.Context, force bool) forecast.State {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	cycleID := uuid.NewString()
	logger := m.logger.With().Str("cycle", cycleID).Logger()
	start := m.opts.Now()

	snap, err := m.load(ctx, force)
	u := Update{CycleID: cycleID}
	var state forecast.State
	if err != nil {
		state = forecast.ErrorState(err, m.opts.Now())
		m.mu.Lock()
		m.lastUsage = nil
		m.mu.Unlock()
		if errors.Is(err, api.ErrSessionExpired) {
			logger.Warn().Msg("Session key rejected, run `tokentorch login`")
		} else {
			logger.Error().Err(err).Msg("Usage poll failed")
		}
	} else {
		m.mu.Lock()
		m.lastUsage = snap.usage
		m.mu.Unlock()
		state = m.evaluate(snap.usage)
		u.Source, u.FetchedAt = snap.source, snap.fetchedAt
		logger.Debug().
			Str("source", snap.source).
			Str("title", state.Title()).
			Stringer("worst", state.Worst()).
			Dur("took", m.opts.Now().Sub(start)).
			Msg("Usage poll complete")
	}

	if m.opts.History != nil {
		if err := m.opts.History.Record(ctx, cycleID, state); err != nil {
			logger.Warn().Err(err).Msg("Failed to record history")
		}
	}

	u.State = state
	m.publish(u)
	return state
}

type snapshot struct {
	usage     *api.UsageResponse
	source    string
	fetchedAt time.Time
}

func (m *Monitor) load(ctx context.Context, force bool) (snapshot, error) {
	m.mu.RLock()
	store := m.cache
	m.mu.RUnlock()

	if !force && store != nil {
		entry, err := store.Read(ctx)
		if err == nil && entry.Usage != nil && entry.IsValid(m.opts.Now(), m.opts.CacheTTL) {
			return snapshot{entry.Usage, SourceCache, entry.FetchedAt}, nil
		}
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			m.logger.Debug().Err(err).Msg("Ignoring unreadable cache")
		}
	}

	result, err := m.fetcher.FetchUsage(ctx)
	if err != nil {
		return snapshot{}, err
	}
	if result == nil || result.Usage == nil {
		return snapshot{}, fmt.Errorf("parse error: empty response")
	}

	if result.RefreshedSessionKey != "" && m.opts.OnSessionKey != nil {
		m.logger.Info().Msg("Session key rotated by server")
		m.opts.OnSessionKey(result.RefreshedSessionKey)
	}

	fetchedAt := m.opts.Now()
	if store != nil {
		if err := store.Write(ctx, result.Usage, fetchedAt); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to write cache")
		}
	}
	return snapshot{result.Usage, SourceAPI, fetchedAt}, nil
}

func (m *Monitor) evaluate(usage *api.UsageResponse) forecast.State {
	m.mu.RLock()
	engine := m.engine
	m.mu.RUnlock()
	return engine.Evaluate(usage.FiveHour, usage.SevenDay, m.opts.Now())
}

// publish replaces the shared state, updates the blink flag and fans the
// update out to subscribers.
func (m *Monitor) publish(u Update) {
	state := u.State
	m.mu.Lock()
	u.Previous = m.state
	m.state = state
	var alert *Alert
	if !state.IsError() {
		worst := state.Worst()
		alert = escalation(m.lastWorst, state)
		m.lastWorst = worst
	}
	subs := append([]func(Update){}, m.subs...)
	m.mu.Unlock()

	m.blink.Store(!state.IsError() && state.Worst() == forecast.RedBlink)

	if alert != nil {
		m.logger.Info().Str("cycle", u.CycleID).Str("title", alert.Title).Msg(alert.Body)
	}

	u.Alert = alert
	for _, fn := range subs {
		fn(u)
	}
}
