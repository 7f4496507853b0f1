package update

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule checks for a new release every six hours.
const DefaultSchedule = "@every 6h"

// Watcher checks for releases on a cron schedule and remembers the latest
// newer one.
type Watcher struct {
	checker  *Checker
	version  string
	schedule string
	cron     *cron.Cron
	logger   zerolog.Logger

	mu       sync.RWMutex
	latest   *Release
	onUpdate func(*Release)
}

func NewWatcher(checker *Checker, version, schedule string, logger zerolog.Logger) *Watcher {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Watcher{
		checker:  checker,
		version:  version,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "update").Logger(),
	}
}

// OnUpdate registers fn to run when a newer release is first seen.
func (w *Watcher) OnUpdate(fn func(*Release)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = fn
}

// Latest returns the newest release seen, or nil.
func (w *Watcher) Latest() *Release {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

// Start checks once immediately and then on schedule until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(w.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", w.schedule, err)
	}
	if _, err := w.cron.AddFunc(w.schedule, func() { w.CheckNow(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule update check: %w", err)
	}
	w.cron.Start()

	go w.CheckNow(ctx)
	go func() {
		<-ctx.Done()
		<-w.cron.Stop().Done()
	}()
	return nil
}

// CheckNow runs one check and records the result.
func (w *Watcher) CheckNow(ctx context.Context) {
	rel, err := w.checker.Check(ctx, w.version)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Update check failed")
		return
	}
	if rel == nil {
		return
	}

	w.mu.Lock()
	isNew := w.latest == nil || w.latest.Version != rel.Version
	w.latest = rel
	fn := w.onUpdate
	w.mu.Unlock()

	if isNew {
		w.logger.Info().Str("version", rel.Version).Msg("Update available")
		if fn != nil {
			fn(rel)
		}
	}
}
