package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultPruneSchedule runs retention once a day at midnight.
const DefaultPruneSchedule = "@daily"

// Pruner periodically removes samples older than the retention period.
type Pruner struct {
	store     *Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

func NewPruner(store *Store, retention time.Duration, logger zerolog.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		schedule:  DefaultPruneSchedule,
		cron:      cron.New(),
		logger:    logger.With().Str("component", "history.pruner").Logger(),
		now:       time.Now,
	}
}

// Start schedules pruning until ctx is cancelled. A zero retention keeps
// samples forever and schedules nothing.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.retention <= 0 {
		p.logger.Info().Msg("History retention disabled, not pruning")
		return nil
	}

	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.schedule, err)
	}
	if _, err := p.cron.AddFunc(p.schedule, func() { p.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info().
		Str("schedule", p.schedule).
		Dur("retention", p.retention).
		Msg("History pruner started")

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	deleted, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Error().Err(err).Msg("History pruning failed")
		return
	}
	if deleted > 0 {
		p.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("History pruned")
	} else {
		p.logger.Debug().Msg("History pruning found nothing to delete")
	}
}

// Stop stops the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
	}
}

// NextRun returns the next scheduled prune, or nil when not running.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.cron.Entries()
	if !p.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
