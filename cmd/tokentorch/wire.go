package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/tnunamak/tokentorch/internal/api"
	"github.com/tnunamak/tokentorch/internal/cache"
	"github.com/tnunamak/tokentorch/internal/config"
	"github.com/tnunamak/tokentorch/internal/history"
	"github.com/tnunamak/tokentorch/internal/logging"
	"github.com/tnunamak/tokentorch/internal/monitor"
)

var errNotConfigured = errors.New("no organization configured, run `tokentorch login`")

// env is the shared setup every command starts from.
type env struct {
	cfg     *config.Config
	logger  zerolog.Logger
	closers []io.Closer
}

func setup() (*env, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, fmt.Errorf("locate config: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.Setup(cfg.Logging, debug)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("version", version).Str("config", path).Msg("Configuration loaded")
	return &env{cfg: cfg, logger: logger, closers: []io.Closer{closer}}, nil
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func (e *env) newClient() (*api.Client, error) {
	if !e.cfg.IsConfigured() {
		return nil, withCode(2, errNotConfigured)
	}
	key, err := api.ReadSessionKey()
	if err != nil {
		return nil, withCode(2, err)
	}
	return api.NewClient(key, e.cfg.OrgID), nil
}

func (e *env) openCache(ctx context.Context) (cache.Store, error) {
	return e.openCacheFor(ctx, e.cfg)
}

// openCacheFor opens the snapshot cache for cfg's organization.
func (e *env) openCacheFor(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	var (
		store cache.Store
		err   error
	)
	switch cfg.Cache.Backend {
	case "redis":
		store, err = cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Key:      cfg.Cache.Redis.KeyPrefix + ":" + cfg.OrgID,
			TTL:      cfg.Cache.TTL,
		})
	default:
		var dir string
		if dir, err = cfg.CacheDir(); err == nil {
			store = cache.NewFileStore(dir, cfg.OrgID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	e.closers = append(e.closers, store)
	return store, nil
}

// openHistory returns nil when history is disabled.
func (e *env) openHistory() (*history.Store, error) {
	if !e.cfg.History.Enabled {
		return nil, nil
	}
	path, err := e.cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(path, e.logger)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, store)
	return store, nil
}

func (e *env) newMonitor(client *api.Client, store cache.Store, hist *history.Store) (*monitor.Monitor, error) {
	engine, err := e.cfg.Engine()
	if err != nil {
		return nil, err
	}

	opts := monitor.Options{
		Engine:   engine,
		Interval: e.cfg.PollInterval,
		Cache:    store,
		CacheTTL: e.cfg.Cache.TTL,
		Logger:   e.logger,
		OnSessionKey: func(key string) {
			client.UpdateSessionKey(key)
			if err := api.SaveSessionKey(key); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to persist rotated session key")
			}
		},
	}
	// A nil *history.Store must not become a non-nil Recorder.
	if hist != nil {
		opts.History = hist
	}
	return monitor.New(client, opts), nil
}

// watchConfig applies edits of the config file to a running monitor.
func (e *env) watchConfig(ctx context.Context, client *api.Client, m *monitor.Monitor) {
	err := config.Watch(ctx, e.cfg.Path, e.logger, func(cfg *config.Config) {
		e.applyConfig(ctx, cfg, client, m)
	})
	if err != nil {
		e.logger.Debug().Err(err).Msg("Config hot reload unavailable")
	}
}

// applyConfig reconfigures the monitor from a reloaded config. A session key
// or organization changed by `tokentorch login` is handed to the client and
// polled right away.
func (e *env) applyConfig(ctx context.Context, cfg *config.Config, client *api.Client, m *monitor.Monitor) {
	engine, err := cfg.Engine()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Ignoring config reload")
		return
	}
	m.Reconfigure(engine, cfg.PollInterval)

	key, err := api.ReadSessionKey()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Keeping current session key")
		key = client.SessionKey()
	}
	orgChanged := cfg.OrgID != "" && cfg.OrgID != client.OrgID()
	if key == client.SessionKey() && !orgChanged {
		return
	}

	if orgChanged {
		store, err := e.openCacheFor(ctx, cfg)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Running without cache")
		}
		m.UseCache(store)
		client.UpdateOrgID(cfg.OrgID)
	}
	client.UpdateSessionKey(key)
	e.logger.Info().Str("org", cfg.OrgID).Msg("Credentials changed, refreshing")
	m.Refresh()
}
