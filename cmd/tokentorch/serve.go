package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tnunamak/tokentorch/internal/history"
	"github.com/tnunamak/tokentorch/internal/metrics"
	"github.com/tnunamak/tokentorch/internal/monitor"
	"github.com/tnunamak/tokentorch/internal/systemd"
	"github.com/tnunamak/tokentorch/internal/update"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run headless with Prometheus metrics and a JSON status endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()
	logger := e.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := e.newClient()
	if err != nil {
		return err
	}
	store, err := e.openCache(ctx)
	if err != nil {
		return err
	}
	hist, err := e.openHistory()
	if err != nil {
		return err
	}
	if hist != nil {
		pruner := history.NewPruner(hist, e.cfg.History.Retention, logger)
		if err := pruner.Start(ctx); err != nil {
			return err
		}
		defer pruner.Stop()
	}

	m, err := e.newMonitor(client, store, hist)
	if err != nil {
		return err
	}
	m.Subscribe(func(u monitor.Update) {
		metrics.Observe(u.State)
		status := u.State.Title()
		if u.State.IsError() {
			status = "error: " + u.State.Error
		}
		if err := systemd.NotifyStatus(status); err != nil {
			logger.Debug().Err(err).Msg("sd_notify status failed")
		}
		if u.Alert != nil {
			logger.Warn().Str("urgency", string(u.Alert.Urgency)).Msg(u.Alert.Title + ": " + u.Alert.Body)
		}
	})

	server := metrics.NewServer(e.cfg.Metrics.Addr, m, logger)
	ln, err := systemd.MetricsListener()
	if err != nil {
		logger.Warn().Err(err).Msg("Ignoring systemd sockets")
	}
	if ln != nil {
		server.SetListener(ln)
	}
	if err := server.Start(); err != nil {
		return err
	}

	if e.cfg.Update.Check {
		w := update.NewWatcher(update.NewChecker(), version, e.cfg.Update.Schedule, logger)
		if err := w.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("Update checks disabled")
		}
	}

	go e.watchConfig(ctx, client, m)
	go m.Run(ctx)
	go watchdog(ctx)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}
	logger.Info().
		Str("version", version).
		Str("metrics", e.cfg.Metrics.Addr).
		Dur("interval", e.cfg.PollInterval).
		Msg("tokentorch serving")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	_ = systemd.NotifyStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func watchdog(ctx context.Context) {
	interval := systemd.WatchdogInterval()
	if interval == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = systemd.NotifyWatchdog()
		}
	}
}
