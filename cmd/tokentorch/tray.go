package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tnunamak/tokentorch/internal/autostart"
	"github.com/tnunamak/tokentorch/internal/history"
	"github.com/tnunamak/tokentorch/internal/tray"
	"github.com/tnunamak/tokentorch/internal/update"
)

var trayFlags struct {
	install   bool
	uninstall bool
}

var trayCmd = &cobra.Command{
	Use:   "tray",
	Short: "Run as system tray icon",
	Args:  cobra.NoArgs,
	RunE:  runTray,
}

func init() {
	trayCmd.Flags().BoolVar(&trayFlags.install, "install", false, "Enable launch at login")
	trayCmd.Flags().BoolVar(&trayFlags.uninstall, "uninstall", false, "Disable launch at login")
	trayCmd.MarkFlagsMutuallyExclusive("install", "uninstall")
}

func runTray(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if trayFlags.install {
		if err := autostart.Install(configPath); err != nil {
			return err
		}
		fmt.Fprintln(out, "tokentorch will start at login")
		return nil
	}
	if trayFlags.uninstall {
		if err := autostart.Uninstall(); err != nil {
			return err
		}
		fmt.Fprintln(out, "tokentorch autostart removed")
		return nil
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

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
		e.logger.Warn().Err(err).Msg("History disabled")
	}
	if hist != nil {
		pruner := history.NewPruner(hist, e.cfg.History.Retention, e.logger)
		if err := pruner.Start(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("History pruning disabled")
		}
	}

	m, err := e.newMonitor(client, store, hist)
	if err != nil {
		return err
	}
	go e.watchConfig(ctx, client, m)

	app := &tray.App{
		Monitor:    m,
		ConfigPath: e.cfg.Path,
		Version:    version,
		Logger:     e.logger,
	}
	if e.cfg.Update.Check {
		app.Checker = update.NewChecker()
		app.Updates = update.NewWatcher(app.Checker, version, e.cfg.Update.Schedule, e.logger)
	}

	if code := tray.Run(app); code != 0 {
		return withCode(code, fmt.Errorf("tray exited with status %d", code))
	}
	return nil
}
