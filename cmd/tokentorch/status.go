package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tnunamak/tokentorch/internal/api"
	"github.com/tnunamak/tokentorch/internal/cli"
	"github.com/tnunamak/tokentorch/internal/forecast"
	"github.com/tnunamak/tokentorch/internal/monitor"
)

var statusFlags struct {
	json    bool
	plain   bool
	refresh bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current usage and projection (default)",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	addStatusFlags(statusCmd)
}

func addStatusFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&statusFlags.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&statusFlags.plain, "plain", false, "Plain text, no color codes")
	cmd.Flags().BoolVar(&statusFlags.refresh, "refresh", false, "Ignore the cache and fetch now")
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	client, err := e.newClient()
	if err != nil {
		return err
	}
	store, err := e.openCache(ctx)
	if err != nil {
		return err
	}
	m, err := e.newMonitor(client, store, nil)
	if err != nil {
		return err
	}

	var src cli.Source
	m.Subscribe(func(u monitor.Update) {
		src = cli.Source{Cached: u.Source == monitor.SourceCache, FetchedAt: u.FetchedAt}
	})

	state := m.Poll(ctx, statusFlags.refresh)
	mode := cli.DetectMode(statusFlags.json, statusFlags.plain)
	if err := cli.Render(cmd.OutOrStdout(), mode, state, &src); err != nil {
		return err
	}
	return stateExit(state)
}

// stateExit maps an error state to the process exit code.
func stateExit(state forecast.State) error {
	if !state.IsError() {
		return nil
	}
	if errors.Is(state.Err, api.ErrSessionExpired) {
		return withCode(2, state.Err)
	}
	return withCode(1, errors.New(state.Error))
}
