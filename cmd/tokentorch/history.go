package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tnunamak/tokentorch/internal/cli"
)

var historyFlags struct {
	limit int
	json  bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently recorded samples",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Number of rows to show")
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	store, err := e.openHistory()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("history is disabled in the configuration")
	}

	samples, err := store.Recent(cmd.Context(), historyFlags.limit)
	if err != nil {
		return err
	}

	mode := cli.ModePlain
	if historyFlags.json {
		mode = cli.ModeJSON
	}
	return cli.RenderHistory(cmd.OutOrStdout(), mode, samples)
}
