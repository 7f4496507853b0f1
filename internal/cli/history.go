package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/mattn/go-runewidth"

	"github.com/tnunamak/tokentorch/internal/history"
)

// RenderHistory prints samples as an aligned table, or JSON in ModeJSON.
func RenderHistory(w io.Writer, mode Mode, samples []history.Sample) error {
	if mode == ModeJSON {
		if samples == nil {
			samples = []history.Sample{}
		}
		data, err := sonic.MarshalIndent(samples, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if len(samples) == 0 {
		_, err := fmt.Fprintln(w, "no history recorded yet")
		return err
	}

	header := []string{"TIME", "KIND", "USED", "PROJECTED", "COLOR", "NOTE"}
	rows := [][]string{header}
	for _, s := range samples {
		used, projected, note := fmt.Sprintf("%.0f%%", s.Utilization), fmt.Sprintf("%.0f%%", s.Projected), s.ResetsAt
		if s.Kind == history.KindError {
			used, projected, note = "-", "-", s.Error
		}
		rows = append(rows, []string{
			s.RecordedAt.Local().Format("Jan 2 15:04"),
			s.Kind,
			used,
			projected,
			s.Severity.String(),
			note,
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 {
				cells[i] = cell
				continue
			}
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " ")); err != nil {
			return err
		}
	}
	return nil
}
