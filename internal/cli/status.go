package cli

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

const barWidth = 20

type Mode int

const (
	ModeColor Mode = iota
	ModePlain
	ModeJSON
)

// DetectMode picks the output mode from flags, falling back to plain text
// when stdout is not a terminal.
func DetectMode(jsonMode, plainMode bool) Mode {
	switch {
	case jsonMode:
		return ModeJSON
	case plainMode || !isTTY():
		return ModePlain
	default:
		return ModeColor
	}
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Source describes where the rendered snapshot came from.
type Source struct {
	Cached    bool      `json:"hit"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

type jsonOutput struct {
	forecast.State
	Worst forecast.Severity `json:"worst"`
	Title string            `json:"title"`
	Cache *Source           `json:"cache,omitempty"`
}

// Render writes state in the given mode.
func Render(w io.Writer, mode Mode, state forecast.State, src *Source) error {
	switch mode {
	case ModeJSON:
		return renderJSON(w, state, src)
	case ModePlain:
		return renderPlain(w, state)
	default:
		return renderColor(w, state)
	}
}

func renderJSON(w io.Writer, state forecast.State, src *Source) error {
	out := jsonOutput{State: state, Worst: state.Worst(), Title: state.Title()}
	if src != nil && src.Cached {
		out.Cache = src
	}
	data, err := sonic.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func renderPlain(w io.Writer, state forecast.State) error {
	if state.IsError() {
		_, err := fmt.Fprintf(w, "error: %s\n", state.Error)
		return err
	}
	parts := make([]string, 0, 2)
	for _, b := range state.Bars() {
		part := fmt.Sprintf("%s: %.0f%% -> %.0f%% [%s] (%s", b.Label, b.Utilization, b.Projected, b.Color.Indicator(), b.ResetDisplay)
		if b.GapDisplay != "" {
			part += ", " + b.GapDisplay
		}
		parts = append(parts, part+")")
	}
	if len(parts) == 0 {
		parts = append(parts, "no usage data")
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, "  "))
	return err
}

func renderColor(w io.Writer, state forecast.State) error {
	prefix := "tokentorch"
	if state.IsError() {
		red := severityColor(forecast.Red)
		_, err := fmt.Fprintf(w, "%s  %s\n", prefix, red.Sprint(state.Error))
		return err
	}

	bars := state.Bars()
	if len(bars) == 0 {
		_, err := fmt.Fprintf(w, "%s  no usage data\n", prefix)
		return err
	}

	labelWidth := 0
	for _, b := range bars {
		labelWidth = max(labelWidth, runewidth.StringWidth(b.Label))
	}

	for i, b := range bars {
		lead := prefix
		if i > 0 {
			lead = strings.Repeat(" ", runewidth.StringWidth(prefix))
		}
		c := severityColor(b.Color)
		line := fmt.Sprintf("%s  %s %s %3.0f%%  -> %3.0f%%  %s",
			lead,
			runewidth.FillRight(b.Label, labelWidth),
			c.Sprint(bar(b.Utilization)),
			b.Utilization,
			b.Projected,
			b.ResetDisplay,
		)
		if b.GapDisplay != "" {
			line += "  " + c.Sprint(b.GapDisplay)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func severityColor(s forecast.Severity) *color.Color {
	var c *color.Color
	switch s {
	case forecast.Green:
		c = color.New(color.FgGreen)
	case forecast.Yellow:
		c = color.New(color.FgYellow)
	case forecast.Red:
		c = color.New(color.FgRed)
	case forecast.RedBlink:
		c = color.New(color.FgRed, color.Bold, color.BlinkSlow)
	default:
		c = color.New(color.FgHiBlack)
	}
	c.EnableColor()
	return c
}

func bar(pct float64) string {
	filled := int(math.Round(pct / 100 * barWidth))
	filled = min(max(filled, 0), barWidth)
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}
