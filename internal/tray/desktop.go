package tray

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tnunamak/tokentorch/internal/forecast"
	"github.com/tnunamak/tokentorch/internal/monitor"
)

const blinkInterval = 500 * time.Millisecond

// notifyCommand builds the desktop notification command for goos, or nil
// where none is supported.
func notifyCommand(goos string, a monitor.Alert) *exec.Cmd {
	switch goos {
	case "linux":
		return exec.Command("notify-send", "-a", "tokentorch", "-u", string(a.Urgency), a.Title, a.Body)
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, a.Body, a.Title)
		return exec.Command("osascript", "-e", script)
	default:
		return nil
	}
}

// openCommand opens a URL or file with the desktop's default handler.
func openCommand(goos, target string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", target)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		return exec.Command("xdg-open", target)
	}
}

func notify(a monitor.Alert) error {
	cmd := notifyCommand(runtime.GOOS, a)
	if cmd == nil {
		return nil
	}
	return cmd.Run()
}

func open(target string) error {
	return openCommand(runtime.GOOS, target).Start()
}

// menuLine is the text of one bar's menu item.
func menuLine(label string, bar *forecast.UsageBar) string {
	if bar == nil {
		return label + ": --"
	}
	parts := []string{
		fmt.Sprintf("%s: %.0f%% (projected %.0f%%)", label, bar.Utilization, bar.Projected),
		bar.ResetDisplay,
	}
	if bar.GapDisplay != "" {
		parts = append(parts, bar.GapDisplay)
	}
	return strings.Join(parts, " | ")
}

// tooltip summarizes the state for the icon hover text.
func tooltip(state forecast.State) string {
	if state.IsError() {
		return "tokentorch: " + state.Error
	}
	return fmt.Sprintf("tokentorch %s (%s)", state.Title(), state.Worst().Indicator())
}

// frames serializes icon drawing between state renders and the blink loop.
// The blink flag is read under the same lock, so a blank frame never lands
// after the render that cleared it.
type frames struct {
	mu    sync.Mutex
	blank bool
}

// show draws the full icon for a new state.
func (f *frames) show(draw func(blank bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blank = false
	draw(false)
}

// tick advances the blink animation. When blinking has stopped while the
// blank frame is showing, the full icon is restored.
func (f *frames) tick(blinking func() bool, draw func(blank bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !blinking() {
		if f.blank {
			f.blank = false
			draw(false)
		}
		return
	}
	f.blank = !f.blank
	draw(f.blank)
}

// menuLines returns the session, weekly and status menu titles. Bars are
// cleared on error so old numbers do not read as current.
func menuLines(state forecast.State) (session, weekly, status string) {
	if state.IsError() {
		return menuLine(forecast.KindSession.Label(), nil),
			menuLine(forecast.KindWeekly.Label(), nil),
			"Error: " + state.Error
	}
	return menuLine(forecast.KindSession.Label(), state.Session),
		menuLine(forecast.KindWeekly.Label(), state.Weekly),
		"Updated " + state.LastUpdated.Local().Format(time.Kitchen)
}
