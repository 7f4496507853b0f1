package tray

import (
	"github.com/rs/zerolog"

	"github.com/tnunamak/tokentorch/internal/monitor"
	"github.com/tnunamak/tokentorch/internal/update"
)

// App is everything the tray front end needs. The monitor is started by the
// tray once the menu exists.
type App struct {
	Monitor    *monitor.Monitor
	Updates    *update.Watcher // optional
	Checker    *update.Checker
	ConfigPath string
	Version    string
	Logger     zerolog.Logger

	frames frames
}
