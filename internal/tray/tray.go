//go:build tray

package tray

import (
	"context"
	"fmt"
	"image"
	"time"

	"fyne.io/systray"

	"github.com/tnunamak/tokentorch/internal/api"
	"github.com/tnunamak/tokentorch/internal/autostart"
	"github.com/tnunamak/tokentorch/internal/forecast"
	"github.com/tnunamak/tokentorch/internal/icon"
	"github.com/tnunamak/tokentorch/internal/monitor"
	"github.com/tnunamak/tokentorch/internal/update"
)

type menu struct {
	update    *systray.MenuItem
	session   *systray.MenuItem
	weekly    *systray.MenuItem
	status    *systray.MenuItem
	refresh   *systray.MenuItem
	usage     *systray.MenuItem
	settings  *systray.MenuItem
	autostart *systray.MenuItem
	quit      *systray.MenuItem
}

// Run shows the tray icon and blocks until the user quits.
func Run(app *App) int {
	ctx, cancel := context.WithCancel(context.Background())
	systray.Run(func() { onReady(ctx, app) }, cancel)
	return 0
}

func onReady(ctx context.Context, app *App) {
	logger := app.Logger.With().Str("component", "tray").Logger()
	layout := icon.DefaultLayout()

	setIcon(app, icon.Blank(layout))
	systray.SetTitle("tokentorch")
	systray.SetTooltip("Claude usage forecast")

	m := &menu{}
	m.update = systray.AddMenuItem("", "Download and install the new release")
	m.update.Hide()
	m.session = systray.AddMenuItem(menuLine(forecast.KindSession.Label(), nil), "")
	m.session.Disable()
	m.weekly = systray.AddMenuItem(menuLine(forecast.KindWeekly.Label(), nil), "")
	m.weekly.Disable()
	m.status = systray.AddMenuItem("Waiting for first poll", "")
	m.status.Disable()
	systray.AddSeparator()
	m.refresh = systray.AddMenuItem("Refresh Now", "")
	m.usage = systray.AddMenuItem("Open claude.ai Usage", "")
	m.settings = systray.AddMenuItem("Settings", "Open the configuration file")
	m.autostart = systray.AddMenuItemCheckbox("Launch at Login", "", autostart.Installed())
	systray.AddSeparator()
	m.quit = systray.AddMenuItem("Quit", "")

	app.Monitor.Subscribe(func(u monitor.Update) {
		render(app, layout, m, u.State)
		if u.Alert != nil {
			alert := *u.Alert
			go func() {
				if err := notify(alert); err != nil {
					logger.Debug().Err(err).Msg("Desktop notification failed")
				}
			}()
		}
	})

	if app.Updates != nil {
		app.Updates.OnUpdate(func(rel *update.Release) {
			m.update.SetTitle(fmt.Sprintf("Update to %s", update.StripV(rel.Version)))
			m.update.Show()
		})
		if err := app.Updates.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("Update checks disabled")
		}
	}

	go app.Monitor.Run(ctx)
	go blinkLoop(ctx, app, layout)
	go handleClicks(ctx, app, m)
}

func handleClicks(ctx context.Context, app *App, m *menu) {
	logger := app.Logger.With().Str("component", "tray").Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.refresh.ClickedCh:
			app.Monitor.Refresh()
		case <-m.usage.ClickedCh:
			if err := open(api.UsagePageURL); err != nil {
				logger.Warn().Err(err).Msg("Failed to open browser")
			}
		case <-m.settings.ClickedCh:
			if err := open(app.ConfigPath); err != nil {
				logger.Warn().Err(err).Str("path", app.ConfigPath).Msg("Failed to open settings")
			}
		case <-m.autostart.ClickedCh:
			toggleAutostart(app, m.autostart)
		case <-m.update.ClickedCh:
			applyUpdate(ctx, app, m.update)
		case <-m.quit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func toggleAutostart(app *App, item *systray.MenuItem) {
	var err error
	if item.Checked() {
		err = autostart.Uninstall()
	} else {
		err = autostart.Install(app.ConfigPath)
	}
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to change launch at login")
	}
	if autostart.Installed() {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func applyUpdate(ctx context.Context, app *App, item *systray.MenuItem) {
	if app.Updates == nil || app.Checker == nil {
		return
	}
	rel := app.Updates.Latest()
	if rel == nil {
		return
	}
	item.SetTitle("Updating...")
	item.Disable()
	if err := app.Checker.Apply(ctx, rel.URL); err != nil {
		app.Logger.Error().Err(err).Str("version", rel.Version).Msg("Update failed")
		item.SetTitle(fmt.Sprintf("Update to %s (failed, retry)", update.StripV(rel.Version)))
		item.Enable()
		return
	}
	if err := update.Restart(); err != nil {
		app.Logger.Error().Err(err).Msg("Restart after update failed")
		return
	}
	systray.Quit()
}

func render(app *App, layout icon.Layout, m *menu, state forecast.State) {
	app.frames.show(func(bool) { setIcon(app, icon.Render(layout, state)) })
	systray.SetTooltip(tooltip(state))

	if state.IsError() {
		systray.SetTitle("tokentorch")
	} else {
		systray.SetTitle(state.Title())
	}
	session, weekly, status := menuLines(state)
	m.session.SetTitle(session)
	m.weekly.SetTitle(weekly)
	m.status.SetTitle(status)
}

// blinkLoop alternates the icon with an empty frame while the monitor's
// blink flag is set.
func blinkLoop(ctx context.Context, app *App, layout icon.Layout) {
	ticker := time.NewTicker(blinkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		app.frames.tick(app.Monitor.Blinking, func(blank bool) {
			if blank {
				setIcon(app, icon.Blank(layout))
			} else {
				setIcon(app, icon.Render(layout, app.Monitor.State()))
			}
		})
	}
}

func setIcon(app *App, img image.Image) {
	data, err := icon.PNG(img)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to encode tray icon")
		return
	}
	systray.SetIcon(data)
}
