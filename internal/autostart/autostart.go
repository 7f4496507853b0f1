package autostart

import (
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// entry is the per-OS login item that starts `tokentorch tray`.
type entry struct {
	path   func() (string, error)
	render func(args []string) string
	// loaded and unloaded run after the file is written or before it is removed.
	loaded   func(path string) error
	unloaded func(path string) error
}

func entryFor(goos string) (*entry, error) {
	switch goos {
	case "linux":
		return &entry{path: desktopPath, render: desktopFile}, nil
	case "darwin":
		return &entry{
			path:     launchAgentPath,
			render:   launchAgent,
			loaded:   func(p string) error { return exec.Command("launchctl", "load", p).Run() },
			unloaded: func(p string) error { return exec.Command("launchctl", "unload", p).Run() },
		}, nil
	default:
		return nil, fmt.Errorf("autostart not supported on %s", goos)
	}
}

// Install registers the running binary to start the tray at login. A
// non-empty configPath is passed through with --config.
func Install(configPath string) error {
	e, err := entryFor(runtime.GOOS)
	if err != nil {
		return err
	}
	bin, err := execPath()
	if err != nil {
		return err
	}
	return e.install(trayArgs(bin, configPath))
}

func Uninstall() error {
	e, err := entryFor(runtime.GOOS)
	if err != nil {
		return err
	}
	return e.uninstall()
}

// Installed reports whether launch at login is currently enabled.
func Installed() bool {
	e, err := entryFor(runtime.GOOS)
	if err != nil {
		return false
	}
	return e.installed()
}

func (e *entry) install(args []string) error {
	path, err := e.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(e.render(args)), 0644); err != nil {
		return err
	}
	if e.loaded != nil {
		return e.loaded(path)
	}
	return nil
}

func (e *entry) uninstall() error {
	path, err := e.path()
	if err != nil {
		return err
	}
	if e.unloaded != nil {
		_ = e.unloaded(path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (e *entry) installed() bool {
	path, err := e.path()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func trayArgs(bin, configPath string) []string {
	args := []string{bin, "tray"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

func execPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

// Linux: XDG autostart .desktop file

func desktopPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "autostart", "tokentorch.desktop"), nil
}

func desktopFile(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}
		quoted[i] = a
	}
	return "[Desktop Entry]\n" +
		"Type=Application\n" +
		"Name=tokentorch\n" +
		"Comment=Claude usage forecast\n" +
		"Exec=" + strings.Join(quoted, " ") + "\n" +
		"Terminal=false\n" +
		"X-GNOME-Autostart-enabled=true\n"
}

// macOS: LaunchAgent plist

const launchAgentLabel = "com.tokentorch.tray"

func launchAgentPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchAgentLabel+".plist"), nil
}

func launchAgent(args []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>` + launchAgentLabel + `</string>
    <key>ProgramArguments</key>
    <array>
`)
	for _, a := range args {
		fmt.Fprintf(&b, "        <string>%s</string>\n", html.EscapeString(a))
	}
	b.WriteString(`    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`)
	return b.String()
}
