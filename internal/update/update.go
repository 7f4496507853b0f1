package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/mod/semver"
)

const (
	Repo          = "tnunamak/tokentorch"
	DefaultAPIURL = "https://api.github.com/repos/" + Repo + "/releases/latest"
	httpTimeout   = 15 * time.Second
	binaryName    = "tokentorch"
)

type Release struct {
	Version string
	URL     string
}

type ghRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Checker queries the latest GitHub release.
type Checker struct {
	APIURL      string
	DownloadURL string // release download base, e.g. https://github.com/<repo>/releases/download
	HTTP        *http.Client
}

func NewChecker() *Checker {
	return &Checker{
		APIURL:      DefaultAPIURL,
		DownloadURL: "https://github.com/" + Repo + "/releases/download",
		HTTP:        &http.Client{Timeout: httpTimeout},
	}
}

// Check returns the latest release if it is newer than currentVersion, or
// nil when up to date. Development builds never update.
func (c *Checker) Check(ctx context.Context, currentVersion string) (*Release, error) {
	if currentVersion == "dev" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL, nil)
	if err != nil {
		return nil, fmt.Errorf("check update: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check update: GitHub API returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("check update: %w", err)
	}
	var rel ghRelease
	if err := sonic.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("check update: %w", err)
	}

	if !Newer(rel.TagName, currentVersion) {
		return nil, nil
	}

	url := fmt.Sprintf("%s/%s/%s-%s-%s", c.DownloadURL, rel.TagName, binaryName, runtime.GOOS, runtime.GOARCH)
	return &Release{Version: rel.TagName, URL: url}, nil
}

// Newer reports whether latest is a higher version than current. Tags that
// are not semantic versions fall back to a plain inequality test.
func Newer(latest, current string) bool {
	if latest == "" {
		return false
	}
	l, c := withV(latest), withV(current)
	if semver.IsValid(l) && semver.IsValid(c) {
		return semver.Compare(l, c) > 0
	}
	return latest != current
}

func withV(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// Apply downloads the binary from url, verifies it, and replaces the
// currently running executable. The caller should restart after Apply returns.
func (c *Checker) Apply(ctx context.Context, url string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("resolve symlinks: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "tokentorch-update-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpBin := filepath.Join(tmpDir, binaryName)
	if err := c.download(ctx, url, tmpBin); err != nil {
		return err
	}

	// macOS quarantine
	if runtime.GOOS == "darwin" {
		_ = exec.Command("xattr", "-d", "com.apple.quarantine", tmpBin).Run()
	}

	// Smoke test the new binary before swapping it in.
	if err := exec.CommandContext(ctx, tmpBin, "version").Run(); err != nil {
		return fmt.Errorf("verify binary: %w", err)
	}

	// os.Rename fails across filesystems; fall back to copy.
	if err := os.Rename(tmpBin, exe); err != nil {
		if err := copyFile(tmpBin, exe); err != nil {
			return fmt.Errorf("replace binary: %w", err)
		}
	}
	return nil
}

func (c *Checker) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	client := &http.Client{Timeout: 60 * time.Second, Transport: c.HTTP.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write binary: %w", err)
	}
	return f.Close()
}

// Restart launches a new tray process and returns. The caller should
// exit after calling this.
func Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, "tray")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Chmod(0755)
}

// StripV removes a leading "v" prefix for display: "v1.2.3" -> "1.2.3".
func StripV(version string) string {
	return strings.TrimPrefix(version, "v")
}
