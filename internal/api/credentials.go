package api

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	SessionKeyEnv = "TOKENTORCH_SESSION_KEY"

	keychainService = "com.tokentorch.app"
	keychainAccount = "session_key"
)

var ErrNoCredentials = errors.New("no session key configured, run `tokentorch login`")

// useKeychain is false off macOS and in tests.
var useKeychain = runtime.GOOS == "darwin"

// ReadSessionKey tries, in order:
//  1. TOKENTORCH_SESSION_KEY env var
//  2. macOS Keychain (security find-generic-password)
//  3. the credentials file under the user config dir
func ReadSessionKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(SessionKeyEnv)); key != "" {
		return key, nil
	}

	if useKeychain {
		if key, err := readKeychain(); err == nil {
			return key, nil
		}
	}

	return readCredentialsFile()
}

// SaveSessionKey stores key in the Keychain on macOS and in a 0600 file
// elsewhere.
func SaveSessionKey(key string) error {
	if useKeychain {
		return writeKeychain(key)
	}
	return writeCredentialsFile(key)
}

func readKeychain() (string, error) {
	out, err := exec.Command("security", "find-generic-password",
		"-s", keychainService, "-a", keychainAccount, "-w").Output()
	if err != nil {
		return "", fmt.Errorf("keychain: %w", err)
	}
	key := strings.TrimSpace(string(out))
	if key == "" {
		return "", fmt.Errorf("keychain: empty value")
	}
	return key, nil
}

func writeKeychain(key string) error {
	// -U updates an existing item in place.
	err := exec.Command("security", "add-generic-password", "-U",
		"-s", keychainService, "-a", keychainAccount, "-w", key).Run()
	if err != nil {
		return fmt.Errorf("keychain: %w", err)
	}
	return nil
}

func CredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(dir, "tokentorch", "credentials"), nil
}

func readCredentialsFile() (string, error) {
	path, err := CredentialsPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCredentials
	}
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoCredentials
	}
	return key, nil
}

func writeCredentialsFile(key string) error {
	path, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmp, path)
}
