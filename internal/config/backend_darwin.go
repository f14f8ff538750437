//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.scour.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "scour")
	}
	return "scour-data"
}

func secretStoreHint(account string) string {
	return fmt.Sprintf("the login Keychain: security add-generic-password -s %s -a %s -w <value>", keychainService, account)
}

// defaultsBackend reads and writes the app's `defaults` domain.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain}
}

// run executes `defaults` and reports ok=false when the key does not exist,
// which `defaults` signals with exit status 1.
func (b *defaultsBackend) run(args ...string) (out string, ok bool, err error) {
	raw, err := exec.Command("defaults", args...).CombinedOutput()
	out = strings.TrimSpace(string(raw))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults %s: %w: %s", args[0], err, out)
	}
	return out, true, nil
}

// GetString returns scalars as-is and arrays, which `defaults` prints as
// "(\n    a,\n    b\n)", as a comma-separated list.
func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	s, ok, err := b.run("read", b.domain, key)
	if !ok || err != nil {
		return "", ok, err
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		var items []string
		for _, line := range strings.Split(strings.Trim(s, "()"), "\n") {
			item := strings.Trim(strings.TrimSpace(line), `,"`)
			if item != "" {
				items = append(items, item)
			}
		}
		return strings.Join(items, ","), true, nil
	}
	return s, true, nil
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.run("read", b.domain, key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	_, _, err := b.run("write", b.domain, key, "-string", val)
	return err
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	_, _, err := b.run("write", b.domain, key, "-int", strconv.Itoa(val))
	return err
}

// Delete is a no-op for keys that were never set.
func (b *defaultsBackend) Delete(key string) error {
	_, _, err := b.run("delete", b.domain, key)
	return err
}
