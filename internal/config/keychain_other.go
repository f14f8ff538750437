//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "scour", "secrets.json")
}

// readSecret reads a secret from secrets.json, laid out as
// {"<service>": {"<account>": "<value>"}}. It stands in for the macOS
// Keychain on other platforms. A missing file counts as an empty store.
func readSecret(service, account string) (string, error) {
	data, err := os.ReadFile(secretsFilePath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no secrets file", errSecretNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading secrets file: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", errSecretNotFound, service, account)
	}
	return strings.TrimSpace(val), nil
}
