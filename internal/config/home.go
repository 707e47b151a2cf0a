// Package config resolves the codex home directory and loads the runtime
// configuration for the escalation server and sandbox defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnvVar overrides the default codex home location.
const HomeEnvVar = "CODEX_HOME"

const homeDirName = ".codex"

// CodexHome resolves the codex home directory: $CODEX_HOME when set,
// otherwise ~/.codex. The directory is not created.
func CodexHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		abs, err := filepath.Abs(home)
		if err != nil {
			return "", fmt.Errorf("config: resolve %s: %w", HomeEnvVar, err)
		}
		return abs, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(userHome, homeDirName), nil
}

// EnsureCodexHome resolves the codex home and creates it if missing.
func EnsureCodexHome() (string, error) {
	home, err := CodexHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return "", fmt.Errorf("config: create codex home %s: %w", home, err)
	}
	return home, nil
}
