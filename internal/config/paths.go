package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "blinksync"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	dbFileName     = "blinksync.db"
	tokenFileName  = "token.json"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/blinksync).
// On macOS, uses ~/Library/Application Support/blinksync per Apple
// guidelines. Other platforms fall back to ~/.config/blinksync.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_CONFIG_HOME", ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (the state database and the token cache). On Linux, respects
// XDG_DATA_HOME (defaults to ~/.local/share/blinksync). On macOS, config
// and data share one directory per platform convention.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDir(home, "XDG_DATA_HOME", filepath.Join(".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// linuxDir resolves an XDG base directory, falling back under $HOME.
func linuxDir(home, xdgVar, fallback string) string {
	if xdg := os.Getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), configFileName)
}

// DefaultDBPath returns the full path to the default state database.
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), dbFileName)
}

// DefaultTokenPath returns the full path to the default token cache file.
func DefaultTokenPath() string {
	return filepath.Join(DefaultDataDir(), tokenFileName)
}
