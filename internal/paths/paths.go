// Package paths resolves where curator keeps its configuration and data.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "curator"

// Directory and file names.
const (
	DefaultDataDirName = ".curator-db"
	ConfigFileName     = "config.yaml"
)

// Environment overrides.
const (
	EnvConfigDir = "CURATOR_CONFIG_DIR"
	EnvDataDir   = "CURATOR_DATA_DIR"
)

// platform holds OS lookups; tests replace them.
var platform = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// xdgDir returns $xdgVar/curator on Linux, falling back to
// ~/<fallback>/curator. Other platforms use os.UserConfigDir.
func xdgDir(xdgVar string, fallback ...string) (string, error) {
	if platform.goos != "linux" {
		dir, err := platform.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if v := os.Getenv(xdgVar); v != "" {
		return filepath.Join(v, AppName), nil
	}
	home, err := platform.homeDir()
	if err != nil {
		return "", err
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, AppName)...), nil
}

// DefaultConfigDir returns the per-user configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/curator (fallback ~/.config/curator)
// macOS:   ~/Library/Application Support/curator
// Windows: %APPDATA%/curator
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the per-user data directory. Resolution does not
// use it unless asked; the working-directory default wins.
//
// Linux:   $XDG_DATA_HOME/curator (fallback ~/.local/share/curator)
// macOS and Windows: same as DefaultConfigDir.
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir picks the configuration directory: flag, then
// CURATOR_CONFIG_DIR, then DefaultConfigDir. Explicit values are made
// absolute.
func ResolveConfigDir(flag string) (string, error) {
	for _, v := range []string{flag, os.Getenv(EnvConfigDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the SQLite data directory: flag, then the
// data_dir value from config.yaml, then CURATOR_DATA_DIR, then
// $(CWD)/.curator-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	cwd, err := platform.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the path of config.yaml inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}
