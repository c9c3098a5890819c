package paths

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform swaps the OS lookups for the duration of a test.
func fakePlatform(t *testing.T, goos string) {
	t.Helper()
	saved := platform
	t.Cleanup(func() { platform = saved })
	platform.goos = goos
	platform.homeDir = func() (string, error) { return "/home/ada", nil }
	platform.userConfigDir = func() (string, error) { return "/Users/ada/Library/Application Support", nil }
	platform.getwd = func() (string, error) { return "/work/project", nil }
}

func TestDefaultDirs(t *testing.T) {
	tests := []struct {
		name       string
		goos       string
		xdgConfig  string
		xdgData    string
		wantConfig string
		wantData   string
	}{
		{
			name:       "linux with XDG",
			goos:       "linux",
			xdgConfig:  "/xdg/config",
			xdgData:    "/xdg/data",
			wantConfig: "/xdg/config/curator",
			wantData:   "/xdg/data/curator",
		},
		{
			name:       "linux without XDG",
			goos:       "linux",
			wantConfig: "/home/ada/.config/curator",
			wantData:   "/home/ada/.local/share/curator",
		},
		{
			name:       "darwin ignores XDG",
			goos:       "darwin",
			xdgConfig:  "/xdg/config",
			wantConfig: "/Users/ada/Library/Application Support/curator",
			wantData:   "/Users/ada/Library/Application Support/curator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakePlatform(t, tt.goos)
			t.Setenv("XDG_CONFIG_HOME", tt.xdgConfig)
			t.Setenv("XDG_DATA_HOME", tt.xdgData)

			got, err := DefaultConfigDir()
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, got)

			got, err = DefaultDataDir()
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, got)
		})
	}
}

func TestDefaultConfigDir_HomeError(t *testing.T) {
	fakePlatform(t, "linux")
	platform.homeDir = func() (string, error) { return "", errors.New("no home") }
	t.Setenv("XDG_CONFIG_HOME", "")

	_, err := DefaultConfigDir()
	assert.Error(t, err)
}

func TestResolveConfigDir(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag wins over env", "/explicit/config", "/env/config", "/explicit/config"},
		{"env when flag empty", "", "/env/config", "/env/config"},
		{"platform default", "", "", "/home/ada/.config/curator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakePlatform(t, "linux")
			t.Setenv("XDG_CONFIG_HOME", "")
			t.Setenv(EnvConfigDir, tt.env)

			got, err := ResolveConfigDir(tt.flag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	tests := []struct {
		name   string
		flag   string
		config string
		env    string
		want   string
	}{
		{"flag wins over all", "/flag/data", "/config/data", "/env/data", "/flag/data"},
		{"config.yaml wins over env", "", "/config/data", "/env/data", "/config/data"},
		{"env when flag and config empty", "", "", "/env/data", "/env/data"},
		{"working directory default", "", "", "", "/work/project/.curator-db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakePlatform(t, "linux")
			t.Setenv(EnvDataDir, tt.env)

			got, err := ResolveDataDir(tt.flag, tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RelativeBecomesAbsolute(t *testing.T) {
	t.Setenv(EnvConfigDir, "relative/env")
	got, err := ResolveConfigDir("")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "got %s", got)

	t.Setenv(EnvDataDir, "")
	got, err = ResolveDataDir("", "relative/config")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got), "got %s", got)
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/curator", "config.yaml"), ConfigFile("/etc/curator"))
}
