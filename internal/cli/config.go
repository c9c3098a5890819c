package cli

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/curator/internal/paths"
	"github.com/mesh-intelligence/curator/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeyDSN           = "dsn"
	cfgKeyAtomicBatches = "atomic_batches"
	cfgKeyStrategy      = "strategy"
	cfgKeyLogLevel      = "log_level"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Curator configuration

# Storage backend: sqlite or postgres
backend: sqlite

# SQLite data directory (overridable by --data-dir)
# data_dir:

# Postgres connection string, also read from CURATOR_DSN
# dsn:

# Run each batch in a single transaction
atomic_batches: false

# Slot matching: positional or identity
strategy: positional

# debug, info, warn or error
log_level: warn
`

// loadConfig reads config.yaml from configDir, creating the directory and
// a default file when missing. Environment variables CURATOR_DSN and
// CURATOR_LOG_LEVEL override the file.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyStrategy, types.StrategyPositional)
	v.SetDefault(cfgKeyAtomicBatches, false)
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	for key, env := range map[string]string{cfgKeyDSN: "CURATOR_DSN", cfgKeyLogLevel: "CURATOR_LOG_LEVEL"} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile writes the default config.yaml if none exists.
func ensureDefaultConfigFile(configDir string) error {
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// resolveConfig loads config.yaml and applies the data directory
// precedence. The result is validated.
func resolveConfig() (types.Config, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return types.Config{}, sysErr("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return types.Config{}, sysErr("%w", err)
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Backend == types.BackendSQLite {
		cfg.DataDir, err = paths.ResolveDataDir(flags.dataDir, cfg.DataDir)
		if err != nil {
			return types.Config{}, sysErr("resolve data dir: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("config %s: %w", paths.ConfigFile(configDir), err)
	}
	return cfg, nil
}
