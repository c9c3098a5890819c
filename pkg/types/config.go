package types

import "errors"

// Config holds backend selection and reconciliation parameters for
// Store.Attach and the executor.
type Config struct {
	Backend       string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir       string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	DSN           string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	AtomicBatches bool   `json:"atomic_batches" yaml:"atomic_batches" mapstructure:"atomic_batches"`
	Strategy      string `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	LogLevel      string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Slot matching strategies used by the diff reconciler.
const (
	StrategyPositional = "positional"
	StrategyIdentity   = "identity"
)

// Config validation errors.
var (
	ErrBackendEmpty    = errors.New("backend must not be empty")
	ErrBackendUnknown  = errors.New("unknown backend")
	ErrDSNEmpty        = errors.New("postgres backend requires a dsn")
	ErrStrategyUnknown = errors.New("unknown matching strategy")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
}

// Validate checks that the Config is well-formed. An empty Strategy is
// accepted and means positional matching.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.DSN == "" {
		return ErrDSNEmpty
	}
	switch c.Strategy {
	case "", StrategyPositional, StrategyIdentity:
	default:
		return ErrStrategyUnknown
	}
	return nil
}

// MatchStrategy returns the effective slot matching strategy.
func (c Config) MatchStrategy() string {
	if c.Strategy == "" {
		return StrategyPositional
	}
	return c.Strategy
}
