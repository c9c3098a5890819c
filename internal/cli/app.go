package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/curator/internal/executor"
	"github.com/mesh-intelligence/curator/internal/logging"
	"github.com/mesh-intelligence/curator/internal/metrics"
	"github.com/mesh-intelligence/curator/internal/sqlstore"
	"github.com/mesh-intelligence/curator/pkg/types"
)

// app is the attached backend and its collaborators for one invocation.
type app struct {
	config  types.Config
	backend *sqlstore.Backend
	logger  *zap.Logger
	metrics *metrics.Recorder
	exec    *executor.Executor
}

// openApp resolves configuration and attaches the backend. The caller
// must call close.
func openApp() (*app, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	backend := sqlstore.NewBackend()
	if err := backend.Attach(cfg); err != nil {
		return nil, sysErr("attach backend: %w", err)
	}

	rec := metrics.New()
	return &app{
		config:  cfg,
		backend: backend,
		logger:  logger,
		metrics: rec,
		exec: executor.New(backend,
			executor.WithLogger(logger),
			executor.WithMetrics(rec),
			executor.WithAtomic(cfg.AtomicBatches),
		),
	}, nil
}

// close detaches the backend and, with --metrics, dumps what was recorded.
func (a *app) close(cmd *cobra.Command) {
	if err := a.backend.Detach(); err != nil {
		a.logger.Warn("detach backend", zap.Error(err))
	}
	_ = a.logger.Sync()
	if flags.metrics {
		if err := a.metrics.WriteText(cmd.ErrOrStderr()); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "write metrics:", err)
		}
	}
}

// withApp runs fn with an attached app.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close(cmd)
		return fn(cmd, a, args)
	}
}

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysErr("marshal JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// printBatch reports the operations a save produced.
func printBatch(cmd *cobra.Command, batch types.OperationBatch) error {
	if flags.jsonMode {
		return printJSON(cmd, batch)
	}
	if batch.Empty() {
		fmt.Fprintln(cmd.OutOrStdout(), "no changes")
		return nil
	}
	for _, op := range batch.Ops() {
		fmt.Fprintln(cmd.OutOrStdout(), op.String())
	}
	return nil
}
