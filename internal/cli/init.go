package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/curator/internal/sqlstore"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize curator storage",
		Long:  "Create the configuration directory with a default config.yaml, then initialize the storage backend.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	backend := sqlstore.NewBackend()
	if err := backend.Attach(cfg); err != nil {
		return sysErr("initialize storage: %w", err)
	}
	if err := backend.Detach(); err != nil {
		return sysErr("finalize storage: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Curator initialized successfully")
	return nil
}
