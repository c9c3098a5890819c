// Package cli implements the curator command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/curator/internal/optimistic"
	"github.com/mesh-intelligence/curator/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	metrics   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "curator" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags = rootFlags{}

	root := &cobra.Command{
		Use:   "curator",
		Short: "Reconcile edited collections against stored ones",
		Long: "Curator saves user-edited lists of slots and associations by computing\n" +
			"the minimal writes against what is stored, and commits single-field\n" +
			"edits optimistically.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: per-user config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.curator-db)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&flags.metrics, "metrics", false, "print metrics collected during the run to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newSlotsCmd())
	root.AddCommand(newAssocCmd())
	root.AddCommand(newRecordCmd())
	root.AddCommand(newFieldCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "curator:", err)
	}
	os.Exit(exitCode(err))
}

// systemError marks failures of the environment rather than of the input.
type systemError struct{ err error }

func (e *systemError) Error() string { return e.err.Error() }
func (e *systemError) Unwrap() error { return e.err }

func sysErr(format string, args ...any) error {
	return &systemError{err: fmt.Errorf(format, args...)}
}

// exitCode maps an error to the process exit code. Storage and commit
// failures are system errors; everything else is the user's input.
func exitCode(err error) int {
	var se *systemError
	switch {
	case err == nil:
		return exitSuccess
	case errors.As(err, &se),
		errors.Is(err, types.ErrPartialBatch),
		errors.Is(err, types.ErrReplaceInconsistent),
		errors.Is(err, types.ErrMutationReverted),
		errors.Is(err, types.ErrStoreDetached),
		errors.Is(err, optimistic.ErrClosed):
		return exitSysError
	default:
		return exitUserError
	}
}
