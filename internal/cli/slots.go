package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/curator/internal/reconcile"
	"github.com/mesh-intelligence/curator/pkg/types"
)

func newSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage ordered slot lists",
	}
	cmd.AddCommand(newSlotsListCmd(), newSlotsSaveCmd(), newSlotsAssignCmd(), newSlotsUnassignCmd())
	return cmd
}

func newSlotsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <container>",
		Short: "List the slots of a container in order",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			slots, err := a.backend.FetchSlots(cmd.Context(), args[0])
			if err != nil {
				return sysErr("fetch slots: %w", err)
			}
			if flags.jsonMode {
				return printJSON(cmd, slots)
			}
			for _, s := range slots {
				assigned := "-"
				if s.AssignedTo != nil {
					assigned = *s.AssignedTo
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", s.OrderIndex, s.SlotID, s.Title, assigned)
			}
			return nil
		}),
	}
}

func newSlotsSaveCmd() *cobra.Command {
	var (
		capacity int
		strategy string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "save <container> <title>...",
		Short: "Save the desired slot list of a container",
		Long: `Save reconciles the desired list against the stored slots and applies
the minimal creates, updates and deletes. Pass "" for a blank entry.

With --strategy identity each entry is <slot-id>=<title> for an existing
slot or a bare <title> for a new one; <slot-id>= clears that slot.

Example:
  curator slots save book-1 --capacity 3 "Intro" "Methods" "" "Results"
  curator slots save book-1 --capacity 2 --strategy identity 0192...=Intro Outro`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			containerID, entries := args[0], args[1:]
			if !cmd.Flags().Changed("strategy") {
				strategy = a.config.MatchStrategy()
			}
			if dryRun {
				return previewSlots(cmd, a, containerID, entries, capacity, strategy)
			}

			var (
				batch types.OperationBatch
				err   error
			)
			switch strategy {
			case types.StrategyPositional:
				batch, err = a.exec.SaveSlots(cmd.Context(), containerID, entries, capacity)
			case types.StrategyIdentity:
				batch, err = a.exec.SaveSlotsByIdentity(cmd.Context(), containerID, parseDesiredSlots(entries), capacity)
			default:
				return fmt.Errorf("strategy %q: %w", strategy, types.ErrStrategyUnknown)
			}
			if err != nil {
				return err
			}
			return printBatch(cmd, batch)
		}),
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the operations and resulting list without writing")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "number of non-blank slots the container must hold")
	cmd.Flags().StringVar(&strategy, "strategy", types.StrategyPositional, "slot matching: positional or identity (default from config)")
	_ = cmd.MarkFlagRequired("capacity")
	return cmd
}

// previewSlots reconciles without executing and prints the batch followed
// by the list it would produce.
func previewSlots(cmd *cobra.Command, a *app, containerID string, entries []string, capacity int, strategy string) error {
	persisted, err := a.backend.FetchSlots(cmd.Context(), containerID)
	if err != nil {
		return sysErr("fetch slots: %w", err)
	}

	var batch types.OperationBatch
	switch strategy {
	case types.StrategyPositional:
		batch, err = reconcile.Positional(containerID, entries, persisted, capacity)
	case types.StrategyIdentity:
		batch, err = reconcile.ByIdentity(containerID, parseDesiredSlots(entries), persisted, capacity)
	default:
		err = fmt.Errorf("strategy %q: %w", strategy, types.ErrStrategyUnknown)
	}
	if err != nil {
		return err
	}
	next, err := reconcile.ApplySlots(persisted, batch)
	if err != nil {
		return err
	}

	if flags.jsonMode {
		return printJSON(cmd, map[string]any{"batch": batch, "slots": next})
	}
	if err := printBatch(cmd, batch); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "--")
	for _, s := range next {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", s.OrderIndex, s.Title)
	}
	return nil
}

// parseDesiredSlots reads identity-mode entries: "<slot-id>=<title>" or a
// bare title.
func parseDesiredSlots(entries []string) []types.DesiredSlot {
	out := make([]types.DesiredSlot, len(entries))
	for i, e := range entries {
		if id, title, ok := strings.Cut(e, "="); ok {
			out[i] = types.DesiredSlot{SlotID: id, Title: title}
			continue
		}
		out[i] = types.DesiredSlot{Title: e}
	}
	return out
}

func newSlotsAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <slot-id> <assignee>",
		Short: "Protect a slot by assigning it",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			assignee := args[1]
			if err := a.backend.AssignSlot(cmd.Context(), args[0], &assignee); err != nil {
				return fmt.Errorf("assign slot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "slot %s assigned to %s\n", args[0], assignee)
			return nil
		}),
	}
}

func newSlotsUnassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <slot-id>",
		Short: "Clear a slot's assignment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.backend.AssignSlot(cmd.Context(), args[0], nil); err != nil {
				return fmt.Errorf("unassign slot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "slot %s unassigned\n", args[0])
			return nil
		}),
	}
}
