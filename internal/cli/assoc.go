package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/curator/internal/publish"
	"github.com/mesh-intelligence/curator/pkg/types"
)

func newAssocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assoc",
		Short: "Manage draft/published association sets",
	}
	cmd.AddCommand(
		newAssocListCmd(),
		newAssocSaveCmd("draft", "Save associations as a draft", (*publish.Machine).SaveDraft),
		newAssocSaveCmd("publish", "Publish associations", (*publish.Machine).Publish),
		newAssocUnpublishCmd(),
		newAssocStatusCmd(),
	)
	return cmd
}

func machine(a *app) *publish.Machine {
	return publish.NewMachine(a.backend, a.exec, a.logger)
}

func newAssocListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <container>",
		Short: "List the associations of a container",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			rows, err := a.backend.FetchAssociations(cmd.Context(), args[0])
			if err != nil {
				return sysErr("fetch associations: %w", err)
			}
			if flags.jsonMode {
				return printJSON(cmd, rows)
			}
			for _, r := range rows {
				payload, _ := json.Marshal(r.Payload)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.SubjectID, r.Status, payload)
			}
			return nil
		}),
	}
}

type saveFunc func(*publish.Machine, context.Context, string, []types.Association) (types.OperationBatch, error)

func newAssocSaveCmd(use, short string, save saveFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <container> [subject[=json-payload]]...",
		Short: short,
		Long: short + ` of a container, replacing every stored row.
With no subjects the container is emptied.

Example:
  curator assoc ` + use + ` period-7 prize-1 'prize-2={"note":"runner-up"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			desired, err := parseAssociations(args[1:])
			if err != nil {
				return err
			}
			batch, err := save(machine(a), cmd.Context(), args[0], desired)
			if err != nil {
				return err
			}
			return printBatch(cmd, batch)
		}),
	}
}

// parseAssociations reads "subject" or "subject={...}" arguments.
func parseAssociations(args []string) ([]types.Association, error) {
	out := make([]types.Association, 0, len(args))
	for _, arg := range args {
		subject, raw, ok := strings.Cut(arg, "=")
		a := types.Association{SubjectID: subject}
		if ok {
			if err := json.Unmarshal([]byte(raw), &a.Payload); err != nil {
				return nil, fmt.Errorf("payload of %s: %w", subject, types.ErrInvalidPayload)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func newAssocUnpublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpublish <container>",
		Short: "Return a published container to draft",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			batch, err := machine(a).Unpublish(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printBatch(cmd, batch)
		}),
	}
}

func newAssocStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <container>",
		Short: "Show the derived status of a container",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			status, ok, err := machine(a).Status(cmd.Context(), args[0])
			if err != nil {
				return sysErr("%w", err)
			}
			if !ok {
				status = "empty"
			}
			if flags.jsonMode {
				return printJSON(cmd, map[string]any{"container_id": args[0], "status": status, "published": status == types.StatusPublished})
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		}),
	}
}
