package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/curator/internal/optimistic"
	"github.com/mesh-intelligence/curator/pkg/types"
)

func newFieldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Edit single fields",
	}
	cmd.AddCommand(newFieldSetCmd())
	return cmd
}

func newFieldSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <owner-id> <field> <value>",
		Short: "Write one field of a record, or the title of a slot",
		Long: `Set writes a field the way an editor does: the value is applied locally,
committed, and reverted if the commit fails. Grades are integers and
flags are true or false; text fields take the value as typed.

Fields: grade (1-10), feedback, approved, public, certificate_approved, title

Example:
  curator field set 0192... grade 8
  curator field set 0192... approved true`,
		Args: cobra.ExactArgs(3),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ownerID, field := args[0], args[1]
			value, err := types.ParseFieldValue(field, args[2])
			if err != nil {
				return fmt.Errorf("field %s: %w", field, err)
			}
			ctx := cmd.Context()

			c := optimistic.NewController(a.backend,
				optimistic.WithLogger(a.logger),
				optimistic.WithMetrics(a.metrics),
			)
			defer c.Close()

			r, err := a.backend.FetchRecord(ctx, ownerID)
			switch {
			case err == nil:
				c.Load(r)
			case errors.Is(err, types.ErrNotFound) && field != types.FieldTitle:
				return fmt.Errorf("record %q: %w", ownerID, err)
			case !errors.Is(err, types.ErrNotFound):
				return sysErr("fetch record: %w", err)
			}

			m := c.Write(ctx, ownerID, field, value)
			if err := m.Wait(ctx); err != nil {
				return err
			}
			if flags.jsonMode {
				return printJSON(cmd, map[string]any{
					"owner_id": ownerID,
					"field":    field,
					"value":    m.Value,
					"state":    m.State(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = %v (%s)\n", ownerID, field, m.Value, m.State())
			return nil
		}),
	}
}
