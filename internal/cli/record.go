package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/curator/pkg/types"
)

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage records with editable fields",
	}
	cmd.AddCommand(newRecordPutCmd(), newRecordGetCmd(), newRecordListCmd())
	return cmd
}

func newRecordPutCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "put <container> <fields-json>",
		Short: "Create or replace a record",
		Long: `Put stores a record whose fields are given as a JSON object. Without
--id a new record is created.

Example:
  curator record put class-3 '{"grade": 7, "feedback": "solid"}'`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			var fields map[string]any
			if err := json.Unmarshal([]byte(args[1]), &fields); err != nil {
				return fmt.Errorf("parse JSON: %w", types.ErrInvalidData)
			}
			saved, err := a.backend.PutRecord(cmd.Context(), &types.Record{
				RecordID:    id,
				ContainerID: args[0],
				Fields:      fields,
			})
			if err != nil {
				return fmt.Errorf("put record: %w", err)
			}
			if flags.jsonMode {
				return printJSON(cmd, map[string]string{"record_id": saved})
			}
			fmt.Fprintln(cmd.OutOrStdout(), saved)
			return nil
		}),
	}
	cmd.Flags().StringVar(&id, "id", "", "record ID to replace")
	return cmd
}

func newRecordGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <record-id>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			r, err := a.backend.FetchRecord(cmd.Context(), args[0])
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("record %q: %w", args[0], err)
			}
			if err != nil {
				return sysErr("fetch record: %w", err)
			}
			return printJSON(cmd, r)
		}),
	}
}

func newRecordListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <container>",
		Short: "List the records of a container",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			rs, err := a.backend.FetchRecords(cmd.Context(), args[0])
			if err != nil {
				return sysErr("fetch records: %w", err)
			}
			return printJSON(cmd, rs)
		}),
	}
}
