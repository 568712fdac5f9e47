package cmd

import (
	"annotation-server/core"
	"annotation-server/stores"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect stored annotation snapshots",
	Long: `Inspect the snapshots kept by the configured store.

The store is selected the same way as for "serve", from the config file
and the STORAGE_TYPE environment variable.`,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <manager>",
	Short: "List the snapshots of a manager, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSnapshots(cmd.Context(), cmd.OutOrStdout(), stores.GetStore(cfg.Storage), args[0], snapshotJSON)
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Print the annotations of a snapshot as GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := stores.GetStore(cfg.Storage).GetSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(snapshot.Data, '\n'))
		return err
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <snapshot-id>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := stores.GetStore(cfg.Storage).DeleteSnapshot(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted snapshot %s\n", args[0])
		return nil
	},
}

var snapshotJSON bool

func init() {
	snapshotListCmd.Flags().BoolVar(&snapshotJSON, "json", false, "print the list as JSON")
	snapshotCmd.AddCommand(snapshotListCmd, snapshotShowCmd, snapshotDeleteCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func listSnapshots(ctx context.Context, out io.Writer, store core.SnapshotStore, managerID string, asJSON bool) error {
	list, err := store.ListSnapshots(ctx, managerID)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	for _, s := range list {
		created := time.UnixMilli(s.CreatedAt).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, created)
	}
	return w.Flush()
}
