package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/mapbridge/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent publications from a history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// OpenDB would create and migrate a missing file.
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("history database: %w", err)
			}
			db, err := history.OpenDB(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := history.NewStore(db, nil).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSEQ\tKIND\tTOPIC\tKEYFRAMES\tLANDMARKS\tPOSES\tPUBLISHED")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
					shortID(r.RunID), r.Seq, r.Kind, r.Topic, r.Keyframes, r.Landmarks, r.Poses,
					r.PublishedAt.UTC().Format(time.RFC3339Nano))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "path to the history database (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows to print")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
