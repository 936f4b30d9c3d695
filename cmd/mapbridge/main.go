// Command mapbridge publishes the state of a visual SLAM map to remote
// subscribers and inspects what was published.
//
// Usage:
//
//	mapbridge serve [--config config/mapbridge.defaults.json]
//	mapbridge tail --addr localhost:50061 --topic all_kf_and_pts
//	mapbridge history --db history.db
//	mapbridge version
package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/mapbridge/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mapbridge",
		Short:         "Publish SLAM map state over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newTailCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mapbridge", version.String())
		},
	})
	return cmd
}
