package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/banshee-data/mapbridge/internal/publish"
	"github.com/banshee-data/mapbridge/internal/transport"
	"github.com/banshee-data/mapbridge/internal/wire"
	"github.com/spf13/cobra"
)

func newTailCommand() *cobra.Command {
	var addr, topic string
	var full, verbose bool
	var count int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Subscribe to a topic and print decoded messages",
		Example: `  mapbridge tail --topic pts_and_pose
  mapbridge tail --topic all_kf_and_pts --full -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" {
				topic = "pts_and_pose"
				if full {
					topic = "all_kf_and_pts"
				}
			}

			conn, err := transport.Dial(addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			seen := 0
			err = transport.Subscribe(ctx, conn, topic, func(msg *wire.PoseArray) error {
				if err := printMessage(out, msg, full, verbose); err != nil {
					return err
				}
				seen++
				if count > 0 && seen >= count {
					stop()
				}
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50061", "server address")
	cmd.Flags().StringVar(&topic, "topic", "", "topic to subscribe to (default depends on --full)")
	cmd.Flags().BoolVar(&full, "full", false, "decode messages as full dumps")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every pose")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after n messages (0 = unlimited)")
	return cmd
}

// printMessage writes a one-line summary of msg, and every decoded pose
// when verbose is set.
func printMessage(w io.Writer, msg *wire.PoseArray, full, verbose bool) error {
	h := msg.Header
	if full {
		dump, err := publish.ParseFullDump(msg)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "seq=%d stamp=%d frame=%s full keyframes=%d landmarks=%d\n",
			h.Seq, h.StampNanos, h.FrameID, len(dump.Keyframes), dump.LandmarkCount())
		if verbose {
			for i, kf := range dump.Keyframes {
				p := kf.Pose.Position
				fmt.Fprintf(w, "  kf[%d] pos=(%.3f, %.3f, %.3f) landmarks=%d\n", i, p.X, p.Y, p.Z, len(kf.Landmarks))
			}
		}
		return nil
	}

	update, err := publish.ParseIncremental(msg)
	if err != nil {
		return err
	}
	p, q := update.Camera.Position, update.Camera.Orientation
	fmt.Fprintf(w, "seq=%d stamp=%d frame=%s camera=(%.3f, %.3f, %.3f) q=(%.3f, %.3f, %.3f, %.3f) landmarks=%d\n",
		h.Seq, h.StampNanos, h.FrameID, p.X, p.Y, p.Z, q.Imag, q.Jmag, q.Kmag, q.Real, len(update.Landmarks))
	if verbose {
		for _, l := range update.Landmarks {
			fmt.Fprintf(w, "  pt (%.3f, %.3f, %.3f)\n", l.X, l.Y, l.Z)
		}
	}
	return nil
}
