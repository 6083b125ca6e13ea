// Package cmd holds the auxiliary CLI subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/camkit/camserver/internal/device"
	"github.com/camkit/camserver/internal/logging"
)

// CreateSnapshotCmd creates the snapshot command, a one-shot capture
// for scripting and diagnostics that bypasses the HTTP server.
func CreateSnapshotCmd() *cobra.Command {
	var output string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "snapshot [device]",
		Short: "Capture a single frame from a camera",
		Long: `Captures one JPEG frame from the given device and writes it to a file ` +
			`or stdout. The device may be a local path like /dev/video0 or the ` +
			`http(s) URL of a network camera.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			cams := device.NewRegistry(device.OpenV4L2, device.RegistryConfig{
				InitTimeout: timeout,
			})
			id := device.ID(args[0])
			defer cams.Stop(id)

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			frame, err := cams.TakeSnapshot(ctx, id)
			if err != nil {
				return fmt.Errorf("capture from %s: %w", id, err)
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(frame)
				return err
			}
			if err := os.WriteFile(output, frame, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", len(frame), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall capture timeout")
	return cmd
}
