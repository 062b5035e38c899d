// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

var frameTestWait time.Duration

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid receiver frame",
	Long: `Wait for a valid receiver frame on the connection until --wait expires.

Nothing is sent; the receiver must push a report on its own, for example
after a front panel change. Frames failing their checksum or framing are
counted and skipped.

Exit codes:
  0 - Frame received before the wait expired
  1 - No valid frame received
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().DurationVar(&frameTestWait, "wait", 10*time.Second, "How long to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, err := openLine()
	if err != nil {
		return err
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "seriamp - Frame Test\n")
	fmt.Fprintf(out, "Connection: %s\n", describeConnection(cfg.Yamaha.Device, cfg.Yamaha))
	fmt.Fprintf(out, "Waiting up to %s for a valid frame...\n\n", frameTestWait)

	ctx, stop := signalContext(cmd)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, frameTestWait)
	defer cancel()

	var found seriamp.Frame
	invalid := 0
	err = readFrames(ctx, conn, func(raw []byte, frame seriamp.Frame, err error) bool {
		if err != nil {
			invalid++
			return true
		}
		found = frame
		return false
	})
	if err != nil {
		return seriamp.Errorf(seriamp.KindIO, "read: %v", err)
	}

	if found == nil {
		return seriamp.Errorf(seriamp.KindTimeout, "no valid frame within %s (%d invalid)", frameTestWait, invalid)
	}
	if invalid > 0 {
		fmt.Fprintf(out, "(skipped %d invalid frames before sync)\n", invalid)
	}
	fmt.Fprintf(out, "SUCCESS: Received valid frame\n")
	fmt.Fprint(out, yamaha.FormatFrame(found))
	return nil
}
