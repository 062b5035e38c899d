// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure receiver round trip latency",
	Long: `Send status requests to the receiver and report the round trip time of each.

This is useful for verifying:
  - The serial line or bridge is connected
  - Baud rate and line parameters match the receiver
  - A TCP or WebSocket bridge forwards in both directions

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	// Each ping is a single attempt; a persistent line avoids reopen costs
	cfg.Yamaha.Retries = 0
	cfg.Yamaha.Persistent = true

	rx, err := newReceiver()
	if err != nil {
		return err
	}
	defer rx.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "seriamp - Ping\n")
	fmt.Fprintf(out, "Connection: %s\n", describeConnection(cfg.Yamaha.Device, cfg.Yamaha))
	fmt.Fprintf(out, "Timeout: %v per ping\n", cfg.Yamaha.Timeout)
	fmt.Fprintf(out, "Count: %d pings\n\n", pingCount)

	successCount := 0
	var lastErr error
	var total time.Duration

	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, pingCount)

		start := time.Now()
		frame, err := rx.Dispatch(ctx, yamaha.StatusRequest())
		rtt := time.Since(start)
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			lastErr = err
		} else {
			status := frame.(*yamaha.StatusFrame)
			fmt.Fprintf(out, "reply from %s fw=%c, rtt=%v\n", status.ModelCode, status.FirmwareVersion, rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	// Summary
	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	fmt.Fprintf(out, "%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(pingCount-successCount)/float64(max(pingCount, 1))*100)
	if successCount > 0 {
		fmt.Fprintf(out, "average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
	}

	if successCount < pingCount {
		if successCount == 0 && lastErr != nil {
			return lastErr
		}
		return seriamp.Errorf(seriamp.KindTimeout, "%d of %d pings failed", pingCount-successCount, pingCount)
	}
	return nil
}
