// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/logging"
	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/transport"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

var rawLogStats time.Duration

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display received frames in human-readable format",
	Long: `Passively decode and display receiver frames as they arrive, without
sending anything. Useful to watch the reports a receiver pushes when its
front panel or remote control is used.

Decode errors are printed inline; frame statistics are printed periodically
with --stats.

Supports serial, TCP and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().DurationVar(&rawLogStats, "stats", 0, "Print statistics at this interval (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, err := openLine()
	if err != nil {
		return err
	}
	defer conn.Close()
	dc := cfg.Yamaha

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "seriamp - Raw Frame Log\n")
	fmt.Fprintf(out, "Connection: %s\n", describeConnection(dc.Device, dc))
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	ctx, stop := signalContext(cmd)
	defer stop()

	stats := yamaha.NewStatistics()
	lastStats := time.Now()

	return readFrames(ctx, conn, func(raw []byte, frame seriamp.Frame, err error) bool {
		stats.Update(frame, err)
		if err != nil {
			fmt.Fprintf(out, "[ERROR] %v (% X)\n", err, raw)
		} else {
			fmt.Fprint(out, yamaha.FormatFrame(frame))
		}
		if rawLogStats > 0 && time.Since(lastStats) >= rawLogStats {
			stats.CalculateRates()
			fmt.Fprintf(out, "\n%s\n", stats)
			lastStats = time.Now()
		}
		return true
	})
}

// openLine opens the configured receiver device without a client, for passive listening
func openLine() (transport.Transport, error) {
	dc := cfg.Yamaha
	if dc.Device == "" {
		return nil, seriamp.Errorf(seriamp.KindNoDevice, "passive listening needs --device, it does not autodetect")
	}
	tc, err := transportConfig(dc)
	if err != nil {
		return nil, err
	}
	return transport.Open(dc.Device, tc)
}

// readFrames decodes receiver frames from conn and hands each to fn until fn
// returns false, ctx is done or the connection closes
func readFrames(ctx context.Context, conn transport.Transport, fn func(raw []byte, frame seriamp.Frame, err error) bool) error {
	proto := yamaha.NewProtocol(logging.L())
	var buf []byte

	for ctx.Err() == nil {
		ready, err := conn.PollReadable(100 * time.Millisecond)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if !ready {
			continue
		}
		chunk, err := conn.ReadNonblock(256)
		if errors.Is(err, transport.ErrWouldBlock) {
			continue
		}
		if err != nil {
			return err
		}
		buf = append(buf, chunk...)

		for {
			raw, rest, ok := proto.NextFrame(buf)
			buf = rest
			if !ok {
				break
			}

			frame, err := proto.Decode(raw)
			if !fn(raw, frame, err) {
				return nil
			}
		}
	}
	return nil
}
