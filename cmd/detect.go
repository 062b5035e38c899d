// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

var (
	detectPatterns []string
	detectAmp      bool
	detectTimeout  time.Duration
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find the serial port a device answers on",
	Long: `Probe every serial port matching the detection patterns and report the one
the device answers on.

Every candidate is probed concurrently with a status query; the first to
answer wins and the remaining probes are cancelled. A single candidate is
reported without probing.

Examples:
  # Find the receiver among /dev/ttyUSB*
  seriamp detect

  # Find the amplifier among specific ports
  seriamp detect --amp --pattern '/dev/ttyS[0-3]'

Exit codes:
  0 - Device found
  2 - No device answered`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringSliceVar(&detectPatterns, "pattern", nil, "Glob of candidate ports (repeatable)")
	detectCmd.Flags().BoolVar(&detectAmp, "amp", false, "Detect the amplifier instead of the receiver")
	detectCmd.Flags().DurationVar(&detectTimeout, "probe-timeout", 0, "Time each candidate has to answer")
}

func runDetect(cmd *cobra.Command, args []string) error {
	dc := &cfg.Yamaha
	if detectAmp {
		dc = &cfg.Monoprice
	}
	dc.Device = ""
	if len(detectPatterns) > 0 {
		dc.Patterns = detectPatterns
	}
	if detectTimeout > 0 {
		dc.ProbeTimeout = detectTimeout
	}
	dc.Retries = 0

	out := cmd.OutOrStdout()
	candidates, err := (&seriamp.Detector{Patterns: dc.Patterns}).Candidates()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "seriamp - Device Detection\n")
	fmt.Fprintf(out, "Candidates: %d\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(out, "  %s\n", c)
	}
	fmt.Fprintln(out)

	ctx, stop := signalContext(cmd)
	defer stop()

	var path string
	var fields seriamp.FieldSet
	start := time.Now()
	if detectAmp {
		amp, err := newAmplifier()
		if err != nil {
			return err
		}
		defer amp.Close()
		s, err := amp.Zone(ctx, 11)
		if err != nil {
			return err
		}
		path, fields = amp.DevicePath(), s.Values()
	} else {
		rx, err := newReceiver()
		if err != nil {
			return err
		}
		defer rx.Close()
		status, err := rx.Status(ctx)
		if err != nil {
			return err
		}
		path, fields = rx.DevicePath(), status
	}

	fmt.Fprintf(out, "Device found: %s (%v)\n", describeConnection(path, *dc), time.Since(start).Round(time.Millisecond))
	return printFields(out, pick(fields, "model_code", "firmware_version", "main_power", "power"))
}

// pick returns the named fields that are present, in order
func pick(fields seriamp.FieldSet, names ...string) seriamp.FieldSet {
	var out seriamp.FieldSet
	for _, n := range names {
		if v, ok := fields.Get(n); ok {
			out.Set(n, v)
		}
	}
	return out
}
