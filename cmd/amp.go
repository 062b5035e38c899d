// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/monoprice"
)

var ampCmd = &cobra.Command{
	Use:   "amp",
	Short: "Control a multi-zone amplifier",
	Long: `Control a Monoprice multi-zone amplifier.

Zones are addressed by two digits: the amplifier unit (1-3) followed by the
zone (1-6), so "11" is the first zone of the first amplifier.`,
}

var ampStatusCmd = &cobra.Command{
	Use:   "status ZONE",
	Short: "Query the status of a zone",
	Args:  cobra.ExactArgs(1),
	RunE: withAmplifier(func(ctx context.Context, cmd *cobra.Command, amp *monoprice.Client, zone monoprice.ZoneID, args []string) error {
		s, err := amp.Zone(ctx, zone)
		if err != nil {
			return err
		}
		return printFields(cmd.OutOrStdout(), s.Values())
	}),
}

var ampSetCmd = &cobra.Command{
	Use:   "set ZONE FIELD VALUE",
	Short: "Change one zone attribute",
	Long: `Change one zone attribute.

Settable fields:
  ` + strings.Join(monoprice.SettableFields(), ", "),
	Args: cobra.ExactArgs(3),
	RunE: withAmplifier(func(ctx context.Context, cmd *cobra.Command, amp *monoprice.Client, zone monoprice.ZoneID, args []string) error {
		return amp.Set(ctx, zone, args[1], args[2])
	}),
}

func init() {
	rootCmd.AddCommand(ampCmd)
	ampCmd.AddCommand(ampStatusCmd, ampSetCmd)
}

type amplifierFunc func(ctx context.Context, cmd *cobra.Command, amp *monoprice.Client, zone monoprice.ZoneID, args []string) error

// withAmplifier parses the zone argument and opens an amplifier client for one command
func withAmplifier(fn amplifierFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		zone, err := monoprice.ParseZoneID(args[0])
		if err != nil {
			return err
		}
		amp, err := newAmplifier()
		if err != nil {
			return err
		}
		defer amp.Close()

		ctx, stop := signalContext(cmd)
		defer stop()
		return fn(ctx, cmd, amp, zone, args)
	}
}
