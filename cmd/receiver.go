// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

var (
	zone2      bool
	volumeZone int
	rawNoReply bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the receiver status report",
	Args:  cobra.NoArgs,
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		fields, err := rx.Status(ctx)
		if err != nil {
			return err
		}
		return printFields(cmd.OutOrStdout(), fields)
	}),
}

var getCmd = &cobra.Command{
	Use:   "get FIELD",
	Short: "Read one status field",
	Args:  cobra.ExactArgs(1),
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		v, err := rx.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), v)
	}),
}

var setCmd = &cobra.Command{
	Use:   "set FIELD VALUE",
	Short: "Change one field",
	Long: `Change one field and print the value the receiver reports back.

Settable fields:
  ` + strings.Join(yamaha.SettableFields(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		v, err := rx.Set(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), v)
	}),
}

var powerCmd = &cobra.Command{
	Use:       "power on|off",
	Short:     "Switch the main zone or zone 2 on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		if zone2 {
			return rx.SetZone2Power(ctx, on)
		}
		return rx.SetMainPower(ctx, on)
	}),
}

var muteCmd = &cobra.Command{
	Use:       "mute on|off",
	Short:     "Mute or unmute the main zone or zone 2",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		if zone2 {
			return rx.SetZone2Mute(ctx, on)
		}
		return rx.SetMainMute(ctx, on)
	}),
}

var volumeCmd = &cobra.Command{
	Use:   "volume [DB|up|down]",
	Short: "Show or change the volume in dB",
	Long: `Show or change the volume in dB. The main zone ranges from -80.0 to +16.5 dB
in half dB steps. "up" and "down" step the main zone volume.

Prints "-" when the zone is muted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		field := "main_volume"
		switch volumeZone {
		case 1:
		case 2:
			field = "zone2_volume"
		case 3:
			field = "zone3_volume"
		default:
			return seriamp.Errorf(seriamp.KindArgument, "zone must be 1, 2 or 3")
		}

		var v any
		var err error
		switch {
		case len(args) == 0:
			v, err = rx.Get(ctx, field)
		case args[0] == "up" && volumeZone == 1:
			v, err = rx.VolumeUp(ctx)
		case args[0] == "down" && volumeZone == 1:
			v, err = rx.VolumeDown(ctx)
		default:
			v, err = rx.Set(ctx, field, args[0])
		}
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), v)
	}),
}

var inputCmd = &cobra.Command{
	Use:   "input NAME",
	Short: "Select the main zone input",
	Args:  cobra.ExactArgs(1),
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		return rx.SetMainInput(ctx, args[0])
	}),
}

var rawCmd = &cobra.Command{
	Use:   "raw HEX",
	Short: "Send raw bytes and print the decoded response",
	Long: `Send raw bytes, given in hex, and print the first frame received.

Example:
  seriamp raw 11 30 30 31 03     # status request`,
	Args: cobra.MinimumNArgs(1),
	RunE: withReceiver(func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error {
		payload, err := hex.DecodeString(strings.Join(args, ""))
		if err != nil {
			return seriamp.Errorf(seriamp.KindArgument, "payload is not hex: %w", err)
		}
		frame, err := rx.Raw(ctx, payload, !rawNoReply)
		if err != nil {
			return err
		}
		if frame == nil {
			return nil
		}
		if outputFormat == "" || outputFormat == "text" {
			fmt.Fprint(cmd.OutOrStdout(), yamaha.FormatFrame(frame))
			return nil
		}
		return printValue(cmd.OutOrStdout(), frame.Fields())
	}),
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, getCmd, setCmd, powerCmd, muteCmd, volumeCmd, inputCmd, rawCmd} {
		rootCmd.AddCommand(c)
	}
	powerCmd.Flags().BoolVar(&zone2, "zone2", false, "Control zone 2")
	muteCmd.Flags().BoolVar(&zone2, "zone2", false, "Control zone 2")
	volumeCmd.Flags().IntVar(&volumeZone, "zone", 1, "Zone: 1 (main), 2 or 3")
	rawCmd.Flags().BoolVar(&rawNoReply, "no-response", false, "Do not wait for a response")
}

type receiverFunc func(ctx context.Context, cmd *cobra.Command, rx *yamaha.Client, args []string) error

// withReceiver opens a receiver client for the duration of one command
func withReceiver(fn receiverFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rx, err := newReceiver()
		if err != nil {
			return err
		}
		defer rx.Close()

		ctx, stop := signalContext(cmd)
		defer stop()
		return fn(ctx, cmd, rx, args)
	}
}

// signalContext is cancelled on Ctrl+C
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, seriamp.Errorf(seriamp.KindArgument, "expected on or off, got %q", s)
}
