// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/config"
	"github.com/Thermoquad/seriamp/pkg/logging"
)

var (
	configPath string

	// Connection flags
	devicePath    string
	ampDevicePath string
	baudRate      int
	wsUsername    string
	wsNoSSLVerify bool

	outputFormat string

	// cfg is loaded before any command runs
	cfg = config.Default()
)

// flagBindings maps configuration keys to the root flags that override them
var flagBindings = map[string]string{
	"yamaha.device":                "device",
	"yamaha.baudRate":              "baud",
	"yamaha.timeout":               "timeout",
	"yamaha.retries":               "retries",
	"yamaha.persistent":            "persistent",
	"yamaha.username":              "username",
	"yamaha.insecureSkipVerify":    "no-ssl-verify",
	"monoprice.device":             "amp-device",
	"monoprice.username":           "username",
	"monoprice.insecureSkipVerify": "no-ssl-verify",
	"logging.level":                "log-level",
}

var rootCmd = &cobra.Command{
	Use:   "seriamp",
	Short: "AV receiver and amplifier control over RS-232",
	Long: `seriamp controls Yamaha AV receivers and Monoprice multi-zone amplifiers
over their RS-232 ports, directly or through a TCP or WebSocket bridge.

Connection modes:
  Serial:    --device /dev/ttyUSB0 [--baud 9600]
  TCP:       --device bridge.local:4999
  WebSocket: --device ws://host/path [--username user]

With no device configured, the receiver is detected among the serial ports
matching yamaha.patterns (default /dev/ttyUSB* and friends).

For WebSocket authentication, the password is read from the SERIAMP_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Exit codes:
  0 - Success
  1 - Device error (rejected command, bad response, timeout)
  2 - Connection error or no device`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, cmd.Root().PersistentFlags(), flagBindings)
		if err != nil {
			return err
		}
		cfg = loaded
		if err := logging.Initialize(cfg.Logging); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Configuration file (default ./seriamp.yaml)")

	flags.StringVarP(&devicePath, "device", "d", "", "Receiver serial device, host:port or ws:// URL")
	flags.StringVar(&ampDevicePath, "amp-device", "", "Amplifier serial device, host:port or ws:// URL")
	flags.IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")
	flags.Duration("timeout", 0, "Response timeout (default from config)")
	flags.Int("retries", 0, "Retries after transient failures (default from config)")
	flags.Bool("persistent", false, "Keep the device open between commands")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.String("log-level", "", "Log level: debug, info, warn, error (default silent)")
	flags.StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}
