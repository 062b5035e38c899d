// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/seriamp/pkg/config"
	"github.com/Thermoquad/seriamp/pkg/logging"
	"github.com/Thermoquad/seriamp/pkg/monoprice"
	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/transport"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

// PasswordEnvVar holds the WebSocket bridge password
const PasswordEnvVar = "SERIAMP_PASSWORD"

// observer receives engine events when metrics are enabled
var observer seriamp.Observer

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// transportConfig builds transport parameters, prompting for the bridge
// password when the device is a WebSocket URL with a username
func transportConfig(dc config.DeviceConfig) (transport.Config, error) {
	tc := dc.Transport()
	isWebSocket := strings.HasPrefix(dc.Device, "ws://") || strings.HasPrefix(dc.Device, "wss://")
	if isWebSocket && dc.Username != "" {
		password, err := GetPassword()
		if err != nil {
			return tc, err
		}
		tc.Password = password
	}
	return tc, nil
}

// newReceiver builds a receiver client from the loaded configuration
func newReceiver() (*yamaha.Client, error) {
	dc := cfg.Yamaha
	tc, err := transportConfig(dc)
	if err != nil {
		return nil, err
	}
	return yamaha.NewClient(yamaha.Options{
		Device:       dc.Device,
		Patterns:     dc.Patterns,
		ProbeTimeout: dc.ProbeTimeout,
		Retries:      dc.Retries,
		Timeout:      dc.Timeout,
		Persistent:   dc.Persistent,
		ThreadSafe:   dc.ThreadSafe,
		Opener:       tc.Opener(),
		Backoff:      seriamp.JitterBackoff,
		Observer:     observer,
		Logger:       logging.L().Named("yamaha"),
	}), nil
}

// newAmplifier builds an amplifier client from the loaded configuration
func newAmplifier() (*monoprice.Client, error) {
	dc := cfg.Monoprice
	tc, err := transportConfig(dc)
	if err != nil {
		return nil, err
	}
	return monoprice.NewClient(monoprice.Options{
		Device:       dc.Device,
		Patterns:     dc.Patterns,
		ProbeTimeout: dc.ProbeTimeout,
		Retries:      dc.Retries,
		Timeout:      dc.Timeout,
		Persistent:   dc.Persistent,
		ThreadSafe:   dc.ThreadSafe,
		Opener:       tc.Opener(),
		Backoff:      seriamp.JitterBackoff,
		Observer:     observer,
		Logger:       logging.L().Named("monoprice"),
	}), nil
}

// describeConnection renders a device path for banners
func describeConnection(path string, dc config.DeviceConfig) string {
	switch {
	case path == "":
		return "autodetect"
	case strings.HasPrefix(path, "ws://"), strings.HasPrefix(path, "wss://"):
		return fmt.Sprintf("WebSocket: %s", path)
	case transport.IsNetworkAddress(path):
		return fmt.Sprintf("TCP: %s", path)
	default:
		return fmt.Sprintf("Serial: %s @ %d baud", path, dc.Transport().BaudRate)
	}
}
