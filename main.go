// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// seriamp - RS-232 AV receiver and amplifier control
//
// A CLI tool for querying and controlling Yamaha receivers and Monoprice
// multi-zone amplifiers over serial, TCP or WebSocket bridges.

package main

import (
	"os"

	"github.com/Thermoquad/seriamp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
