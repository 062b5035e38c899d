// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

// Exit codes
const (
	ExitOK          = 0
	ExitDeviceError = 1
	ExitConnection  = 2
)

// ExitCode maps a command error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	kind, ok := seriamp.KindOf(err)
	if !ok {
		return ExitDeviceError
	}
	switch kind {
	case seriamp.KindNoDevice, seriamp.KindBadDevice, seriamp.KindIO:
		return ExitConnection
	default:
		return ExitDeviceError
	}
}

var errUnknownFormat = errors.New("unknown output format, want text, json or yaml")

// printFields writes fields in the selected output format
func printFields(w io.Writer, fields seriamp.FieldSet) error {
	switch outputFormat {
	case "", "text":
		_, err := io.WriteString(w, yamaha.FormatFields(fields))
		return err
	default:
		return printValue(w, fields)
	}
}

// printValue writes any JSON or YAML encodable value; text falls back to fmt
func printValue(w io.Writer, v any) error {
	switch outputFormat {
	case "", "text":
		_, err := fmt.Fprintln(w, seriamp.FormatValue(v))
		return err
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, outputFormat)
	}
}
