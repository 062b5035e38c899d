// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(frame seriamp.Frame) string {
	var b strings.Builder

	switch f := frame.(type) {
	case *StatusFrame:
		fmt.Fprintf(&b, "[%s] STATUS model=%s version=%c len=%d checksum=%s\n",
			f.Timestamp.Format("15:04:05.000"), f.ModelCode, f.FirmwareVersion, len(f.Data), f.Checksum)
	case *CommandFrame:
		fmt.Fprintf(&b, "[%s] COMMAND type=%s guard=%s code=%s data=%s\n",
			f.Timestamp.Format("15:04:05.000"), f.ControlType, f.Guard, f.Code, f.Data)
	case *ExtendedFrame:
		fmt.Fprintf(&b, "[%s] EXTENDED id=%s status=%s payload=%q\n",
			f.Timestamp.Format("15:04:05.000"), f.CommandID, f.Status, f.Payload)
	default:
		fmt.Fprintf(&b, "%s\n", strings.ToUpper(frame.Kind()))
	}

	b.WriteString(FormatFields(frame.Fields()))
	return b.String()
}

// FormatFields formats one field per line, indented
func FormatFields(fields seriamp.FieldSet) string {
	if fields.Len() == 0 {
		return "  (no fields)\n"
	}

	width := 0
	for _, k := range fields.Keys() {
		width = max(width, len(k)+1)
	}

	var b strings.Builder
	fields.Each(func(key string, value any) {
		fmt.Fprintf(&b, "  %-*s  %s\n", width, key+":", seriamp.FormatValue(value))
	})
	return b.String()
}
