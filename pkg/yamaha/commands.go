// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// Command builders return requests ready for Client.Dispatch. Each request
// correlates with the report the receiver sends back for it.

// StatusRequest asks for the full status report
func StatusRequest() seriamp.Request {
	return seriamp.Request{
		Name:    "status",
		Payload: []byte{DC1, '0', '0', '1', ETX},
		Correlate: func(f seriamp.Frame) bool {
			_, ok := f.(*StatusFrame)
			return ok
		},
	}
}

// OperationCommand emulates a remote control operation. code is four hex
// digits. The receiver answers with the report identified by response.
func OperationCommand(name, code, response string) seriamp.Request {
	return seriamp.Request{
		Name:      name,
		Payload:   frameCommand('0', code),
		Correlate: reportCorrelator(response),
	}
}

// SystemCommand sets a parameter directly. code and data are two hex digits each.
func SystemCommand(name, code, data, response string) seriamp.Request {
	return seriamp.Request{
		Name:      name,
		Payload:   frameCommand('2', code+data),
		Correlate: reportCorrelator(response),
	}
}

// ExtendedCommand sends an extended command. The answer carries the same command id.
func ExtendedCommand(name, id, data string) seriamp.Request {
	body := fmt.Sprintf("%c%02X%s%s", extendedTypeChar, len(id)+len(data), id, data)

	payload := make([]byte, 0, len(body)+4)
	payload = append(payload, DC4)
	payload = append(payload, body...)
	// Sum over the body only, the DC4 control byte is excluded
	payload = append(payload, seriamp.Checksum([]byte(body))...)
	payload = append(payload, ETX)

	return seriamp.Request{
		Name:    name,
		Payload: payload,
		Correlate: func(f seriamp.Frame) bool {
			ext, ok := f.(*ExtendedFrame)
			return ok && ext.CommandID == id
		},
	}
}

func frameCommand(kind byte, body string) []byte {
	payload := make([]byte, 0, len(body)+3)
	payload = append(payload, STX, kind)
	payload = append(payload, body...)
	return append(payload, ETX)
}

func reportCorrelator(code string) func(seriamp.Frame) bool {
	return func(f seriamp.Frame) bool {
		cmd, ok := f.(*CommandFrame)
		return ok && cmd.Code == code
	}
}

// ============================================================
// Field setters
// ============================================================

// fieldCommand describes how to set one status field
type fieldCommand struct {
	field  string
	encode func(value any) (seriamp.Request, error)

	// powerOn reports whether the encoded value wakes the receiver
	powerOn func(value any) bool
}

func onOffCommand(field, name, on, off, response string) fieldCommand {
	return fieldCommand{
		field: field,
		encode: func(value any) (seriamp.Request, error) {
			b, err := toBool(value)
			if err != nil {
				return seriamp.Request{}, err
			}
			if b {
				return OperationCommand(name+"_on", on, response), nil
			}
			return OperationCommand(name+"_off", off, response), nil
		},
	}
}

func volumeCommand(field, code, response string, scale seriamp.HalfDBScale) fieldCommand {
	return fieldCommand{
		field: field,
		encode: func(value any) (seriamp.Request, error) {
			db, err := toFloat(value)
			if err != nil {
				return seriamp.Request{}, err
			}
			raw, err := scale.Encode(db)
			if err != nil {
				return seriamp.Request{}, err
			}
			return SystemCommand("set_"+field, code, raw, response), nil
		},
	}
}

func sequenceCommand(field, id, prefix, minHex string, min, max, step float64) fieldCommand {
	return fieldCommand{
		field: field,
		encode: func(value any) (seriamp.Request, error) {
			v, err := toFloat(value)
			if err != nil {
				return seriamp.Request{}, err
			}
			raw, err := seriamp.EncodeSequence(v, minHex, min, max, step)
			if err != nil {
				return seriamp.Request{}, err
			}
			return ExtendedCommand("set_"+field, id, prefix+raw), nil
		},
	}
}

func isOn(value any) bool {
	b, err := toBool(value)
	return err == nil && b
}

// fieldCommandTable lists every settable field. It is built into setters once.
func fieldCommandTable() []fieldCommand {
	power := onOffCommand("main_power", "main_power", "7A1D", "7A1E", ReportPower)
	power.powerOn = isOn
	zone2Power := onOffCommand("zone2_power", "zone2_power", "7EBA", "7EBB", ReportPower)
	zone2Power.powerOn = isOn

	table := []fieldCommand{
		power,
		zone2Power,
		onOffCommand("main_mute", "main_mute", "7EA2", "7EA3", ReportMainMute),
		onOffCommand("zone2_mute", "zone2_mute", "7EA0", "7EA1", ReportZone2Mute),
		volumeCommand("main_volume", "30", ReportMainVolume, MainVolumeScale),
		volumeCommand("zone2_volume", "31", ReportZone2Volume, Zone2VolumeScale),
		volumeCommand("zone3_volume", "33", ReportZone3Volume, Zone3VolumeScale),
		{
			field: "main_input",
			encode: func(value any) (seriamp.Request, error) {
				name := strings.ToUpper(toString(value))
				code, ok := inputCodes[name]
				if !ok {
					return seriamp.Request{}, seriamp.Errorf(seriamp.KindArgument, "unknown input %q", toString(value))
				}
				return OperationCommand("set_main_input", code, ReportMainInput), nil
			},
		},
	}

	for i, target := range toneTargets {
		table = append(table, sequenceCommand("main_"+target, ExtTone, strconv.Itoa(i),
			toneMinHex, toneMin, toneMax, toneStep))
	}
	for i, band := range GraphicEQBands {
		table = append(table, sequenceCommand("geq_"+band, ExtGraphicEQ, strconv.Itoa(i),
			toneMinHex, toneMin, toneMax, toneStep))
	}
	for ch, speaker := range Speakers {
		table = append(table, sequenceCommand("distance_"+speaker, ExtSpeakerDistance, string(ch),
			distanceMinHex, distanceMin, distanceMax, distanceStep))
	}
	return table
}

var setters = func() map[string]fieldCommand {
	m := make(map[string]fieldCommand)
	for _, cmd := range fieldCommandTable() {
		m[cmd.field] = cmd
	}
	return m
}()

// SettableFields returns the names of every field Set accepts, sorted
func SettableFields() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ============================================================
// Value coercion
// ============================================================

// toBool accepts booleans and the usual spellings of on and off
func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "on", "true", "yes", "1":
			return true, nil
		case "off", "false", "no", "0":
			return false, nil
		}
	}
	return false, seriamp.Errorf(seriamp.KindArgument, "expected on or off, got %v", value)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, seriamp.Errorf(seriamp.KindArgument, "expected a number, got %v", value)
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
