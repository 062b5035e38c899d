// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// ============================================================
// Frame Builders
// ============================================================

func statusFrame(model string, version byte, data string) []byte {
	body := fmt.Sprintf("%s%c%02X%s", model, version, len(data), data)
	return []byte("\x12" + body + seriamp.Checksum([]byte(body)) + "\x03")
}

func commandFrame(ctype, guard byte, code, data string) []byte {
	return []byte{STX, ctype, guard, code[0], code[1], data[0], data[1], ETX}
}

func extendedFrame(id string, status byte, payload string) []byte {
	body := fmt.Sprintf("2%02X%s%c%s", len(id)+1+len(payload), id, status, payload)
	return []byte("\x14" + body + seriamp.Checksum([]byte(body)) + "\x03")
}

// R0178 status: system ok, all zones on, DVD, unmuted, zone 2 on CD and
// muted, main -70 dB, zone 2 volume muted, Standard, effect on, sleep off,
// night music
const statusR0178 = "@01500113B000F142"

func parse(t *testing.T, raw []byte) seriamp.Frame {
	t.Helper()
	frame, err := NewParser(zap.NewNop()).Parse(raw)
	require.NoError(t, err)
	require.NotNil(t, frame)
	return frame
}

func parseErr(raw []byte) error {
	_, err := NewParser(zap.NewNop()).Parse(raw)
	return err
}

// ============================================================
// Status Frame Tests
// ============================================================

func TestParseStatus_R0178(t *testing.T) {
	frame := parse(t, statusFrame(ModelR0178, 'B', statusR0178))

	status, ok := frame.(*StatusFrame)
	require.True(t, ok)
	assert.Equal(t, KindStatus, frame.Kind())
	assert.Equal(t, "R0178", status.ModelCode)
	assert.Equal(t, byte('B'), status.FirmwareVersion)
	assert.Equal(t, statusR0178, string(status.Data))

	fields := frame.Fields()
	assert.Equal(t, []string{
		"model_code", "firmware_version", "system_status", "main_power", "zone2_power",
		"main_input", "main_mute", "zone2_input", "zone2_mute", "main_volume",
		"zone2_volume", "program", "effect", "sleep", "night",
	}, fields.Keys())

	expected := map[string]any{
		"model_code":       "R0178",
		"firmware_version": "B",
		"system_status":    "ok",
		"main_power":       true,
		"zone2_power":      true,
		"main_input":       "DVD",
		"main_mute":        false,
		"zone2_input":      "CD",
		"zone2_mute":       true,
		"main_volume":      -70.0,
		"zone2_volume":     nil,
		"program":          "Standard",
		"effect":           true,
		"sleep":            nil,
		"night":            "music",
	}
	assert.Equal(t, expected, fields.Map())
}

func TestParseStatus_R0190ExtraFields(t *testing.T) {
	frame := parse(t, statusFrame(ModelR0190, 'C', statusR0178+"3B11"))

	fields := frame.Fields()
	v, _ := fields.Get("zone3_volume")
	assert.Equal(t, -70.0, v)
	v, _ = fields.Get("zone3_mute")
	assert.Equal(t, true, v)
	v, _ = fields.Get("pure_direct")
	assert.Equal(t, true, v)
}

func TestParseStatus_ShortDataStopsDecoding(t *testing.T) {
	frame := parse(t, statusFrame(ModelR0190, 'C', statusR0178))

	_, ok := frame.Fields().Get("night")
	assert.True(t, ok)
	_, ok = frame.Fields().Get("zone3_volume")
	assert.False(t, ok)
}

func TestParseStatus_UnknownValueIsKeptRaw(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	data := statusR0178[:16] + "9"

	frame, err := NewParser(zap.New(core)).Parse(statusFrame(ModelR0178, 'B', data))
	require.NoError(t, err)

	v, _ := frame.Fields().Get("night")
	assert.Equal(t, "9", v)

	entries := logs.FilterMessage("Unknown field value").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "night", entries[0].ContextMap()["field"])
}

func TestParseStatus_CorruptChecksum(t *testing.T) {
	raw := statusFrame(ModelR0178, 'B', statusR0178)
	// Last checksum digit sits just before ETX
	raw[len(raw)-2] ^= 0x01

	err := parseErr(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, seriamp.ErrChecksumMismatch)
	assert.True(t, seriamp.IsRetryable(err))
}

func TestParseStatus_NoisyLengthIsChecksumMismatch(t *testing.T) {
	raw := statusFrame(ModelR0178, 'B', statusR0178)
	raw[8] ^= 0x01 // declared length 0x11 becomes 0x10

	err := parseErr(raw)
	assert.ErrorIs(t, err, seriamp.ErrChecksumMismatch)
	assert.True(t, seriamp.IsRetryable(err))

	ext := extendedFrame(ExtTone, '0', "110")
	ext[3] ^= 0x01
	err = parseErr(ext)
	assert.ErrorIs(t, err, seriamp.ErrChecksumMismatch)
	assert.True(t, seriamp.IsRetryable(err))
}

func TestParseStatus_HandshakeFailure(t *testing.T) {
	err := parseErr(statusFrame(ModelR0178, 'B', "X"+statusR0178[1:]))
	assert.ErrorIs(t, err, seriamp.ErrHandshakeFailure)
	assert.ErrorIs(t, err, seriamp.ErrUnexpectedResponse)
}

func TestParseStatus_Malformed(t *testing.T) {
	valid := statusFrame(ModelR0178, 'B', statusR0178)

	wrongLength := append([]byte(nil), valid...)
	wrongLength[8] = '0' // declared length 0x10 instead of 0x11

	tests := []struct {
		name string
		raw  []byte
	}{
		{"too short", []byte("\x12R0178B0\x03")},
		{"length mismatch", wrongLength},
		{"unknown model", statusFrame("R9999", 'A', statusR0178)},
		{"bad length digits", []byte("\x12R0178BZZ@0000\x03")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseErr(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, seriamp.ErrUnexpectedResponse)
			assert.NotErrorIs(t, err, seriamp.ErrHandshakeFailure)
		})
	}
}

// ============================================================
// Command Frame Tests
// ============================================================

func TestParseCommand_Reports(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		data     string
		expected map[string]any
	}{
		{"main volume", ReportMainVolume, "3B", map[string]any{"main_volume": -70.0}},
		{"main volume muted", ReportMainVolume, "00", map[string]any{"main_volume": nil}},
		{"zone3 volume", ReportZone3Volume, "C7", map[string]any{"zone3_volume": 0.0}},
		{"main only power", ReportPower, "02", map[string]any{"main_power": true, "zone2_power": false}},
		{"all off", ReportPower, "00", map[string]any{"main_power": false, "zone2_power": false}},
		{"input", ReportMainInput, "0A", map[string]any{"main_input": "VCR2/DVR"}},
		{"mute", ReportMainMute, "01", map[string]any{"main_mute": true}},
		{"program", ReportProgram, "80", map[string]any{"program": "Straight"}},
		{"system", ReportSystem, "02", map[string]any{"system_status": "standby"}},
		{"surround flags", ReportSurround, "05", map[string]any{
			"main_ex_es":       true,
			"main_pure_direct": false,
			"main_night":       true,
			"main_enhancer":    false,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := parse(t, commandFrame('0', '0', tt.code, tt.data))
			cmd, ok := frame.(*CommandFrame)
			require.True(t, ok)
			assert.Equal(t, tt.code, cmd.Code)
			assert.Equal(t, tt.expected, frame.Fields().Map())
		})
	}
}

func TestParseCommand_ControlTypeAndGuard(t *testing.T) {
	frame := parse(t, commandFrame('2', '2', ReportMainMute, "01"))
	cmd := frame.(*CommandFrame)

	assert.Equal(t, ControlKey, cmd.ControlType)
	assert.Equal(t, "key", cmd.ControlType.String())
	assert.Equal(t, GuardSetting, cmd.Guard)
	assert.True(t, cmd.Guarded())
	assert.Equal(t, 0, frame.Fields().Len(), "guarded reports carry no fields")
}

func TestParseCommand_Errors(t *testing.T) {
	err := parseErr(commandFrame('0', '0', "99", "00"))
	assert.ErrorIs(t, err, seriamp.ErrUnhandledResponse)
	assert.False(t, seriamp.IsRetryable(err))

	err = parseErr([]byte("\x020026\x03"))
	assert.ErrorIs(t, err, seriamp.ErrUnexpectedResponse)

	err = parseErr(commandFrame('9', '0', ReportMainMute, "01"))
	assert.ErrorIs(t, err, seriamp.ErrUnexpectedResponse)

	err = parseErr(commandFrame('0', '7', ReportMainMute, "01"))
	assert.ErrorIs(t, err, seriamp.ErrUnexpectedResponse)
}

// ============================================================
// Extended Frame Tests
// ============================================================

func TestParseExtended_Decoders(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		payload  string
		expected map[string]any
	}{
		{"treble", ExtTone, "110", map[string]any{"main_treble": 2.0}},
		{"bass minimum", ExtTone, "000", map[string]any{"main_bass": -6.0}},
		{"center distance", ExtSpeakerDistance, "2020", map[string]any{"distance_center": 3.5}},
		{"graphic EQ", ExtGraphicEQ, "30C", map[string]any{"geq_1khz": 0.0}},
		{"unregistered id", "0FF", "ABC", map[string]any{"ext_0FF": "ABC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := parse(t, extendedFrame(tt.id, '0', tt.payload))
			ext, ok := frame.(*ExtendedFrame)
			require.True(t, ok)
			assert.Equal(t, tt.id, ext.CommandID)
			assert.Equal(t, ExtendedOK, ext.Status)
			assert.Equal(t, tt.expected, frame.Fields().Map())
		})
	}
}

func TestParseExtended_EmptyPayload(t *testing.T) {
	frame := parse(t, extendedFrame(ExtTone, '0', ""))
	assert.Equal(t, 0, frame.Fields().Len())
}

func TestParseExtended_Statuses(t *testing.T) {
	frame := parse(t, extendedFrame(ExtTone, '1', "110"))
	ext := frame.(*ExtendedFrame)
	assert.True(t, ext.Status.Guarded())
	assert.Equal(t, 0, frame.Fields().Len())

	for _, status := range []byte{'3', '4'} {
		err := parseErr(extendedFrame(ExtTone, status, "110"))
		assert.ErrorIs(t, err, seriamp.ErrInvalidCommand)
	}

	err := parseErr(extendedFrame(ExtTone, '7', "110"))
	assert.ErrorIs(t, err, seriamp.ErrUnexpectedResponse)
}

func TestParseExtended_Malformed(t *testing.T) {
	corrupt := extendedFrame(ExtTone, '0', "110")
	corrupt[len(corrupt)-3] ^= 0x01
	assert.ErrorIs(t, parseErr(corrupt), seriamp.ErrChecksumMismatch)

	wrongLength := extendedFrame(ExtTone, '0', "110")
	wrongLength[3] = '9'
	assert.ErrorIs(t, parseErr(wrongLength), seriamp.ErrUnexpectedResponse)

	badTone := extendedFrame(ExtTone, '0', "119")
	assert.ErrorIs(t, parseErr(badTone), seriamp.ErrUnexpectedResponse)

	badSpeaker := extendedFrame(ExtSpeakerDistance, '0', "Z020")
	assert.ErrorIs(t, parseErr(badSpeaker), seriamp.ErrUnexpectedResponse)
}

// ============================================================
// Protocol Tests
// ============================================================

func TestParse_UnknownStartByte(t *testing.T) {
	err := parseErr([]byte("X0026\x03"))
	assert.ErrorIs(t, err, seriamp.ErrUnhandledResponse)
}

func TestParse_IncompleteFrame(t *testing.T) {
	err := parseErr([]byte("\x020026"))
	assert.ErrorIs(t, err, seriamp.ErrUnexpectedResponse)
}

func TestProtocol_BackToBackFrames(t *testing.T) {
	proto := NewProtocol(zap.NewNop())
	first := statusFrame(ModelR0178, 'B', statusR0178)
	second := commandFrame('0', '0', ReportMainVolume, "3B")
	buf := append(append(append([]byte(nil), first...), second...), '\x02', '0')

	raw, rest, ok := proto.NextFrame(buf)
	require.True(t, ok)
	assert.Equal(t, first, raw)
	frame, err := proto.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindStatus, frame.Kind())

	raw, rest, ok = proto.NextFrame(rest)
	require.True(t, ok)
	assert.Equal(t, second, raw)
	frame, err = proto.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindCommand, frame.Kind())

	_, rest, ok = proto.NextFrame(rest)
	assert.False(t, ok)
	assert.Equal(t, []byte("\x020"), rest)
	assert.Equal(t, "model_code", proto.IdentityField())
}

// ============================================================
// Formatter and Statistics Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	out := FormatFrame(parse(t, commandFrame('0', '0', ReportMainVolume, "3B")))
	assert.Contains(t, out, "COMMAND type=rs232 guard=none code=26 data=3B")
	assert.Contains(t, out, "  main_volume:  -70\n")

	out = FormatFrame(parse(t, extendedFrame(ExtTone, '2', "")))
	assert.Contains(t, out, "status=guard_setting")
	assert.Contains(t, out, "(no fields)")
}

func TestStatistics(t *testing.T) {
	stats := NewStatistics()
	stats.Update(parse(t, statusFrame(ModelR0178, 'B', statusR0178)), nil)
	stats.Update(parse(t, commandFrame('0', '1', ReportMainMute, "00")), nil)
	stats.Update(parse(t, extendedFrame(ExtTone, '0', "110")), nil)
	stats.Update(nil, parseErr(commandFrame('0', '0', "99", "00")))
	stats.Update(nil, seriamp.Errorf(seriamp.KindChecksumMismatch, "bad"))
	stats.Update(nil, seriamp.Errorf(seriamp.KindHandshakeFailure, "bad"))
	stats.Update(nil, seriamp.Errorf(seriamp.KindInvalidCommand, "refused"))

	assert.Equal(t, uint64(7), stats.TotalFrames)
	assert.Equal(t, uint64(3), stats.ValidFrames)
	assert.Equal(t, uint64(1), stats.StatusFrames)
	assert.Equal(t, uint64(1), stats.CommandFrames)
	assert.Equal(t, uint64(1), stats.ExtendedFrames)
	assert.Equal(t, uint64(1), stats.GuardedFrames)
	assert.Equal(t, uint64(1), stats.UnhandledFrames)
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
	assert.Equal(t, uint64(1), stats.HandshakeErrors)
	assert.Equal(t, uint64(1), stats.RejectedFrames)

	summary := stats.String()
	assert.Regexp(t, `Total Frames:\s+7\n`, summary)
	assert.Contains(t, summary, "Checksum Errors:")

	stats.Reset()
	assert.Equal(t, uint64(0), stats.TotalFrames)
}
