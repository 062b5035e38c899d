// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"fmt"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// valueDecoder expands one raw field into one or more named values.
// It returns false when the raw value is not one it knows.
type valueDecoder func(name, raw string, out *seriamp.FieldSet) bool

// indexed decodes a hex field through a lookup table
func indexed(table map[int]any) valueDecoder {
	return func(name, raw string, out *seriamp.FieldSet) bool {
		n, err := seriamp.ParseHex(raw)
		if err != nil {
			return false
		}
		v, ok := table[n]
		if ok {
			out.Set(name, v)
		}
		return ok
	}
}

var flag = indexed(map[int]any{0: false, 1: true})

func volume(scale seriamp.HalfDBScale) valueDecoder {
	return func(name, raw string, out *seriamp.FieldSet) bool {
		db, err := scale.Decode(raw)
		if err != nil {
			return false
		}
		if db == nil {
			out.Set(name, nil)
		} else {
			out.Set(name, *db)
		}
		return true
	}
}

// power expands the power state into the main and zone 2 power flags
func power(_, raw string, out *seriamp.FieldSet) bool {
	n, err := seriamp.ParseHex(raw)
	if err != nil || n > 3 {
		return false
	}
	out.Set("main_power", n == 1 || n == 2)
	out.Set("zone2_power", n == 1 || n == 3)
	return true
}

// surroundFlags are the bits of the multi-field surround report, lowest first
var surroundFlags = []string{"main_ex_es", "main_pure_direct", "main_night", "main_enhancer"}

func surround(_, raw string, out *seriamp.FieldSet) bool {
	n, err := seriamp.ParseHex(raw)
	if err != nil || n >= 1<<len(surroundFlags) {
		return false
	}
	for bit, name := range surroundFlags {
		out.Set(name, n&(1<<bit) != 0)
	}
	return true
}

var systemStates = map[int]any{
	0: "ok",
	1: "busy",
	2: "standby",
}

// Inputs by report value
var inputs = map[int]any{
	0x0: "PHONO",
	0x1: "CD",
	0x2: "TUNER",
	0x3: "CD-R",
	0x4: "MD/TAPE",
	0x5: "DVD",
	0x6: "D-TV/LD",
	0x7: "CBL/SAT",
	0x8: "V-AUX",
	0x9: "VCR1",
	0xA: "VCR2/DVR",
}

// Operation codes selecting each main zone input
var inputCodes = map[string]string{
	"PHONO":    "7A15",
	"CD":       "7A14",
	"TUNER":    "7A17",
	"CD-R":     "7A19",
	"MD/TAPE":  "7AC9",
	"DVD":      "7AC1",
	"D-TV/LD":  "7A54",
	"CBL/SAT":  "7AC0",
	"V-AUX":    "7A55",
	"VCR1":     "7A0F",
	"VCR2/DVR": "7A13",
}

// Inputs lists the selectable main zone inputs in report order
func Inputs() []string {
	names := make([]string, 0, len(inputs))
	for i := 0; i < len(inputs); i++ {
		if name, ok := inputs[i].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

var programs = map[int]any{
	0x00: "Hall in Munich",
	0x01: "Hall in Vienna",
	0x02: "Hall in Amsterdam",
	0x03: "Church in Freiburg",
	0x04: "Chamber",
	0x05: "Village Vanguard",
	0x06: "Warehouse Loft",
	0x07: "Cellar Club",
	0x08: "The Roxy Theatre",
	0x09: "The Bottom Line",
	0x0A: "Sports",
	0x0B: "Action Game",
	0x0C: "Roleplaying Game",
	0x0D: "Music Video",
	0x0E: "Recital/Opera",
	0x0F: "Standard",
	0x10: "Spectacle",
	0x11: "Sci-Fi",
	0x12: "Adventure",
	0x13: "General",
	0x14: "Mono Movie",
	0x15: "2ch Stereo",
	0x16: "7ch Stereo",
	0x80: "Straight",
}

// Sleep timer minutes; nil when the timer is off
var sleepTimes = map[int]any{
	0: 120,
	1: 90,
	2: 60,
	3: 30,
	4: nil,
}

var nightModes = map[int]any{
	0: "off",
	1: "cinema",
	2: "music",
}

// ============================================================
// Status layouts
// ============================================================

type statusField struct {
	name   string
	offset int
	width  int
	decode valueDecoder
}

var layoutR0178 = []statusField{
	{"system_status", 1, 1, indexed(systemStates)},
	{"power", 2, 1, power},
	{"main_input", 3, 1, indexed(inputs)},
	{"main_mute", 5, 1, flag},
	{"zone2_input", 6, 1, indexed(inputs)},
	{"zone2_mute", 7, 1, flag},
	{"main_volume", 8, 2, volume(MainVolumeScale)},
	{"zone2_volume", 10, 2, volume(Zone2VolumeScale)},
	{"program", 12, 2, indexed(programs)},
	{"effect", 14, 1, flag},
	{"sleep", 15, 1, indexed(sleepTimes)},
	{"night", 16, 1, indexed(nightModes)},
}

var layoutR0190 = append(append([]statusField(nil), layoutR0178...),
	statusField{"zone3_volume", 17, 2, volume(Zone3VolumeScale)},
	statusField{"zone3_mute", 19, 1, flag},
	statusField{"pure_direct", 20, 1, flag},
)

// statusLayouts maps model codes to their status field tables
var statusLayouts = map[string][]statusField{
	ModelR0178: layoutR0178,
	ModelR0190: layoutR0190,
}

// ============================================================
// Command reports
// ============================================================

type report struct {
	name   string
	decode valueDecoder
}

var reports = map[string]report{
	ReportSystem:      {"system_status", indexed(systemStates)},
	ReportPower:       {"power", power},
	ReportMainInput:   {"main_input", indexed(inputs)},
	ReportMainMute:    {"main_mute", flag},
	ReportZone2Input:  {"zone2_input", indexed(inputs)},
	ReportZone2Mute:   {"zone2_mute", flag},
	ReportMainVolume:  {"main_volume", volume(MainVolumeScale)},
	ReportZone2Volume: {"zone2_volume", volume(Zone2VolumeScale)},
	ReportProgram:     {"program", indexed(programs)},
	ReportSurround:    {"surround", surround},
	ReportZone3Volume: {"zone3_volume", volume(Zone3VolumeScale)},
}

// ============================================================
// Extended reports
// ============================================================

// Tone levels in dB
const (
	toneMinHex = "00"
	toneMin    = -6.0
	toneMax    = 6.0
	toneStep   = 0.5
)

// Speaker distances in meters
const (
	distanceMinHex = "000"
	distanceMin    = 0.3
	distanceMax    = 24.0
	distanceStep   = 0.1
)

var toneTargets = []string{"bass", "treble"}

// GraphicEQBands are the graphic equalizer band names, by band index
var GraphicEQBands = []string{"63hz", "160hz", "400hz", "1khz", "2.5khz", "6.3khz", "16khz"}

// Speakers are the speaker names, by the character the receiver uses for them
var Speakers = map[byte]string{
	'0': "front_l",
	'1': "front_r",
	'2': "center",
	'3': "surround_l",
	'4': "surround_r",
	'5': "surround_back_l",
	'6': "surround_back_r",
	'7': "subwoofer",
}

type extendedDecoder func(payload string, out *seriamp.FieldSet) error

var extendedDecoders = map[string]extendedDecoder{
	ExtTone:            decodeTone,
	ExtSpeakerDistance: decodeSpeakerDistance,
	ExtGraphicEQ:       decodeGraphicEQ,
}

func decodeTone(payload string, out *seriamp.FieldSet) error {
	if len(payload) != 3 {
		return seriamp.Errorf(seriamp.KindUnexpectedResponse, "tone payload %q has wrong length", payload)
	}
	target := int(payload[0] - '0')
	if target < 0 || target >= len(toneTargets) {
		return seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown tone target %q", payload[0])
	}
	level, err := seriamp.DecodeSequence(payload[1:], toneMinHex, toneMin, toneMax, toneStep)
	if err != nil {
		return err
	}
	out.Set("main_"+toneTargets[target], level)
	return nil
}

func decodeSpeakerDistance(payload string, out *seriamp.FieldSet) error {
	if len(payload) != 4 {
		return seriamp.Errorf(seriamp.KindUnexpectedResponse, "distance payload %q has wrong length", payload)
	}
	speaker, ok := Speakers[payload[0]]
	if !ok {
		return seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown speaker %q", payload[0])
	}
	meters, err := seriamp.DecodeSequence(payload[1:], distanceMinHex, distanceMin, distanceMax, distanceStep)
	if err != nil {
		return err
	}
	out.Set("distance_"+speaker, meters)
	return nil
}

func decodeGraphicEQ(payload string, out *seriamp.FieldSet) error {
	if len(payload) != 3 {
		return seriamp.Errorf(seriamp.KindUnexpectedResponse, "graphic EQ payload %q has wrong length", payload)
	}
	band := int(payload[0] - '0')
	if band < 0 || band >= len(GraphicEQBands) {
		return seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown graphic EQ band %q", payload[0])
	}
	level, err := seriamp.DecodeSequence(payload[1:], toneMinHex, toneMin, toneMax, toneStep)
	if err != nil {
		return err
	}
	out.Set("geq_"+GraphicEQBands[band], level)
	return nil
}

// genericExtendedField names the field holding an undecoded extended payload
func genericExtendedField(id string) string {
	return fmt.Sprintf("ext_%s", id)
}
