// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package yamaha implements the RS-232 protocol spoken by Yamaha AV receivers.
//
// Receivers answer on one byte stream with three kinds of frames: status
// reports (DC2), command reports (STX) and extended reports (DC4). All of
// them end in ETX. Command reports are also pushed unsolicited whenever the
// receiver is operated from its front panel or remote, so every frame is
// decoded into fields and merged into the client's status cache.
package yamaha

import (
	"time"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// Protocol control bytes
const (
	STX = 0x02 // command frame start
	ETX = 0x03 // frame terminator
	DC1 = 0x11 // status request start
	DC2 = 0x12 // status frame start
	DC4 = 0x14 // extended frame start
)

// Frame layout
const (
	statusMinLength  = 12 // DC2 + model(5) + version + length(2) + checksum(2) + ETX
	commandLength    = 8  // STX + type + guard + code(2) + data(2) + ETX
	extendedMinBody  = 4  // id(3) + status
	handshakeMarker  = '@'
	extendedTypeChar = '2'
)

// Serial line defaults
const (
	DefaultBaudRate = 9600

	// PowerOnDelay is how long the receiver stays unresponsive after power on
	PowerOnDelay = 3 * time.Second
)

// Known model codes
const (
	ModelR0178 = "R0178"
	ModelR0190 = "R0190"
)

// Volume scales. Raw zero reports a muted zone.
var (
	MainVolumeScale  = seriamp.HalfDBScale{Offset: 80, Bias: 0x27, Min: -80, Max: 16.5}
	Zone2VolumeScale = seriamp.HalfDBScale{Offset: 80, Bias: 0x27, Min: -80, Max: 16.5}
	Zone3VolumeScale = seriamp.HalfDBScale{Offset: 80, Bias: 0x27, Min: -80, Max: 16.5}
)

// ControlType identifies the origin of a command report
type ControlType byte

const (
	ControlRS232   ControlType = '0'
	ControlRemote  ControlType = '1'
	ControlKey     ControlType = '2'
	ControlSystem  ControlType = '3'
	ControlEncoder ControlType = '4'
)

func (t ControlType) String() string {
	switch t {
	case ControlRS232:
		return "rs232"
	case ControlRemote:
		return "remote"
	case ControlKey:
		return "key"
	case ControlSystem:
		return "system"
	case ControlEncoder:
		return "encoder"
	default:
		return "unknown"
	}
}

// Guard reports why a command result is restricted
type Guard byte

const (
	GuardNone    Guard = '0'
	GuardSystem  Guard = '1'
	GuardSetting Guard = '2'
)

func (g Guard) String() string {
	switch g {
	case GuardNone:
		return "none"
	case GuardSystem:
		return "system"
	case GuardSetting:
		return "setting"
	default:
		return "unknown"
	}
}

// ExtendedStatus is the status character of an extended report
type ExtendedStatus byte

const (
	ExtendedOK           ExtendedStatus = '0'
	ExtendedGuardSystem  ExtendedStatus = '1'
	ExtendedGuardSetting ExtendedStatus = '2'
	ExtendedUnrecognized ExtendedStatus = '3'
	ExtendedParamError   ExtendedStatus = '4'
)

func (s ExtendedStatus) String() string {
	switch s {
	case ExtendedOK:
		return "ok"
	case ExtendedGuardSystem:
		return "guard_system"
	case ExtendedGuardSetting:
		return "guard_setting"
	case ExtendedUnrecognized:
		return "unrecognized"
	case ExtendedParamError:
		return "param_error"
	default:
		return "unknown"
	}
}

// Guarded reports whether the receiver refused the command in its current state
func (s ExtendedStatus) Guarded() bool {
	return s == ExtendedGuardSystem || s == ExtendedGuardSetting
}

// Report codes carried by command frames
const (
	ReportSystem      = "00"
	ReportPower       = "20"
	ReportMainInput   = "21"
	ReportMainMute    = "23"
	ReportZone2Input  = "24"
	ReportZone2Mute   = "25"
	ReportMainVolume  = "26"
	ReportZone2Volume = "27"
	ReportProgram     = "28"
	ReportSurround    = "2E"
	ReportZone3Volume = "A2"
)

// Extended command ids
const (
	ExtTone            = "030"
	ExtSpeakerDistance = "031"
	ExtGraphicEQ       = "032"
)
