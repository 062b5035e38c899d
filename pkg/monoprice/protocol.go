// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monoprice implements the line protocol of Monoprice multi-zone
// amplifiers.
//
// Commands are ASCII lines ending in a carriage return: "?ZZ" queries a zone
// and "<ZZAAvv" sets attribute AA of a zone. The amplifier echoes every
// command, answers queries with a ">ZZ..." status line and prompts with '#'.
package monoprice

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// Frame kinds
const (
	KindZoneStatus = "zone_status"
	KindEcho       = "echo"
)

const (
	lineEnd      = '\r'
	statusDigits = 22 // zone + ten attributes, two digits each
	commandError = "Command Error."
)

// ZoneID is the two-digit zone address: amplifier unit (1-3) followed by zone (1-6)
type ZoneID int

// NewZoneID validates a unit and zone pair
func NewZoneID(unit, zone int) (ZoneID, error) {
	if unit < 1 || unit > 3 || zone < 1 || zone > 6 {
		return 0, seriamp.Errorf(seriamp.KindArgument, "no zone %d on unit %d: units are 1-3, zones 1-6", zone, unit)
	}
	return ZoneID(unit*10 + zone), nil
}

// ParseZoneID parses a two-digit zone address such as "11"
func ParseZoneID(s string) (ZoneID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || len(s) != 2 {
		return 0, seriamp.Errorf(seriamp.KindArgument, "invalid zone %q", s)
	}
	return NewZoneID(n/10, n%10)
}

func (z ZoneID) String() string {
	return fmt.Sprintf("%02d", int(z))
}

// attribute describes one two-digit zone attribute
type attribute struct {
	code     string
	field    string
	boolean  bool
	min, max int
	settable bool
}

// attributes in the order they appear in a status line
var attributes = []attribute{
	{code: "PA", field: "pa", boolean: true},
	{code: "PR", field: "power", boolean: true, settable: true},
	{code: "MU", field: "mute", boolean: true, settable: true},
	{code: "DT", field: "do_not_disturb", boolean: true, settable: true},
	{code: "VO", field: "volume", min: 0, max: 38, settable: true},
	{code: "TR", field: "treble", min: 0, max: 14, settable: true},
	{code: "BS", field: "bass", min: 0, max: 14, settable: true},
	{code: "BL", field: "balance", min: 0, max: 20, settable: true},
	{code: "CH", field: "source", min: 1, max: 6, settable: true},
	{code: "LS", field: "keypad", boolean: true},
}

var attributesByField = func() map[string]attribute {
	m := make(map[string]attribute, len(attributes))
	for _, a := range attributes {
		m[a.field] = a
	}
	return m
}()

// SettableFields lists the zone fields Set accepts, in status line order
func SettableFields() []string {
	var names []string
	for _, a := range attributes {
		if a.settable {
			names = append(names, a.field)
		}
	}
	return names
}

// ZoneStatus is a decoded status line
type ZoneStatus struct {
	Zone   ZoneID
	values seriamp.FieldSet
}

func (s *ZoneStatus) Kind() string { return KindZoneStatus }

// Fields returns the zone's fields keyed "zone<ZZ>.<field>" for the shared cache
func (s *ZoneStatus) Fields() seriamp.FieldSet {
	var out seriamp.FieldSet
	prefix := "zone" + s.Zone.String() + "."
	s.values.Each(func(k string, v any) {
		out.Set(prefix+k, v)
	})
	return out
}

// Values returns the zone's fields without the zone prefix
func (s *ZoneStatus) Values() seriamp.FieldSet {
	return s.values.Clone()
}

// Echo is the amplifier repeating a command back
type Echo struct {
	Line string
}

func (e *Echo) Kind() string { return KindEcho }

func (e *Echo) Fields() seriamp.FieldSet { return seriamp.FieldSet{} }

// Protocol adapts the amplifier line protocol to the seriamp engine
type Protocol struct{}

func (Protocol) Name() string { return "monoprice" }

// Amplifiers have no model report to identify them by
func (Protocol) IdentityField() string { return "" }

var terminator = []byte{lineEnd}

// NextFrame returns the next non-blank line. Blank lines are dropped from rest
// even when no complete line follows them.
func (Protocol) NextFrame(buf []byte) ([]byte, []byte, bool) {
	for {
		frame, rest, ok := seriamp.NextFrame(buf, terminator)
		if !ok {
			return nil, buf, false
		}
		if trimLine(frame) != "" {
			return frame, rest, true
		}
		buf = rest
	}
}

func trimLine(raw []byte) string {
	return strings.Trim(string(raw), "\r\n# \t")
}

func (Protocol) Decode(raw []byte) (seriamp.Frame, error) {
	line := trimLine(raw)

	switch {
	case strings.HasPrefix(line, ">"):
		s, err := parseStatus(line[1:])
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(line, "?"), strings.HasPrefix(line, "<"):
		return &Echo{Line: line}, nil
	case line == commandError:
		return nil, seriamp.Errorf(seriamp.KindInvalidCommand, "amplifier rejected the command")
	default:
		return nil, seriamp.Errorf(seriamp.KindUnhandledResponse, "unhandled line %q", line)
	}
}

func parseStatus(digits string) (*ZoneStatus, error) {
	if len(digits) != statusDigits {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "status line has %d digits, want %d", len(digits), statusDigits)
	}

	values := make([]int, 0, statusDigits/2)
	for i := 0; i < statusDigits; i += 2 {
		n, err := strconv.Atoi(digits[i : i+2])
		if err != nil {
			return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "invalid status digits %q", digits[i:i+2])
		}
		values = append(values, n)
	}

	zone, err := NewZoneID(values[0]/10, values[0]%10)
	if err != nil {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "status for unknown zone %02d", values[0])
	}

	s := &ZoneStatus{Zone: zone}
	for i, a := range attributes {
		v := values[i+1]
		if a.boolean {
			s.values.Set(a.field, v != 0)
		} else {
			s.values.Set(a.field, v)
		}
	}
	return s, nil
}

// ============================================================
// Requests
// ============================================================

// QueryRequest asks for the status of one zone
func QueryRequest(zone ZoneID) seriamp.Request {
	return seriamp.Request{
		Name:    "query",
		Payload: []byte("?" + zone.String() + string(lineEnd)),
		Correlate: func(f seriamp.Frame) bool {
			s, ok := f.(*ZoneStatus)
			return ok && s.Zone == zone
		},
	}
}

// SetRequest changes one attribute of a zone. value is a bool for on/off
// attributes and an int otherwise.
func SetRequest(zone ZoneID, field string, value any) (seriamp.Request, error) {
	a, ok := attributesByField[field]
	if !ok || !a.settable {
		return seriamp.Request{}, seriamp.Errorf(seriamp.KindArgument, "zone field %q cannot be set", field)
	}

	n, err := a.encode(value)
	if err != nil {
		return seriamp.Request{}, err
	}

	cmd := fmt.Sprintf("<%s%s%02d", zone, a.code, n)
	return seriamp.Request{
		Name:    "set_" + field,
		Payload: []byte(cmd + string(lineEnd)),
		Correlate: func(f seriamp.Frame) bool {
			e, ok := f.(*Echo)
			return ok && e.Line == cmd
		},
	}, nil
}

func (a attribute) encode(value any) (int, error) {
	if a.boolean {
		switch v := value.(type) {
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			switch strings.ToLower(v) {
			case "on", "true", "1":
				return 1, nil
			case "off", "false", "0":
				return 0, nil
			}
		}
		return 0, seriamp.Errorf(seriamp.KindArgument, "%s expects on or off, got %v", a.field, value)
	}

	var n int
	switch v := value.(type) {
	case int:
		n = v
	case float64:
		if v != float64(int(v)) {
			return 0, seriamp.Errorf(seriamp.KindArgument, "%s expects a whole number, got %v", a.field, v)
		}
		n = int(v)
	case string:
		var err error
		if n, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return 0, seriamp.Errorf(seriamp.KindArgument, "%s expects a number, got %q", a.field, v)
		}
	default:
		return 0, seriamp.Errorf(seriamp.KindArgument, "%s expects a number, got %v", a.field, value)
	}
	if n < a.min || n > a.max {
		return 0, seriamp.Errorf(seriamp.KindArgument, "%s %d out of range %d-%d", a.field, n, a.min, a.max)
	}
	return n, nil
}
