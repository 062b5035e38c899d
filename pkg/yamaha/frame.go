// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"time"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// Frame kinds
const (
	KindStatus   = "status"
	KindCommand  = "command"
	KindExtended = "extended"
)

// StatusFrame is the receiver's full status report
type StatusFrame struct {
	ModelCode       string
	FirmwareVersion byte
	Data            []byte // field table, starting with the handshake marker
	Checksum        string
	Timestamp       time.Time

	fields seriamp.FieldSet
}

func (f *StatusFrame) Kind() string { return KindStatus }

// Fields returns the model code, firmware version and every decoded status field
func (f *StatusFrame) Fields() seriamp.FieldSet { return f.fields }

// CommandFrame reports the result of a command or an operation on the receiver
type CommandFrame struct {
	ControlType ControlType
	Guard       Guard
	Code        string
	Data        string
	Timestamp   time.Time

	fields seriamp.FieldSet
}

func (f *CommandFrame) Kind() string { return KindCommand }

// Fields returns the fields the report code expands to. Guarded reports carry none.
func (f *CommandFrame) Fields() seriamp.FieldSet { return f.fields }

// Guarded reports whether the receiver refused the command in its current state
func (f *CommandFrame) Guarded() bool { return f.Guard != GuardNone }

// ExtendedFrame is the answer to an extended command
type ExtendedFrame struct {
	CommandID string
	Status    ExtendedStatus
	Payload   []byte
	Timestamp time.Time

	fields seriamp.FieldSet
}

func (f *ExtendedFrame) Kind() string { return KindExtended }

func (f *ExtendedFrame) Fields() seriamp.FieldSet { return f.fields }
