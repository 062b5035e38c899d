// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/logging"
	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// Parser decodes complete receiver frames
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a parser. Unknown field values are logged to logger.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = logging.L()
	}
	return &Parser{logger: logger}
}

// Parse decodes one ETX-terminated frame, selecting the frame kind by its first byte
func (p *Parser) Parse(raw []byte) (seriamp.Frame, error) {
	if len(raw) == 0 || raw[len(raw)-1] != ETX {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "incomplete frame %q", raw)
	}

	var (
		frame seriamp.Frame
		err   error
	)
	switch raw[0] {
	case DC2:
		var f *StatusFrame
		if f, err = p.parseStatus(raw); err == nil {
			frame = f
		}
	case STX:
		var f *CommandFrame
		if f, err = p.parseCommand(raw); err == nil {
			frame = f
		}
	case DC4:
		var f *ExtendedFrame
		if f, err = p.parseExtended(raw); err == nil {
			frame = f
		}
	default:
		err = seriamp.Errorf(seriamp.KindUnhandledResponse, "unhandled frame start byte 0x%02X", raw[0])
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

func (p *Parser) parseStatus(raw []byte) (*StatusFrame, error) {
	if len(raw) < statusMinLength {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "status frame too short: %d bytes", len(raw))
	}

	checksum, err := verifyTrailingChecksum(raw)
	if err != nil {
		return nil, err
	}

	length, err := seriamp.ParseHex(string(raw[7:9]))
	if err != nil {
		return nil, err
	}
	if len(raw) != 9+length+3 {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse,
			"status frame declares %d data bytes, carries %d", length, len(raw)-12)
	}

	data := raw[9 : 9+length]
	if length == 0 || data[0] != handshakeMarker {
		return nil, seriamp.Errorf(seriamp.KindHandshakeFailure, "status frame lacks the %q marker", handshakeMarker)
	}

	f := &StatusFrame{
		ModelCode:       string(raw[1:6]),
		FirmwareVersion: raw[6],
		Data:            append([]byte(nil), data...),
		Checksum:        checksum,
		Timestamp:       time.Now(),
	}

	layout, ok := statusLayouts[f.ModelCode]
	if !ok {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown model code %s", f.ModelCode)
	}

	f.fields.Set("model_code", f.ModelCode)
	f.fields.Set("firmware_version", string(f.FirmwareVersion))
	for _, field := range layout {
		end := field.offset + field.width
		if end > len(data) {
			p.logger.Debug("Status data ends before field",
				zap.String("model", f.ModelCode), zap.String("field", field.name))
			break
		}
		p.decodeField(field.name, string(data[field.offset:end]), field.decode, &f.fields)
	}
	return f, nil
}

// verifyTrailingChecksum checks the two hex digits before ETX against the
// frame body. The sum starts after the DC2/DC4 control byte, not at it.
// It runs before any length check so noise in a length field is reported
// as a checksum mismatch.
func verifyTrailingChecksum(raw []byte) (string, error) {
	n := len(raw)
	checksum := string(raw[n-3 : n-1])
	if err := seriamp.VerifyChecksum(raw[1:n-3], checksum); err != nil {
		return "", err
	}
	return checksum, nil
}

func (p *Parser) parseCommand(raw []byte) (*CommandFrame, error) {
	if len(raw) != commandLength {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "command frame has %d bytes, want %d", len(raw), commandLength)
	}

	f := &CommandFrame{
		ControlType: ControlType(raw[1]),
		Guard:       Guard(raw[2]),
		Code:        string(raw[3:5]),
		Data:        string(raw[5:7]),
		Timestamp:   time.Now(),
	}
	if f.ControlType < ControlRS232 || f.ControlType > ControlEncoder {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown control type %q", raw[1])
	}
	if f.Guard < GuardNone || f.Guard > GuardSetting {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown guard %q", raw[2])
	}

	r, ok := reports[f.Code]
	if !ok {
		return nil, seriamp.Errorf(seriamp.KindUnhandledResponse, "unhandled report code %s", f.Code)
	}

	// A guarded report carries no meaningful data
	if f.Guarded() {
		return f, nil
	}
	p.decodeField(r.name, f.Data, r.decode, &f.fields)
	return f, nil
}

func (p *Parser) parseExtended(raw []byte) (*ExtendedFrame, error) {
	if len(raw) < 4+extendedMinBody+3 {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "extended frame too short: %d bytes", len(raw))
	}
	if _, err := verifyTrailingChecksum(raw); err != nil {
		return nil, err
	}
	if raw[1] != extendedTypeChar {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown extended frame type %q", raw[1])
	}

	length, err := seriamp.ParseHex(string(raw[2:4]))
	if err != nil {
		return nil, err
	}
	if length < extendedMinBody || len(raw) != 4+length+3 {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse,
			"extended frame declares %d bytes, carries %d", length, len(raw)-7)
	}

	body := raw[4 : 4+length]
	f := &ExtendedFrame{
		CommandID: string(body[:3]),
		Status:    ExtendedStatus(body[3]),
		Payload:   append([]byte(nil), body[4:]...),
		Timestamp: time.Now(),
	}

	switch f.Status {
	case ExtendedOK, ExtendedGuardSystem, ExtendedGuardSetting:
	case ExtendedUnrecognized:
		return nil, seriamp.Errorf(seriamp.KindInvalidCommand, "receiver did not recognize extended command %s", f.CommandID)
	case ExtendedParamError:
		return nil, seriamp.Errorf(seriamp.KindInvalidCommand, "receiver rejected parameters of extended command %s", f.CommandID)
	default:
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "unknown extended status %q", body[3])
	}

	if f.Status != ExtendedOK || len(f.Payload) == 0 {
		return f, nil
	}

	decode, ok := extendedDecoders[f.CommandID]
	if !ok {
		f.fields.Set(genericExtendedField(f.CommandID), string(f.Payload))
		return f, nil
	}
	if err := decode(string(f.Payload), &f.fields); err != nil {
		return nil, err
	}
	return f, nil
}

// decodeField stores the decoded value, or the raw value when it is not a known one
func (p *Parser) decodeField(name, raw string, decode valueDecoder, out *seriamp.FieldSet) {
	if decode(name, raw, out) {
		return
	}
	p.logger.Warn("Unknown field value", zap.String("field", name), zap.String("value", raw))
	out.Set(name, raw)
}

// Protocol adapts the receiver protocol to the seriamp engine
type Protocol struct {
	parser *Parser
}

// NewProtocol creates the receiver protocol adapter
func NewProtocol(logger *zap.Logger) *Protocol {
	return &Protocol{parser: NewParser(logger)}
}

func (p *Protocol) Name() string { return "yamaha" }

var terminator = []byte{ETX}

func (p *Protocol) NextFrame(buf []byte) ([]byte, []byte, bool) {
	return seriamp.NextFrame(buf, terminator)
}

func (p *Protocol) Decode(raw []byte) (seriamp.Frame, error) {
	return p.parser.Parse(raw)
}

func (p *Protocol) IdentityField() string { return "model_code" }
