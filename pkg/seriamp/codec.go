// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seriamp

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Checksum returns the byte sum of data modulo 256 as two uppercase hex digits
func Checksum(data []byte) string {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return fmt.Sprintf("%02X", sum)
}

// VerifyChecksum compares the checksum of data against the received digits
func VerifyChecksum(data []byte, received string) error {
	expected := Checksum(data)
	if !strings.EqualFold(expected, received) {
		return Errorf(KindChecksumMismatch, "checksum mismatch: expected %s, got %s", expected, received)
	}
	return nil
}

// ParseHex parses an unsigned hex field, reporting malformed input as an unexpected response
func ParseHex(s string) (int, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, Errorf(KindUnexpectedResponse, "invalid hex field %q", s)
	}
	return int(v), nil
}

// EncodeSequence serializes value from the linear range [min, max] with the
// given step. minSerialized is the hex encoding of min and fixes the width.
func EncodeSequence(value float64, minSerialized string, min, max, step float64) (string, error) {
	if math.IsNaN(value) || value < min-step/1000 || value > max+step/1000 {
		return "", Errorf(KindArgument, "value %v out of range [%v, %v]", value, min, max)
	}
	base, err := strconv.ParseUint(minSerialized, 16, 32)
	if err != nil {
		return "", Errorf(KindArgument, "invalid serialized minimum %q", minSerialized)
	}

	raw := base + uint64(math.Round((value-min)/step))
	return fmt.Sprintf("%0*X", len(minSerialized), raw), nil
}

// DecodeSequence is the inverse of EncodeSequence. It fails when the raw value
// lies outside the serialized range implied by [min, max].
func DecodeSequence(hex, minSerialized string, min, max, step float64) (float64, error) {
	base, err := strconv.ParseUint(minSerialized, 16, 32)
	if err != nil {
		return 0, Errorf(KindArgument, "invalid serialized minimum %q", minSerialized)
	}
	raw, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, Errorf(KindUnexpectedResponse, "invalid hex value %q", hex)
	}

	top := base + uint64(math.Round((max-min)/step))
	if raw < base || raw > top {
		return 0, Errorf(KindUnexpectedResponse, "serialized value %s outside %0*X..%0*X",
			hex, len(minSerialized), base, len(minSerialized), top)
	}

	value := min + float64(raw-base)*step
	return math.Round(value*1e6) / 1e6, nil
}

// HalfDBScale maps decibels in half-dB steps onto a biased hex byte.
// Raw zero is reserved for "muted".
type HalfDBScale struct {
	Offset float64 // added to dB before scaling
	Bias   int     // raw value of the minimum level
	Min    float64
	Max    float64
}

// Encode returns the two-digit hex encoding of db
func (s HalfDBScale) Encode(db float64) (string, error) {
	if math.IsNaN(db) || db < s.Min || db > s.Max {
		return "", Errorf(KindArgument, "volume %.1f dB out of range [%.1f, %.1f]", db, s.Min, s.Max)
	}
	raw := int(math.Round((db+s.Offset)/0.5)) + s.Bias
	return fmt.Sprintf("%02X", raw), nil
}

// Decode returns the level in dB, or nil when the raw value means muted
func (s HalfDBScale) Decode(hex string) (*float64, error) {
	raw, err := ParseHex(hex)
	if err != nil {
		return nil, err
	}
	if raw == 0 {
		return nil, nil
	}
	if raw < s.Bias {
		return nil, Errorf(KindUnexpectedResponse, "volume value %s below scale minimum", hex)
	}
	db := float64(raw-s.Bias)*0.5 - s.Offset
	return &db, nil
}

// NextFrame returns the first complete terminator-delimited frame in buf and
// the bytes after it. ok is false while the terminator has not arrived.
func NextFrame(buf, terminator []byte) (frame, rest []byte, ok bool) {
	idx := bytes.Index(buf, terminator)
	if idx < 0 {
		return nil, buf, false
	}
	end := idx + len(terminator)
	return buf[:end], buf[end:], true
}
