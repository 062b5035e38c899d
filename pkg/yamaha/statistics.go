// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	StatusFrames    uint64
	CommandFrames   uint64
	ExtendedFrames  uint64
	GuardedFrames   uint64
	ChecksumErrors  uint64
	HandshakeErrors uint64
	UnhandledFrames uint64
	DecodeErrors    uint64
	RejectedFrames  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts one parsed frame, or the error parsing it failed with
func (s *Statistics) Update(frame seriamp.Frame, err error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if err != nil {
		switch {
		case errors.Is(err, seriamp.ErrChecksumMismatch):
			s.ChecksumErrors++
		case errors.Is(err, seriamp.ErrHandshakeFailure):
			s.HandshakeErrors++
		case errors.Is(err, seriamp.ErrUnhandledResponse):
			s.UnhandledFrames++
		case errors.Is(err, seriamp.ErrInvalidCommand):
			// The receiver answered, it just refused
			s.RejectedFrames++
		default:
			s.DecodeErrors++
		}
		return
	}

	s.ValidFrames++
	switch f := frame.(type) {
	case *StatusFrame:
		s.StatusFrames++
	case *CommandFrame:
		s.CommandFrames++
		if f.Guarded() {
			s.GuardedFrames++
		}
	case *ExtendedFrame:
		s.ExtendedFrames++
		if f.Status.Guarded() {
			s.GuardedFrames++
		}
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.ChecksumErrors + s.HandshakeErrors + s.UnhandledFrames + s.DecodeErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(total)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames, s.TotalFrames))
	result += fmt.Sprintf("  Status:           %5d\n", s.StatusFrames)
	result += fmt.Sprintf("  Command:          %5d\n", s.CommandFrames)
	result += fmt.Sprintf("  Extended:         %5d\n", s.ExtendedFrames)
	if s.GuardedFrames > 0 {
		result += fmt.Sprintf("  Guarded:          %5d\n", s.GuardedFrames)
	}

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors, s.TotalFrames))
	}
	if s.HandshakeErrors > 0 {
		result += fmt.Sprintf("Handshake Errors:%8d (%.1f%%)\n", s.HandshakeErrors, percent(s.HandshakeErrors, s.TotalFrames))
	}
	if s.UnhandledFrames > 0 {
		result += fmt.Sprintf("Unhandled:       %8d (%.1f%%)\n", s.UnhandledFrames, percent(s.UnhandledFrames, s.TotalFrames))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors, s.TotalFrames))
	}
	if s.RejectedFrames > 0 {
		result += fmt.Sprintf("Rejected:        %8d\n", s.RejectedFrames)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
