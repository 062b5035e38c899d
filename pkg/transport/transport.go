// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the duplex byte channels a device client talks over.
//
// A Transport is owned by exactly one client. Reads are non-blocking and paired
// with PollReadable so the caller stays in control of its own deadlines.
//
// Paths select the implementation:
//
//	/dev/ttyUSB0, COM3       serial device (go.bug.st/serial)
//	host:port                RS-232-over-TCP bridge
//	ws://host/path, wss://   RS-232-over-WebSocket bridge
package transport

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoDevice is returned when the device path does not exist.
	ErrNoDevice = errors.New("no such device")

	// ErrBadDevice is returned when the path exists but is not a serial endpoint.
	ErrBadDevice = errors.New("not a serial device")

	// ErrWouldBlock is returned by ReadNonblock when no bytes are pending.
	ErrWouldBlock = errors.New("no data available")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// Transport is a duplex byte channel to one device.
type Transport interface {
	// Write sends p to the device.
	Write(p []byte) (int, error)

	// ReadNonblock returns up to max pending bytes, or ErrWouldBlock.
	ReadNonblock(max int) ([]byte, error)

	// PollReadable waits up to timeout for bytes to become readable.
	PollReadable(timeout time.Duration) (bool, error)

	// PollErrored reports whether the channel is in an error condition.
	PollErrored() bool

	// SignalClear releases the outbound control line after a write.
	SignalClear() error

	// Close releases the channel. It is idempotent.
	Close() error
}

// Config carries the parameters needed to open any transport kind.
type Config struct {
	// Serial line parameters
	BaudRate int
	DataBits int
	Parity   string // "none", "odd", "even"
	StopBits int

	// Network bridge parameters
	DialTimeout        time.Duration
	Username           string
	Password           string
	InsecureSkipVerify bool
}

// DefaultConfig returns 9600 8N1 with a 10 second dial timeout.
func DefaultConfig() Config {
	return Config{
		BaudRate:    9600,
		DataBits:    8,
		Parity:      "none",
		StopBits:    1,
		DialTimeout: 10 * time.Second,
	}
}

// Opener opens the transport behind a device path.
type Opener func(path string) (Transport, error)

// Opener returns an Opener bound to this configuration.
func (c Config) Opener() Opener {
	return func(path string) (Transport, error) {
		return Open(path, c)
	}
}

// Open opens the transport selected by path.
func Open(path string, cfg Config) (Transport, error) {
	switch {
	case strings.HasPrefix(path, "ws://"), strings.HasPrefix(path, "wss://"):
		return OpenWebSocket(path, cfg)
	case IsNetworkAddress(path):
		return OpenTCP(path, cfg)
	default:
		return OpenSerial(path, cfg)
	}
}

// IsNetworkAddress reports whether path looks like host:port.
func IsNetworkAddress(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") {
		return false
	}
	host, port, err := net.SplitHostPort(path)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n < 65536
}

// pending holds bytes that were read ahead by PollReadable.
type pending struct {
	buf []byte
}

func (p *pending) take(max int) ([]byte, error) {
	if len(p.buf) == 0 {
		return nil, ErrWouldBlock
	}
	if max <= 0 || max > len(p.buf) {
		max = len(p.buf)
	}
	out := make([]byte, max)
	copy(out, p.buf)
	p.buf = p.buf[max:]
	return out, nil
}

func (p *pending) put(b []byte) {
	p.buf = append(p.buf, b...)
}

func (p *pending) ready() bool {
	return len(p.buf) > 0
}
