// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// minPoll is the shortest read timeout handed to the serial driver.
const minPoll = time.Millisecond

// SerialTransport wraps a serial port
type SerialTransport struct {
	path    string
	port    serial.Port
	mu      sync.Mutex
	rx      pending
	scratch []byte
	errored bool
	closed  bool
}

// OpenSerial opens a serial device with the line parameters from cfg
func OpenSerial(path string, cfg Config) (*SerialTransport, error) {
	if err := checkDevicePath(runtime.GOOS, path); err != nil {
		return nil, err
	}

	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, classifySerialError(path, err)
	}

	return &SerialTransport{
		path:    path,
		port:    port,
		scratch: make([]byte, 256),
	}, nil
}

// checkDevicePath rejects missing paths and plain files before the driver sees
// them. Windows port names such as COM3 are not filesystem entries; there the
// driver's PortError is classified instead.
func checkDevicePath(goos, path string) error {
	if goos == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, ErrNoDevice)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	if info.Mode().IsRegular() || info.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrBadDevice)
	}
	return nil
}

func serialMode(cfg Config) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = 9600
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch strings.ToLower(cfg.Parity) {
	case "", "none", "n":
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", cfg.StopBits)
	}

	return mode, nil
}

// classifySerialError maps driver errors onto ErrNoDevice and ErrBadDevice
func classifySerialError(path string, err error) error {
	code, ok := portErrorCode(err)
	if ok {
		switch code {
		case serial.PortNotFound:
			return fmt.Errorf("%s: %w: %v", path, ErrNoDevice, err)
		case serial.InvalidSerialPort:
			return fmt.Errorf("%s: %w: %v", path, ErrBadDevice, err)
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "no such file"), strings.Contains(errStr, "no such device"):
		return fmt.Errorf("%s: %w: %v", path, ErrNoDevice, err)
	case strings.Contains(errStr, "inappropriate ioctl"), strings.Contains(errStr, "not a typewriter"):
		return fmt.Errorf("%s: %w: %v", path, ErrBadDevice, err)
	}

	return fmt.Errorf("failed to open serial port %s: %w", path, err)
}

func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var ptr *serial.PortError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code(), true
	}
	var val serial.PortError
	if errors.As(err, &val) {
		return val.Code(), true
	}
	return 0, false
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.port.Write(p)
	if err != nil {
		s.errored = true
	}
	return n, err
}

func (s *SerialTransport) ReadNonblock(max int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.rx.take(max)
}

func (s *SerialTransport) PollReadable(timeout time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.rx.ready() {
		return true, nil
	}

	if timeout < minPoll {
		timeout = minPoll
	}
	if err := s.port.SetReadTimeout(timeout); err != nil {
		s.errored = true
		return false, err
	}

	n, err := s.port.Read(s.scratch)
	if n > 0 {
		s.rx.put(s.scratch[:n])
	}
	if err != nil {
		s.errored = true
		return s.rx.ready(), err
	}
	return s.rx.ready(), nil
}

func (s *SerialTransport) PollErrored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errored
}

// SignalClear drops RTS once the command has been written
func (s *SerialTransport) SignalClear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.port.SetRTS(false)
}

func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.port.Close()
	return nil
}

func (s *SerialTransport) String() string {
	return fmt.Sprintf("Serial: %s", s.path)
}
