// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"time"
)

// Responder returns the bytes a simulated device sends back after a write.
// Returning nil simulates a device that never answers.
type Responder func(written []byte) []byte

// Mock is an in-memory Transport driven by a Responder
type Mock struct {
	mu        sync.Mutex
	respond   Responder
	delay     time.Duration
	rx        []byte
	writes    [][]byte
	writeErrs []error
	clears    int
	opens     int
	closed    bool
	notify    chan struct{}
}

// NewMock creates a mock device. respond may be nil.
func NewMock(respond Responder) *Mock {
	return &Mock{
		respond: respond,
		notify:  make(chan struct{}, 1),
	}
}

// SetDelay delays every response by d
func (m *Mock) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Push queues unsolicited bytes as if the device sent them
func (m *Mock) Push(b []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, b...)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// FailWrites makes the next len(errs) writes fail with the given errors
func (m *Mock) FailWrites(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrs = append(m.writeErrs, errs...)
}

// Writes returns a copy of every successful write
func (m *Mock) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Clears returns how many times SignalClear was called
func (m *Mock) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// Opens returns how many times the mock was opened through MockOpener
func (m *Mock) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closed reports whether Close was called since the last open
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	m.opens++
}

func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if len(m.writeErrs) > 0 {
		err := m.writeErrs[0]
		m.writeErrs = m.writeErrs[1:]
		m.mu.Unlock()
		return 0, err
	}
	written := append([]byte(nil), p...)
	m.writes = append(m.writes, written)
	respond := m.respond
	delay := m.delay
	m.mu.Unlock()

	if respond == nil {
		return len(p), nil
	}
	resp := respond(written)
	if len(resp) == 0 {
		return len(p), nil
	}
	if delay > 0 {
		time.AfterFunc(delay, func() { m.Push(resp) })
	} else {
		m.Push(resp)
	}
	return len(p), nil
}

func (m *Mock) ReadNonblock(max int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.rx) == 0 {
		return nil, ErrWouldBlock
	}
	if max <= 0 || max > len(m.rx) {
		max = len(m.rx)
	}
	out := append([]byte(nil), m.rx[:max]...)
	m.rx = m.rx[max:]
	return out, nil
}

func (m *Mock) PollReadable(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		closed, ready := m.closed, len(m.rx) > 0
		m.mu.Unlock()

		if closed {
			return false, ErrClosed
		}
		if ready {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-m.notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (m *Mock) PollErrored() bool {
	return false
}

func (m *Mock) SignalClear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MockOpener opens mocks by path. Unknown paths fail with ErrNoDevice.
func MockOpener(devices map[string]*Mock) Opener {
	return func(path string) (Transport, error) {
		m, ok := devices[path]
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, ErrNoDevice)
		}
		m.reopen()
		return m, nil
	}
}
