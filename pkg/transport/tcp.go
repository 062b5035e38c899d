// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// TCPTransport talks to a serial-over-TCP bridge
type TCPTransport struct {
	addr    string
	conn    net.Conn
	mu      sync.Mutex
	rx      pending
	scratch []byte
	errored bool
	closed  bool
}

// OpenTCP dials a host:port bridge
func OpenTCP(addr string, cfg Config) (*TCPTransport, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, classifyDialError(addr, err)
	}

	return &TCPTransport{
		addr:    addr,
		conn:    conn,
		scratch: make([]byte, 512),
	}, nil
}

// classifyDialError reports an unresolvable host as ErrNoDevice. Refused or
// timed out dials stay plain errors so a bridge that is briefly down is retried.
func classifyDialError(addr string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return fmt.Errorf("%s: %w: %v", addr, ErrNoDevice, err)
	}
	return fmt.Errorf("failed to connect to %s: %w", addr, err)
}

func (t *TCPTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	n, err := t.conn.Write(p)
	if err != nil {
		t.errored = true
	}
	return n, err
}

func (t *TCPTransport) ReadNonblock(max int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	return t.rx.take(max)
}

func (t *TCPTransport) PollReadable(timeout time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, ErrClosed
	}
	if t.rx.ready() {
		return true, nil
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.errored = true
		return false, err
	}
	n, err := t.conn.Read(t.scratch)
	if n > 0 {
		t.rx.put(t.scratch[:n])
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return t.rx.ready(), nil
		}
		t.errored = true
		return t.rx.ready(), err
	}
	return true, nil
}

func (t *TCPTransport) PollErrored() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errored
}

// SignalClear is a no-op; the bridge owns the control lines.
func (t *TCPTransport) SignalClear() error {
	return nil
}

func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.conn.Close()
	return nil
}

func (t *TCPTransport) String() string {
	return fmt.Sprintf("TCP: %s", t.addr)
}
