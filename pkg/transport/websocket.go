// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport talks to a serial bridge exposing the line as binary messages.
//
// gorilla/websocket connections are unusable after a read deadline expires, so
// a single reader goroutine owns the read side and hands messages over a channel.
type WebSocketTransport struct {
	url    string
	conn   *websocket.Conn
	msgs   chan []byte
	done   chan struct{}
	mu     sync.Mutex
	rx     pending
	err    error
	closed bool
}

// OpenWebSocket opens a WebSocket bridge with optional HTTP Basic auth
func OpenWebSocket(wsURL string, cfg Config) (*WebSocketTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("%s: %w (HTTP %d)", wsURL, ErrNoDevice, resp.StatusCode)
			}
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	w := &WebSocketTransport{
		url:  wsURL,
		conn: conn,
		msgs: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go w.readLoop()
	return w, nil
}

func (w *WebSocketTransport) readLoop() {
	defer close(w.msgs)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if !w.closed {
				w.err = err
			}
			w.mu.Unlock()
			return
		}

		// The line is carried in binary messages only
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.msgs <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketTransport) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		w.err = err
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketTransport) ReadNonblock(max int) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	w.drainLocked()
	return w.rx.take(max)
}

// drainLocked moves any already-delivered messages into the pending buffer
func (w *WebSocketTransport) drainLocked() {
	for {
		select {
		case data, ok := <-w.msgs:
			if !ok {
				return
			}
			w.rx.put(data)
		default:
			return
		}
	}
}

func (w *WebSocketTransport) PollReadable(timeout time.Duration) (bool, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false, ErrClosed
	}
	w.drainLocked()
	if w.rx.ready() {
		w.mu.Unlock()
		return true, nil
	}
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.msgs:
		w.mu.Lock()
		defer w.mu.Unlock()
		if !ok {
			if w.err != nil {
				return false, w.err
			}
			return false, ErrClosed
		}
		w.rx.put(data)
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (w *WebSocketTransport) PollErrored() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err != nil
}

// SignalClear is a no-op; the bridge owns the control lines.
func (w *WebSocketTransport) SignalClear() error {
	return nil
}

func (w *WebSocketTransport) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	_ = w.conn.Close()
	return nil
}

func (w *WebSocketTransport) String() string {
	return fmt.Sprintf("WebSocket: %s", w.url)
}
