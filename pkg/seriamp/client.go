// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seriamp

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/logging"
	"github.com/Thermoquad/seriamp/pkg/transport"
)

const (
	// pollInterval bounds each wait so cancellation is noticed promptly
	pollInterval = 50 * time.Millisecond

	// drainPoll is how long an opened line may stay quiet before it counts as drained
	drainPoll = 10 * time.Millisecond

	readChunk = 1024

	DefaultTimeout = 2 * time.Second
)

// Frame is one decoded unit received from a device
type Frame interface {
	// Kind names the frame type for logs and metrics
	Kind() string

	// Fields returns the decoded fields carried by the frame
	Fields() FieldSet
}

// Protocol adapts a device wire protocol to the Client
type Protocol interface {
	// Name identifies the device family in errors and logs
	Name() string

	// NextFrame splits the first complete frame off buf. rest is what the
	// caller keeps, also when ok is false.
	NextFrame(buf []byte) (frame, rest []byte, ok bool)

	// Decode parses one complete frame
	Decode(raw []byte) (Frame, error)

	// IdentityField names the field that identifies the device model, if any
	IdentityField() string
}

// Request is one command written to the device
type Request struct {
	Name    string
	Payload []byte

	// Correlate reports whether a frame answers this request.
	// A nil Correlate means the command has no response.
	Correlate func(Frame) bool
}

// Observer receives engine events, typically for metrics
type Observer interface {
	ObserveDispatch(protocol, request string, elapsed time.Duration, err error)
	ObserveRetry(protocol, request string, err error)
	ObserveFrame(protocol, kind string, correlated bool)
}

// DetectFunc locates a device path. An empty path means nothing was found.
type DetectFunc func(ctx context.Context) (string, error)

// Options configure a Client
type Options struct {
	// Device is the device path. When empty, Detect is consulted.
	Device string
	Detect DetectFunc

	// Retries is the number of extra attempts after a transient failure
	Retries int
	Timeout time.Duration

	// Persistent keeps the transport open between commands
	Persistent bool

	// ThreadSafe serializes every dispatch behind a reentrant lock
	ThreadSafe bool

	Opener   transport.Opener
	Backoff  func(attempt int) time.Duration
	Observer Observer
	Logger   *zap.Logger
}

// Client is the transport, retry and locking engine shared by every device protocol
type Client struct {
	proto    Protocol
	opener   transport.Opener
	detect   DetectFunc
	retries  int
	timeout  time.Duration
	persist  bool
	backoff  func(int) time.Duration
	observer Observer
	logger   *zap.Logger
	cache    *ResponseCache

	// lock is a one-slot semaphore; nil when ThreadSafe is off
	lock chan struct{}

	// mu guards the fields below; they are also read outside dispatch
	mu           sync.Mutex
	device       string
	detected     bool
	nextEarliest time.Time

	// Owned by the dispatching goroutine
	tr transport.Transport
	rx []byte
}

type lockKey struct {
	c *Client
}

// NewClient creates an engine for proto. Nothing is opened until the first dispatch.
func NewClient(proto Protocol, opts Options) *Client {
	c := &Client{
		proto:    proto,
		opener:   opts.Opener,
		detect:   opts.Detect,
		retries:  opts.Retries,
		timeout:  opts.Timeout,
		persist:  opts.Persistent,
		backoff:  opts.Backoff,
		observer: opts.Observer,
		logger:   opts.Logger,
		device:   opts.Device,
		cache:    NewResponseCache(proto.IdentityField()),
	}
	if c.opener == nil {
		c.opener = transport.DefaultConfig().Opener()
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.backoff == nil {
		c.backoff = JitterBackoff
	}
	if c.logger == nil {
		c.logger = logging.L()
	}
	c.logger = c.logger.With(zap.String("protocol", proto.Name()))
	if opts.ThreadSafe {
		c.lock = make(chan struct{}, 1)
	}
	return c
}

// JitterBackoff waits a random 1 to 2 seconds between attempts
func JitterBackoff(int) time.Duration {
	return time.Second + rand.N(time.Second)
}

// Cache returns the device status accumulated from every received frame
func (c *Client) Cache() *ResponseCache {
	return c.cache
}

// DevicePath returns the configured or detected device path
func (c *Client) DevicePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// ExtendNextDeadline guarantees the next response wait lasts until at least
// now+d. Used after commands the device needs time to recover from.
func (c *Client) ExtendNextDeadline(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().Add(d)
	if t.After(c.nextEarliest) {
		c.nextEarliest = t
	}
}

// WithLock runs fn while holding the client lock. Calls nested inside fn
// that pass on its context do not block.
func (c *Client) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.lock == nil || ctx.Value(lockKey{c}) != nil {
		return fn(ctx)
	}

	select {
	case c.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.lock }()

	return fn(context.WithValue(ctx, lockKey{c}, true))
}

// Dispatch writes req and returns the first frame correlated with it.
// Uncorrelated frames received meanwhile are merged into the cache.
func (c *Client) Dispatch(ctx context.Context, req Request) (Frame, error) {
	var frame Frame
	err := c.WithLock(ctx, func(ctx context.Context) error {
		var err error
		frame, err = c.dispatchWithRetry(ctx, req)
		return err
	})
	return frame, err
}

// Close releases the transport if one is held open
func (c *Client) Close() error {
	return c.WithLock(context.Background(), func(context.Context) error {
		c.closeTransport()
		return nil
	})
}

func (c *Client) dispatchWithRetry(ctx context.Context, req Request) (Frame, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		frame, usedDetected, err := c.dispatchOnce(ctx, req)
		if c.observer != nil {
			c.observer.ObserveDispatch(c.proto.Name(), req.Name, time.Since(start), err)
		}
		if err == nil {
			return frame, nil
		}

		retryable := IsRetryable(err) || (usedDetected && IsNoDevice(err))
		if !retryable || attempt >= c.retries || ctx.Err() != nil {
			return nil, err
		}

		c.logger.Warn("Command failed, retrying",
			zap.String("request", req.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if c.observer != nil {
			c.observer.ObserveRetry(c.proto.Name(), req.Name, err)
		}

		c.forgetDetectedDevice()

		if err := sleepContext(ctx, c.backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

func (c *Client) dispatchOnce(ctx context.Context, req Request) (Frame, bool, error) {
	tr, path, detected, err := c.ensureOpen(ctx)
	if err != nil {
		return nil, detected, err
	}
	if !c.persist {
		defer c.closeTransport()
	}

	frame, err := c.exchange(ctx, tr, path, req)
	if err != nil && c.persist && discardsTransport(err) {
		c.closeTransport()
	}
	return frame, detected, err
}

// discardsTransport reports whether err leaves the line in an unknown state
func discardsTransport(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return true
	}
	switch kind {
	case KindInvalidCommand, KindNotApplicable, KindArgument:
		return false
	}
	return true
}

func (c *Client) ensureDevice(ctx context.Context) (string, bool, error) {
	c.mu.Lock()
	path, detected := c.device, c.detected
	c.mu.Unlock()
	if path != "" {
		return path, detected, nil
	}

	if c.detect == nil {
		return "", false, Errorf(KindNoDevice, "no %s device configured", c.proto.Name())
	}

	path, err := c.detect(ctx)
	if err != nil {
		return "", true, err
	}
	if path == "" {
		return "", false, Errorf(KindNoDevice, "no %s device found", c.proto.Name())
	}

	c.logger.Info("Device detected", zap.String("device", path))

	c.mu.Lock()
	c.device = path
	c.detected = true
	c.mu.Unlock()
	return path, true, nil
}

func (c *Client) forgetDetectedDevice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detected {
		c.device = ""
		c.detected = false
	}
}

func (c *Client) ensureOpen(ctx context.Context) (transport.Transport, string, bool, error) {
	path, detected, err := c.ensureDevice(ctx)
	if err != nil {
		return nil, path, detected, err
	}
	if c.tr != nil {
		return c.tr, path, detected, nil
	}

	tr, err := c.opener(path)
	if err != nil {
		return nil, path, detected, fromTransport("open", path, err)
	}
	c.logger.Debug("Transport opened", zap.String("device", path))

	c.tr = tr
	c.rx = c.rx[:0]
	c.drain(tr)
	return tr, path, detected, nil
}

// drain discards anything the device sent before we asked
func (c *Client) drain(tr transport.Transport) {
	var stale []byte
	for {
		ready, err := tr.PollReadable(drainPoll)
		if err != nil || !ready {
			break
		}
		chunk, err := tr.ReadNonblock(readChunk)
		if err != nil {
			break
		}
		stale = append(stale, chunk...)
	}

	if len(stale) > 0 {
		c.logger.Warn("Discarded unsolicited bytes on open", zap.Int("bytes", len(stale)))
		logging.RawBytes(c.logger, "Stale", stale)
	}
}

func (c *Client) closeTransport() {
	if c.tr == nil {
		return
	}
	_ = c.tr.Close()
	c.tr = nil
	c.rx = c.rx[:0]
}

func (c *Client) deadline() time.Time {
	d := time.Now().Add(c.timeout)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextEarliest.After(d) {
		return c.nextEarliest
	}
	return d
}

func (c *Client) exchange(ctx context.Context, tr transport.Transport, path string, req Request) (Frame, error) {
	logging.RawBytes(c.logger, "TX "+req.Name, req.Payload)

	if _, err := tr.Write(req.Payload); err != nil {
		return nil, fromTransport("write", path, err)
	}
	if err := tr.SignalClear(); err != nil {
		return nil, fromTransport("signal", path, err)
	}
	if req.Correlate == nil {
		return nil, nil
	}

	deadline := c.deadline()
	buf := c.rx
	for {
		for {
			raw, rest, ok := c.proto.NextFrame(buf)
			buf = rest
			if !ok {
				break
			}
			logging.RawBytes(c.logger, "RX", raw)

			frame, err := c.proto.Decode(raw)
			if err != nil {
				c.rx = buf
				return nil, err
			}

			correlated := req.Correlate(frame)
			c.cache.Merge(frame.Fields())
			if c.observer != nil {
				c.observer.ObserveFrame(c.proto.Name(), frame.Kind(), correlated)
			}
			if correlated {
				c.rx = buf
				return frame, nil
			}
			c.logger.Debug("Merged unsolicited frame", zap.String("kind", frame.Kind()))
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.rx = buf
			return nil, Errorf(KindTimeout, "no response to %s from %s within %s", req.Name, path, c.timeout)
		}
		if err := ctx.Err(); err != nil {
			c.rx = buf
			return nil, err
		}

		ready, err := tr.PollReadable(min(remaining, pollInterval))
		if err != nil {
			return nil, fromTransport("read", path, err)
		}
		if tr.PollErrored() {
			return nil, Errorf(KindIO, "read %s: transport in error state", path)
		}
		if !ready {
			continue
		}

		chunk, err := tr.ReadNonblock(readChunk)
		if errors.Is(err, transport.ErrWouldBlock) {
			continue
		}
		if err != nil {
			return nil, fromTransport("read", path, err)
		}
		buf = append(buf, chunk...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
