// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seriamp

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/seriamp/pkg/logging"
)

// DefaultProbeTimeout bounds how long a candidate has to answer a probe
const DefaultProbeTimeout = time.Second

// ProbeFunc checks whether the device at path speaks the expected protocol.
// It must not retry and must return promptly once ctx is done.
type ProbeFunc func(ctx context.Context, path string) error

// Detector finds the one device among several candidate serial paths.
type Detector struct {
	// Patterns are glob patterns for candidate paths
	Patterns []string

	// ProbeTimeout is the response timeout a probe uses. Each probe as a whole
	// is abandoned after twice this long.
	ProbeTimeout time.Duration

	Probe  ProbeFunc
	Logger *zap.Logger
}

// DefaultPatterns returns the usual USB serial adapter paths for this platform.
// Windows ports cannot be globbed and are enumerated instead.
func DefaultPatterns() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/dev/cu.usbserial*", "/dev/cu.usbmodem*"}
	case "windows":
		return nil
	default:
		return []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
	}
}

// Candidates expands the patterns into a deduplicated list of paths
func (d *Detector) Candidates() ([]string, error) {
	patterns := d.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}

	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, Errorf(KindArgument, "bad device pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			add(m)
		}
	}

	if len(patterns) == 0 {
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, Errorf(KindIO, "enumerate serial ports: %w", err)
		}
		for _, p := range ports {
			add(p)
		}
	}

	return paths, nil
}

// Detect returns the first candidate whose probe succeeds, or "" when none does.
//
// A single candidate is returned without probing. Otherwise every candidate is
// probed concurrently; the first success wins and the remaining probes are
// cancelled. A panicking probe aborts detection with an error.
func (d *Detector) Detect(ctx context.Context) (string, error) {
	logger := d.Logger
	if logger == nil {
		logger = logging.L()
	}

	paths, err := d.Candidates()
	if err != nil {
		return "", err
	}

	switch len(paths) {
	case 0:
		logger.Debug("No candidate devices", zap.Strings("patterns", d.Patterns))
		return "", nil
	case 1:
		return paths[0], nil
	}

	if d.Probe == nil {
		return "", Errorf(KindArgument, "%d candidate devices and no probe to choose between them", len(paths))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Single slot: the first writer wins, later results are dropped
	result := make(chan string, 1)
	publish := func(path string) {
		select {
		case result <- path:
		default:
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		g.Go(func() error {
			return d.probe(gctx, logger, path, publish)
		})
	}

	fatal := make(chan error, 1)
	go func() {
		if err := g.Wait(); err != nil {
			fatal <- err
			return
		}
		// Every probe finished without a winner
		publish("")
	}()

	select {
	case path := <-result:
		if path == "" {
			return "", ctx.Err()
		}
		logger.Info("Device detected by probe", zap.String("device", path))
		return path, nil
	case err := <-fatal:
		return "", err
	}
}

type probeOutcome struct {
	err   error
	fatal error
}

// probe runs one candidate probe, abandoning it after twice the probe timeout
func (d *Detector) probe(ctx context.Context, logger *zap.Logger, path string, publish func(string)) error {
	timeout := d.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, 2*timeout)
	defer cancel()

	done := make(chan probeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeOutcome{fatal: fmt.Errorf("probe of %s panicked: %v", path, r)}
			}
		}()
		done <- probeOutcome{err: d.Probe(pctx, path)}
	}()

	select {
	case out := <-done:
		if out.fatal != nil {
			return out.fatal
		}
		if out.err != nil {
			logger.Debug("Probe failed", zap.String("device", path), zap.Error(out.err))
			return nil
		}
		publish(path)
		return nil
	case <-pctx.Done():
		logger.Debug("Probe abandoned", zap.String("device", path), zap.Error(pctx.Err()))
		return nil
	}
}
