// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monoprice

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/logging"
	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/transport"
)

// DefaultBaudRate is the amplifier's factory serial speed
const DefaultBaudRate = 9600

// ProbeZone is queried to check that an amplifier answers
const ProbeZone ZoneID = 11

// Options configure an amplifier Client
type Options struct {
	Device       string
	Patterns     []string
	ProbeTimeout time.Duration

	Retries    int
	Timeout    time.Duration
	Persistent bool
	ThreadSafe bool

	Opener   transport.Opener
	Backoff  func(attempt int) time.Duration
	Observer seriamp.Observer
	Logger   *zap.Logger
}

// Client controls the zones of one or more chained amplifiers
type Client struct {
	engine *seriamp.Client
}

// NewClient creates an amplifier client. Nothing is opened until the first command.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	proto := Protocol{}

	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = seriamp.DefaultProbeTimeout
	}
	detector := &seriamp.Detector{
		Patterns:     opts.Patterns,
		ProbeTimeout: probeTimeout,
		Probe: func(ctx context.Context, path string) error {
			c := seriamp.NewClient(proto, seriamp.Options{
				Device:  path,
				Timeout: probeTimeout,
				Opener:  opts.Opener,
				Logger:  logger.With(zap.String("probe", path)),
			})
			defer c.Close()
			_, err := c.Dispatch(ctx, QueryRequest(ProbeZone))
			return err
		},
		Logger: logger,
	}

	return &Client{
		engine: seriamp.NewClient(proto, seriamp.Options{
			Device:     opts.Device,
			Detect:     detector.Detect,
			Retries:    opts.Retries,
			Timeout:    opts.Timeout,
			Persistent: opts.Persistent,
			ThreadSafe: opts.ThreadSafe,
			Opener:     opts.Opener,
			Backoff:    opts.Backoff,
			Observer:   opts.Observer,
			Logger:     logger,
		}),
	}
}

// Zone queries the status of one zone
func (c *Client) Zone(ctx context.Context, zone ZoneID) (*ZoneStatus, error) {
	frame, err := c.engine.Dispatch(ctx, QueryRequest(zone))
	if err != nil {
		return nil, err
	}
	return frame.(*ZoneStatus), nil
}

// Set changes one zone attribute. The amplifier confirms by echoing the command.
func (c *Client) Set(ctx context.Context, zone ZoneID, field string, value any) error {
	req, err := SetRequest(zone, field, value)
	if err != nil {
		return err
	}
	_, err = c.engine.Dispatch(ctx, req)
	return err
}

func (c *Client) SetPower(ctx context.Context, zone ZoneID, on bool) error {
	return c.Set(ctx, zone, "power", on)
}

func (c *Client) SetMute(ctx context.Context, zone ZoneID, mute bool) error {
	return c.Set(ctx, zone, "mute", mute)
}

// SetVolume sets the zone volume, 0 to 38
func (c *Client) SetVolume(ctx context.Context, zone ZoneID, volume int) error {
	return c.Set(ctx, zone, "volume", volume)
}

// SetSource selects the zone's input, 1 to 6
func (c *Client) SetSource(ctx context.Context, zone ZoneID, source int) error {
	return c.Set(ctx, zone, "source", source)
}

// LastStatus returns every zone field received so far, keyed "zone<ZZ>.<field>"
func (c *Client) LastStatus() seriamp.FieldSet {
	return c.engine.Cache().Snapshot()
}

func (c *Client) DevicePath() string {
	return c.engine.DevicePath()
}

func (c *Client) Close() error {
	return c.engine.Close()
}
