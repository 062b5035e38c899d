// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/logging"
	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/transport"
)

// Options configure a receiver Client
type Options struct {
	// Device is the serial path, host:port or ws:// URL. When empty the
	// receiver is autodetected among the paths matching Patterns.
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

// Client controls one receiver
type Client struct {
	engine *seriamp.Client
	proto  *Protocol
	logger *zap.Logger
}

// NewClient creates a receiver client. Nothing is opened until the first command.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	proto := NewProtocol(logger)

	detector := &seriamp.Detector{
		Patterns:     opts.Patterns,
		ProbeTimeout: opts.ProbeTimeout,
		Probe:        probe(proto, opts.Opener, opts.ProbeTimeout, logger),
		Logger:       logger,
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
		proto:  proto,
		logger: logger,
	}
}

// probe queries the status of a candidate through a short-lived client that never retries
func probe(proto *Protocol, opener transport.Opener, timeout time.Duration, logger *zap.Logger) seriamp.ProbeFunc {
	if timeout <= 0 {
		timeout = seriamp.DefaultProbeTimeout
	}
	return func(ctx context.Context, path string) error {
		c := seriamp.NewClient(proto, seriamp.Options{
			Device:  path,
			Timeout: timeout,
			Opener:  opener,
			Logger:  logger.With(zap.String("probe", path)),
		})
		defer c.Close()

		_, err := c.Dispatch(ctx, StatusRequest())
		return err
	}
}

// Status queries the full status report and returns its fields
func (c *Client) Status(ctx context.Context) (seriamp.FieldSet, error) {
	frame, err := c.command(ctx, StatusRequest())
	if err != nil {
		return seriamp.FieldSet{}, err
	}
	return frame.Fields(), nil
}

// LastStatus returns every field received so far without talking to the receiver
func (c *Client) LastStatus() seriamp.FieldSet {
	return c.engine.Cache().Snapshot()
}

// Get queries the status report and returns one field
func (c *Client) Get(ctx context.Context, field string) (any, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := status.Get(field)
	if !ok {
		// Pushed reports may carry fields the status report lacks
		if v, ok = c.LastStatus().Get(field); !ok {
			return nil, seriamp.Errorf(seriamp.KindArgument, "unknown field %q", field)
		}
	}
	return v, nil
}

// Set changes one field and returns the value the receiver reports back
func (c *Client) Set(ctx context.Context, field string, value any) (any, error) {
	cmd, ok := setters[field]
	if !ok {
		return nil, seriamp.Errorf(seriamp.KindArgument, "field %q cannot be set", field)
	}
	req, err := cmd.encode(value)
	if err != nil {
		return nil, err
	}

	frame, err := c.command(ctx, req)
	if err != nil {
		return nil, err
	}
	if cmd.powerOn != nil && cmd.powerOn(value) {
		c.engine.ExtendNextDeadline(PowerOnDelay)
	}

	v, ok := frame.Fields().Get(field)
	if !ok {
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "%s report lacks %s", frame.Kind(), field)
	}
	return v, nil
}

// SetMainPower turns the main zone on or off
func (c *Client) SetMainPower(ctx context.Context, on bool) error {
	_, err := c.Set(ctx, "main_power", on)
	return err
}

func (c *Client) SetZone2Power(ctx context.Context, on bool) error {
	_, err := c.Set(ctx, "zone2_power", on)
	return err
}

// MainVolume returns the main zone volume in dB, or nil when muted
func (c *Client) MainVolume(ctx context.Context) (*float64, error) {
	v, err := c.Get(ctx, "main_volume")
	if err != nil {
		return nil, err
	}
	return volumeResult(v)
}

// SetMainVolume sets the main zone volume in dB and returns the level the receiver reports
func (c *Client) SetMainVolume(ctx context.Context, db float64) (*float64, error) {
	v, err := c.Set(ctx, "main_volume", db)
	if err != nil {
		return nil, err
	}
	return volumeResult(v)
}

func (c *Client) SetZone2Volume(ctx context.Context, db float64) (*float64, error) {
	v, err := c.Set(ctx, "zone2_volume", db)
	if err != nil {
		return nil, err
	}
	return volumeResult(v)
}

// VolumeUp raises the main zone volume one step
func (c *Client) VolumeUp(ctx context.Context) (*float64, error) {
	return c.stepVolume(ctx, OperationCommand("volume_up", "7A1A", ReportMainVolume))
}

// VolumeDown lowers the main zone volume one step
func (c *Client) VolumeDown(ctx context.Context) (*float64, error) {
	return c.stepVolume(ctx, OperationCommand("volume_down", "7A1B", ReportMainVolume))
}

func (c *Client) stepVolume(ctx context.Context, req seriamp.Request) (*float64, error) {
	frame, err := c.command(ctx, req)
	if err != nil {
		return nil, err
	}
	v, _ := frame.Fields().Get("main_volume")
	return volumeResult(v)
}

func volumeResult(v any) (*float64, error) {
	switch db := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &db, nil
	default:
		return nil, seriamp.Errorf(seriamp.KindUnexpectedResponse, "volume value %v is not a level", v)
	}
}

func (c *Client) SetMainMute(ctx context.Context, mute bool) error {
	_, err := c.Set(ctx, "main_mute", mute)
	return err
}

func (c *Client) SetZone2Mute(ctx context.Context, mute bool) error {
	_, err := c.Set(ctx, "zone2_mute", mute)
	return err
}

// SetMainInput selects the main zone input by name, e.g. "DVD"
func (c *Client) SetMainInput(ctx context.Context, input string) error {
	_, err := c.Set(ctx, "main_input", input)
	return err
}

// SetTone sets the main zone bass or treble level in dB
func (c *Client) SetTone(ctx context.Context, target string, db float64) (float64, error) {
	return c.setLevel(ctx, "main_"+target, db)
}

// SetSpeakerDistance sets the distance of one speaker in meters
func (c *Client) SetSpeakerDistance(ctx context.Context, speaker string, meters float64) (float64, error) {
	return c.setLevel(ctx, "distance_"+speaker, meters)
}

// SetGraphicEQ sets one graphic equalizer band, e.g. "1khz", in dB
func (c *Client) SetGraphicEQ(ctx context.Context, band string, db float64) (float64, error) {
	return c.setLevel(ctx, "geq_"+band, db)
}

func (c *Client) setLevel(ctx context.Context, field string, value float64) (float64, error) {
	v, err := c.Set(ctx, field, value)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, seriamp.Errorf(seriamp.KindUnexpectedResponse, "%s value %v is not a number", field, v)
	}
	return f, nil
}

// Raw writes payload as is and returns the first frame received after it.
// When expectResponse is false the frame is nil.
func (c *Client) Raw(ctx context.Context, payload []byte, expectResponse bool) (seriamp.Frame, error) {
	req := seriamp.Request{Name: "raw", Payload: payload}
	if expectResponse {
		req.Correlate = func(seriamp.Frame) bool { return true }
	}
	return c.engine.Dispatch(ctx, req)
}

// Dispatch sends a prepared request, turning guarded reports into NotApplicable errors
func (c *Client) Dispatch(ctx context.Context, req seriamp.Request) (seriamp.Frame, error) {
	return c.command(ctx, req)
}

func (c *Client) command(ctx context.Context, req seriamp.Request) (seriamp.Frame, error) {
	frame, err := c.engine.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	switch f := frame.(type) {
	case *CommandFrame:
		if f.Guarded() {
			return nil, seriamp.Errorf(seriamp.KindNotApplicable, "%s refused: %s guard", req.Name, f.Guard)
		}
	case *ExtendedFrame:
		if f.Status.Guarded() {
			return nil, seriamp.Errorf(seriamp.KindNotApplicable, "%s refused: %s", req.Name, f.Status)
		}
	}
	return frame, nil
}

// WithLock runs fn with exclusive use of the receiver. Commands issued with
// the ctx passed to fn do not block on the lock.
func (c *Client) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.engine.WithLock(ctx, fn)
}

// DevicePath returns the configured or detected device path
func (c *Client) DevicePath() string {
	return c.engine.DevicePath()
}

func (c *Client) Close() error {
	return c.engine.Close()
}
