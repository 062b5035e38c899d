// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package yamaha

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/transport"
)

const receiverPath = "/dev/ttyUSB0"

var (
	setVolumeMinus70 = "\x022303B\x03"
	mainPowerOn      = "\x0207A1D\x03"
	mainMuteOn       = "\x0207EA2\x03"
)

// receiver answers status requests and a handful of commands like an R0178
func receiver(extra map[string][]byte) transport.Responder {
	return func(written []byte) []byte {
		if resp, ok := extra[string(written)]; ok {
			return resp
		}
		if string(written) == "\x11001\x03" {
			return statusFrame(ModelR0178, 'B', statusR0178)
		}
		return nil
	}
}

func noBackoff(int) time.Duration { return 0 }

func newReceiver(t *testing.T, m *transport.Mock, opts Options) *Client {
	t.Helper()
	if opts.Device == "" && opts.Patterns == nil {
		opts.Device = receiverPath
	}
	if opts.Opener == nil {
		opts.Opener = transport.MockOpener(map[string]*transport.Mock{receiverPath: m})
	}
	if opts.Timeout == 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	opts.Backoff = noBackoff
	opts.Logger = zap.NewNop()

	c := NewClient(opts)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Status(t *testing.T) {
	m := transport.NewMock(receiver(nil))
	c := newReceiver(t, m, Options{})

	status, err := c.Status(context.Background())
	require.NoError(t, err)

	v, _ := status.Get("main_input")
	assert.Equal(t, "DVD", v)

	cached, _ := c.LastStatus().Get("model_code")
	assert.Equal(t, "R0178", cached)
	assert.Equal(t, receiverPath, c.DevicePath())
}

func TestClient_StatusRetriedAfterLineNoise(t *testing.T) {
	answered := 0
	m := transport.NewMock(func(written []byte) []byte {
		answered++
		raw := statusFrame(ModelR0178, 'B', statusR0178)
		if answered == 1 {
			raw[8] ^= 0x01
		}
		return raw
	})
	c := newReceiver(t, m, Options{Retries: 1})

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	v, _ := status.Get("model_code")
	assert.Equal(t, "R0178", v)
	assert.Len(t, m.Writes(), 2)
}

func TestClient_SetMainVolumeMergesPushedFrame(t *testing.T) {
	// While answering, the receiver pushes an unrelated input change first
	m := transport.NewMock(receiver(map[string][]byte{
		setVolumeMinus70: append(
			commandFrame('1', '0', ReportMainInput, "02"),
			commandFrame('0', '0', ReportMainVolume, "3B")...,
		),
	}))
	c := newReceiver(t, m, Options{})

	db, err := c.SetMainVolume(context.Background(), -70.0)
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.Equal(t, -70.0, *db)

	require.Len(t, m.Writes(), 1)
	assert.Equal(t, setVolumeMinus70, string(m.Writes()[0]))

	cache := c.LastStatus()
	v, _ := cache.Get("main_input")
	assert.Equal(t, "TUNER", v, "pushed frame merged into the cache")
	v, _ = cache.Get("main_volume")
	assert.Equal(t, -70.0, v)
}

func TestClient_MainVolumeMuted(t *testing.T) {
	m := transport.NewMock(receiver(map[string][]byte{
		"\x0207A1B\x03": commandFrame('0', '0', ReportMainVolume, "00"),
	}))
	c := newReceiver(t, m, Options{})

	db, err := c.VolumeDown(context.Background())
	require.NoError(t, err)
	assert.Nil(t, db)

	db, err = c.MainVolume(context.Background())
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.Equal(t, -70.0, *db)
}

func TestClient_GuardIsNotApplicable(t *testing.T) {
	m := transport.NewMock(receiver(map[string][]byte{
		mainMuteOn: commandFrame('0', '1', ReportMainMute, "00"),
	}))
	c := newReceiver(t, m, Options{Retries: 2, Persistent: true})

	err := c.SetMainMute(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, seriamp.ErrNotApplicable)
	assert.Len(t, m.Writes(), 1, "not retried")
	assert.False(t, m.Closed(), "not a communication failure")
}

func TestClient_ExtendedRejected(t *testing.T) {
	m := transport.NewMock(receiver(map[string][]byte{
		string(ExtendedCommand("", ExtTone, "110").Payload): extendedFrame(ExtTone, '4', ""),
	}))
	c := newReceiver(t, m, Options{Retries: 2})

	_, err := c.SetTone(context.Background(), "treble", 2.0)
	assert.ErrorIs(t, err, seriamp.ErrInvalidCommand)
	assert.Len(t, m.Writes(), 1)
}

func TestClient_ExtendedSetters(t *testing.T) {
	m := transport.NewMock(receiver(map[string][]byte{
		string(ExtendedCommand("", ExtTone, "110").Payload):            extendedFrame(ExtTone, '0', "110"),
		string(ExtendedCommand("", ExtGraphicEQ, "30C").Payload):       extendedFrame(ExtGraphicEQ, '0', "30C"),
		string(ExtendedCommand("", ExtSpeakerDistance, "2020").Payload): extendedFrame(ExtSpeakerDistance, '0', "2020"),
	}))
	c := newReceiver(t, m, Options{Persistent: true})
	ctx := context.Background()

	treble, err := c.SetTone(ctx, "treble", 2.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, treble)

	level, err := c.SetGraphicEQ(ctx, "1khz", 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, level)

	meters, err := c.SetSpeakerDistance(ctx, "center", 3.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, meters)

	assert.Equal(t, 1, m.Opens(), "persistent client reuses the transport")
}

func TestClient_UnknownField(t *testing.T) {
	m := transport.NewMock(receiver(nil))
	c := newReceiver(t, m, Options{})

	_, err := c.Set(context.Background(), "main_frobnication", 1)
	assert.ErrorIs(t, err, seriamp.ErrArgument)
	assert.Empty(t, m.Writes())

	_, err = c.Get(context.Background(), "main_frobnication")
	assert.ErrorIs(t, err, seriamp.ErrArgument)
}

func TestClient_PowerOnExtendsNextDeadline(t *testing.T) {
	m := transport.NewMock(receiver(map[string][]byte{
		mainPowerOn: commandFrame('0', '0', ReportPower, "01"),
	}))
	c := newReceiver(t, m, Options{Timeout: 100 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, c.SetMainPower(ctx, true))

	// Slower than the timeout, but within the power on delay
	m.SetDelay(300 * time.Millisecond)
	_, err := c.Status(ctx)
	require.NoError(t, err)
}

func TestClient_Raw(t *testing.T) {
	m := transport.NewMock(receiver(nil))
	c := newReceiver(t, m, Options{})

	frame, err := c.Raw(context.Background(), []byte("\x11001\x03"), true)
	require.NoError(t, err)
	assert.Equal(t, KindStatus, frame.Kind())

	frame, err = c.Raw(context.Background(), []byte("\x0207A1A\x03"), false)
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestClient_WithLockIsReentrant(t *testing.T) {
	m := transport.NewMock(receiver(map[string][]byte{
		mainMuteOn: commandFrame('0', '0', ReportMainMute, "01"),
	}))
	c := newReceiver(t, m, Options{ThreadSafe: true})

	err := c.WithLock(context.Background(), func(ctx context.Context) error {
		if err := c.SetMainMute(ctx, true); err != nil {
			return err
		}
		_, err := c.Status(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, m.Writes(), 2)
}

// createCandidates makes device files so the detector's glob finds them
func createCandidates(t *testing.T, n int) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i := range n {
		p := filepath.Join(dir, "ttyUSB"+string(rune('0'+i)))
		require.NoError(t, os.WriteFile(p, nil, 0o600))
		paths = append(paths, p)
	}
	return dir, paths
}

func TestClient_DetectsAnsweringReceiver(t *testing.T) {
	dir, paths := createCandidates(t, 3)

	// Only the second candidate answers; the others hang
	offData := statusR0178[:2] + "0" + statusR0178[3:]
	mocks := map[string]*transport.Mock{
		paths[0]: transport.NewMock(nil),
		paths[1]: transport.NewMock(func(written []byte) []byte {
			if string(written) == "\x11001\x03" {
				return statusFrame(ModelR0178, 'B', offData)
			}
			return nil
		}),
		paths[2]: transport.NewMock(nil),
	}

	c := newReceiver(t, nil, Options{
		Patterns:     []string{filepath.Join(dir, "ttyUSB*")},
		ProbeTimeout: 100 * time.Millisecond,
		Opener:       transport.MockOpener(mocks),
	})

	power, err := c.Get(context.Background(), "main_power")
	require.NoError(t, err)
	assert.Equal(t, false, power)
	assert.Equal(t, paths[1], c.DevicePath())

	// Losing probes are cancelled and release their transports
	for _, p := range []string{paths[0], paths[2]} {
		m := mocks[p]
		assert.Eventually(t, m.Closed, time.Second, 10*time.Millisecond, "probe of %s left running", p)
	}
	assert.Equal(t, 2, mocks[paths[1]].Opens(), "probe then client")
}

func TestClient_RetriesTransientFailuresWithRedetection(t *testing.T) {
	dir, paths := createCandidates(t, 1)

	m := transport.NewMock(receiver(nil))
	m.FailWrites(errors.New("line noise"), errors.New("line noise"))

	c := newReceiver(t, nil, Options{
		Patterns: []string{filepath.Join(dir, "*")},
		Retries:  2,
		Opener:   transport.MockOpener(map[string]*transport.Mock{paths[0]: m}),
	})

	_, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, m.Opens(), "reopened after each failure")
	assert.Len(t, m.Writes(), 1)
	assert.Equal(t, paths[0], c.DevicePath())
}
