// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monoprice

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/transport"
)

const ampPath = "/dev/ttyUSB1"

// amplifier echoes every command and answers queries for zones 11 and 12.
// Rejected commands get an error line in place of the echo.
func amplifier(rejected map[string]bool) transport.Responder {
	return func(written []byte) []byte {
		line := strings.TrimSuffix(string(written), "\r")
		if rejected[line] {
			return []byte("\r\nCommand Error.\r\r\n#")
		}
		switch line {
		case "?11":
			return []byte(line + "\r\r\n#" + zone11Status + "\r\r\n#")
		case "?12":
			return []byte(line + "\r\r\n#>12" + zone11Status[3:] + "\r\r\n#")
		}
		if strings.HasPrefix(line, "<") {
			return []byte(line + "\r\r\n#")
		}
		return nil
	}
}

func newAmp(t *testing.T, m *transport.Mock, opts Options) *Client {
	t.Helper()
	if opts.Device == "" && opts.Patterns == nil {
		opts.Device = ampPath
	}
	if opts.Opener == nil {
		opts.Opener = transport.MockOpener(map[string]*transport.Mock{ampPath: m})
	}
	if opts.Timeout == 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	opts.Backoff = func(int) time.Duration { return 0 }
	opts.Logger = zap.NewNop()

	c := NewClient(opts)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_Zone(t *testing.T) {
	m := transport.NewMock(amplifier(nil))
	c := newAmp(t, m, Options{Persistent: true})
	ctx := context.Background()

	s, err := c.Zone(ctx, ZoneID(12))
	require.NoError(t, err)
	assert.Equal(t, ZoneID(12), s.Zone)
	v, _ := s.Values().Get("volume")
	assert.Equal(t, 20, v)

	_, err = c.Zone(ctx, ZoneID(11))
	require.NoError(t, err)

	cache := c.LastStatus()
	_, ok := cache.Get("zone11.power")
	assert.True(t, ok)
	_, ok = cache.Get("zone12.source")
	assert.True(t, ok)
	assert.Equal(t, 1, m.Opens())
}

func TestClient_SetWaitsForEcho(t *testing.T) {
	m := transport.NewMock(amplifier(nil))
	c := newAmp(t, m, Options{})
	ctx := context.Background()

	require.NoError(t, c.SetPower(ctx, ZoneID(11), true))
	require.NoError(t, c.SetMute(ctx, ZoneID(11), false))
	require.NoError(t, c.SetVolume(ctx, ZoneID(11), 12))
	require.NoError(t, c.SetSource(ctx, ZoneID(11), 6))

	var lines []string
	for _, w := range m.Writes() {
		lines = append(lines, string(w))
	}
	assert.Equal(t, []string{"<11PR01\r", "<11MU00\r", "<11VO12\r", "<11CH06\r"}, lines)
}

func TestClient_SetRejectedBeforeWrite(t *testing.T) {
	m := transport.NewMock(amplifier(nil))
	c := newAmp(t, m, Options{})

	err := c.SetVolume(context.Background(), ZoneID(11), 50)
	assert.ErrorIs(t, err, seriamp.ErrArgument)
	assert.Empty(t, m.Writes())
}

func TestClient_CommandError(t *testing.T) {
	m := transport.NewMock(amplifier(map[string]bool{"<11BL05": true}))
	c := newAmp(t, m, Options{Retries: 2})

	err := c.Set(context.Background(), ZoneID(11), "balance", 5)
	assert.ErrorIs(t, err, seriamp.ErrInvalidCommand)
	assert.Len(t, m.Writes(), 1, "not retried")
}

func TestClient_SilentZoneTimesOut(t *testing.T) {
	m := transport.NewMock(amplifier(nil))
	c := newAmp(t, m, Options{Timeout: 50 * time.Millisecond})

	_, err := c.Zone(context.Background(), ZoneID(21))
	assert.ErrorIs(t, err, seriamp.ErrTimeout)
}

func TestClient_DetectsAmplifier(t *testing.T) {
	dir := t.TempDir()
	quiet := filepath.Join(dir, "ttyUSB0")
	amp := filepath.Join(dir, "ttyUSB1")
	for _, p := range []string{quiet, amp} {
		require.NoError(t, os.WriteFile(p, nil, 0o600))
	}

	mocks := map[string]*transport.Mock{
		quiet: transport.NewMock(nil),
		amp:   transport.NewMock(amplifier(nil)),
	}
	c := newAmp(t, nil, Options{
		Patterns:     []string{filepath.Join(dir, "ttyUSB*")},
		ProbeTimeout: 100 * time.Millisecond,
		Opener:       transport.MockOpener(mocks),
	})

	require.NoError(t, c.SetPower(context.Background(), ZoneID(11), false))
	assert.Equal(t, amp, c.DevicePath())
	assert.Equal(t, "?11\r", string(mocks[amp].Writes()[0]), "probed with a zone query")
}
