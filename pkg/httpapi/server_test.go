// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/seriamp/pkg/config"
	"github.com/Thermoquad/seriamp/pkg/metrics"
	"github.com/Thermoquad/seriamp/pkg/monoprice"
	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReceiver struct {
	fields  seriamp.FieldSet
	err     error
	set     map[string]any
	raw     []byte
	expects bool
}

func (f *fakeReceiver) Status(context.Context) (seriamp.FieldSet, error) {
	return f.fields, f.err
}

func (f *fakeReceiver) LastStatus() seriamp.FieldSet { return f.fields }

func (f *fakeReceiver) Get(_ context.Context, field string) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.fields.Get(field)
	if !ok {
		return nil, seriamp.Errorf(seriamp.KindArgument, "unknown field %q", field)
	}
	return v, nil
}

func (f *fakeReceiver) Set(_ context.Context, field string, value any) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.set == nil {
		f.set = map[string]any{}
	}
	f.set[field] = value
	return value, nil
}

func (f *fakeReceiver) Raw(_ context.Context, payload []byte, expect bool) (seriamp.Frame, error) {
	f.raw, f.expects = payload, expect
	if !expect {
		return nil, nil
	}
	return fakeFrame{}, nil
}

type fakeFrame struct{}

func (fakeFrame) Kind() string { return "status" }
func (fakeFrame) Fields() seriamp.FieldSet { return seriamp.Fields("main_power", true) }

type fakeAmp struct {
	setZone  monoprice.ZoneID
	setField string
	setValue any
}

func (a *fakeAmp) Zone(_ context.Context, zone monoprice.ZoneID) (*monoprice.ZoneStatus, error) {
	f, err := monoprice.Protocol{}.Decode([]byte(">" + zone.String() + "00010000200707100301"))
	if err != nil {
		return nil, err
	}
	return f.(*monoprice.ZoneStatus), nil
}

func (a *fakeAmp) Set(_ context.Context, zone monoprice.ZoneID, field string, value any) error {
	if _, err := monoprice.SetRequest(zone, field, value); err != nil {
		return err
	}
	a.setZone, a.setField, a.setValue = zone, field, value
	return nil
}

func newTestServer(t *testing.T, rx Receiver, amp Amplifier, httpCfg config.HTTPConfig) (*Server, *metrics.HTTPMetrics) {
	t.Helper()
	reg := metrics.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)
	s := New(httpCfg, config.MetricsConfig{Enable: true, Path: "/metrics"}, Deps{
		Receiver:  rx,
		Amplifier: amp,
		Registry:  reg,
		Metrics:   m,
	})
	return s, m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{seriamp.Errorf(seriamp.KindNoDevice, "none"), http.StatusServiceUnavailable},
		{seriamp.Errorf(seriamp.KindTimeout, "late"), http.StatusGatewayTimeout},
		{seriamp.Errorf(seriamp.KindArgument, "bad"), http.StatusBadRequest},
		{seriamp.Errorf(seriamp.KindInvalidCommand, "no"), http.StatusUnprocessableEntity},
		{seriamp.Errorf(seriamp.KindNotApplicable, "guarded"), http.StatusConflict},
		{seriamp.Errorf(seriamp.KindChecksumMismatch, "noise"), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestReceiverRoutes(t *testing.T) {
	rx := &fakeReceiver{fields: seriamp.Fields("model_code", "R0178", "main_volume", -70.0)}
	s, _ := newTestServer(t, rx, nil, config.HTTPConfig{})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/yamaha/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"model_code":"R0178","main_volume":-70}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = do(t, h, http.MethodGet, "/yamaha/fields/main_volume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -70.0, decode(t, rec)["value"])

	rec = do(t, h, http.MethodPut, "/yamaha/fields/main_mute", `{"value": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, rx.set["main_mute"])

	rec = do(t, h, http.MethodGet, "/yamaha/fields/nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "argument", decode(t, rec)["kind"])
}

func TestReceiverRoutes_DeviceErrors(t *testing.T) {
	rx := &fakeReceiver{err: seriamp.Errorf(seriamp.KindNoDevice, "no yamaha device found")}
	s, _ := newTestServer(t, rx, nil, config.HTTPConfig{})

	rec := do(t, s.Handler(), http.MethodGet, "/yamaha/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "no_device", body["kind"])
	assert.Equal(t, "no yamaha device found", body["error"])
}

func TestReceiverRaw(t *testing.T) {
	rx := &fakeReceiver{}
	s, _ := newTestServer(t, rx, nil, config.HTTPConfig{})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/yamaha/raw", `{"payload": "11 30 30 31 03"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("\x11001\x03"), rx.raw)
	assert.True(t, rx.expects)
	assert.JSONEq(t, `{"frame":{"kind":"status","fields":{"main_power":true}}}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/yamaha/raw", `{"payload": "02303741314103", "expect_response": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, rx.expects)
	assert.JSONEq(t, `{"frame":null}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/yamaha/raw", `{"payload": "zz"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAmpRoutes(t *testing.T) {
	amp := &fakeAmp{}
	s, _ := newTestServer(t, nil, amp, config.HTTPConfig{})
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/amp/zones/12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "12", body["zone"])
	assert.Equal(t, 20.0, body["fields"].(map[string]any)["volume"])

	rec = do(t, h, http.MethodPut, "/amp/zones/12/volume", `{"value": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monoprice.ZoneID(12), amp.setZone)
	assert.Equal(t, "volume", amp.setField)

	rec = do(t, h, http.MethodPut, "/amp/zones/12/volume", `{"value": 99}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/amp/zones/47", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/yamaha/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "receiver routes absent without a receiver")
}

func TestRateLimit(t *testing.T) {
	rx := &fakeReceiver{fields: seriamp.Fields("model_code", "R0178")}
	s, m := newTestServer(t, rx, nil, config.HTTPConfig{RateLimit: 0.001, Burst: 2})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/yamaha/status/cached", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/yamaha/status/cached", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/yamaha/status/cached", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code, "health checks are not limited")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/yamaha/status/cached", "200")))
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t, &fakeReceiver{}, nil, config.HTTPConfig{})
	h := s.Handler()

	do(t, h, http.MethodGet, "/healthz", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `seriamp_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestRequestIDPassthrough(t *testing.T) {
	s, _ := newTestServer(t, nil, nil, config.HTTPConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}
