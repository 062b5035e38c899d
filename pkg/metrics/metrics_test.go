// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "timeout", Result(seriamp.Errorf(seriamp.KindTimeout, "late")))
	assert.Equal(t, "checksum_mismatch", Result(seriamp.Errorf(seriamp.KindChecksumMismatch, "bad")))
	assert.Equal(t, "error", Result(errors.New("plain")))
}

func TestClientMetrics_Observe(t *testing.T) {
	reg := NewRegistry()
	m := NewClientMetrics(reg)

	m.ObserveDispatch("yamaha", "status", 20*time.Millisecond, nil)
	m.ObserveDispatch("yamaha", "status", time.Second, seriamp.Errorf(seriamp.KindTimeout, "late"))
	m.ObserveRetry("yamaha", "status", seriamp.Errorf(seriamp.KindTimeout, "late"))
	m.ObserveFrame("yamaha", "command", false)
	m.ObserveFrame("yamaha", "command", false)
	m.ObserveFrame("yamaha", "status", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("yamaha", "status", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("yamaha", "status", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues("yamaha", "status")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues("yamaha", "command", "pushed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("yamaha", "status", "reply")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Latency), "failed dispatches are not timed")
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Requests.WithLabelValues("GET", "/healthz", "200").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `seriamp_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
