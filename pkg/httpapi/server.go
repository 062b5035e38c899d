// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpapi serves receiver and amplifier control over REST
package httpapi

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/config"
	"github.com/Thermoquad/seriamp/pkg/metrics"
	"github.com/Thermoquad/seriamp/pkg/monoprice"
	"github.com/Thermoquad/seriamp/pkg/seriamp"
)

// Receiver is the part of yamaha.Client the REST layer uses
type Receiver interface {
	Status(ctx context.Context) (seriamp.FieldSet, error)
	LastStatus() seriamp.FieldSet
	Get(ctx context.Context, field string) (any, error)
	Set(ctx context.Context, field string, value any) (any, error)
	Raw(ctx context.Context, payload []byte, expectResponse bool) (seriamp.Frame, error)
}

// Amplifier is the part of monoprice.Client the REST layer uses
type Amplifier interface {
	Zone(ctx context.Context, zone monoprice.ZoneID) (*monoprice.ZoneStatus, error)
	Set(ctx context.Context, zone monoprice.ZoneID, field string, value any) error
}

// Deps are the collaborators of a Server. Receiver and Amplifier may be nil,
// in which case their routes are not registered.
type Deps struct {
	Receiver  Receiver
	Amplifier Amplifier
	Registry  *prometheus.Registry
	Metrics   *metrics.HTTPMetrics
	Logger    *zap.Logger
}

// Server is the REST front-end
type Server struct {
	cfg    config.HTTPConfig
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
	advert *Advertisement
}

// New builds the router and HTTP server
func New(cfg config.HTTPConfig, metricsCfg config.MetricsConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))
	if deps.Metrics != nil {
		r.Use(countRequests(deps.Metrics))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if metricsCfg.Enable && deps.Registry != nil {
		path := metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler(deps.Registry)))
	}

	// Device routes share the serial line, so they are rate limited
	api := r.Group("/")
	api.Use(rateLimit(cfg.RateLimit, cfg.Burst, deps.Metrics))

	if deps.Receiver != nil {
		h := &receiverHandler{rx: deps.Receiver}
		y := api.Group("/yamaha")
		y.GET("/status", h.status)
		y.GET("/status/cached", h.cached)
		y.GET("/fields/:name", h.get)
		y.PUT("/fields/:name", h.set)
		y.POST("/raw", h.raw)
	}
	if deps.Amplifier != nil {
		h := &ampHandler{amp: deps.Amplifier}
		a := api.Group("/amp")
		a.GET("/zones/:zone", h.zone)
		a.PUT("/zones/:zone/:field", h.set)
	}

	return &Server{
		cfg:    cfg,
		engine: r,
		logger: logger,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on the configured address until Shutdown. When advertising
// is enabled the service is announced over mDNS while it runs.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("REST server listening", zap.String("addr", ln.Addr().String()))

	if s.cfg.Advertise {
		port := ln.Addr().(*net.TCPAddr).Port
		advert, err := Advertise(s.cfg.InstanceName, port)
		if err != nil {
			s.logger.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.advert = advert
		}
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops advertising and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.advert != nil {
		s.advert.Shutdown()
	}
	return s.srv.Shutdown(ctx)
}

// StatusFor maps an error to an HTTP status code
func StatusFor(err error) int {
	kind, ok := seriamp.KindOf(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
	switch kind {
	case seriamp.KindNoDevice:
		return http.StatusServiceUnavailable
	case seriamp.KindTimeout:
		return http.StatusGatewayTimeout
	case seriamp.KindArgument:
		return http.StatusBadRequest
	case seriamp.KindInvalidCommand:
		return http.StatusUnprocessableEntity
	case seriamp.KindNotApplicable:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func abortWithError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if kind, ok := seriamp.KindOf(err); ok {
		body["kind"] = kind.String()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(err), body)
}

func frameJSON(f seriamp.Frame) gin.H {
	if f == nil {
		return gin.H{"frame": nil}
	}
	return gin.H{"frame": gin.H{"kind": f.Kind(), "fields": f.Fields()}}
}

type valueBody struct {
	Value any `json:"value"`
}

// ============================================================
// Receiver
// ============================================================

type receiverHandler struct {
	rx Receiver
}

func (h *receiverHandler) status(c *gin.Context) {
	fields, err := h.rx.Status(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, fields)
}

func (h *receiverHandler) cached(c *gin.Context) {
	c.JSON(http.StatusOK, h.rx.LastStatus())
}

func (h *receiverHandler) get(c *gin.Context) {
	name := c.Param("name")
	v, err := h.rx.Get(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field": name, "value": v})
}

func (h *receiverHandler) set(c *gin.Context) {
	var body valueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, seriamp.Errorf(seriamp.KindArgument, "invalid body: %w", err))
		return
	}

	name := c.Param("name")
	v, err := h.rx.Set(c.Request.Context(), name, body.Value)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field": name, "value": v})
}

type rawBody struct {
	Payload        string `json:"payload" binding:"required"` // hex
	ExpectResponse *bool  `json:"expect_response"`
}

func (h *receiverHandler) raw(c *gin.Context) {
	var body rawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, seriamp.Errorf(seriamp.KindArgument, "invalid body: %w", err))
		return
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(body.Payload, " ", ""))
	if err != nil {
		abortWithError(c, seriamp.Errorf(seriamp.KindArgument, "payload is not hex: %w", err))
		return
	}

	expect := body.ExpectResponse == nil || *body.ExpectResponse
	frame, err := h.rx.Raw(c.Request.Context(), payload, expect)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, frameJSON(frame))
}

// ============================================================
// Amplifier
// ============================================================

type ampHandler struct {
	amp Amplifier
}

func (h *ampHandler) zone(c *gin.Context) {
	zone, err := monoprice.ParseZoneID(c.Param("zone"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	s, err := h.amp.Zone(c.Request.Context(), zone)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zone": zone.String(), "fields": s.Values()})
}

func (h *ampHandler) set(c *gin.Context) {
	zone, err := monoprice.ParseZoneID(c.Param("zone"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	var body valueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, seriamp.Errorf(seriamp.KindArgument, "invalid body: %w", err))
		return
	}

	field := c.Param("field")
	if err := h.amp.Set(c.Request.Context(), zone, field, body.Value); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zone": zone.String(), "field": field, "value": body.Value})
}
