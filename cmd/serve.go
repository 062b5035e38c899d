// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/seriamp/pkg/httpapi"
	"github.com/Thermoquad/seriamp/pkg/logging"
	"github.com/Thermoquad/seriamp/pkg/metrics"
)

var (
	serveAddr      string
	serveAmp       bool
	serveAdvertise bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve receiver and amplifier control over REST",
	Long: `Serve the receiver, and optionally the amplifier, over a REST API.

Routes:
  GET  /healthz
  GET  /metrics
  GET  /yamaha/status
  GET  /yamaha/status/cached
  GET  /yamaha/fields/:name
  PUT  /yamaha/fields/:name        {"value": ...}
  POST /yamaha/raw                 {"payload": "hex", "expect_response": true}
  GET  /amp/zones/:zone
  PUT  /amp/zones/:zone/:field     {"value": ...}

The device is kept open and every request is serialized on it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().BoolVar(&serveAmp, "amp", false, "Also serve the amplifier")
	serveCmd.Flags().BoolVar(&serveAdvertise, "advertise", false, "Announce the service over mDNS")
}

func runServe(cmd *cobra.Command, args []string) error {
	httpCfg := cfg.HTTP
	if serveAddr != "" {
		httpCfg.Addr = serveAddr
	}
	if serveAdvertise {
		httpCfg.Advertise = true
	}

	reg := metrics.NewRegistry()
	if cfg.Metrics.Enable {
		observer = metrics.NewClientMetrics(reg)
	}

	// Requests arrive concurrently
	cfg.Yamaha.Persistent = true
	cfg.Yamaha.ThreadSafe = true
	cfg.Monoprice.Persistent = true
	cfg.Monoprice.ThreadSafe = true

	rx, err := newReceiver()
	if err != nil {
		return err
	}
	defer rx.Close()

	deps := httpapi.Deps{
		Receiver: rx,
		Registry: reg,
		Metrics:  metrics.NewHTTPMetrics(reg),
		Logger:   logging.L().Named("http"),
	}
	if serveAmp {
		amp, err := newAmplifier()
		if err != nil {
			return err
		}
		defer amp.Close()
		deps.Amplifier = amp
	}

	gin.SetMode(gin.ReleaseMode)
	srv := httpapi.New(httpCfg, cfg.Metrics, deps)

	ctx, stop := signalContext(cmd)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve() }()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s, press Ctrl+C to stop\n", httpCfg.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.L().Warn("Shutdown incomplete", zap.Error(err))
	}
	return nil
}
