// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

var controlPoll time.Duration

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the receiver",
	Long: `Control the receiver via an interactive terminal UI.

Features:
  - Live status table, refreshed periodically
  - Power, mute, volume and input control
  - Frame statistics
  - Event logging
  - Automatic reconnection on connection loss

Keys:
  p  toggle main power      m  toggle main mute
  +  volume up              -  volume down
  i  next input             v  enter a volume in dB
  r  refresh now            q  quit

Supports serial, TCP and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().DurationVar(&controlPoll, "poll", 2*time.Second, "Status refresh interval")
}

// receiverControl runs receiver commands for the TUI off the UI goroutine
type receiverControl struct {
	rx      *yamaha.Client
	timeout time.Duration
}

// commandResultMsg reports the outcome of one command
type commandResultMsg struct {
	action string
	frame  seriamp.Frame
	value  any
	err    error
}

func (rc *receiverControl) run(action string, fn func(ctx context.Context) (any, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
		defer cancel()
		v, err := fn(ctx)
		return commandResultMsg{action: action, value: v, err: err}
	}
}

// poll requests a status report and hands back the raw frame for statistics
func (rc *receiverControl) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
		defer cancel()
		frame, err := rc.rx.Dispatch(ctx, yamaha.StatusRequest())
		return commandResultMsg{action: "status", frame: frame, err: err}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg.Yamaha.Persistent = true
	cfg.Yamaha.ThreadSafe = true

	rx, err := newReceiver()
	if err != nil {
		return err
	}
	defer rx.Close()

	// Retries with backoff can take several timeouts
	budget := cfg.Yamaha.Timeout*time.Duration(cfg.Yamaha.Retries+1) + 2*time.Second*time.Duration(cfg.Yamaha.Retries)
	rc := &receiverControl{rx: rx, timeout: max(budget, 5*time.Second)}

	m := initialControlModel(rc, describeConnection(cfg.Yamaha.Device, cfg.Yamaha), controlPoll)

	// Create TUI program with alt screen
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
