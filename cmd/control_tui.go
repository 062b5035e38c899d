// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/seriamp/pkg/seriamp"
	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	rc       *receiverControl
	connInfo string
	interval time.Duration

	// Status
	fields     seriamp.FieldSet
	fieldTable table.Model
	lastPoll   time.Time
	polling    bool

	// Monitoring
	stats         *yamaha.Statistics
	eventLog      []logEntry
	maxLogEntries int

	// Control
	volumeInput textinput.Model
	editing     bool
	busy        bool

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(rc *receiverControl, connInfo string, interval time.Duration) controlModel {
	// Initialize text input for volume
	ti := textinput.New()
	ti.Placeholder = "-40.0"
	ti.CharLimit = 6
	ti.Width = 8

	ft := table.New(
		table.WithColumns([]table.Column{
			{Title: "Field", Width: 20},
			{Title: "Value", Width: 20},
		}),
		table.WithHeight(14),
		table.WithFocused(true),
	)

	return controlModel{
		rc:            rc,
		connInfo:      connInfo,
		interval:      interval,
		fieldTable:    ft,
		stats:         yamaha.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		volumeInput:   ti,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(m.rc.poll(), controlTickCmd())
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.fieldTable.SetHeight(max(5, m.height-14))

	case controlTickMsg:
		m.stats.CalculateRates()
		cmds := []tea.Cmd{controlTickCmd()}
		if !m.polling && !m.busy && time.Since(m.lastPoll) >= m.interval {
			m.polling = true
			cmds = append(cmds, m.rc.poll())
		}
		return m, tea.Batch(cmds...)

	case commandResultMsg:
		m.handleResult(msg)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "esc":
			m.editing = false
			m.volumeInput.Blur()
			return m, nil
		case "enter":
			m.editing = false
			m.volumeInput.Blur()
			value := strings.TrimSpace(m.volumeInput.Value())
			m.volumeInput.SetValue("")
			return m.send("volume "+value, func(ctx context.Context) (any, error) {
				return m.rc.rx.Set(ctx, "main_volume", value)
			})
		}
		var cmd tea.Cmd
		m.volumeInput, cmd = m.volumeInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "r":
		m.polling = true
		return m, m.rc.poll()

	case "p":
		on := !m.flag("main_power")
		return m.send(fmt.Sprintf("power %s", seriamp.FormatValue(on)), func(ctx context.Context) (any, error) {
			return on, m.rc.rx.SetMainPower(ctx, on)
		})

	case "m":
		mute := !m.flag("main_mute")
		return m.send(fmt.Sprintf("mute %s", seriamp.FormatValue(mute)), func(ctx context.Context) (any, error) {
			return mute, m.rc.rx.SetMainMute(ctx, mute)
		})

	case "+", "=":
		return m.send("volume up", func(ctx context.Context) (any, error) {
			return m.rc.rx.VolumeUp(ctx)
		})

	case "-":
		return m.send("volume down", func(ctx context.Context) (any, error) {
			return m.rc.rx.VolumeDown(ctx)
		})

	case "i":
		next := m.nextInput()
		return m.send("input "+next, func(ctx context.Context) (any, error) {
			return next, m.rc.rx.SetMainInput(ctx, next)
		})

	case "v":
		m.editing = true
		m.volumeInput.Focus()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.fieldTable, cmd = m.fieldTable.Update(msg)
	return m, cmd
}

// send runs one command unless another is still in flight
func (m controlModel) send(action string, fn func(ctx context.Context) (any, error)) (tea.Model, tea.Cmd) {
	if m.busy {
		m.addLogEntry("Busy, "+action+" ignored", true)
		return m, nil
	}
	m.busy = true
	return m, m.rc.run(action, fn)
}

func (m *controlModel) handleResult(msg commandResultMsg) {
	if msg.action == "status" {
		m.polling = false
		m.lastPoll = time.Now()
		m.stats.Update(msg.frame, msg.err)
	} else {
		m.busy = false
	}

	if msg.err != nil {
		if ExitCode(msg.err) == ExitConnection || seriamp.IsTimeout(msg.err) {
			if !m.connectionLost {
				m.addLogEntry("Connection lost: "+msg.err.Error(), true)
			}
			m.connectionLost = true
			return
		}
		m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		return
	}

	if m.connectionLost {
		m.connectionLost = false
		m.addLogEntry("Reconnected to "+m.rc.rx.DevicePath(), false)
	}
	if msg.action != "status" {
		m.addLogEntry(fmt.Sprintf("%s: %s", msg.action, seriamp.FormatValue(msg.value)), false)
	}

	// The cache also holds reports pushed between polls
	m.fields = m.rc.rx.LastStatus()
	m.updateTable()
}

func (m *controlModel) updateTable() {
	rows := make([]table.Row, 0, m.fields.Len())
	m.fields.Each(func(k string, v any) {
		rows = append(rows, table.Row{k, seriamp.FormatValue(v)})
	})
	m.fieldTable.SetRows(rows)
}

func (m *controlModel) flag(name string) bool {
	v, _ := m.fields.Get(name)
	b, _ := v.(bool)
	return b
}

func (m *controlModel) nextInput() string {
	names := yamaha.Inputs()
	current, _ := m.fields.Get("main_input")
	for i, name := range names {
		if name == current {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("SERIAMP CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if path := m.rc.rx.DevicePath(); path != "" {
		connStatus = path
	}
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit p=power m=mute +/-=volume i=input v=set volume r=refresh", connStatus)))
	s.WriteString("\n\n")

	// Summary line
	model, _ := m.fields.Get("model_code")
	volume, _ := m.fields.Get("main_volume")
	input, _ := m.fields.Get("main_input")
	s.WriteString(fmt.Sprintf(" %s %s  %s %s  %s %s dB  %s %s  %s %s\n",
		statsLabelStyle.Render("Model:"), statsValueStyle.Render(seriamp.FormatValue(model)),
		statsLabelStyle.Render("Power:"), statsValueStyle.Render(seriamp.FormatValue(m.flag("main_power"))),
		statsLabelStyle.Render("Volume:"), statsValueStyle.Render(seriamp.FormatValue(volume)),
		statsLabelStyle.Render("Mute:"), statsValueStyle.Render(seriamp.FormatValue(m.flag("main_mute"))),
		statsLabelStyle.Render("Input:"), statsValueStyle.Render(seriamp.FormatValue(input)),
	))
	if m.editing {
		s.WriteString(fmt.Sprintf(" %s %s\n", statsLabelStyle.Render("Volume dB:"), m.volumeInput.View()))
	}
	s.WriteString("\n")

	left := boxStyle.Render(m.fieldTable.View())
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatistics(statsLabelStyle, statsValueStyle, boxStyle),
		m.renderEventLog(boxStyle),
	)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	return s.String()
}

func (m controlModel) renderStatistics(labelStyle, valueStyle, boxStyle lipgloss.Style) string {
	st := m.stats
	var s strings.Builder
	s.WriteString(labelStyle.Render("Statistics"))
	s.WriteString("\n")
	fmt.Fprintf(&s, "Frames: %s  Valid: %s\n",
		valueStyle.Render(fmt.Sprint(st.TotalFrames)), valueStyle.Render(fmt.Sprint(st.ValidFrames)))
	fmt.Fprintf(&s, "Checksum errors: %d  Handshake errors: %d\n", st.ChecksumErrors, st.HandshakeErrors)
	fmt.Fprintf(&s, "Rate: %.2f frames/s, %.2f errors/s\n", st.FrameRate, st.ErrorRate)
	return boxStyle.Width(46).Render(s.String())
}

func (m controlModel) renderEventLog(boxStyle lipgloss.Style) string {
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	var s strings.Builder
	s.WriteString(headerStyle.Render("Event Log"))
	s.WriteString("\n")

	visible := max(3, m.height-22)
	start := max(0, len(m.eventLog)-visible)
	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("(no events)"))
	}
	for _, e := range m.eventLog[start:] {
		line := fmt.Sprintf("%s %s", e.timestamp.Format("15:04:05"), e.message)
		if e.isError {
			line = errorStyle.Render(line)
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	return boxStyle.Width(46).Render(strings.TrimRight(s.String(), "\n"))
}
