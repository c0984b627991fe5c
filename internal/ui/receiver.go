// ABOUTME: Bubbletea model for the receiver TUI
// ABOUTME: Shows discovered servers and stream status; keys drive the session
package ui

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/listenbuddy/listenbuddy-go/internal/discovery"
	"github.com/listenbuddy/listenbuddy-go/internal/session"
)

// ReceiverControl is the part of session.Receiver the model drives
type ReceiverControl interface {
	State() session.ReceiverState
	StartDiscovery() error
	StopDiscovery()
	Connect(discovery.ServerDescriptor)
	Disconnect()
}

// ReceiverStateMsg carries a new receiver snapshot
type ReceiverStateMsg session.ReceiverState

// ErrorMsg reports a failed action
type ErrorMsg struct{ Err error }

// ReceiverModel is the receiver TUI state
type ReceiverModel struct {
	control ReceiverControl
	state   session.ReceiverState
	lastErr error

	width  int
	height int
}

// NewReceiverModel creates a model showing control's current state
func NewReceiverModel(control ReceiverControl) ReceiverModel {
	return ReceiverModel{control: control, state: control.State()}
}

// Init initializes the model
func (m ReceiverModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m ReceiverModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ReceiverStateMsg:
		// Snapshots can arrive late; keep the newest
		if msg.Version >= m.state.Version {
			m.state = session.ReceiverState(msg)
		}
	case ErrorMsg:
		m.lastErr = msg.Err
	}

	return m, nil
}

// handleKey handles keyboard input. Session calls run as commands so the
// event loop never waits on the network.
func (m ReceiverModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "d":
		m.lastErr = nil
		if m.state.Discovering {
			return m, func() tea.Msg {
				m.control.StopDiscovery()
				return nil
			}
		}
		return m, func() tea.Msg {
			if err := m.control.StartDiscovery(); err != nil {
				return ErrorMsg{Err: err}
			}
			return nil
		}
	case "x":
		return m, func() tea.Msg {
			m.control.Disconnect()
			return nil
		}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i, _ := strconv.Atoi(key)
		if i > len(m.state.Servers) {
			return m, nil
		}
		server := m.state.Servers[i-1]
		m.lastErr = nil
		return m, func() tea.Msg {
			m.control.Connect(server)
			return nil
		}
	}

	return m, nil
}

// View renders the TUI
func (m ReceiverModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := top("ListenBuddy Receiver")
	s += line("Status: %s", m.state.Status)
	s += line("Phase:  %s", m.state.Phase)
	s += divider()
	s += m.renderServers()
	s += m.renderStream()
	if m.lastErr != nil {
		s += line("Error: %v", m.lastErr)
	}
	s += divider()
	s += line("d:Discover  1-9:Connect  x:Disconnect  q:Quit")
	s += bottom()
	return s
}

func (m ReceiverModel) renderServers() string {
	title := "Servers:"
	if m.state.Discovering {
		title = "Servers (searching):"
	}
	s := line("%s", title)

	if len(m.state.Servers) == 0 {
		return s + line("  (none found)")
	}
	for i, server := range m.state.Servers {
		if i == 9 {
			s += line("  ... %d more", len(m.state.Servers)-9)
			break
		}
		marker := " "
		if m.state.Connected != nil && m.state.Connected.Address == server.Address && m.state.Connected.Port == server.Port {
			marker = "*"
		}
		s += line("%s %d. %s (%s)", marker, i+1, server.DisplayName(), server.HostPort())
	}
	return s
}

func (m ReceiverModel) renderStream() string {
	if m.state.Phase != session.ReceiverStreaming || m.state.Connected == nil {
		return line("Stream: none")
	}
	return line("Stream: %dHz %s from %s",
		m.state.Header.SampleRate, channelName(int(m.state.Header.Channels)), m.state.Connected.DisplayName())
}
