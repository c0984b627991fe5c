// ABOUTME: Bubbletea model for the sender TUI
// ABOUTME: Shows broadcast status and client count
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/listenbuddy/listenbuddy-go/internal/session"
)

// SenderControl is the part of session.Sender the model drives
type SenderControl interface {
	State() session.SenderState
	Stop() error
}

// SenderStateMsg carries a new sender snapshot
type SenderStateMsg session.SenderState

// SenderModel is the sender TUI state
type SenderModel struct {
	control SenderControl
	state   session.SenderState
	lastErr error

	width  int
	height int
}

// NewSenderModel creates a model showing control's current state
func NewSenderModel(control SenderControl) SenderModel {
	return SenderModel{control: control, state: control.State()}
}

// Init initializes the model
func (m SenderModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m SenderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, func() tea.Msg {
				if err := m.control.Stop(); err != nil {
					return ErrorMsg{Err: err}
				}
				return nil
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case SenderStateMsg:
		if msg.Version >= m.state.Version {
			m.state = session.SenderState(msg)
		}
	case ErrorMsg:
		m.lastErr = msg.Err
	}

	return m, nil
}

// View renders the TUI
func (m SenderModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := top("ListenBuddy Sender")
	s += line("Status:  %s", m.state.Status)
	s += line("Phase:   %s", m.state.Phase)
	s += divider()
	if m.state.Name != "" {
		s += line("Name:    %s", m.state.Name)
	}
	if m.state.Phase == session.SenderBroadcasting {
		s += line("Format:  %dHz %s %d-bit", m.state.Format.SampleRate, channelName(m.state.Format.Channels), m.state.Format.BitDepth)
		s += line("Port:    %d", m.state.Port)
	}
	s += line("Clients: %d", m.state.Clients)
	if m.lastErr != nil {
		s += line("Error: %v", m.lastErr)
	}
	s += divider()
	s += line("s:Stop  q:Quit")
	s += bottom()
	return s
}
