// ABOUTME: TUI program wiring
// ABOUTME: Creates bubbletea programs and relays session snapshots into them
package ui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// Relay forwards messages to a program once it is attached. Sessions are
// built before their program, so their OnChange hooks send through a Relay.
type Relay struct {
	program atomic.Pointer[tea.Program]
}

// Attach sets the program that receives messages
func (r *Relay) Attach(p *tea.Program) {
	r.program.Store(p)
}

// Send delivers msg if a program is attached. After the program exits it
// returns immediately.
func (r *Relay) Send(msg tea.Msg) {
	if p := r.program.Load(); p != nil {
		p.Send(msg)
	}
}

// NewProgram creates a full-screen program for model
func NewProgram(model tea.Model, opts ...tea.ProgramOption) *tea.Program {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return tea.NewProgram(model, opts...)
}
