// ABOUTME: Tests for the receiver and sender TUI models
// ABOUTME: Checks key bindings, snapshot ordering and rendering
package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/listenbuddy/listenbuddy-go/internal/discovery"
	"github.com/listenbuddy/listenbuddy-go/internal/session"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
)

type fakeReceiver struct {
	mu          sync.Mutex
	state       session.ReceiverState
	startErr    error
	started     int
	stopped     int
	connected   []discovery.ServerDescriptor
	disconnects int
}

func (f *fakeReceiver) State() session.ReceiverState { return f.state }

func (f *fakeReceiver) StartDiscovery() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeReceiver) StopDiscovery() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeReceiver) Connect(server discovery.ServerDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, server)
}

func (f *fakeReceiver) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

type fakeSender struct {
	state   session.SenderState
	stopErr error
	stops   int
}

func (f *fakeSender) State() session.SenderState { return f.state }

func (f *fakeSender) Stop() error {
	f.stops++
	return f.stopErr
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(m tea.Model) tea.Model {
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m
}

var office = discovery.ServerDescriptor{Name: "Office", Address: "192.168.1.20", Port: 60000}
var kitchen = discovery.ServerDescriptor{Name: "Kitchen", Address: "192.168.1.21", Port: 60000}

func TestReceiverModelStartsFromControlState(t *testing.T) {
	f := &fakeReceiver{state: session.ReceiverState{Status: "Idle", Version: 3}}
	m := NewReceiverModel(f)

	if m.state.Version != 3 {
		t.Errorf("expected version 3, got %d", m.state.Version)
	}
	if m.Init() != nil {
		t.Error("Init should not return a command")
	}
}

func TestReceiverModelDiscoveryToggle(t *testing.T) {
	f := &fakeReceiver{}
	var m tea.Model = NewReceiverModel(f)

	m, cmd := m.Update(key("d"))
	if cmd == nil {
		t.Fatal("expected a command for d")
	}
	if msg := cmd(); msg != nil {
		t.Errorf("expected nil message, got %v", msg)
	}
	if f.started != 1 {
		t.Errorf("expected StartDiscovery once, got %d", f.started)
	}

	m, _ = m.Update(ReceiverStateMsg{Phase: session.ReceiverDiscovering, Discovering: true, Version: 1})
	_, cmd = m.Update(key("d"))
	cmd()
	if f.stopped != 1 {
		t.Errorf("expected StopDiscovery once, got %d", f.stopped)
	}
}

func TestReceiverModelDiscoveryError(t *testing.T) {
	f := &fakeReceiver{startErr: errors.New("permission denied")}
	var m tea.Model = sized(NewReceiverModel(f))

	_, cmd := m.Update(key("d"))
	msg := cmd()
	errMsg, ok := msg.(ErrorMsg)
	if !ok {
		t.Fatalf("expected ErrorMsg, got %T", msg)
	}

	m, _ = m.Update(errMsg)
	if !strings.Contains(m.View(), "permission denied") {
		t.Error("view should show the error")
	}
}

func TestReceiverModelConnectByNumber(t *testing.T) {
	f := &fakeReceiver{}
	var m tea.Model = NewReceiverModel(f)
	m, _ = m.Update(ReceiverStateMsg{Servers: []discovery.ServerDescriptor{office, kitchen}, Version: 1})

	_, cmd := m.Update(key("2"))
	if cmd == nil {
		t.Fatal("expected a command for 2")
	}
	cmd()
	if len(f.connected) != 1 || f.connected[0] != kitchen {
		t.Errorf("expected connect to Kitchen, got %v", f.connected)
	}

	_, cmd = m.Update(key("3"))
	if cmd != nil {
		t.Error("selecting past the list should do nothing")
	}
}

func TestReceiverModelDisconnect(t *testing.T) {
	f := &fakeReceiver{}
	var m tea.Model = NewReceiverModel(f)

	_, cmd := m.Update(key("x"))
	cmd()
	if f.disconnects != 1 {
		t.Errorf("expected one disconnect, got %d", f.disconnects)
	}
}

func TestReceiverModelQuit(t *testing.T) {
	var m tea.Model = NewReceiverModel(&fakeReceiver{})

	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}} {
		_, cmd := m.Update(k)
		if cmd == nil {
			t.Fatalf("expected quit command for %s", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("expected QuitMsg for %s", k)
		}
	}
}

func TestReceiverModelIgnoresStaleSnapshots(t *testing.T) {
	var m tea.Model = NewReceiverModel(&fakeReceiver{})

	m, _ = m.Update(ReceiverStateMsg{Status: "Connecting...", Version: 5})
	m, _ = m.Update(ReceiverStateMsg{Status: "Idle", Version: 4})

	if got := m.(ReceiverModel).state.Status; got != "Connecting..." {
		t.Errorf("stale snapshot applied, status %q", got)
	}
}

func TestReceiverModelView(t *testing.T) {
	var m tea.Model = NewReceiverModel(&fakeReceiver{})
	if m.View() != "Loading..." {
		t.Error("view before sizing should be Loading...")
	}

	m = sized(m)
	m, _ = m.Update(ReceiverStateMsg{
		Phase:     session.ReceiverStreaming,
		Status:    "Streaming: 44100 Hz, 2 channels",
		Servers:   []discovery.ServerDescriptor{office, kitchen},
		Connected: &office,
		Header:    protocol.StreamHeader{SampleRate: 44100, Channels: 2},
		Version:   1,
	})

	view := m.View()
	for _, want := range []string{"ListenBuddy Receiver", "Streaming: 44100 Hz", "* 1. Office (192.168.1.20:60000)", "2. Kitchen", "44100Hz Stereo"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestReceiverModelViewNoServers(t *testing.T) {
	var m tea.Model = sized(NewReceiverModel(&fakeReceiver{}))
	m, _ = m.Update(ReceiverStateMsg{Discovering: true, Version: 1})

	view := m.View()
	if !strings.Contains(view, "searching") || !strings.Contains(view, "(none found)") {
		t.Errorf("unexpected view:\n%s", view)
	}
}

func TestViewLinesHaveEqualWidth(t *testing.T) {
	var m tea.Model = sized(NewReceiverModel(&fakeReceiver{}))
	m, _ = m.Update(ReceiverStateMsg{
		Status:  strings.Repeat("very long status ", 10),
		Servers: []discovery.ServerDescriptor{office},
		Version: 1,
	})

	lines := strings.Split(strings.TrimRight(m.View(), "\n"), "\n")
	width := len([]rune(lines[0]))
	for _, l := range lines {
		if got := len([]rune(l)); got != width {
			t.Errorf("line width %d, expected %d: %q", got, width, l)
		}
	}
}

func TestSenderModelStop(t *testing.T) {
	f := &fakeSender{}
	var m tea.Model = NewSenderModel(f)

	_, cmd := m.Update(key("s"))
	if cmd == nil {
		t.Fatal("expected a command for s")
	}
	if msg := cmd(); msg != nil {
		t.Errorf("expected nil message, got %v", msg)
	}
	if f.stops != 1 {
		t.Errorf("expected one stop, got %d", f.stops)
	}
}

func TestSenderModelStopError(t *testing.T) {
	f := &fakeSender{stopErr: errors.New("not broadcasting")}
	var m tea.Model = NewSenderModel(f)

	_, cmd := m.Update(key("s"))
	if _, ok := cmd().(ErrorMsg); !ok {
		t.Error("expected ErrorMsg from failed stop")
	}
}

func TestSenderModelView(t *testing.T) {
	var m tea.Model = sized(NewSenderModel(&fakeSender{}))
	m, _ = m.Update(SenderStateMsg{
		Phase:   session.SenderBroadcasting,
		Status:  "Broadcasting",
		Name:    "Office",
		Clients: 2,
		Format:  audio.Format{SampleRate: 48000, Channels: 1, BitDepth: 16},
		Port:    60000,
		Version: 2,
	})
	m, _ = m.Update(SenderStateMsg{Status: "old", Version: 1})

	view := m.View()
	for _, want := range []string{"ListenBuddy Sender", "Broadcasting", "Office", "48000Hz Mono 16-bit", "Port:    60000", "Clients: 2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "old") {
		t.Error("stale snapshot applied")
	}
}

func TestRelayWithoutProgram(t *testing.T) {
	var r Relay
	r.Send(SenderStateMsg{})
}

func TestChannelName(t *testing.T) {
	tests := map[int]string{1: "Mono", 2: "Stereo", 6: "6 channels"}
	for in, want := range tests {
		if got := channelName(in); got != want {
			t.Errorf("channelName(%d) = %q, want %q", in, got, want)
		}
	}
}
