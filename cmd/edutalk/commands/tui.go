package commands

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/haivivi/edutalk/pkg/capture"
	"github.com/haivivi/edutalk/pkg/cli"
	"github.com/haivivi/edutalk/pkg/display"
	"github.com/haivivi/edutalk/pkg/turn"
)

const (
	tuiTick     = 100 * time.Millisecond
	maxEntries  = 100
	maxLogLines = 50
)

// talker is the part of the turn controller the TUI drives.
type talker interface {
	State() turn.State
	Current() (turn.Turn, bool)
	BeginCapture() bool
	EndCapture() bool
	Cancel() bool
}

// entry is one block of the conversation pane.
type entry struct {
	who  string // "you", "edutalk" or "" for status messages
	turn string
	text string
}

// TUIModel is the interactive surface: a waveform while recording, the
// conversation, and recent log lines.
type TUIModel struct {
	ctrl      talker
	recorder  *capture.Recorder
	events    <-chan display.Event
	logWriter *cli.LogWriter

	conv       viewport.Model
	entries    []entry
	logContent []string
	state      turn.State
	wave       []float32
	captured   time.Duration

	styles   cli.Styles
	width    int
	height   int
	quitting bool
}

// NewTUIModel creates a TUI model. recorder may be nil.
func NewTUIModel(ctrl talker, recorder *capture.Recorder, events <-chan display.Event, logWriter *cli.LogWriter) TUIModel {
	return TUIModel{
		ctrl:      ctrl,
		recorder:  recorder,
		events:    events,
		logWriter: logWriter,
		styles:    cli.NewStyles(cli.DefaultTheme),
	}
}

// DisplayEventMsg wraps display events for bubbletea.
type DisplayEventMsg display.Event

// LogMsg wraps log messages for bubbletea.
type LogMsg string

// TickMsg is sent periodically to refresh the waveform.
type TickMsg time.Time

// Init initializes the model.
func (m TUIModel) Init() tea.Cmd {
	return tea.Batch(
		m.listenEvents(),
		m.listenLogs(),
		m.tick(),
	)
}

func (m TUIModel) listenLogs() tea.Cmd {
	if m.logWriter == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-m.logWriter.Channel()
		if !ok {
			return nil
		}
		return LogMsg(line)
	}
}

func (m TUIModel) listenEvents() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return DisplayEventMsg(ev)
	}
}

func (m TUIModel) tick() tea.Cmd {
	return tea.Tick(tuiTick, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages.
func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeySpace:
			return m, m.talk()
		case tea.KeyRunes:
			if len(msg.Runes) == 1 {
				switch msg.Runes[0] {
				case 'q':
					m.quitting = true
					return m, tea.Quit
				case ' ':
					return m, m.talk()
				case 'c':
					return m, m.cancel()
				}
			}
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.conv, cmd = m.conv.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewport()

	case DisplayEventMsg:
		m.handleEvent(display.Event(msg))
		cmds = append(cmds, m.listenEvents())

	case LogMsg:
		m.logContent = append(m.logContent, string(msg))
		if len(m.logContent) > maxLogLines {
			m.logContent = m.logContent[len(m.logContent)-maxLogLines:]
		}
		cmds = append(cmds, m.listenLogs())

	case TickMsg:
		m.wave, m.captured = nil, 0
		if m.recorder != nil && m.recorder.Recording() {
			m.wave = m.recorder.LatestFrame()
			m.captured = m.recorder.Captured()
		}
		cmds = append(cmds, m.tick())
	}

	return m, tea.Batch(cmds...)
}

// talk starts a recording when idle, ends it while recording, and stops
// the answer otherwise.
func (m TUIModel) talk() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		switch ctrl.State() {
		case turn.Idle:
			ctrl.BeginCapture()
		case turn.Recording:
			ctrl.EndCapture()
		default:
			ctrl.Cancel()
		}
		return nil
	}
}

func (m TUIModel) cancel() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Cancel()
		return nil
	}
}

func (m *TUIModel) handleEvent(ev display.Event) {
	if ev.IsState() {
		m.state = ev.State
		if ev.State == turn.Retrieving {
			if t, ok := m.ctrl.Current(); ok && t.Prompt != "" {
				m.addEntry(entry{who: "you", turn: ev.Turn, text: t.Prompt})
			}
		}
		return
	}
	switch {
	case ev.Response:
		// The full response replaces the sentences streamed before it.
		if e := m.answer(ev.Turn); e != nil {
			e.text = ev.Message
		} else {
			m.addEntry(entry{who: "edutalk", turn: ev.Turn, text: ev.Message})
		}
	case ev.State == turn.Speaking:
		if e := m.answer(ev.Turn); e != nil {
			e.text += ev.Message
		} else {
			m.addEntry(entry{who: "edutalk", turn: ev.Turn, text: strings.TrimLeft(ev.Message, " ")})
		}
	default:
		m.addEntry(entry{text: ev.Message})
	}
	m.refresh()
}

// answer returns the answer entry of turn id if it is the latest entry.
func (m *TUIModel) answer(id string) *entry {
	if n := len(m.entries); n > 0 && id != "" {
		if e := &m.entries[n-1]; e.who == "edutalk" && e.turn == id {
			return e
		}
	}
	return nil
}

func (m *TUIModel) addEntry(e entry) {
	m.entries = append(m.entries, e)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
	m.refresh()
}

func (m *TUIModel) frame() cli.Frame {
	status := m.state.String()
	if m.state == turn.Recording {
		status += " " + cli.FormatDuration(m.captured)
	}
	return cli.Frame{
		Styles: m.styles,
		Title:  "EDUTALK",
		Status: status,
		Alert:  m.state == turn.Recording,
		Sections: []cli.Section{
			{Label: "🎙 Input", Content: m.waveLines},
			{Label: "💬 Conversation", Weight: 4, Content: func() []string {
				return strings.Split(m.conv.View(), "\n")
			}},
			{Label: "📋 Log", Weight: 2, Content: func() []string { return m.logContent }},
		},
		Help: "space=talk/stop  c=cancel  ↑/↓=scroll  q=quit",
	}
}

func (m *TUIModel) updateViewport() {
	heights := m.frame().Heights(m.height)
	m.conv = viewport.New(max(1, m.width-4), max(1, heights[1]))
	m.refresh()
}

// refresh re-wraps the conversation to the viewport width.
func (m *TUIModel) refresh() {
	width := m.conv.Width
	if width <= 0 {
		return
	}
	var lines []string
	for _, e := range m.entries {
		switch e.who {
		case "":
			for _, l := range cli.Wrap(e.text, width-2) {
				lines = append(lines, m.styles.Help.Render("» "+l))
			}
		default:
			label := m.styles.Label.Render(e.who + ":")
			lines = append(lines, label)
			for _, l := range cli.Wrap(strings.TrimSpace(e.text), width-2) {
				lines = append(lines, "  "+l)
			}
		}
	}
	m.conv.SetContent(strings.Join(lines, "\n"))
	m.conv.GotoBottom()
}

func (m TUIModel) waveLines() []string {
	return cli.Waveform(m.wave, max(1, m.width-4), 2)
}

// View renders the UI.
func (m TUIModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	return m.frame().Render(m.width, m.height)
}
