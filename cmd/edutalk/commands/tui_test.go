package commands

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/haivivi/edutalk/pkg/display"
	"github.com/haivivi/edutalk/pkg/turn"
)

type fakeTalker struct {
	mu     sync.Mutex
	state  turn.State
	prompt string
	calls  []string
}

func (f *fakeTalker) State() turn.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTalker) Current() (turn.Turn, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == turn.Idle {
		return turn.Turn{}, false
	}
	return turn.Turn{ID: uuid.New(), Prompt: f.prompt, State: f.state}, true
}

func (f *fakeTalker) record(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return true
}

func (f *fakeTalker) BeginCapture() bool { return f.record("begin") }
func (f *fakeTalker) EndCapture() bool   { return f.record("end") }
func (f *fakeTalker) Cancel() bool       { return f.record("cancel") }

func (f *fakeTalker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func sized(t *testing.T, m TUIModel) TUIModel {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(TUIModel)
}

func feed(m TUIModel, evs ...display.Event) TUIModel {
	for _, ev := range evs {
		next, _ := m.Update(DisplayEventMsg(ev))
		m = next.(TUIModel)
	}
	return m
}

func TestTUIConversation(t *testing.T) {
	ctrl := &fakeTalker{state: turn.Retrieving, prompt: "When is art?"}
	m := sized(t, NewTUIModel(ctrl, nil, nil, nil))

	id := uuid.NewString()
	m = feed(m,
		display.Event{Message: "Ready! Press space to speak."},
		display.Event{Turn: id, State: turn.Retrieving},
		display.Event{Turn: id, State: turn.Speaking},
		display.Event{Turn: id, State: turn.Speaking, Message: "Art is on Tuesday."},
		display.Event{Turn: id, State: turn.Speaking, Message: " Bring paint."},
		display.Event{Turn: id, State: turn.Speaking, Message: "Art is on Tuesday. Bring paint.", Response: true},
		display.Event{Turn: id, State: turn.Idle},
	)

	view := m.View()
	for _, want := range []string{"EDUTALK", "[idle]", "Ready! Press space", "you:", "When is art?", "edutalk:", "Art is on Tuesday. Bring paint."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if n := strings.Count(view, "Bring paint."); n != 1 {
		t.Errorf("answer rendered %d times", n)
	}
	if lines := strings.Split(view, "\n"); len(lines) != 30 {
		t.Errorf("view has %d lines", len(lines))
	}
}

func TestTUIStatusMessagesAfterTurn(t *testing.T) {
	ctrl := &fakeTalker{}
	m := sized(t, NewTUIModel(ctrl, nil, nil, nil))
	id := uuid.NewString()
	m = feed(m,
		display.Event{Turn: id, State: turn.Speaking},
		display.Event{Turn: id, State: turn.Speaking, Message: "Hi."},
		display.Event{Turn: id, State: turn.Idle},
		display.Event{Turn: id, State: turn.Idle, Message: "Ready!"},
	)
	if len(m.entries) != 2 || m.entries[1].who != "" {
		t.Fatalf("entries = %+v", m.entries)
	}
}

func TestTUIKeys(t *testing.T) {
	tests := []struct {
		name  string
		state turn.State
		key   tea.KeyMsg
		want  string
	}{
		{"space starts", turn.Idle, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, "begin"},
		{"space ends", turn.Recording, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, "end"},
		{"space stops speech", turn.Speaking, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, "cancel"},
		{"c cancels", turn.Generating, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}}, "cancel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeTalker{state: tt.state}
			m := sized(t, NewTUIModel(ctrl, nil, nil, nil))
			_, cmd := m.Update(tt.key)
			if cmd == nil {
				t.Fatal("no command returned")
			}
			cmd()
			if calls := ctrl.Calls(); len(calls) != 1 || calls[0] != tt.want {
				t.Fatalf("calls = %v, want %s", calls, tt.want)
			}
		})
	}
}

func TestTUIQuit(t *testing.T) {
	m := sized(t, NewTUIModel(&fakeTalker{}, nil, nil, nil))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil || next.View() != "Goodbye!\n" {
		t.Fatalf("q did not quit: %q", next.View())
	}
}

func TestTUIListensForEvents(t *testing.T) {
	ch := display.NewChannel(4)
	m := NewTUIModel(&fakeTalker{}, nil, ch.Events(), nil)
	ch.ShowMessage("hello")

	done := make(chan tea.Msg, 1)
	go func() { done <- m.listenEvents()() }()
	select {
	case msg := <-done:
		ev, ok := msg.(DisplayEventMsg)
		if !ok || ev.Message != "hello" {
			t.Fatalf("msg = %#v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}
