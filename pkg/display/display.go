// Package display delivers turn progress to the user-facing surfaces: the
// terminal UI (through a [Channel]), plain output for one-shot commands
// ([Writer]) and remote observers over a websocket ([Hub]).
package display

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haivivi/edutalk/pkg/turn"
)

// Event is one display update.
type Event struct {
	Turn    string     `json:"turn,omitempty"`
	State   turn.State `json:"state"`
	Message string     `json:"message,omitempty"`

	// Response marks Message as the complete answer of the turn, sent
	// after its sentences.
	Response bool      `json:"response,omitempty"`
	Time     time.Time `json:"time"`
}

// IsState reports whether the event is a state change rather than a
// message.
func (e Event) IsState() bool { return e.Message == "" }

// Emitter turns display calls into Events. Messages are tagged with the
// turn and state of the most recent state change.
type Emitter struct {
	emit func(Event)

	mu    sync.Mutex
	turn  uuid.UUID
	state turn.State
}

var (
	_ turn.Display         = (*Emitter)(nil)
	_ turn.ResponseDisplay = (*Emitter)(nil)
)

// NewEmitter calls emit for every display update.
func NewEmitter(emit func(Event)) *Emitter {
	return &Emitter{emit: emit}
}

func (e *Emitter) ShowState(id uuid.UUID, s turn.State) {
	e.mu.Lock()
	e.turn, e.state = id, s
	e.mu.Unlock()
	e.emit(Event{Turn: turnID(id), State: s, Time: time.Now()})
}

func (e *Emitter) ShowMessage(text string) {
	e.mu.Lock()
	id, s := e.turn, e.state
	e.mu.Unlock()
	e.emit(Event{Turn: turnID(id), State: s, Message: text, Time: time.Now()})
}

func (e *Emitter) ShowResponse(id uuid.UUID, text string) {
	e.mu.Lock()
	s := e.state
	e.mu.Unlock()
	e.emit(Event{Turn: turnID(id), State: s, Message: text, Response: true, Time: time.Now()})
}

func turnID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// Channel buffers events for a single consumer such as the terminal UI's
// update loop. When the buffer is full new events are dropped so the
// controller never blocks on a slow renderer.
type Channel struct {
	*Emitter
	ch chan Event
}

// NewChannel creates a Channel holding up to size undelivered events.
func NewChannel(size int) *Channel {
	c := &Channel{ch: make(chan Event, size)}
	c.Emitter = NewEmitter(c.send)
	return c
}

func (c *Channel) send(ev Event) {
	select {
	case c.ch <- ev:
	default:
		slog.Debug("display: channel full, dropping event", "state", ev.State)
	}
}

// Events returns the receive side.
func (c *Channel) Events() <-chan Event { return c.ch }

// Writer prints every message on its own line. State changes are logged
// at debug level only.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ turn.Display = (*Writer)(nil)

// NewWriter creates a Writer printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (d *Writer) ShowMessage(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.w, text)
}

func (d *Writer) ShowState(id uuid.UUID, s turn.State) {
	slog.Debug("display: state", "turn", id, "state", s)
}

// ShowResponse does nothing; the sentences were already printed.
func (d *Writer) ShowResponse(uuid.UUID, string) {}

// Multi fans every update out to all displays, in order.
type Multi []turn.Display

func (m Multi) ShowMessage(text string) {
	for _, d := range m {
		d.ShowMessage(text)
	}
}

func (m Multi) ShowState(id uuid.UUID, s turn.State) {
	for _, d := range m {
		d.ShowState(id, s)
	}
}

func (m Multi) ShowResponse(id uuid.UUID, text string) {
	for _, d := range m {
		if rd, ok := d.(turn.ResponseDisplay); ok {
			rd.ShowResponse(id, text)
		} else {
			d.ShowMessage(text)
		}
	}
}
