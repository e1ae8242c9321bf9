package display

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/haivivi/edutalk/pkg/turn"
)

func TestEmitterTagsMessages(t *testing.T) {
	var got []Event
	e := NewEmitter(func(ev Event) { got = append(got, ev) })
	id := uuid.New()

	e.ShowMessage("welcome")
	e.ShowState(id, turn.Generating)
	e.ShowMessage("Hello.")
	e.ShowState(uuid.Nil, turn.Idle)

	if len(got) != 4 {
		t.Fatalf("events = %d", len(got))
	}
	if got[0].Turn != "" || got[0].State != turn.Idle || got[0].Message != "welcome" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[2].Turn != id.String() || got[2].State != turn.Generating || got[2].IsState() {
		t.Errorf("got[2] = %+v", got[2])
	}
	if !got[3].IsState() || got[3].Turn != "" {
		t.Errorf("got[3] = %+v", got[3])
	}
}

func TestChannelDropsWhenFull(t *testing.T) {
	c := NewChannel(2)
	c.ShowMessage("a")
	c.ShowMessage("b")
	c.ShowMessage("c")

	var msgs []string
	for range 2 {
		msgs = append(msgs, (<-c.Events()).Message)
	}
	if strings.Join(msgs, ",") != "a,b" {
		t.Fatalf("messages = %v", msgs)
	}
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestWriterAndMulti(t *testing.T) {
	var buf bytes.Buffer
	var events []Event
	m := Multi{NewWriter(&buf), NewEmitter(func(ev Event) { events = append(events, ev) })}
	m.ShowState(uuid.New(), turn.Speaking)
	m.ShowMessage("One.")
	m.ShowMessage("Two.")
	m.ShowResponse(uuid.Nil, "One. Two.")

	if buf.String() != "One.\nTwo.\n" {
		t.Fatalf("writer output = %q", buf.String())
	}
	if len(events) != 4 {
		t.Fatalf("emitted %d events", len(events))
	}
	if last := events[3]; !last.Response || last.Message != "One. Two." || last.State != turn.Speaking {
		t.Fatalf("response event = %+v", last)
	}
}

func TestHub(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	id := uuid.New()
	h.ShowState(id, turn.Recording)
	for len(h.broadcast) > 0 {
		time.Sleep(time.Millisecond)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	read := func() map[string]any {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("Unmarshal %s: %v", data, err)
		}
		return m
	}

	// The latest event is replayed on connect.
	first := read()
	if first["state"] != "recording" || first["turn"] != id.String() {
		t.Fatalf("replayed event = %v", first)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := h.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d", n)
	}

	h.ShowMessage("Processing your question...")
	msg := read()
	if msg["message"] != "Processing your question..." || msg["state"] != "recording" {
		t.Fatalf("message event = %v", msg)
	}
	if _, ok := msg["time"].(string); !ok {
		t.Fatalf("time missing: %v", msg)
	}

	cancel()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection still open after hub stopped")
	}
}
