// Package ollama streams completions from an Ollama server's /api/generate
// endpoint.
//
// A generation is consumed through [Stream.Next], which yields token,
// context and done events in arrival order and returns iterator.Done after
// the done event:
//
//	s := client.StreamGenerate(ctx, prompt, rolling)
//	defer s.Close()
//	for {
//		ev, err := s.Next()
//		if err == iterator.Done {
//			break
//		}
//		...
//	}
package ollama

import (
	"errors"
	"fmt"
)

// Context is the opaque conversation state returned by the server. It is
// sent back verbatim with the next request.
type Context []int

// EventKind discriminates Event.
type EventKind int

const (
	// EventToken carries a fragment of generated text.
	EventToken EventKind = iota + 1
	// EventContext carries a replacement conversation context.
	EventContext
	// EventDone marks the end of the generation.
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventContext:
		return "context"
	case EventDone:
		return "done"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one item of a generation stream.
type Event struct {
	Kind    EventKind
	Token   string
	Context Context
}

// ErrUnreachable is returned by Ping when the server does not answer.
var ErrUnreachable = errors.New("ollama: server unreachable")

// TransportError reports a failure talking to the server: the connection
// could not be made, the status was not 2xx, reading failed, or the stream
// ended before the done record.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ollama: %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ollama: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
