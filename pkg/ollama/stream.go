package ollama

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"google.golang.org/api/iterator"
)

// record is one line of the newline-delimited response.
type record struct {
	Response string `json:"response"`
	Context  *[]int `json:"context"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Stream is a lazily started generation. It is not safe for concurrent use.
type Stream struct {
	ctx    context.Context
	client *Client
	req    generateRequest

	resp    *http.Response
	r       *bufio.Reader
	pending []Event
	done    bool
	err     error
}

func staticStream(reply string) *Stream {
	return &Stream{
		pending: []Event{
			{Kind: EventToken, Token: reply},
			{Kind: EventDone},
		},
		done: true,
	}
}

// Next returns the next event. It returns iterator.Done after the done
// event, the context error if the stream's context ends, or a
// *TransportError when the server connection fails or the stream ends
// early. Lines that are not valid JSON are skipped.
func (s *Stream) Next() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.err != nil {
			return Event{}, s.err
		}
		if s.done {
			return Event{}, iterator.Done
		}
		if s.r == nil {
			if err := s.open(); err != nil {
				s.fail(err)
				continue
			}
		}
		s.readRecord()
	}
}

func (s *Stream) open() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	resp, err := s.client.post(s.ctx, s.req)
	if err != nil {
		return err
	}
	s.resp = resp
	s.r = bufio.NewReader(resp.Body)
	return nil
}

// readRecord reads one line and queues the events it carries, or records
// the terminal condition.
func (s *Stream) readRecord() {
	line, err := s.r.ReadBytes('\n')
	line = bytes.TrimSpace(line)
	if len(line) > 0 {
		s.decode(line)
	}
	if err == nil || s.done || s.err != nil {
		return
	}
	switch {
	case s.ctx.Err() != nil:
		s.fail(s.ctx.Err())
	case errors.Is(err, io.EOF):
		s.fail(&TransportError{URL: s.client.url, Err: io.ErrUnexpectedEOF})
	default:
		s.fail(&TransportError{URL: s.client.url, Err: err})
	}
}

func (s *Stream) decode(line []byte) {
	var rec record
	if err := sonic.Unmarshal(line, &rec); err != nil {
		slog.Debug("ollama: skipping malformed line", "error", err)
		return
	}
	if rec.Error != "" {
		s.fail(&TransportError{URL: s.client.url, Err: errors.New(rec.Error)})
		return
	}
	if rec.Response != "" {
		s.pending = append(s.pending, Event{Kind: EventToken, Token: rec.Response})
	}
	if rec.Context != nil {
		s.pending = append(s.pending, Event{Kind: EventContext, Context: Context(*rec.Context)})
	}
	if rec.Done {
		s.pending = append(s.pending, Event{Kind: EventDone})
		s.done = true
		s.closeBody()
	}
}

func (s *Stream) fail(err error) {
	s.err = err
	s.closeBody()
}

func (s *Stream) closeBody() {
	if s.resp != nil {
		s.resp.Body.Close()
		s.resp = nil
	}
}

// Close releases the connection. Next returns iterator.Done afterwards
// unless the stream already failed.
func (s *Stream) Close() error {
	s.closeBody()
	if s.err == nil {
		s.done = true
		s.pending = nil
	}
	return nil
}
