package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Queue speaks pushed sentences strictly in push order on a single
// goroutine, so the producer never waits for audio.
type Queue struct {
	sink    Sink
	onSpeak func(sentence string)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []string
	closed  bool
	notify  chan struct{}

	cancelOnce sync.Once
	done       chan struct{}
	spoken     atomic.Int64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithOnSpeak registers a callback invoked right before each sentence is
// handed to the sink.
func WithOnSpeak(fn func(sentence string)) QueueOption {
	return func(q *Queue) { q.onSpeak = fn }
}

// NewQueue starts a queue speaking into sink. The queue stops when ctx is
// done, when Cancel is called, or after Close once every pending sentence
// has been spoken.
func NewQueue(ctx context.Context, sink Sink, opts ...QueueOption) *Queue {
	q := &Queue{
		sink:   sink,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	go q.loop()
	return q
}

// Push appends a sentence. Blank sentences are accepted and skipped.
func (q *Queue) Push(sentence string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, sentence)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the end of input. Pending sentences are still spoken.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Cancel discards pending sentences and stops the one playing. It is
// idempotent.
func (q *Queue) Cancel() {
	q.cancelOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.pending = nil
		q.mu.Unlock()
		q.cancel()
		q.sink.Cancel()
	})
}

// Wait blocks until the queue goroutine has exited or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the queue goroutine exits.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Spoken returns how many sentences the sink finished speaking.
func (q *Queue) Spoken() int { return int(q.spoken.Load()) }

func (q *Queue) next() (string, bool) {
	for {
		q.mu.Lock()
		if q.ctx.Err() != nil {
			q.mu.Unlock()
			return "", false
		}
		if len(q.pending) > 0 {
			s := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return s, true
		}
		if q.closed {
			q.mu.Unlock()
			return "", false
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.ctx.Done():
		}
	}
}

func (q *Queue) loop() {
	defer close(q.done)
	defer q.cancel()

	for {
		s, ok := q.next()
		if !ok {
			return
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		if q.onSpeak != nil {
			q.onSpeak(s)
		}
		if err := q.sink.Speak(q.ctx, s); err != nil {
			if q.ctx.Err() != nil {
				return
			}
			if !errors.Is(err, context.Canceled) {
				slog.Warn("speech: speak failed", "error", err)
			}
			continue
		}
		q.spoken.Add(1)
	}
}
