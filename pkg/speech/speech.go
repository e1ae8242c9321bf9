// Package speech turns streamed response text into spoken audio.
//
// An [Assembler] groups generation tokens into sentences. Sentences are
// handed to a [Queue], which speaks them one at a time through a [Sink] in
// the order they were pushed. [SynthSink] is the production sink: it
// synthesizes each sentence with a [Synthesizer] and plays the PCM with a
// [Player].
package speech

import (
	"context"
	"errors"
	"io"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
)

// ErrQueueClosed is returned by Queue.Push after Close or Cancel.
var ErrQueueClosed = errors.New("speech: queue closed")

// Sink speaks text aloud.
type Sink interface {
	// Speak blocks until the sentence has been played or ctx is done.
	Speak(ctx context.Context, sentence string) error

	// Cancel stops whatever is playing right now. Calling it when nothing
	// plays, or more than once, has no effect. Later Speak calls play
	// normally.
	Cancel()
}

// Synthesizer converts a sentence into PCM audio.
type Synthesizer interface {
	// Synthesize returns a reader of raw PCM in the returned format. The
	// caller closes the reader.
	Synthesize(ctx context.Context, text string) (io.ReadCloser, pcm.Format, error)
}

// Player plays raw PCM audio.
type Player interface {
	// Play blocks until r is exhausted and the audio has been played, or
	// ctx is done.
	Play(ctx context.Context, r io.Reader, format pcm.Format) error
}

// Discard is a Sink that drops every sentence.
type Discard struct{}

func (Discard) Speak(ctx context.Context, _ string) error { return ctx.Err() }

func (Discard) Cancel() {}
