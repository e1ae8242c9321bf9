// Package capture records microphone audio for one conversational turn.
//
// A [Source] delivers 16-bit frames on its own goroutine. The [Recorder]
// appends them to a mutex-guarded buffer and publishes the most recent
// frame through an atomic snapshot, so a render loop can draw a waveform
// without touching the accumulation lock.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
)

var (
	// ErrTooShort is returned by Recorder.Stop when less than the minimum
	// duration was captured.
	ErrTooShort = errors.New("capture: recording too short")

	// ErrRecording is returned by Recorder.Start while already recording.
	ErrRecording = errors.New("capture: already recording")

	// ErrNotRecording is returned by Recorder.Stop when idle.
	ErrNotRecording = errors.New("capture: not recording")
)

// DefaultMinDuration is the shortest recording worth transcribing.
const DefaultMinDuration = 500 * time.Millisecond

// Source produces audio frames.
type Source interface {
	// Start begins delivering frames to onFrame and returns once capture
	// is running. onFrame is called from a single goroutine and must not
	// retain the slice.
	Start(ctx context.Context, onFrame func(frame []int16)) error

	// Stop ends capture. No onFrame call happens after Stop returns.
	Stop() error
}

// Recording is one captured utterance.
type Recording struct {
	Samples []int16
	Format  pcm.Format
}

// Duration returns the length of the recording.
func (r Recording) Duration() time.Duration {
	return r.Format.SamplesDuration(len(r.Samples))
}

// WAV encodes the recording as a RIFF/WAVE file.
func (r Recording) WAV() []byte {
	return pcm.WAV(r.Format, r.Samples)
}

// Recorder accumulates frames from a Source between Start and Stop.
type Recorder struct {
	src         Source
	format      pcm.Format
	minDuration time.Duration

	mu        sync.Mutex
	samples   []int16
	recording bool

	latest atomic.Pointer[[]float32]
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMinDuration sets the minimum accepted recording length.
func WithMinDuration(d time.Duration) Option {
	return func(r *Recorder) { r.minDuration = d }
}

// NewRecorder creates a recorder reading format-encoded frames from src.
func NewRecorder(src Source, format pcm.Format, opts ...Option) *Recorder {
	r := &Recorder{
		src:         src,
		format:      format,
		minDuration: DefaultMinDuration,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Format returns the capture format.
func (r *Recorder) Format() pcm.Format { return r.format }

// Start clears the buffer and starts the source.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrRecording
	}
	r.recording = true
	r.samples = r.samples[:0]
	r.mu.Unlock()
	r.latest.Store(nil)

	if err := r.src.Start(ctx, r.onFrame); err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("capture: start: %w", err)
	}
	return nil
}

func (r *Recorder) onFrame(frame []int16) {
	norm := pcm.Normalize(frame)
	r.latest.Store(&norm)

	r.mu.Lock()
	if r.recording {
		r.samples = append(r.samples, frame...)
	}
	r.mu.Unlock()
}

// Stop stops the source and returns what was captured. When the capture is
// shorter than the minimum duration, the recording is returned together
// with ErrTooShort.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return Recording{Format: r.format}, ErrNotRecording
	}
	r.mu.Unlock()

	stopErr := r.src.Stop()

	r.mu.Lock()
	r.recording = false
	rec := Recording{
		Samples: append([]int16(nil), r.samples...),
		Format:  r.format,
	}
	r.mu.Unlock()
	r.latest.Store(nil)

	if stopErr != nil {
		return rec, fmt.Errorf("capture: stop: %w", stopErr)
	}
	if rec.Duration() < r.minDuration {
		return rec, fmt.Errorf("%w: %v < %v", ErrTooShort, rec.Duration(), r.minDuration)
	}
	return rec, nil
}

// Recording reports whether capture is running.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Captured returns how much audio has been accumulated so far.
func (r *Recorder) Captured() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format.SamplesDuration(len(r.samples))
}

// LatestFrame returns the most recent frame normalized to [-1, 1), or nil
// when not recording. The returned slice must not be modified.
func (r *Recorder) LatestFrame() []float32 {
	if p := r.latest.Load(); p != nil {
		return *p
	}
	return nil
}
