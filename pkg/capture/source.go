package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
)

// DefaultChunk is the number of samples per delivered frame.
const DefaultChunk = 512

// DefaultCaptureCommand records raw little-endian 16-bit mono PCM with
// arecord. "{rate}" is replaced with the sample rate.
var DefaultCaptureCommand = []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "{rate}"}

// CommandSource reads PCM from the stdout of an external recorder such as
// arecord or sox.
type CommandSource struct {
	Command []string
	Format  pcm.Format
	Chunk   int

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func (s *CommandSource) Start(ctx context.Context, onFrame func([]int16)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return errors.New("capture: command source already started")
	}

	argv := s.Command
	if len(argv) == 0 {
		argv = DefaultCaptureCommand
	}
	rate := strconv.Itoa(s.Format.SampleRate())
	args := make([]string, len(argv)-1)
	for i, a := range argv[1:] {
		args[i] = strings.ReplaceAll(a, "{rate}", rate)
	}

	cmd := exec.CommandContext(ctx, argv[0], args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	s.cmd = cmd
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		readFrames(bufio.NewReader(stdout), s.chunk(), onFrame)
	}()
	return nil
}

func (s *CommandSource) chunk() int {
	if s.Chunk > 0 {
		return s.Chunk
	}
	return DefaultChunk
}

func (s *CommandSource) Stop() error {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.cmd, s.done = nil, nil
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
	if err := cmd.Wait(); err != nil {
		slog.Debug("capture: recorder exited", "error", err)
	}
	return nil
}

// readFrames delivers whole frames from r until it fails. A trailing partial
// frame is delivered as is.
func readFrames(r io.Reader, chunk int, onFrame func([]int16)) {
	buf := make([]byte, 2*chunk)
	for {
		n, err := io.ReadFull(r, buf)
		if n >= 2 {
			onFrame(pcm.Decode(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// ReaderSource plays a recording from a reader as if it were a microphone.
// A RIFF/WAVE header is detected and skipped; otherwise the data is taken
// as raw PCM in Format. Frames are paced at real time unless NoPacing is
// set. When the reader is exhausted, frames stop until Stop is called.
type ReaderSource struct {
	Open     func() (io.ReadCloser, error)
	Format   pcm.Format
	Chunk    int
	NoPacing bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *ReaderSource) Start(ctx context.Context, onFrame func([]int16)) error {
	rc, err := s.Open()
	if err != nil {
		return err
	}
	br := bufio.NewReader(rc)
	if head, _ := br.Peek(4); string(head) == "RIFF" {
		f, err := pcm.ReadWAVHeader(br)
		if err != nil {
			rc.Close()
			return err
		}
		if f != s.Format {
			rc.Close()
			return fmt.Errorf("capture: wav is %v, want %v", f, s.Format)
		}
	}

	chunk := s.Chunk
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer rc.Close()

		var tick <-chan time.Time
		if !s.NoPacing {
			t := time.NewTicker(s.Format.SamplesDuration(chunk))
			defer t.Stop()
			tick = t.C
		}
		buf := make([]byte, 2*chunk)
		for {
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			} else if ctx.Err() != nil {
				return
			}
			n, err := io.ReadFull(br, buf)
			if n >= 2 {
				onFrame(pcm.Decode(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

func (s *ReaderSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
