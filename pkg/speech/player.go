package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
)

// pacingFrame is the amount of audio written per tick by WriterPlayer.
const pacingFrame = 20 * time.Millisecond

// WriterPlayer writes PCM to W at real-time speed. It is used for file
// output and in tests; cancellation takes effect within one frame.
type WriterPlayer struct {
	W io.Writer

	// NoPacing writes as fast as W accepts.
	NoPacing bool
}

func (p *WriterPlayer) Play(ctx context.Context, r io.Reader, format pcm.Format) error {
	buf := make([]byte, format.BytesInDuration(pacingFrame))
	var ticker *time.Ticker
	if !p.NoPacing {
		ticker = time.NewTicker(pacingFrame)
		defer ticker.Stop()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if _, werr := p.W.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// CommandPlayer pipes PCM into an external player process such as aplay or
// sox's play. The literal "{rate}" in any argument is replaced with the
// sample rate. Cancelling ctx kills the process.
type CommandPlayer struct {
	Command []string
}

// DefaultPlayerCommand plays raw little-endian 16-bit mono PCM with aplay.
var DefaultPlayerCommand = []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", "{rate}"}

func (p *CommandPlayer) Play(ctx context.Context, r io.Reader, format pcm.Format) error {
	argv := p.Command
	if len(argv) == 0 {
		argv = DefaultPlayerCommand
	}
	rate := strconv.Itoa(format.SampleRate())
	args := make([]string, len(argv)-1)
	for i, a := range argv[1:] {
		args[i] = strings.ReplaceAll(a, "{rate}", rate)
	}

	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Stdin = r
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
