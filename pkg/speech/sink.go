package speech

import (
	"context"
	"fmt"
	"sync"
)

var _ Sink = (*SynthSink)(nil)

// SynthSink speaks by synthesizing each sentence and playing the result.
type SynthSink struct {
	synth  Synthesizer
	player Player

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSynthSink returns a sink that synthesizes with synth and plays with
// player.
func NewSynthSink(synth Synthesizer, player Player) *SynthSink {
	return &SynthSink{synth: synth, player: player}
}

func (s *SynthSink) Speak(ctx context.Context, sentence string) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	rc, format, err := s.synth.Synthesize(ctx, sentence)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	defer rc.Close()

	if err := s.player.Play(ctx, rc, format); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

func (s *SynthSink) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
