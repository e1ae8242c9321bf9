package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haivivi/edutalk/cmd/edutalk/internal/config"
	"github.com/haivivi/edutalk/pkg/capture"
	"github.com/haivivi/edutalk/pkg/kv"
	"github.com/haivivi/edutalk/pkg/ollama"
	"github.com/haivivi/edutalk/pkg/retrieval"
	"github.com/haivivi/edutalk/pkg/speech"
	"github.com/haivivi/edutalk/pkg/transcribe"
	"github.com/haivivi/edutalk/pkg/turn"
)

// session holds the components built from the configuration for one
// command invocation.
type session struct {
	cfg       *config.Config
	store     kv.Store
	client    *ollama.Client
	retriever *retrieval.Retriever
	registry  *prometheus.Registry
	metrics   *turn.Metrics

	closers []io.Closer
}

func openSession(cfg *config.Config) (*session, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:      cfg,
		store:    store,
		client:   newClient(cfg),
		registry: prometheus.NewRegistry(),
		closers:  []io.Closer{store},
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = turn.NewMetrics(s.registry)
	if cfg.Retrieval.Enabled {
		s.retriever = newRetriever(cfg, store)
	}
	return s, nil
}

func openStore(cfg *config.Config) (kv.Store, error) {
	if cfg.Storage.InMemory {
		return kv.NewMemory(), nil
	}
	dir := cfg.StorageDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: dir, Logger: slog.Default()})
	if err != nil {
		return nil, fmt.Errorf("open storage %s: %w", dir, err)
	}
	return store, nil
}

func newClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClient(cfg.Ollama.URL,
		ollama.WithModel(cfg.Ollama.Model),
		ollama.WithHeaders(cfg.Ollama.Headers),
		ollama.WithProbeTimeout(cfg.Ollama.ProbeTimeout.Std()),
		ollama.WithEmptyPromptReply(cfg.Messages.EmptyPrompt),
	)
}

func newRetriever(cfg *config.Config, store kv.Store) *retrieval.Retriever {
	opts := []retrieval.EmbedOption{
		retrieval.WithEmbedModel(cfg.Retrieval.EmbedModel),
		retrieval.WithEmbedBaseURL(cfg.Retrieval.BaseURL),
	}
	if cfg.Retrieval.Dimension > 0 {
		opts = append(opts, retrieval.WithDimension(cfg.Retrieval.Dimension))
	}
	embedder := retrieval.NewOpenAIEmbedder(cfg.Retrieval.APIKey, opts...)
	return retrieval.New(store, embedder,
		retrieval.WithCollection(cfg.Retrieval.Collection),
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithChunkWords(cfg.Retrieval.ChunkWords),
	)
}

func (s *session) newTranscriber() *transcribe.OpenAI {
	w := s.cfg.Whisper
	opts := []transcribe.Option{transcribe.WithModel(w.Model)}
	if w.BaseURL != "" {
		opts = append(opts, transcribe.WithBaseURL(w.BaseURL))
	}
	if w.Lang != "" {
		opts = append(opts, transcribe.WithLanguage(w.Lang))
	}
	if w.Prompt != "" {
		opts = append(opts, transcribe.WithPrompt(w.Prompt))
	}
	return transcribe.NewOpenAI(config.APIKey(w.APIKey), opts...)
}

// newSink returns the speech sink for the configured output. With speech
// disabled sentences are discarded.
func (s *session) newSink() (speech.Sink, error) {
	t := s.cfg.TTS
	if !t.Enabled {
		return speech.Discard{}, nil
	}
	opts := []speech.SynthOption{
		speech.WithTTSModel(t.Model),
		speech.WithVoice(t.Voice),
		speech.WithSpeed(t.Speed),
	}
	if t.BaseURL != "" {
		opts = append(opts, speech.WithTTSBaseURL(t.BaseURL))
	}
	synth := speech.NewOpenAISynthesizer(config.APIKey(t.APIKey), opts...)

	var player speech.Player = &speech.CommandPlayer{Command: t.PlayerCommand}
	if t.Output != "" {
		f, err := os.Create(t.Output)
		if err != nil {
			return nil, fmt.Errorf("open tts output: %w", err)
		}
		s.closers = append(s.closers, f)
		player = &speech.WriterPlayer{W: f}
	}
	return speech.NewSynthSink(synth, player), nil
}

// checkSpeech reports why the speech stack cannot start: a missing capture
// or player program, or an unreadable input file.
func (s *session) checkSpeech(input string) error {
	if input != "" {
		if _, err := os.Stat(input); err != nil {
			return fmt.Errorf("speech input: %w", err)
		}
	} else if err := lookCommand(s.cfg.Audio.CaptureCommand); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if s.cfg.TTS.Enabled && s.cfg.TTS.Output == "" {
		if err := lookCommand(s.cfg.TTS.PlayerCommand); err != nil {
			return fmt.Errorf("player: %w", err)
		}
	}
	return nil
}

func lookCommand(command []string) error {
	if len(command) == 0 {
		return errors.New("no command configured")
	}
	_, err := exec.LookPath(command[0])
	return err
}

// newRecorder returns a recorder on the capture command, or on a WAV/raw
// file when input is set.
func (s *session) newRecorder(input string) *capture.Recorder {
	a := s.cfg.Audio
	format := s.cfg.Format()
	var src capture.Source = &capture.CommandSource{
		Command: a.CaptureCommand,
		Format:  format,
		Chunk:   a.Chunk,
	}
	if input != "" {
		src = &capture.ReaderSource{
			Open:   func() (io.ReadCloser, error) { return os.Open(input) },
			Format: format,
			Chunk:  a.Chunk,
		}
	}
	return capture.NewRecorder(src, format, capture.WithMinDuration(a.MinDuration.Std()))
}

// newController builds a turn controller and restores the stored rolling
// context.
func (s *session) newController(ctx context.Context, d turn.Display, sink speech.Sink, opts ...turn.Option) *turn.Controller {
	base := []turn.Option{
		turn.WithDisplay(d),
		turn.WithSink(sink),
		turn.WithTemplate(s.cfg.Conversation.SystemPrompt),
		turn.WithMessages(s.cfg.Messages),
		turn.WithMetrics(s.metrics),
		turn.WithContextStore(turn.NewContextStore(s.store, s.cfg.Conversation.Session)),
	}
	if s.retriever != nil {
		base = append(base, turn.WithRetriever(s.retriever))
	}
	c := turn.New(s.client, append(base, opts...)...)
	if err := c.Restore(ctx); err != nil {
		slog.Warn("edutalk: starting without stored context", "error", err)
	}
	return c
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
