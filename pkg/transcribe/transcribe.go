// Package transcribe converts recorded speech to text through an
// OpenAI-compatible transcription endpoint (OpenAI Whisper, or a local
// server such as faster-whisper-server or whisper.cpp that serves the same
// API).
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/haivivi/edutalk/pkg/capture"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the transcription model requested when none is set.
const DefaultModel = "whisper-1"

// ErrEmptyAudio is returned for a recording without samples.
var ErrEmptyAudio = errors.New("transcribe: empty audio")

// OpenAI transcribes with the audio transcriptions API.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
	prompt   string
}

type config struct {
	model      string
	language   string
	prompt     string
	baseURL    string
	httpClient *http.Client
}

// Option configures an OpenAI transcriber.
type Option func(*config)

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the ISO-639-1 spoken language hint, e.g. "en".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithPrompt sets a vocabulary hint passed with every request.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// NewOpenAI creates a transcriber authenticated with apiKey. Local servers
// usually accept any key.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	cfg := config{
		model:      DefaultModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAI{
		client:   &client,
		model:    cfg.model,
		language: cfg.language,
		prompt:   cfg.prompt,
	}
}

// Transcribe uploads rec as a WAV file and returns the trimmed transcript.
func (o *OpenAI) Transcribe(ctx context.Context, rec capture.Recording) (string, error) {
	if len(rec.Samples) == 0 {
		return "", ErrEmptyAudio
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(rec.WAV()), "speech.wav", "audio/wav"),
		Model: openai.AudioModel(o.model),
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}
	if o.prompt != "" {
		params.Prompt = openai.String(o.prompt)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
