package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openAIDefaultTTSModel = "tts-1"
	openAIDefaultVoice    = "alloy"
)

var _ Synthesizer = (*OpenAISynthesizer)(nil)

// OpenAISynthesizer implements [Synthesizer] with the OpenAI speech API or
// any compatible server. Audio is requested as raw 24 kHz PCM.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	voice  string
	speed  float64
}

type synthConfig struct {
	model      string
	voice      string
	speed      float64
	baseURL    string
	httpClient *http.Client
}

// SynthOption configures an OpenAISynthesizer.
type SynthOption func(*synthConfig)

// WithTTSModel sets the speech model, e.g. "tts-1" or "gpt-4o-mini-tts".
func WithTTSModel(model string) SynthOption {
	return func(c *synthConfig) { c.model = model }
}

// WithVoice sets the voice name.
func WithVoice(voice string) SynthOption {
	return func(c *synthConfig) { c.voice = voice }
}

// WithSpeed sets the playback speed multiplier (0.25 to 4.0).
func WithSpeed(speed float64) SynthOption {
	return func(c *synthConfig) { c.speed = speed }
}

// WithTTSBaseURL points the client at a compatible server.
func WithTTSBaseURL(url string) SynthOption {
	return func(c *synthConfig) { c.baseURL = url }
}

// WithTTSHTTPClient sets the HTTP client.
func WithTTSHTTPClient(client *http.Client) SynthOption {
	return func(c *synthConfig) { c.httpClient = client }
}

// NewOpenAISynthesizer creates a synthesizer authenticated with apiKey.
func NewOpenAISynthesizer(apiKey string, opts ...SynthOption) *OpenAISynthesizer {
	cfg := synthConfig{
		model:      openAIDefaultTTSModel,
		voice:      openAIDefaultVoice,
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

	return &OpenAISynthesizer{
		client: &client,
		model:  cfg.model,
		voice:  cfg.voice,
		speed:  cfg.speed,
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, pcm.Format, error) {
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if s.speed > 0 {
		params.Speed = openai.Float(s.speed)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("speech: synthesize: unexpected status %s", resp.Status)
	}
	return resp.Body, pcm.L16Mono24K, nil
}
