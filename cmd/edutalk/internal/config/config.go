// Package config loads the edutalk configuration file.
//
// The file lives at os.UserConfigDir()/edutalk/config.yaml unless a path is
// given explicitly:
//
//	~/Library/Application Support/edutalk/config.yaml   (macOS)
//	~/.config/edutalk/config.yaml                       (Linux)
//	%AppData%/edutalk/config.yaml                       (Windows)
//
// A missing file is not an error; every field has a default. Fields absent
// from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
	"github.com/haivivi/edutalk/pkg/capture"
	"github.com/haivivi/edutalk/pkg/cli"
	"github.com/haivivi/edutalk/pkg/ollama"
	"github.com/haivivi/edutalk/pkg/retrieval"
	"github.com/haivivi/edutalk/pkg/speech"
	"github.com/haivivi/edutalk/pkg/turn"
)

// AppName is the directory name under os.UserConfigDir().
const AppName = "edutalk"

// EnvPath overrides the default config file location.
const EnvPath = "EDUTALK_CONFIG"

// Config is the effective configuration. It is loaded once at startup and
// not modified afterwards.
type Config struct {
	Ollama       OllamaConfig       `yaml:"ollama"`
	Whisper      WhisperConfig      `yaml:"whisper"`
	TTS          TTSConfig          `yaml:"tts"`
	Audio        AudioConfig        `yaml:"audio"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Storage      StorageConfig      `yaml:"storage"`
	Conversation ConversationConfig `yaml:"conversation"`
	Messages     turn.Messages      `yaml:"messages"`
	Server       ServerConfig       `yaml:"server"`

	// Path is the file the config was loaded from, or would be saved to.
	Path string `yaml:"-"`
}

type OllamaConfig struct {
	URL          string            `yaml:"url"`
	Model        string            `yaml:"model"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	ProbeTimeout Duration          `yaml:"probe_timeout"`
}

// WhisperConfig points at an OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model"`
	Lang    string `yaml:"lang,omitempty"`
	Prompt  string `yaml:"prompt,omitempty"`
}

type TTSConfig struct {
	Enabled bool    `yaml:"enabled"`
	BaseURL string  `yaml:"base_url,omitempty"`
	APIKey  string  `yaml:"api_key,omitempty"`
	Model   string  `yaml:"model"`
	Voice   string  `yaml:"voice"`
	Speed   float64 `yaml:"speed"`

	// PlayerCommand receives raw PCM on stdin. "{rate}" is replaced with
	// the sample rate.
	PlayerCommand []string `yaml:"player_command"`

	// Output, when set, writes the synthesized PCM to this file instead of
	// running PlayerCommand.
	Output string `yaml:"output,omitempty"`
}

type AudioConfig struct {
	SampleRate     int      `yaml:"sample_rate"`
	Channels       int      `yaml:"channels"`
	Chunk          int      `yaml:"chunk"`
	MinDuration    Duration `yaml:"min_duration"`
	CaptureCommand []string `yaml:"capture_command"`
}

type RetrievalConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key,omitempty"`
	EmbedModel string `yaml:"embed_model"`
	Dimension  int    `yaml:"dimension,omitempty"`
	TopK       int    `yaml:"top_k"`
	ChunkWords int    `yaml:"chunk_words"`
	Collection string `yaml:"collection"`
}

type StorageConfig struct {
	// Dir defaults to a data directory next to the config file.
	Dir      string `yaml:"dir,omitempty"`
	InMemory bool   `yaml:"in_memory,omitempty"`
}

type ConversationConfig struct {
	// SystemPrompt must contain "<query>" and one bracketed placeholder
	// for retrieved text.
	SystemPrompt string `yaml:"system_prompt"`

	// Session names the stored rolling context.
	Session string `yaml:"session"`
}

type ServerConfig struct {
	// Addr serves /ws and /metrics. Empty disables the server.
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:          ollama.DefaultURL,
			Model:        ollama.DefaultModel,
			Headers:      map[string]string{"Content-Type": "application/json"},
			ProbeTimeout: Duration(2 * time.Second),
		},
		Whisper: WhisperConfig{
			Model: "whisper-1",
			Lang:  "en",
		},
		TTS: TTSConfig{
			Enabled:       true,
			Model:         "tts-1",
			Voice:         "alloy",
			Speed:         1.0,
			PlayerCommand: append([]string(nil), speech.DefaultPlayerCommand...),
		},
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			Chunk:          capture.DefaultChunk,
			MinDuration:    Duration(capture.DefaultMinDuration),
			CaptureCommand: append([]string(nil), capture.DefaultCaptureCommand...),
		},
		Retrieval: RetrievalConfig{
			Enabled:    true,
			BaseURL:    retrieval.DefaultEmbedBaseURL,
			EmbedModel: retrieval.DefaultEmbedModel,
			TopK:       retrieval.DefaultTopK,
			ChunkWords: retrieval.DefaultChunkWords,
			Collection: retrieval.DefaultCollection,
		},
		Conversation: ConversationConfig{
			SystemPrompt: turn.DefaultTemplate,
			Session:      "default",
		},
		Messages: turn.DefaultMessages(),
	}
}

// DefaultPath returns the config file location: $EDUTALK_CONFIG if set,
// otherwise config.yaml under the user config directory.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	paths, err := cli.NewPaths(AppName)
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return paths.ConfigFile(), nil
}

// Load reads the config file at path, or DefaultPath when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	cfg.Path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Path = path
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// fill restores defaults for fields the file set to zero values.
func (c *Config) fill() {
	d := Default()
	if c.Ollama.URL == "" {
		c.Ollama.URL = d.Ollama.URL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = d.Ollama.Model
	}
	if c.Ollama.ProbeTimeout <= 0 {
		c.Ollama.ProbeTimeout = d.Ollama.ProbeTimeout
	}
	if c.Whisper.Model == "" {
		c.Whisper.Model = d.Whisper.Model
	}
	if c.TTS.Model == "" {
		c.TTS.Model = d.TTS.Model
	}
	if c.TTS.Voice == "" {
		c.TTS.Voice = d.TTS.Voice
	}
	if c.TTS.Speed <= 0 {
		c.TTS.Speed = d.TTS.Speed
	}
	if len(c.TTS.PlayerCommand) == 0 {
		c.TTS.PlayerCommand = d.TTS.PlayerCommand
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = d.Audio.SampleRate
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = d.Audio.Channels
	}
	if c.Audio.Chunk <= 0 {
		c.Audio.Chunk = d.Audio.Chunk
	}
	if len(c.Audio.CaptureCommand) == 0 {
		c.Audio.CaptureCommand = d.Audio.CaptureCommand
	}
	if c.Retrieval.BaseURL == "" {
		c.Retrieval.BaseURL = d.Retrieval.BaseURL
	}
	if c.Retrieval.EmbedModel == "" {
		c.Retrieval.EmbedModel = d.Retrieval.EmbedModel
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = d.Retrieval.TopK
	}
	if c.Retrieval.ChunkWords <= 0 {
		c.Retrieval.ChunkWords = d.Retrieval.ChunkWords
	}
	if c.Retrieval.Collection == "" {
		c.Retrieval.Collection = d.Retrieval.Collection
	}
	if c.Conversation.SystemPrompt == "" {
		c.Conversation.SystemPrompt = d.Conversation.SystemPrompt
	}
	if c.Conversation.Session == "" {
		c.Conversation.Session = d.Conversation.Session
	}
	c.Messages.Fill(d.Messages)
}

// Validate reports settings the audio pipeline cannot honor.
func (c *Config) Validate() error {
	if c.Audio.Channels != 1 {
		return fmt.Errorf("audio.channels: only mono capture is supported, got %d", c.Audio.Channels)
	}
	if _, err := pcm.FormatForRate(c.Audio.SampleRate); err != nil {
		return fmt.Errorf("audio.sample_rate: %w", err)
	}
	if c.Audio.MinDuration < 0 {
		return fmt.Errorf("audio.min_duration: must not be negative")
	}
	return nil
}

// Save writes the config as YAML to c.Path, creating parent directories.
func (c *Config) Save() error {
	if c.Path == "" {
		return errors.New("config: no path")
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", c.Path, err)
	}
	return nil
}

// Masked returns a copy with API keys masked, for display.
func (c *Config) Masked() *Config {
	m := *c
	m.Whisper.APIKey = cli.MaskAPIKey(c.Whisper.APIKey)
	m.TTS.APIKey = cli.MaskAPIKey(c.TTS.APIKey)
	m.Retrieval.APIKey = cli.MaskAPIKey(c.Retrieval.APIKey)
	return &m
}

// StorageDir returns where the kv store keeps its files.
func (c *Config) StorageDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(filepath.Dir(c.Path), "data")
}

// Format returns the capture format.
func (c *Config) Format() pcm.Format {
	f, err := pcm.FormatForRate(c.Audio.SampleRate)
	if err != nil {
		return pcm.L16Mono16K
	}
	return f
}

// APIKey returns key, falling back to $OPENAI_API_KEY.
func APIKey(key string) string {
	if key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}

// Duration is a time.Duration written as a string ("2s", "500ms") in YAML.
// Bare numbers are read as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(b []byte) error {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case uint64:
		*d = Duration(time.Duration(v) * time.Second)
	case int64:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(v * float64(time.Second))
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*d = Duration(f * float64(time.Second))
			return nil
		}
		p, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(p)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
