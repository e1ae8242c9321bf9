// Package turn runs conversational turns: capture a question, transcribe
// it, augment it with retrieved reference text, stream a response from the
// model and speak it sentence by sentence.
//
// A [Controller] runs at most one turn at a time. Requests for a new turn
// while one is active are rejected, never queued. Every turn ends in
// [Idle], whether it completed, failed or was cancelled.
package turn

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/haivivi/edutalk/pkg/capture"
	"github.com/haivivi/edutalk/pkg/ollama"
)

var (
	// ErrTranscriptionEmpty means the transcriber produced no usable text.
	ErrTranscriptionEmpty = errors.New("turn: empty transcription")

	// ErrTranscriptionFailed wraps transcriber errors.
	ErrTranscriptionFailed = errors.New("turn: transcription failed")

	// ErrBusy is returned when a turn is already active.
	ErrBusy = errors.New("turn: busy")
)

// Turn is one question and its response.
type Turn struct {
	ID        uuid.UUID
	Prompt    string
	StartedAt time.Time
	State     State
	Response  string
}

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, rec capture.Recording) (string, error)
}

// Retriever returns reference snippets relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// Generator starts a streamed generation. *ollama.Client implements it.
type Generator interface {
	StreamGenerate(ctx context.Context, prompt string, rolling ollama.Context) *ollama.Stream
}

// Display shows progress to the user. Calls come from the controller's
// goroutines and must not block for long.
type Display interface {
	// ShowMessage shows a status line, a completed sentence or the full
	// response.
	ShowMessage(text string)

	// ShowState reports a state change of the identified turn. The id is
	// uuid.Nil when no turn is active.
	ShowState(id uuid.UUID, state State)
}

// ResponseDisplay is implemented by displays that render the complete
// response differently from the sentences streamed before it. Displays
// without it receive the response through ShowMessage.
type ResponseDisplay interface {
	ShowResponse(id uuid.UUID, text string)
}

// Messages are the fixed phrases shown to the user.
type Messages struct {
	Welcome        string `yaml:"welcome"`
	Loading        string `yaml:"loading"`
	Ready          string `yaml:"ready"`
	Processing     string `yaml:"processing"`
	NoAudio        string `yaml:"no_audio"`
	Unintelligible string `yaml:"unintelligible"`
	EmptyPrompt    string `yaml:"empty_prompt"`
	ErrorAPI       string `yaml:"error_api"`
	ErrorModel     string `yaml:"error_model"`
	ExitMessage    string `yaml:"exit_message"`
}

// DefaultMessages returns the stock phrases.
func DefaultMessages() Messages {
	return Messages{
		Welcome:        "Welcome to EduTalk, your AI voice assistant for learning. Press space to start speaking.",
		Loading:        "Loading models. Please wait a moment...",
		Ready:          "Ready! Press space to speak and press it again when done.",
		Processing:     "Processing your question...",
		NoAudio:        "No speech detected. Please try again.",
		Unintelligible: "Couldn't understand audio",
		EmptyPrompt:    ollama.DefaultEmptyPromptReply,
		ErrorAPI:       "Couldn't connect to the language model. Is Ollama running?",
		ErrorModel:     "Error loading model. Please check your installation.",
		ExitMessage:    "Thank you for using EduTalk. Goodbye!",
	}
}

// Fill replaces empty phrases with the ones from d.
func (m *Messages) Fill(d Messages) {
	for _, f := range [][2]*string{
		{&m.Welcome, &d.Welcome},
		{&m.Loading, &d.Loading},
		{&m.Ready, &d.Ready},
		{&m.Processing, &d.Processing},
		{&m.NoAudio, &d.NoAudio},
		{&m.Unintelligible, &d.Unintelligible},
		{&m.EmptyPrompt, &d.EmptyPrompt},
		{&m.ErrorAPI, &d.ErrorAPI},
		{&m.ErrorModel, &d.ErrorModel},
		{&m.ExitMessage, &d.ExitMessage},
	} {
		if *f[0] == "" {
			*f[0] = *f[1]
		}
	}
}

// DefaultTemplate is the stock prompt template. <query> receives the
// transcript and the first bracketed placeholder receives the retrieved
// reference text.
const DefaultTemplate = `You are EduTalk, an educational AI assistant.
Provide concise, helpful answers to support students in their learning.
Focus on explaining concepts clearly.
Keep the answer as short as possible if I did not specify later.

- Question: <query>
- Answer that question using the following text as a resource: [tt]`

type nopDisplay struct{}

func (nopDisplay) ShowMessage(string) {}
func (nopDisplay) ShowState(uuid.UUID, State) {}
