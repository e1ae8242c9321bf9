package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/haivivi/edutalk/pkg/capture"
	"github.com/haivivi/edutalk/pkg/ollama"
	"github.com/haivivi/edutalk/pkg/speech"
	"google.golang.org/api/iterator"
)

// ErrClosed is returned by Ask after Close.
var ErrClosed = errors.New("turn: controller closed")

// Option configures a Controller.
type Option func(*Controller)

// WithTranscriber sets the speech-to-text backend used after capture.
func WithTranscriber(t Transcriber) Option {
	return func(c *Controller) { c.transcriber = t }
}

// WithRetriever enables prompt augmentation with reference snippets.
func WithRetriever(r Retriever) Option {
	return func(c *Controller) { c.retriever = r }
}

// WithRecorder enables voice turns. Without a recorder only Ask works.
func WithRecorder(r *capture.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithSink sets where completed sentences are spoken.
func WithSink(s speech.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithDisplay sets the user-facing display.
func WithDisplay(d Display) Option {
	return func(c *Controller) { c.display = d }
}

// WithTemplate sets the prompt template.
func WithTemplate(tmpl string) Option {
	return func(c *Controller) { c.template = tmpl }
}

// WithMessages sets the user-facing phrases.
func WithMessages(m Messages) Option {
	return func(c *Controller) { c.messages = m }
}

// WithMetrics records turn metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithContextStore persists the rolling context after each completed turn.
func WithContextStore(s *ContextStore) Option {
	return func(c *Controller) { c.contexts = s }
}

// WithRollingContext sets the initial rolling context.
func WithRollingContext(rolling ollama.Context) Option {
	return func(c *Controller) { c.rolling = slices.Clone(rolling) }
}

type job struct {
	turn      Turn
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	queue     *speech.Queue
	once      sync.Once
	done      chan struct{}
}

// Controller is the turn state machine. It owns the rolling context and
// runs each turn on a background goroutine. All methods are safe for
// concurrent use and return without waiting for network or audio.
type Controller struct {
	gen         Generator
	transcriber Transcriber
	retriever   Retriever
	recorder    *capture.Recorder
	sink        speech.Sink
	display     Display
	template    string
	messages    Messages
	metrics     *Metrics
	contexts    *ContextStore

	ctx  context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	state   State
	job     *job
	rolling ollama.Context
	closed  bool
}

// New creates an idle controller generating with gen.
func New(gen Generator, opts ...Option) *Controller {
	c := &Controller{
		gen:      gen,
		sink:     speech.Discard{},
		display:  nopDisplay{},
		template: DefaultTemplate,
		messages: DefaultMessages(),
	}
	for _, o := range opts {
		o(c)
	}
	c.ctx, c.stop = context.WithCancel(context.Background())
	return c
}

// Restore loads the persisted rolling context, if a context store is
// configured and holds one.
func (c *Controller) Restore(ctx context.Context) error {
	if c.contexts == nil {
		return nil
	}
	rolling, err := c.contexts.Load(ctx)
	if err != nil {
		return fmt.Errorf("turn: restore context: %w", err)
	}
	if rolling == nil {
		return nil
	}
	c.mu.Lock()
	c.rolling = rolling
	c.mu.Unlock()
	slog.Debug("turn: context restored", "tokens", len(rolling))
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Context returns a copy of the rolling context.
func (c *Controller) Context() ollama.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rolling)
}

// Current returns a snapshot of the active turn.
func (c *Controller) Current() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == nil {
		return Turn{}, false
	}
	return c.job.turn, true
}

// CanRecord reports whether BeginCapture can ever succeed.
func (c *Controller) CanRecord() bool {
	return c.recorder != nil
}

func (c *Controller) newJob() *job {
	ctx, cancel := context.WithCancel(c.ctx)
	return &job{
		turn: Turn{
			ID:        uuid.New(),
			StartedAt: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// BeginCapture starts recording a question. It returns false, doing
// nothing, when a turn is already active or no recorder is configured.
func (c *Controller) BeginCapture() bool {
	if c.recorder == nil {
		return false
	}
	c.mu.Lock()
	if c.closed || c.state.Active() {
		state := c.state
		c.mu.Unlock()
		slog.Debug("turn: capture ignored", "state", state)
		return false
	}
	j := c.newJob()
	c.job = j
	c.state = Recording
	j.turn.State = Recording
	err := c.recorder.Start(j.ctx)
	c.mu.Unlock()

	c.display.ShowState(j.turn.ID, Recording)
	if err != nil {
		slog.Error("turn: start capture", "turn", j.turn.ID, "error", err)
		c.metrics.turn(OutcomeFailed)
		c.transition(j, Failed)
		c.end(j, c.messages.NoAudio, c.messages.Ready)
		return false
	}
	slog.Debug("turn: recording", "turn", j.turn.ID)
	return true
}

// EndCapture stops recording and processes the question in the
// background. Recordings shorter than the recorder's minimum end the turn
// without transcription. It returns false when not recording.
func (c *Controller) EndCapture() bool {
	c.mu.Lock()
	j := c.job
	if c.state != Recording || j == nil {
		c.mu.Unlock()
		return false
	}
	rec, err := c.recorder.Stop()
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, capture.ErrTooShort) {
			slog.Info("turn: no speech", "turn", j.turn.ID, "duration", rec.Duration())
			c.metrics.turn(OutcomeNoAudio)
		} else {
			slog.Error("turn: stop capture", "turn", j.turn.ID, "error", err)
			c.metrics.turn(OutcomeFailed)
			c.transition(j, Failed)
		}
		c.end(j, c.messages.NoAudio, c.messages.Ready)
		return true
	}
	c.state = Transcribing
	j.turn.State = Transcribing
	c.mu.Unlock()

	c.display.ShowState(j.turn.ID, Transcribing)
	c.display.ShowMessage(c.messages.Processing)
	go c.run(j, &rec, "")
	return true
}

// Ask starts a turn for a typed question, skipping capture and
// transcription. It returns ErrBusy when a turn is already active.
func (c *Controller) Ask(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Active() {
		c.mu.Unlock()
		return ErrBusy
	}
	j := c.newJob()
	j.turn.Prompt = text
	c.job = j
	c.state = Retrieving
	j.turn.State = Retrieving
	c.mu.Unlock()

	c.display.ShowState(j.turn.ID, Retrieving)
	c.display.ShowMessage(c.messages.Processing)
	go c.run(j, nil, text)
	return nil
}

// Cancel aborts the active turn: the generation request is dropped,
// playback stops and queued sentences are discarded. The rolling context
// is left untouched. It reports whether there was anything to cancel;
// cancelling twice has the same effect as cancelling once.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	j := c.job
	if j == nil || !c.state.Active() || c.state == Cancelled {
		c.mu.Unlock()
		return false
	}
	j.cancelled.Store(true)
	prev := c.state
	c.state = Cancelled
	j.turn.State = Cancelled
	q := j.queue
	if prev == Recording {
		if _, err := c.recorder.Stop(); err != nil && !errors.Is(err, capture.ErrTooShort) {
			slog.Warn("turn: stop capture", "turn", j.turn.ID, "error", err)
		}
	}
	c.mu.Unlock()

	j.cancel()
	if q != nil {
		q.Cancel()
	}
	slog.Info("turn: cancelled", "turn", j.turn.ID, "state", prev)
	c.display.ShowState(j.turn.ID, Cancelled)
	if prev == Recording {
		// No worker owns the turn yet.
		c.metrics.turn(OutcomeCancelled)
		c.end(j, c.messages.Ready)
	}
	return true
}

// Wait blocks until the active turn, if any, has returned to Idle.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	j := c.job
	c.mu.Unlock()
	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the active turn, waits for it to end and rejects further
// turns.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Cancel()
	err := c.Wait(context.Background())
	c.stop()
	return err
}

// transition moves j to s. Nothing happens when j is no longer the active
// turn or when it was cancelled.
func (c *Controller) transition(j *job, s State) bool {
	c.mu.Lock()
	if c.job != j || j.cancelled.Load() {
		c.mu.Unlock()
		return false
	}
	c.state = s
	j.turn.State = s
	c.mu.Unlock()
	c.display.ShowState(j.turn.ID, s)
	return true
}

// end releases the slot held by j, returns to Idle and shows msgs.
func (c *Controller) end(j *job, msgs ...string) {
	j.once.Do(func() {
		c.mu.Lock()
		if c.job == j {
			c.job = nil
			c.state = Idle
		}
		c.mu.Unlock()
		j.cancel()

		c.display.ShowState(j.turn.ID, Idle)
		for _, m := range msgs {
			if m != "" {
				c.display.ShowMessage(m)
			}
		}
		close(j.done)
	})
}

func (c *Controller) run(j *job, rec *capture.Recording, text string) {
	log := slog.With("turn", j.turn.ID)
	outcome, msgs := c.process(j, log, rec, text)
	if j.cancelled.Load() {
		outcome, msgs = OutcomeCancelled, []string{c.messages.Ready}
	}
	switch outcome {
	case OutcomeFailed, OutcomeUnintelligible:
		c.transition(j, Failed)
	}
	c.metrics.turn(outcome)
	log.Debug("turn: finished", "outcome", outcome, "elapsed", time.Since(j.turn.StartedAt))
	c.end(j, msgs...)
}

func (c *Controller) process(j *job, log *slog.Logger, rec *capture.Recording, text string) (string, []string) {
	ctx := j.ctx
	if rec != nil {
		transcript, err := c.transcribe(ctx, *rec)
		if j.cancelled.Load() {
			return OutcomeCancelled, nil
		}
		if err != nil {
			log.Warn("turn: transcription unusable", "error", err)
			return OutcomeUnintelligible, []string{c.messages.Unintelligible, c.messages.Ready}
		}
		text = transcript
		c.mu.Lock()
		j.turn.Prompt = text
		c.mu.Unlock()
		if !c.transition(j, Retrieving) {
			return OutcomeCancelled, nil
		}
	}
	log.Info("turn: question", "text", text)

	prompt := ""
	if strings.TrimSpace(text) != "" {
		snippets := c.retrieve(ctx, log, text)
		prompt = Augment(c.template, text, snippets)
	}
	if j.cancelled.Load() || !c.transition(j, Generating) {
		return OutcomeCancelled, nil
	}
	return c.generate(j, log, prompt)
}

func (c *Controller) transcribe(ctx context.Context, rec capture.Recording) (string, error) {
	if c.transcriber == nil {
		return "", fmt.Errorf("%w: no transcriber configured", ErrTranscriptionFailed)
	}
	text, err := c.transcriber.Transcribe(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "Error:") {
		return "", ErrTranscriptionEmpty
	}
	return text, nil
}

func (c *Controller) retrieve(ctx context.Context, log *slog.Logger, query string) []string {
	if c.retriever == nil {
		return nil
	}
	snippets, err := c.retriever.Retrieve(ctx, query)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("turn: retrieval failed, answering without reference text", "error", err)
		}
		return nil
	}
	log.Debug("turn: retrieved", "snippets", len(snippets))
	return snippets
}

func (c *Controller) generate(j *job, log *slog.Logger, prompt string) (string, []string) {
	ctx := j.ctx
	stream := c.gen.StreamGenerate(ctx, prompt, c.Context())
	defer stream.Close()

	q := speech.NewQueue(ctx, c.sink)
	c.mu.Lock()
	j.queue = q
	c.mu.Unlock()

	var (
		asm       speech.Assembler
		next      ollama.Context
		gotCtx    bool
		sentences int
		started   = time.Now()
	)
	emit := func(s string) {
		if j.cancelled.Load() {
			return
		}
		if sentences == 0 {
			c.metrics.first(time.Since(started))
			c.transition(j, Speaking)
		}
		if err := q.Push(s); err != nil {
			return
		}
		sentences++
		c.metrics.sentence()
		c.display.ShowMessage(s)
	}

	for {
		ev, err := stream.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if j.cancelled.Load() || ctx.Err() != nil {
				return OutcomeCancelled, nil
			}
			log.Error("turn: generation failed", "sentences", sentences, "error", err)
			// Sentences already queued are still spoken; the partial one is
			// dropped.
			q.Close()
			<-q.Done()
			return OutcomeFailed, []string{c.messages.ErrorAPI, c.messages.Ready}
		}
		switch ev.Kind {
		case ollama.EventToken:
			for _, s := range asm.Feed(ev.Token) {
				emit(s)
			}
		case ollama.EventContext:
			next, gotCtx = ev.Context, true
		}
	}
	if asm.InReasoning() {
		log.Warn("turn: generation ended inside a reasoning block")
	}
	if rest, ok := asm.Flush(); ok {
		emit(rest)
	}
	q.Close()
	<-q.Done()

	response := asm.Text()
	c.mu.Lock()
	if j.cancelled.Load() || c.job != j {
		c.mu.Unlock()
		return OutcomeCancelled, nil
	}
	j.turn.Response = response
	if gotCtx {
		c.rolling = slices.Clone(next)
	}
	c.mu.Unlock()

	if gotCtx {
		c.persist(next)
	}
	if strings.TrimSpace(response) != "" {
		c.showResponse(j.turn.ID, response)
	}
	log.Info("turn: answered", "sentences", sentences, "spoken", q.Spoken(), "chars", len(response))
	return OutcomeCompleted, []string{c.messages.Ready}
}

func (c *Controller) showResponse(id uuid.UUID, text string) {
	if rd, ok := c.display.(ResponseDisplay); ok {
		rd.ShowResponse(id, text)
		return
	}
	c.display.ShowMessage(text)
}

func (c *Controller) persist(rolling ollama.Context) {
	if c.contexts == nil {
		return
	}
	if err := c.contexts.Save(c.ctx, rolling); err != nil {
		slog.Warn("turn: save context", "error", err)
	}
}
