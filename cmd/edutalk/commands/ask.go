package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/edutalk/pkg/display"
	"github.com/haivivi/edutalk/pkg/speech"
	"github.com/haivivi/edutalk/pkg/turn"
)

var askNoSpeech bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one typed question",
	Long: `Run one turn with a typed question instead of a recording. The answer is
printed sentence by sentence and spoken unless --no-speech is given or
speech is disabled in the configuration. Ctrl+C stops the answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		s, err := openSession(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		var sink speech.Sink = speech.Discard{}
		if !askNoSpeech {
			if sink, err = s.newSink(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		disp := &askDisplay{out: display.NewWriter(cmd.OutOrStdout())}
		ctrl := s.newController(ctx, disp, sink)
		defer ctrl.Close()

		if err := ctrl.Ask(strings.Join(args, " ")); err != nil {
			return err
		}
		if err := ctrl.Wait(ctx); err != nil {
			ctrl.Cancel()
			ctrl.Wait(context.Background())
			return err
		}
		return disp.err()
	},
}

// askDisplay prints the answer sentences and keeps the first message shown
// after the turn failed as the command's error.
type askDisplay struct {
	out *display.Writer

	mu      sync.Mutex
	state   turn.State
	failed  bool
	failure string
}

func (d *askDisplay) ShowState(id uuid.UUID, s turn.State) {
	d.mu.Lock()
	d.state = s
	if s == turn.Failed {
		d.failed = true
	}
	d.mu.Unlock()
	d.out.ShowState(id, s)
}

func (d *askDisplay) ShowMessage(text string) {
	d.mu.Lock()
	state := d.state
	if d.failed && d.failure == "" {
		d.failure = text
	}
	d.mu.Unlock()
	if state == turn.Speaking {
		d.out.ShowMessage(text)
	}
}

func (d *askDisplay) ShowResponse(id uuid.UUID, text string) {
	d.out.ShowResponse(id, text)
}

func (d *askDisplay) err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != "" {
		return errors.New(d.failure)
	}
	return nil
}

func init() {
	askCmd.Flags().BoolVar(&askNoSpeech, "no-speech", false, "print the answer without speaking it")
	rootCmd.AddCommand(askCmd)
}
