package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/edutalk/pkg/cli"
	"github.com/haivivi/edutalk/pkg/display"
	"github.com/haivivi/edutalk/pkg/speech"
	"github.com/haivivi/edutalk/pkg/turn"
)

var (
	runInput string
	runAddr  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive voice session",
	Long: `Start the terminal interface. Press space to start speaking and again
when done; the answer is spoken sentence by sentence. Press space or c
while it plays to stop it, and q to quit.

With --addr (or server.addr in the configuration) a status server runs
alongside:
  /ws          live state and message events
  /metrics     Prometheus metrics
  /api/state   current state
  /api/ask     POST {"text": "..."} to ask without the microphone

Examples:
  edutalk run
  edutalk run --addr :8765
  edutalk run --input question.wav`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}

		// Logs render inside the TUI instead of over it.
		logWriter := cli.NewLogWriter(200)
		setupLogging(logWriter)

		s, err := openSession(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		speechErr := s.checkSpeech(runInput)
		sink, err := s.newSink()
		if err != nil {
			speechErr = errors.Join(speechErr, err)
			sink = speech.Discard{}
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		events := display.NewChannel(256)
		var disp turn.Display = events
		addr := cfg.Server.Addr
		if runAddr != "" {
			addr = runAddr
		}
		var hub *display.Hub
		if addr != "" {
			hub = display.NewHub()
			disp = display.Multi{events, hub}
		}

		recorder := s.newRecorder(runInput)
		ctrl := s.newController(ctx, disp, sink,
			turn.WithRecorder(recorder),
			turn.WithTranscriber(s.newTranscriber()),
		)

		g, gctx := errgroup.WithContext(ctx)

		if hub != nil {
			srv := &http.Server{
				Addr:              addr,
				Handler:           NewStatusServer(ctrl, hub, s.registry).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			g.Go(func() error {
				hub.Run(gctx)
				return nil
			})
			g.Go(func() error {
				slog.Info("edutalk: status server listening", "addr", addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("status server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
				defer done()
				return srv.Shutdown(shutdownCtx)
			})
		}

		g.Go(func() error {
			s.startup(gctx, disp.ShowMessage, speechErr)
			return nil
		})

		p := tea.NewProgram(
			NewTUIModel(ctrl, recorder, events.Events(), logWriter),
			tea.WithAltScreen(),
			tea.WithContext(gctx),
		)
		g.Go(func() error {
			_, err := p.Run()
			cancel()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})

		err = g.Wait()
		ctrl.Close()
		setupLogging(os.Stderr)
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Messages.ExitMessage)
		return err
	},
}

// startup shows the welcome sequence. A speech stack that cannot start is
// reported with the model error before the server probe.
func (s *session) startup(ctx context.Context, show func(string), speechErr error) {
	m := s.cfg.Messages
	show(m.Welcome)
	if speechErr != nil {
		slog.Error("edutalk: speech unavailable", "error", speechErr)
		show(m.ErrorModel)
	}
	probe(ctx, s.client, show, m.Loading, m.Ready, m.ErrorAPI)
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "read speech from a WAV or raw PCM file instead of the microphone")
	runCmd.Flags().StringVar(&runAddr, "addr", "", "status server address (overrides server.addr)")
	rootCmd.AddCommand(runCmd)
}
