package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/edutalk/cmd/edutalk/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string

	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "edutalk",
	Short: "Voice assistant for learning, backed by a local language model",
	Long: `edutalk - talk to a local language model and hear the answer.

Speech is transcribed, enriched with your reference documents, answered by
an Ollama server, and spoken back sentence by sentence.

Configuration is read from the OS config directory:
  macOS:   ~/Library/Application Support/edutalk/config.yaml
  Linux:   ~/.config/edutalk/config.yaml
  Windows: %AppData%/edutalk/config.yaml

Use --config or $EDUTALK_CONFIG to read another file.

Examples:
  # Write the default configuration, then start talking
  edutalk config init
  edutalk run

  # Add a timetable for the assistant to answer from
  edutalk ingest timetable.txt

  # Ask without a microphone
  edutalk ask "What do I have on Monday?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Stderr)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $EDUTALK_CONFIG or the OS config directory)")
}

// setupLogging installs the default slog handler writing to w.
func setupLogging(w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// GetConfig returns the configuration, loading it on first use.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
