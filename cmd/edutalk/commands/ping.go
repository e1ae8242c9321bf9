package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/edutalk/pkg/cli"
	"github.com/haivivi/edutalk/pkg/ollama"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the language model server answers",
	Long: `Probe the configured Ollama server. Any HTTP response counts as alive;
connection failures and timeouts do not.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		client := newClient(cfg)
		start := time.Now()
		if err := client.Ping(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess("%s answered in %s (model %s)",
			ollama.ProbeURL(client.URL()), cli.FormatDuration(time.Since(start)), client.Model())
		return nil
	},
}

// probe shows the startup messages around a liveness check and reports
// whether the server answered.
func probe(ctx context.Context, client *ollama.Client, show func(string), loading, ready, failed string) bool {
	show(loading)
	if err := client.Ping(ctx); err != nil {
		show(failed)
		return false
	}
	show(ready)
	return true
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
