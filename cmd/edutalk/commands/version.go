package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/edutalk/cmd/edutalk/internal/build"
	"github.com/haivivi/edutalk/pkg/cli"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFormat != "" {
			return cli.Output(cmd.OutOrStdout(), build.Get(), cli.OutputFormat(versionFormat))
		}
		fmt.Fprintln(cmd.OutOrStdout(), build.String())
		if IsVerbose() {
			fmt.Fprintf(cmd.OutOrStdout(), "  go:     %s\n", build.Get().Go)
			if cfg, err := GetConfig(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  config: %s\n", cfg.Path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "  config: (unavailable: %v)\n", err)
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "", "output format (yaml, json)")
	rootCmd.AddCommand(versionCmd)
}
