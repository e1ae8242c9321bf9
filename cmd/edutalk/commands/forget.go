package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/edutalk/pkg/cli"
	"github.com/haivivi/edutalk/pkg/turn"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget the stored conversation context",
	Long: `Delete the rolling context kept for the configured session, so the next
question starts a fresh conversation with the language model.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		name := cfg.Conversation.Session
		if err := turn.NewContextStore(store, name).Clear(cmd.Context()); err != nil {
			return err
		}
		cli.PrintSuccess("forgot the context of session %q", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}
