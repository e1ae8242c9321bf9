package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haivivi/edutalk/pkg/cli"
	"github.com/haivivi/edutalk/pkg/retrieval"
)

var (
	ingestReset  bool
	ingestRemove bool
	ingestList   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]...",
	Short: "Add reference documents for retrieval",
	Long: `Split text and PDF files into chunks, embed them and store them for
retrieval. Ingesting a file again replaces its previous chunks. Images are
not supported.

Examples:
  edutalk ingest timetable.pdf notes.md
  edutalk ingest --reset timetable.txt
  edutalk ingest --remove notes.md
  edutalk ingest --list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !ingestReset && !ingestList {
			return errors.New("no files given")
		}
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if !cfg.Retrieval.Enabled {
			return errors.New("retrieval is disabled in the configuration")
		}
		s, err := openSession(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		ctx := cmd.Context()

		if ingestReset {
			if err := s.retriever.Reset(ctx); err != nil {
				return err
			}
			cli.PrintSuccess("removed all documents from %s", cfg.Retrieval.Collection)
		}

		for _, arg := range args {
			path, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			if ingestRemove {
				if err := s.retriever.Remove(ctx, path); err != nil {
					return err
				}
				cli.PrintSuccess("removed %s", arg)
				continue
			}
			text, err := retrieval.ReadDocument(path)
			if err != nil {
				return fmt.Errorf("%s: %w", arg, err)
			}
			n, err := s.retriever.Ingest(ctx, path, text)
			if errors.Is(err, retrieval.ErrNoDocuments) {
				cli.PrintWarning("%s: no text, skipped", arg)
				continue
			}
			if err != nil {
				return fmt.Errorf("%s: %w", arg, err)
			}
			cli.PrintSuccess("%s: %d chunks (%s)", arg, n, cli.FormatBytes(int64(len(text))))
		}

		if ingestList {
			sources, err := s.retriever.Sources(ctx)
			if err != nil {
				return err
			}
			return cli.Output(cmd.OutOrStdout(), sources, cli.FormatYAML)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "remove all stored documents first")
	ingestCmd.Flags().BoolVar(&ingestRemove, "remove", false, "remove the given files instead of adding them")
	ingestCmd.Flags().BoolVar(&ingestList, "list", false, "list stored documents and their chunk counts")
	rootCmd.AddCommand(ingestCmd)
}
