// Package cli holds the terminal plumbing shared by the edutalk commands.
//
// This package includes:
//   - Frame, a bordered full-screen layout for bubbletea views
//   - Waveform, a bar rendering of the latest microphone frame
//   - LogWriter, which captures slog output for display inside the frame
//   - Paths, the per-user config and data directories
//   - Output helpers for YAML or JSON results and status lines
//
// Example usage:
//
//	logs := cli.NewLogWriter(200)
//	slog.SetDefault(slog.New(slog.NewTextHandler(logs, nil)))
//
//	frame := cli.Frame{
//	    Styles: cli.NewStyles(cli.DefaultTheme),
//	    Title:  "EduTalk",
//	    Status: "idle",
//	    Sections: []cli.Section{
//	        {Label: "Logs", Content: logs.Lines},
//	    },
//	}
//	view := frame.Render(width, height)
package cli
