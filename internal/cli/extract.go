package cli

import (
	"fmt"
	"strings"

	"github.com/fmueller/vidscribe/internal/workflow"
	"github.com/fmueller/vidscribe/internal/ytdlp"
	"github.com/spf13/cobra"
)

const extractExamples = `  vidscribe-extract https://www.youtube.com/watch?v=dQw4w9WgXcQ -o audio.wav
  vidscribe-extract https://www.youtube.com/watch?v=dQw4w9WgXcQ -o audio.mp3 -f mp3`

// NewExtractCmd builds the standalone audio extraction command.
func NewExtractCmd() *cobra.Command {
	return newStandaloneExtractCmd(newAppState())
}

func newStandaloneExtractCmd(app *appState) *cobra.Command {
	cmd := newExtractCmd(app)
	cmd.Use = "vidscribe-extract <url>"
	cmd.Example = extractExamples
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func newExtractCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Extract audio from a video URL without transcribing it",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.initLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateChoice("format", app.audioFormat, ytdlp.Formats); err != nil {
				return err
			}

			runner, err := app.newRunner(cmd.Context(), cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}

			path, err := runner.Extract(cmd.Context(), workflow.ExtractOptions{
				URL:    args[0],
				Output: app.output,
				Format: app.audioFormat,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Audio successfully extracted to: %s\n", path)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	cmd.Flags().StringVarP(&app.output, "output", "o", "", "Output audio file path")
	cmd.Flags().StringVarP(&app.audioFormat, "format", "f", app.audioFormat, "Audio format ("+strings.Join(ytdlp.Formats, "|")+")")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
