package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fmueller/vidscribe/internal/whisper"
	"github.com/fmueller/vidscribe/internal/ytdlp"
	"github.com/spf13/cobra"
)

var errMissingDependencies = errors.New("required dependencies are missing")

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func newCheckCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether yt-dlp and the transcription engine are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, required := app.checkDependencies(cmd)
			printCheckResults(cmd.OutOrStdout(), results)

			for _, idx := range required {
				if !results[idx].ok {
					return errMissingDependencies
				}
			}
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindModelFlags(cmd, app)

	return cmd
}

// checkDependencies returns every probe result plus the indexes of the ones
// the selected engine cannot run without.
func (a *appState) checkDependencies(cmd *cobra.Command) ([]checkResult, []int) {
	var results []checkResult
	var required []int

	ytdlpResult := checkResult{name: "yt-dlp"}
	if downloader, err := ytdlp.New(a.log()); err != nil {
		ytdlpResult.detail = err.Error()
	} else if v, err := downloader.Version(cmd.Context()); err != nil {
		ytdlpResult.detail = err.Error()
	} else {
		ytdlpResult.ok = true
		ytdlpResult.detail = fmt.Sprintf("%s (%s)", v, downloader.Executable)
	}
	required = append(required, len(results))
	results = append(results, ytdlpResult)

	openai := checkResult{name: "whisper (openai)"}
	if engine, err := whisper.NewOpenAIEngine(a.log()); err != nil {
		openai.detail = err.Error()
	} else {
		openai.ok = true
		openai.detail = engine.Command[0]
	}
	if a.engine == whisper.EngineOpenAI {
		required = append(required, len(results))
	}
	results = append(results, openai)

	cpp := checkResult{name: "whisper-cli (cpp)"}
	if engine, err := whisper.NewCppEngine(a.log()); err != nil {
		cpp.detail = err.Error()
	} else {
		cpp.ok = true
		cpp.detail = engine.Executable
	}
	if a.engine == whisper.EngineCpp {
		required = append(required, len(results))
	}
	results = append(results, cpp)

	if a.engine == whisper.EngineCpp {
		results = append(results, a.checkModel())
	}

	return results, required
}

func (a *appState) checkModel() checkResult {
	result := checkResult{name: "model " + a.model}

	dir, err := a.modelStorageDir()
	if err != nil {
		result.detail = err.Error()
		return result
	}
	resolved, err := whisper.ResolveModel(a.model, dir)
	if err != nil {
		result.detail = err.Error()
		return result
	}
	if resolved.NeedsDownload {
		result.detail = "not downloaded; run `vidscribe setup --model " + resolved.Name + "`"
		return result
	}
	if _, err := os.Stat(resolved.Path); err != nil {
		result.detail = err.Error()
		return result
	}

	result.ok = true
	result.detail = resolved.Path
	return result
}

func printCheckResults(w io.Writer, results []checkResult) {
	for _, r := range results {
		mark := "✗"
		if r.ok {
			mark = "✓"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, r.name, r.detail)
	}
}
