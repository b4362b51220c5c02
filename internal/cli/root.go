package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmueller/vidscribe/internal/logging"
	"github.com/fmueller/vidscribe/internal/platform"
	"github.com/fmueller/vidscribe/internal/version"
	"github.com/fmueller/vidscribe/internal/whisper"
	"github.com/fmueller/vidscribe/internal/workflow"
	"github.com/fmueller/vidscribe/internal/ytdlp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

const rootExamples = `  vidscribe https://www.youtube.com/watch?v=dQw4w9WgXcQ
  vidscribe https://www.youtube.com/watch?v=dQw4w9WgXcQ -o output.json
  vidscribe https://www.youtube.com/watch?v=dQw4w9WgXcQ --model large
  vidscribe https://www.youtube.com/watch?v=dQw4w9WgXcQ -a talk.mp3 -f mp3 -o talk.json`

type appState struct {
	verbose      bool
	jsonLogs     bool
	noProgress   bool
	output       string
	audioOutput  string
	audioFormat  string
	model        string
	modelDir     string
	engine       string
	language     string
	autoDownload bool
	silenceGate  bool
	silenceDBFS  float64

	logger *zap.Logger
	// workdir anchors audio/ and result/; empty means the process cwd.
	workdir string

	fetcherFn     func(ctx context.Context) (workflow.AudioFetcher, error)
	transcriberFn func(ctx context.Context) (workflow.Transcriber, error)
}

func newAppState() *appState {
	app := &appState{
		audioFormat:  "wav",
		model:        whisper.DefaultModel,
		engine:       whisper.EngineOpenAI,
		language:     "auto",
		autoDownload: true,
		silenceDBFS:  -65,
	}
	app.fetcherFn = app.newFetcher
	app.transcriberFn = app.newTranscriber
	return app
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vidscribe <url>",
		Short:         "Transcribe video from URL to JSON format with timestamps",
		Example:       rootExamples,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.initLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runTranscription(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindSilenceFlags(cmd, app)
	cmd.Flags().StringVarP(&app.output, "output", "o", app.output, "Output file path for JSON results (default: stdout)")
	cmd.Flags().StringVarP(&app.audioOutput, "audio-output", "a", app.audioOutput, "Save extracted audio to this file name under ./audio")
	cmd.Flags().StringVarP(&app.audioFormat, "audio-format", "f", app.audioFormat, "Audio format for saved file ("+strings.Join(ytdlp.Formats, "|")+")")

	cmd.AddCommand(newExtractCmd(app))
	cmd.AddCommand(newCheckCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVarP(&app.verbose, "verbose", "v", app.verbose, "Enable verbose logging")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVarP(&app.model, "model", "m", app.model, "Whisper model size ("+strings.Join(whisper.ModelNames(), "|")+")")
	cmd.Flags().StringVar(&app.engine, "engine", app.engine, "Transcription engine ("+strings.Join(whisper.EngineNames(), "|")+")")
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
	cmd.Flags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where ggml models are stored (cpp engine)")
	cmd.Flags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing ggml models (cpp engine)")
}

func bindSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Skip transcription of near-silent WAV audio")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

func (a *appState) initLogger() error {
	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	a.language = sanitizeLanguage(a.language)
	return nil
}

func (a *appState) runTranscription(ctx context.Context, out io.Writer, url string) error {
	if err := validateChoice("audio-format", a.audioFormat, ytdlp.Formats); err != nil {
		return err
	}
	// The cpp engine also accepts a ggml file path; ResolveModel validates it.
	if a.engine != whisper.EngineCpp {
		if err := validateChoice("model", a.model, whisper.ModelNames()); err != nil {
			return err
		}
	}

	runner, err := a.newRunner(ctx, out, true)
	if err != nil {
		return err
	}

	if strings.TrimSpace(a.audioOutput) != "" {
		outcome, err := runner.RunPersist(ctx, workflow.PersistOptions{
			URL:         url,
			AudioOutput: a.audioOutput,
			Output:      a.output,
			Format:      a.audioFormat,
		})
		if err != nil {
			return err
		}
		a.log().Info("audio saved", zap.String("path", outcome.AudioPath))
		return nil
	}

	_, err = runner.RunTemp(ctx, workflow.TempOptions{URL: url, Output: a.output})
	return err
}

// newRunner resolves the external tools up front so a missing dependency
// fails before any download starts.
func (a *appState) newRunner(ctx context.Context, out io.Writer, transcribe bool) (*workflow.Runner, error) {
	fetcher, err := a.fetcherFn(ctx)
	if err != nil {
		return nil, err
	}

	runner := &workflow.Runner{
		Fetcher: fetcher,
		Logger:  a.log(),
		Stdout:  out,
		Workdir: a.workdir,
		Progress: func(description string) func() {
			return startSpinner(a.progressEnabled(), description)
		},
	}

	if !transcribe {
		return runner, nil
	}

	transcriber, err := a.transcriberFn(ctx)
	if err != nil {
		return nil, err
	}
	runner.Transcriber = transcriber

	if a.silenceGate {
		runner.SilenceGate = &workflow.SilenceGate{ThresholdDBFS: a.silenceDBFS}
	}

	return runner, nil
}

func (a *appState) newFetcher(ctx context.Context) (workflow.AudioFetcher, error) {
	downloader, err := ytdlp.New(a.log())
	if err != nil {
		return nil, err
	}

	v, err := downloader.Version(ctx)
	if err != nil {
		return nil, err
	}
	a.log().Debug("using yt-dlp", zap.String("path", downloader.Executable), zap.String("version", v))

	return downloader, nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func validateChoice(flag, value string, choices []string) error {
	for _, choice := range choices {
		if value == choice {
			return nil
		}
	}
	return fmt.Errorf("invalid value %q for --%s (choose from %s)", value, flag, strings.Join(choices, ", "))
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
