package whisper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fmueller/vidscribe/internal/transcript"
	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

const WhisperCommandEnv = "VIDSCRIBE_WHISPER_CMD"

// OpenAIEngine drives the `whisper` CLI shipped with the openai-whisper package.
type OpenAIEngine struct {
	Command []string
	Logger  *zap.Logger
}

func NewOpenAIEngine(logger *zap.Logger) (*OpenAIEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(WhisperCommandEnv)); override != "" {
		command, err := shellwords.Parse(override)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", WhisperCommandEnv, err)
		}
		if len(command) == 0 {
			return nil, fmt.Errorf("%s is empty", WhisperCommandEnv)
		}
		if _, err := exec.LookPath(command[0]); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEngineNotFound, command[0], err)
		}
		return &OpenAIEngine{Command: command, Logger: logger}, nil
	}

	path, err := exec.LookPath("whisper")
	if err != nil {
		return nil, fmt.Errorf("%w: install it with `pip install openai-whisper` or set %s", ErrEngineNotFound, WhisperCommandEnv)
	}

	return &OpenAIEngine{Command: []string{path}, Logger: logger}, nil
}

func (e *OpenAIEngine) Name() string {
	return EngineOpenAI
}

func (e *OpenAIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (*transcript.Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if len(e.Command) == 0 {
		return nil, ErrEngineNotFound
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultModel
	}

	outDir, err := os.MkdirTemp("", "vidscribe-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := append([]string{}, e.Command[1:]...)
	args = append(args,
		req.AudioPath,
		"--model", model,
		"--word_timestamps", "True",
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	)
	if lang := languageArg(req.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	e.log().Debug("running whisper", zap.String("engine", e.Command[0]), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("whisper transcribe failed: %w (%s)", err, lastLines(stderr.String(), 5))
	}

	stem := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	content, err := os.ReadFile(filepath.Join(outDir, stem+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	return transcript.DecodeResult(content)
}

func (e *OpenAIEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// lastLines keeps python tracebacks readable in error messages.
func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
