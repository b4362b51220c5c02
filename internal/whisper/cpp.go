package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fmueller/vidscribe/internal/transcript"
	"go.uber.org/zap"
)

const (
	CppPathEnv = "VIDSCRIBE_WHISPER_CPP_PATH"
	// blankAudioToken is what whisper-cli emits for spans without speech.
	blankAudioToken = "[BLANK_AUDIO]"
)

// CppEngine drives whisper.cpp's whisper-cli with a local ggml model.
type CppEngine struct {
	Executable string
	Logger     *zap.Logger
}

type cppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func NewCppEngine(logger *zap.Logger) (*CppEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(CppPathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", CppPathEnv, err)
		}
		return &CppEngine{Executable: override, Logger: logger}, nil
	}

	path, err := exec.LookPath("whisper-cli")
	if err != nil {
		return nil, fmt.Errorf("%w: whisper-cli is not on PATH; build whisper.cpp or set %s", ErrEngineNotFound, CppPathEnv)
	}

	return &CppEngine{Executable: path, Logger: logger}, nil
}

func (e *CppEngine) Name() string {
	return EngineCpp
}

func (e *CppEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (*transcript.Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return nil, errors.New("model path is required")
	}
	if err := ensureExecutable(e.Executable); err != nil {
		return nil, fmt.Errorf("whisper-cli missing or not executable: %w", err)
	}

	outDir, err := os.MkdirTemp("", "vidscribe-whisper-cpp-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper output directory: %w", err)
	}
	defer os.RemoveAll(outDir)
	outBase := filepath.Join(outDir, "transcript")

	args := []string{"-m", req.ModelPath, "-f", req.AudioPath, "-oj", "-of", outBase}
	if lang := languageArg(req.Language); lang != "" {
		args = append(args, "-l", lang)
	}

	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	e.log().Debug("running whisper-cli", zap.String("engine", e.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return nil, fmt.Errorf("whisper-cli at %s is missing required shared libraries (%s); rebuild whisper.cpp with BUILD_SHARED_LIBS=OFF", e.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return nil, fmt.Errorf("whisper-cli crashed with an illegal CPU instruction; " +
				"set " + CppPathEnv + " to a whisper-cli binary built for your CPU")
		}
		return nil, fmt.Errorf("whisper transcribe failed: %w (%s)", err, lastLines(errText, 5))
	}

	content, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	return decodeCppOutput(content)
}

func decodeCppOutput(content []byte) (*transcript.Result, error) {
	var out cppOutput
	if err := json.Unmarshal(content, &out); err != nil {
		return nil, fmt.Errorf("decode whisper-cli output: %w", err)
	}

	result := &transcript.Result{Language: out.Result.Language}
	for _, item := range out.Transcription {
		if isBlankSegment(item.Text) {
			continue
		}
		result.Segments = append(result.Segments, transcript.Segment{
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  item.Text,
		})
	}
	return result, nil
}

func isBlankSegment(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "" || strings.EqualFold(trimmed, blankAudioToken)
}

func (e *CppEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
