package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/vidscribe/internal/transcript"
)

const (
	EngineOpenAI = "openai"
	EngineCpp    = "cpp"
)

var ErrEngineNotFound = errors.New("whisper engine not found")

type TranscriptionRequest struct {
	AudioPath string
	// Model is a registry name (tiny, base, ...). The openai engine passes it through.
	Model string
	// ModelPath points at a ggml file and is only used by the cpp engine.
	ModelPath string
	Language  string
}

type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req TranscriptionRequest) (*transcript.Result, error)
}

func EngineNames() []string {
	return []string{EngineOpenAI, EngineCpp}
}

func validateRequest(req TranscriptionRequest) error {
	if strings.TrimSpace(req.AudioPath) == "" {
		return errors.New("audio path is required")
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}
	return nil
}

func languageArg(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" || lang == "auto" {
		return ""
	}
	return lang
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
