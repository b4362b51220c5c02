package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultModel = "base"

// Model describes a named whisper size and the ggml file backing it for whisper.cpp.
type Model struct {
	Name     string
	FileName string
	URL      string
	SHA256   string
}

// ResolvedModel is a model reference mapped onto the local model directory.
// URL and SHA256 are empty for user-supplied ggml paths.
type ResolvedModel struct {
	Name string
	Path string
	URL  string
	// SHA256 is pinned in the registry and checked after every download.
	SHA256 string
	// NeedsDownload is set when a named model is not on disk yet.
	NeedsDownload bool
	IsCustomPath  bool
}

const ggmlBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// modelOrder is the order shown in help text and errors.
var modelOrder = []string{"tiny", "base", "small", "medium", "large"}

var registry = map[string]Model{
	"tiny": {
		Name:     "tiny",
		FileName: "ggml-tiny.bin",
		SHA256:   "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21",
	},
	"base": {
		Name:     "base",
		FileName: "ggml-base.bin",
		SHA256:   "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe",
	},
	"small": {
		Name:     "small",
		FileName: "ggml-small.bin",
		SHA256:   "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b",
	},
	"medium": {
		Name:     "medium",
		FileName: "ggml-medium.bin",
		SHA256:   "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208",
	},
	// openai-whisper resolves "large" to its newest large checkpoint; v3 is the matching ggml file.
	"large": {
		Name:     "large",
		FileName: "ggml-large-v3.bin",
		SHA256:   "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2",
	},
}

func init() {
	for name, model := range registry {
		model.URL = ggmlBaseURL + model.FileName
		registry[name] = model
	}
}

// ModelNames lists the sizes accepted by --model, smallest first.
func ModelNames() []string {
	return append([]string(nil), modelOrder...)
}

// LookupModel returns the registry entry for a size name such as "small".
// It does not accept file paths; use ResolveModel for those.
func LookupModel(name string) (Model, bool) {
	model, ok := registry[name]
	return model, ok
}

func ValidateModelName(name string) error {
	if _, ok := LookupModel(name); ok {
		return nil
	}
	return fmt.Errorf("unknown model %q (known models: %s)", name, strings.Join(ModelNames(), ", "))
}

// ResolveModel maps a model name or a ggml file path to a location on disk.
func ResolveModel(modelRef, modelDir string) (ResolvedModel, error) {
	if strings.TrimSpace(modelRef) == "" {
		modelRef = DefaultModel
	}

	if model, ok := LookupModel(modelRef); ok {
		if strings.TrimSpace(modelDir) == "" {
			return ResolvedModel{}, errors.New("model directory must not be empty for named model")
		}

		modelPath := filepath.Join(modelDir, model.FileName)
		_, statErr := os.Stat(modelPath)
		if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("stat model path: %w", statErr)
		}

		return ResolvedModel{
			Name:          model.Name,
			Path:          modelPath,
			URL:           model.URL,
			SHA256:        model.SHA256,
			NeedsDownload: errors.Is(statErr, os.ErrNotExist),
		}, nil
	}

	if !looksLikePath(modelRef) {
		return ResolvedModel{}, ValidateModelName(modelRef)
	}

	customPath := filepath.Clean(modelRef)
	if _, err := os.Stat(customPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("custom model path does not exist: %s", customPath)
		}
		return ResolvedModel{}, fmt.Errorf("stat custom model path: %w", err)
	}

	return ResolvedModel{
		Name:         strings.TrimSuffix(filepath.Base(customPath), filepath.Ext(customPath)),
		Path:         customPath,
		IsCustomPath: true,
	}, nil
}

func looksLikePath(input string) bool {
	return strings.ContainsRune(input, os.PathSeparator) || strings.HasSuffix(strings.ToLower(input), ".bin")
}
