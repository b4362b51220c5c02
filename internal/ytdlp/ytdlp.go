package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

const (
	PathEnv        = "VIDSCRIBE_YTDLP_PATH"
	defaultBinary  = "yt-dlp"
	bestAudioLevel = "0"
)

var ErrNotFound = errors.New("yt-dlp not found; install it with `pip install yt-dlp` or set " + PathEnv)

// Formats lists the audio formats accepted for extraction.
var Formats = []string{"wav", "mp3", "flac", "m4a", "aac"}

type Downloader struct {
	Executable string
	Logger     *zap.Logger
}

type Request struct {
	URL string
	// OutputTemplate is passed to --output, e.g. "/tmp/x/audio.%(ext)s".
	OutputTemplate string
	Format         string
}

func New(logger *zap.Logger) (*Downloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(PathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", PathEnv, err)
		}
		return &Downloader{Executable: override, Logger: logger}, nil
	}

	path, err := exec.LookPath(defaultBinary)
	if err != nil {
		return nil, ErrNotFound
	}

	return &Downloader{Executable: path, Logger: logger}, nil
}

func ValidFormat(format string) bool {
	for _, candidate := range Formats {
		if candidate == format {
			return true
		}
	}
	return false
}

// Version runs `yt-dlp --version`. It doubles as the availability check.
func (d *Downloader) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, d.Executable, "--version")
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("yt-dlp --version failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ExtractAudio downloads the best audio stream of req.URL and converts it to req.Format.
func (d *Downloader) ExtractAudio(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.URL) == "" {
		return errors.New("video URL is required")
	}
	if strings.TrimSpace(req.OutputTemplate) == "" {
		return errors.New("output template is required")
	}
	format := req.Format
	if format == "" {
		format = "wav"
	}
	if !ValidFormat(format) {
		return fmt.Errorf("unsupported audio format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}

	args := []string{
		"--extract-audio",
		"--audio-format", format,
		"--audio-quality", bestAudioLevel,
		"--output", req.OutputTemplate,
		req.URL,
	}

	cmd := exec.CommandContext(ctx, d.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	d.log().Debug("running yt-dlp", zap.String("executable", d.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			return fmt.Errorf("yt-dlp failed: %w", err)
		}
		return fmt.Errorf("yt-dlp failed: %w (%s)", err, errText)
	}

	return nil
}

func (d *Downloader) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
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
