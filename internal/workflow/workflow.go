// Package workflow sequences download, transcription and JSON output.
//
// Two variants exist. RunTemp keeps the audio in a private temporary
// directory that is removed before it returns. RunPersist keeps the audio
// under <workdir>/audio and writes JSON under <workdir>/result.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmueller/vidscribe/internal/audio"
	"github.com/fmueller/vidscribe/internal/platform"
	"github.com/fmueller/vidscribe/internal/transcript"
	"github.com/fmueller/vidscribe/internal/ytdlp"
	"go.uber.org/zap"
)

var ErrAudioNotFound = errors.New("audio file not found after download")

const (
	tempAudioStem   = "audio"
	tempAudioFormat = "wav"
)

// AudioFetcher downloads audio for a URL. *ytdlp.Downloader satisfies it.
type AudioFetcher interface {
	ExtractAudio(ctx context.Context, req ytdlp.Request) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*transcript.Result, error)
}

type TranscriberFunc func(ctx context.Context, audioPath string) (*transcript.Result, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, audioPath string) (*transcript.Result, error) {
	return f(ctx, audioPath)
}

// SilenceGate skips transcription of WAV audio whose levels stay below ThresholdDBFS.
type SilenceGate struct {
	ThresholdDBFS float64
}

type Runner struct {
	Fetcher     AudioFetcher
	Transcriber Transcriber
	Logger      *zap.Logger
	Stdout      io.Writer
	// Workdir anchors the audio/ and result/ directories. Empty means the process cwd.
	Workdir string
	// TempRoot is the parent of per-run temporary directories. Empty means os.TempDir.
	TempRoot    string
	SilenceGate *SilenceGate
	// Progress starts an indicator and returns its stop function.
	Progress func(description string) func()
}

type TempOptions struct {
	URL    string
	Output string
}

type PersistOptions struct {
	URL         string
	AudioOutput string
	Output      string
	Format      string
}

type ExtractOptions struct {
	URL    string
	Output string
	Format string
}

type Outcome struct {
	AudioPath  string
	ResultPath string
	Records    int
}

// RunTemp downloads into a temporary directory, transcribes and emits JSON.
// The directory is removed on every return path, including cancellation.
func (r *Runner) RunTemp(ctx context.Context, opts TempOptions) (Outcome, error) {
	if err := r.validate(opts.URL, true); err != nil {
		return Outcome{}, err
	}

	dir, err := os.MkdirTemp(r.TempRoot, "vidscribe-*")
	if err != nil {
		return Outcome{}, fmt.Errorf("create temporary directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.log().Warn("failed to remove temporary files", zap.String("path", dir), zap.Error(err))
			return
		}
		r.log().Debug("temporary files cleaned up", zap.String("path", dir))
	}()

	r.log().Info("downloading audio", zap.String("url", opts.URL))
	stop := r.startProgress("Downloading")
	err = r.Fetcher.ExtractAudio(ctx, ytdlp.Request{
		URL:            opts.URL,
		OutputTemplate: filepath.Join(dir, tempAudioStem+".%(ext)s"),
		Format:         tempAudioFormat,
	})
	stop()
	if err != nil {
		return Outcome{}, fmt.Errorf("download audio: %w", err)
	}

	audioPath, err := findByStem(dir, tempAudioStem)
	if err != nil {
		return Outcome{}, err
	}
	r.log().Debug("audio downloaded", zap.String("path", audioPath))

	records, err := r.transcribe(ctx, audioPath)
	if err != nil {
		return Outcome{}, err
	}

	if err := r.emit(records, opts.Output); err != nil {
		return Outcome{}, err
	}

	return Outcome{ResultPath: opts.Output, Records: len(records)}, nil
}

// RunPersist keeps the audio under <workdir>/audio and, when an output name
// is given, writes JSON under <workdir>/result.
func (r *Runner) RunPersist(ctx context.Context, opts PersistOptions) (Outcome, error) {
	if err := r.validate(opts.URL, true); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(opts.AudioOutput) == "" {
		return Outcome{}, errors.New("audio output path is required")
	}

	workdir, err := r.workdir()
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{AudioPath: platform.AudioPath(workdir, opts.AudioOutput)}
	if strings.TrimSpace(opts.Output) != "" {
		outcome.ResultPath = platform.ResultPath(workdir, opts.Output)
	}

	if err := r.fetchTo(ctx, opts.URL, outcome.AudioPath, opts.Format); err != nil {
		return Outcome{}, err
	}

	records, err := r.transcribe(ctx, outcome.AudioPath)
	if err != nil {
		return Outcome{}, err
	}

	if err := r.emit(records, outcome.ResultPath); err != nil {
		return Outcome{}, err
	}

	outcome.Records = len(records)
	return outcome, nil
}

// Extract downloads audio to exactly opts.Output without transcribing it.
func (r *Runner) Extract(ctx context.Context, opts ExtractOptions) (string, error) {
	if err := r.validate(opts.URL, false); err != nil {
		return "", err
	}
	if strings.TrimSpace(opts.Output) == "" {
		return "", errors.New("output path is required")
	}

	target := filepath.Clean(opts.Output)
	if err := r.fetchTo(ctx, opts.URL, target, opts.Format); err != nil {
		return "", err
	}
	return target, nil
}

func (r *Runner) validate(url string, needsTranscriber bool) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("video URL is required")
	}
	if r.Fetcher == nil {
		return errors.New("audio fetcher is not configured")
	}
	if needsTranscriber && r.Transcriber == nil {
		return errors.New("transcriber is not configured")
	}
	return nil
}

// fetchTo asks the fetcher for <base>.<format> and renames it to target when
// target carries a different extension.
func (r *Runner) fetchTo(ctx context.Context, url, target, format string) error {
	if format == "" {
		format = tempAudioFormat
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	base := strings.TrimSuffix(target, filepath.Ext(target))
	expected := base + "." + format

	r.log().Info("extracting audio", zap.String("url", url), zap.String("destination", target), zap.String("format", format))
	stop := r.startProgress("Downloading")
	err := r.Fetcher.ExtractAudio(ctx, ytdlp.Request{
		URL:            url,
		OutputTemplate: base + ".%(ext)s",
		Format:         format,
	})
	stop()
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}

	if _, err := os.Stat(expected); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: expected %s", ErrAudioNotFound, expected)
		}
		return fmt.Errorf("stat downloaded audio: %w", err)
	}

	if expected != target {
		if err := os.Rename(expected, target); err != nil {
			return fmt.Errorf("rename downloaded audio: %w", err)
		}
	}

	r.log().Info("audio extraction completed", zap.String("path", target))
	return nil
}

func (r *Runner) transcribe(ctx context.Context, audioPath string) ([]transcript.Record, error) {
	if r.silenceGate(audioPath) {
		return transcript.Format(nil), nil
	}

	r.log().Info("transcribing", zap.String("audio", audioPath))
	stop := r.startProgress("Transcribing")
	result, err := r.Transcriber.Transcribe(ctx, audioPath)
	stop()
	if err != nil {
		return nil, fmt.Errorf("transcribe audio: %w", err)
	}
	if result == nil {
		return nil, errors.New("transcribe audio: engine returned no result")
	}

	records := transcript.Format(result)
	r.log().Info("transcription finished", zap.Int("segments", len(records)), zap.String("language", result.Language))
	return records, nil
}

func (r *Runner) silenceGate(audioPath string) bool {
	if r.SilenceGate == nil || !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		return false
	}

	silent, info, err := audio.IsSilentWAV(audioPath, r.SilenceGate.ThresholdDBFS)
	if err != nil {
		r.log().Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", audioPath))
		return false
	}
	if !silent {
		r.log().Debug("audio levels", zap.Duration("duration", info.Duration), zap.Float64("rms_dbfs", info.RMSdBFS))
		return false
	}

	r.log().Info(
		"audio considered silent; skipping transcription",
		zap.String("audio", audioPath),
		zap.Duration("duration", info.Duration),
		zap.Float64("rms_dbfs", info.RMSdBFS),
		zap.Float64("peak_dbfs", info.PeakdBFS),
		zap.Float64("threshold_dbfs", r.SilenceGate.ThresholdDBFS),
	)
	return true
}

// emit writes records to path, or to stdout when path is empty.
func (r *Runner) emit(records []transcript.Record, path string) error {
	if path == "" {
		return transcript.Encode(r.stdout(), records)
	}

	var buf bytes.Buffer
	if err := transcript.Encode(&buf, records); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write transcription: %w", err)
	}

	r.log().Info("transcription saved", zap.String("path", path))
	return nil
}

func findByStem(dir, stem string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list download directory: %w", err)
	}

	var matches []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, stem+".") || strings.HasSuffix(name, ".part") {
			continue
		}
		matches = append(matches, name)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no %s.* in %s", ErrAudioNotFound, stem, dir)
	}

	sort.Strings(matches)
	return filepath.Join(dir, matches[0]), nil
}

func (r *Runner) workdir() (string, error) {
	if r.Workdir != "" {
		return r.Workdir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return wd, nil
}

func (r *Runner) startProgress(description string) func() {
	if r.Progress == nil {
		return func() {}
	}
	return r.Progress(description)
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
