package workflow

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmueller/vidscribe/internal/transcript"
	"github.com/fmueller/vidscribe/internal/ytdlp"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	requests []ytdlp.Request
	err      error
	skip     bool
	payload  func(t *testing.T, path string)
	t        *testing.T
}

func (f *fakeFetcher) ExtractAudio(ctx context.Context, req ytdlp.Request) error {
	f.requests = append(f.requests, req)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	if f.skip {
		return nil
	}

	path := strings.Replace(req.OutputTemplate, "%(ext)s", req.Format, 1)
	if f.payload != nil {
		f.payload(f.t, path)
		return nil
	}
	return os.WriteFile(path, []byte("fake audio"), 0o644)
}

type fakeTranscriber struct {
	paths  []string
	result *transcript.Result
	err    error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath string) (*transcript.Result, error) {
	f.paths = append(f.paths, audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return nil, err
	}
	return f.result, f.err
}

func sampleResult() *transcript.Result {
	return &transcript.Result{
		Language: "en",
		Segments: []transcript.Segment{
			{Start: 0, End: 1.236, Text: "  hello world  "},
			{Start: 1.236, End: 4.5, Text: " second line"},
		},
	}
}

const sampleJSON = `[
  {
    "timestamp": {
      "start": 0.0,
      "end": 1.24
    },
    "sentence": "hello world"
  },
  {
    "timestamp": {
      "start": 1.24,
      "end": 4.5
    },
    "sentence": "second line"
  }
]
`

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "expected %s to be empty", dir)
}

func TestRunTempWritesStdoutAndCleansUp(t *testing.T) {
	t.Parallel()

	tempRoot := t.TempDir()
	out := new(bytes.Buffer)
	fetcher := &fakeFetcher{}
	transcriber := &fakeTranscriber{result: sampleResult()}

	runner := &Runner{Fetcher: fetcher, Transcriber: transcriber, Stdout: out, TempRoot: tempRoot}
	outcome, err := runner.RunTemp(context.Background(), TempOptions{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.Equal(t, 2, outcome.Records)
	require.Equal(t, sampleJSON, out.String())

	require.Len(t, fetcher.requests, 1)
	require.Equal(t, "wav", fetcher.requests[0].Format)
	require.True(t, strings.HasSuffix(fetcher.requests[0].OutputTemplate, string(filepath.Separator)+"audio.%(ext)s"))
	require.Len(t, transcriber.paths, 1)
	require.Equal(t, "audio.wav", filepath.Base(transcriber.paths[0]))

	requireEmptyDir(t, tempRoot)
}

func TestRunTempWritesOutputFile(t *testing.T) {
	t.Parallel()

	output := filepath.Join(t.TempDir(), "nested", "out.json")
	runner := &Runner{
		Fetcher:     &fakeFetcher{},
		Transcriber: &fakeTranscriber{result: sampleResult()},
		TempRoot:    t.TempDir(),
	}

	_, err := runner.RunTemp(context.Background(), TempOptions{URL: "https://example.com/v", Output: output})
	require.NoError(t, err)

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, sampleJSON, string(written))
}

func TestRunTempCleansUpOnFailures(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name        string
		ctx         context.Context
		fetcher     *fakeFetcher
		transcriber *fakeTranscriber
		errIs       error
		errContains string
	}{
		{
			name:        "downloader exits non-zero",
			ctx:         context.Background(),
			fetcher:     &fakeFetcher{err: errors.New("yt-dlp failed: exit status 1 (ERROR: Unsupported URL)")},
			transcriber: &fakeTranscriber{result: sampleResult()},
			errContains: "Unsupported URL",
		},
		{
			name:        "downloader produced nothing",
			ctx:         context.Background(),
			fetcher:     &fakeFetcher{skip: true},
			transcriber: &fakeTranscriber{result: sampleResult()},
			errIs:       ErrAudioNotFound,
		},
		{
			name:        "transcriber fails",
			ctx:         context.Background(),
			fetcher:     &fakeFetcher{},
			transcriber: &fakeTranscriber{err: errors.New("whisper transcribe failed")},
			errContains: "whisper transcribe failed",
		},
		{
			name:        "interrupted",
			ctx:         canceled,
			fetcher:     &fakeFetcher{},
			transcriber: &fakeTranscriber{result: sampleResult()},
			errIs:       context.Canceled,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tempRoot := t.TempDir()
			output := filepath.Join(t.TempDir(), "out.json")
			out := new(bytes.Buffer)

			runner := &Runner{Fetcher: tt.fetcher, Transcriber: tt.transcriber, Stdout: out, TempRoot: tempRoot}
			_, err := runner.RunTemp(tt.ctx, TempOptions{URL: "https://example.com/v", Output: output})
			require.Error(t, err)
			if tt.errIs != nil {
				require.ErrorIs(t, err, tt.errIs)
			}
			if tt.errContains != "" {
				require.Contains(t, err.Error(), tt.errContains)
			}

			requireEmptyDir(t, tempRoot)
			require.NoFileExists(t, output)
			require.Empty(t, out.String())
		})
	}
}

func TestRunPersistPlacesAudioAndResult(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	fetcher := &fakeFetcher{}
	transcriber := &fakeTranscriber{result: sampleResult()}

	runner := &Runner{Fetcher: fetcher, Transcriber: transcriber, Workdir: workdir}
	outcome, err := runner.RunPersist(context.Background(), PersistOptions{
		URL:         "https://example.com/v",
		AudioOutput: "x.wav",
		Output:      "talk.json",
		Format:      "wav",
	})
	require.NoError(t, err)

	audioPath := filepath.Join(workdir, "audio", "x.wav")
	resultPath := filepath.Join(workdir, "result", "talk.json")
	require.Equal(t, audioPath, outcome.AudioPath)
	require.Equal(t, resultPath, outcome.ResultPath)
	require.FileExists(t, audioPath)
	require.Equal(t, []string{audioPath}, transcriber.paths)
	require.Equal(t, filepath.Join(workdir, "audio", "x.%(ext)s"), fetcher.requests[0].OutputTemplate)

	written, err := os.ReadFile(resultPath)
	require.NoError(t, err)
	require.Equal(t, sampleJSON, string(written))
}

func TestRunPersistStripsDirectoriesAndRenames(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	runner := &Runner{
		Fetcher:     &fakeFetcher{},
		Transcriber: &fakeTranscriber{result: sampleResult()},
		Workdir:     workdir,
		Stdout:      new(bytes.Buffer),
	}

	outcome, err := runner.RunPersist(context.Background(), PersistOptions{
		URL:         "https://example.com/v",
		AudioOutput: "/somewhere/else/song.audio",
		Format:      "mp3",
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(workdir, "audio", "song.audio"), outcome.AudioPath)
	require.FileExists(t, outcome.AudioPath)
	require.NoFileExists(t, filepath.Join(workdir, "audio", "song.mp3"))
	require.Empty(t, outcome.ResultPath)
	require.NoDirExists(t, filepath.Join(workdir, "result"))
}

func TestRunPersistPrintsWithoutOutput(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	runner := &Runner{
		Fetcher:     &fakeFetcher{},
		Transcriber: &fakeTranscriber{result: &transcript.Result{}},
		Workdir:     t.TempDir(),
		Stdout:      out,
	}

	_, err := runner.RunPersist(context.Background(), PersistOptions{URL: "https://example.com/v", AudioOutput: "a.flac", Format: "flac"})
	require.NoError(t, err)
	require.Equal(t, "[]\n", out.String())
}

func TestRunPersistDownloaderFailureWritesNoJSON(t *testing.T) {
	t.Parallel()

	workdir := t.TempDir()
	transcriber := &fakeTranscriber{result: sampleResult()}
	runner := &Runner{
		Fetcher:     &fakeFetcher{err: errors.New("yt-dlp failed: exit status 1")},
		Transcriber: transcriber,
		Workdir:     workdir,
	}

	_, err := runner.RunPersist(context.Background(), PersistOptions{
		URL:         "https://example.com/v",
		AudioOutput: "x.wav",
		Output:      "talk.json",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "download audio")
	require.Empty(t, transcriber.paths)
	require.NoFileExists(t, filepath.Join(workdir, "result", "talk.json"))
}

func TestRunPersistMissingExpectedFile(t *testing.T) {
	t.Parallel()

	runner := &Runner{
		Fetcher:     &fakeFetcher{skip: true},
		Transcriber: &fakeTranscriber{result: sampleResult()},
		Workdir:     t.TempDir(),
	}

	_, err := runner.RunPersist(context.Background(), PersistOptions{URL: "https://example.com/v", AudioOutput: "x.wav"})
	require.ErrorIs(t, err, ErrAudioNotFound)
}

func TestExtractWritesExactPath(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "music", "track.mp3")
	fetcher := &fakeFetcher{}
	runner := &Runner{Fetcher: fetcher}

	path, err := runner.Extract(context.Background(), ExtractOptions{URL: "https://example.com/v", Output: target, Format: "mp3"})
	require.NoError(t, err)
	require.Equal(t, target, path)
	require.FileExists(t, target)
	require.Equal(t, "mp3", fetcher.requests[0].Format)
}

func TestExtractRequiresOutput(t *testing.T) {
	t.Parallel()

	runner := &Runner{Fetcher: &fakeFetcher{}}
	_, err := runner.Extract(context.Background(), ExtractOptions{URL: "https://example.com/v"})
	require.Error(t, err)
}

func TestSilenceGateSkipsTranscription(t *testing.T) {
	t.Parallel()

	writeSilentWAV := func(t *testing.T, path string) {
		f, err := os.Create(path)
		require.NoError(t, err)
		defer f.Close()

		enc := wav.NewEncoder(f, 16000, 16, 1, 1)
		require.NoError(t, enc.Write(&goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
			Data:           make([]int, 16000),
			SourceBitDepth: 16,
		}))
		require.NoError(t, enc.Close())
	}

	out := new(bytes.Buffer)
	transcriber := &fakeTranscriber{result: sampleResult()}
	runner := &Runner{
		Fetcher:     &fakeFetcher{payload: writeSilentWAV, t: t},
		Transcriber: transcriber,
		Stdout:      out,
		TempRoot:    t.TempDir(),
		SilenceGate: &SilenceGate{ThresholdDBFS: -65},
	}

	_, err := runner.RunTemp(context.Background(), TempOptions{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.Empty(t, transcriber.paths)
	require.Equal(t, "[]\n", out.String())
}

func TestRunTempRequiresURL(t *testing.T) {
	t.Parallel()

	runner := &Runner{Fetcher: &fakeFetcher{}, Transcriber: &fakeTranscriber{}}
	_, err := runner.RunTemp(context.Background(), TempOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "video URL is required")
}
