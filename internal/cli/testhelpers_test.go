package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/fmueller/vidscribe/internal/transcript"
	"github.com/fmueller/vidscribe/internal/workflow"
	"github.com/fmueller/vidscribe/internal/ytdlp"
	"github.com/spf13/cobra"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return execute(t, NewRootCmd(), args)
}

func execute(t *testing.T, cmd *cobra.Command, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

type stubFetcher struct {
	requests []ytdlp.Request
	err      error
}

func (f *stubFetcher) ExtractAudio(_ context.Context, req ytdlp.Request) error {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return f.err
	}
	path := strings.Replace(req.OutputTemplate, "%(ext)s", req.Format, 1)
	return os.WriteFile(path, []byte("fake audio"), 0o644)
}

type stubTranscriber struct {
	paths []string
}

func (s *stubTranscriber) Transcribe(_ context.Context, audioPath string) (*transcript.Result, error) {
	s.paths = append(s.paths, audioPath)
	return &transcript.Result{Segments: []transcript.Segment{
		{Start: 0, End: 2.5, Text: " Hello there."},
		{Start: 2.5, End: 4.126, Text: " General Kenobi."},
	}}, nil
}

const stubTranscriptJSON = `[
  {
    "timestamp": {
      "start": 0.0,
      "end": 2.5
    },
    "sentence": "Hello there."
  },
  {
    "timestamp": {
      "start": 2.5,
      "end": 4.13
    },
    "sentence": "General Kenobi."
  }
]
`

// stubbedApp returns an appState whose external tools are replaced by fakes
// and whose audio/ and result/ directories live under a temp dir.
func stubbedApp(t *testing.T, fetcher *stubFetcher, transcriber *stubTranscriber) *appState {
	t.Helper()

	app := newAppState()
	app.workdir = t.TempDir()
	app.noProgress = true
	app.fetcherFn = func(context.Context) (workflow.AudioFetcher, error) {
		if fetcher == nil {
			return nil, ytdlp.ErrNotFound
		}
		return fetcher, nil
	}
	app.transcriberFn = func(context.Context) (workflow.Transcriber, error) {
		if transcriber == nil {
			return nil, errors.New("transcriber unavailable")
		}
		return transcriber, nil
	}
	return app
}
