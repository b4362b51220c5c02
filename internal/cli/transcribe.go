package cli

import (
	"context"
	"fmt"

	"github.com/fmueller/vidscribe/internal/download"
	"github.com/fmueller/vidscribe/internal/transcript"
	"github.com/fmueller/vidscribe/internal/whisper"
	"github.com/fmueller/vidscribe/internal/workflow"
	"go.uber.org/zap"
)

func (a *appState) newTranscriber(ctx context.Context) (workflow.Transcriber, error) {
	engine, req, err := a.resolveEngine(ctx)
	if err != nil {
		return nil, err
	}

	a.log().Debug("using transcription engine", zap.String("engine", engine.Name()), zap.String("model", req.Model), zap.String("language", req.Language))
	return workflow.TranscriberFunc(func(ctx context.Context, audioPath string) (*transcript.Result, error) {
		call := req
		call.AudioPath = audioPath
		return engine.Transcribe(ctx, call)
	}), nil
}

func (a *appState) resolveEngine(ctx context.Context) (whisper.Engine, whisper.TranscriptionRequest, error) {
	req := whisper.TranscriptionRequest{Model: a.model, Language: a.language}

	switch a.engine {
	case whisper.EngineOpenAI:
		if err := whisper.ValidateModelName(a.model); err != nil {
			return nil, req, err
		}
		engine, err := whisper.NewOpenAIEngine(a.log())
		if err != nil {
			return nil, req, err
		}
		return engine, req, nil
	case whisper.EngineCpp:
		engine, err := whisper.NewCppEngine(a.log())
		if err != nil {
			return nil, req, err
		}
		model, err := a.ensureModelAvailable(ctx)
		if err != nil {
			return nil, req, err
		}
		req.Model = model.Name
		req.ModelPath = model.Path
		return engine, req, nil
	default:
		return nil, req, fmt.Errorf("unknown engine %q (choose from openai, cpp)", a.engine)
	}
}

func (a *appState) ensureModelAvailable(ctx context.Context) (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveModel(a.model, modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !a.autoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `vidscribe setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := download.DownloadFile(ctx, download.Options{
		URL:            resolved.URL,
		Destination:    resolved.Path,
		ExpectedSHA256: resolved.SHA256,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	}); err != nil {
		return whisper.ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
	}

	resolved.NeedsDownload = false
	return resolved, nil
}
