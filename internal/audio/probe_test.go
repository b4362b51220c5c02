package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func writePCM16WAV(t *testing.T, path string, samples []int, sampleRate, channels int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, pcmFormat)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestIsSilentWAVDetectsSilence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "silent.wav")
	writePCM16WAV(t, path, make([]int, 16000), 16000, 1)

	silent, info, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.True(t, silent)
	require.True(t, math.IsInf(info.RMSdBFS, -1))
	require.True(t, math.IsInf(info.PeakdBFS, -1))
	require.EqualValues(t, 16000, info.Samples)
	require.Equal(t, time.Second, info.Duration)
}

func TestIsSilentWAVDetectsSpeechLikeSignal(t *testing.T) {
	t.Parallel()

	samples := make([]int, 16000)
	for i := range samples {
		samples[i] = int(0.25 * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}

	path := filepath.Join(t.TempDir(), "voice.wav")
	writePCM16WAV(t, path, samples, 16000, 1)

	silent, info, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.False(t, silent)
	require.Greater(t, info.PeakdBFS, -20.0)
	require.Greater(t, info.RMSdBFS, -20.0)
}

func TestAnalyzeStereoDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stereo.wav")
	writePCM16WAV(t, path, make([]int, 2*8000), 16000, 2)

	info, err := Analyze(path)
	require.NoError(t, err)
	require.Equal(t, 2, info.Channels)
	require.Equal(t, 16000, info.SampleRate)
	require.Equal(t, 500*time.Millisecond, info.Duration)
}

func TestIsSilentWAVInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not-wav.wav")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, _, err := IsSilentWAV(path, -65)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidWAV)
}
