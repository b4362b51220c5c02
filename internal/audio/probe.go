package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const pcmFormat = 1

// Info summarizes a PCM WAV file. Levels are in dBFS; -Inf means digital silence.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
	Samples    int64
	RMSdBFS    float64
	PeakdBFS   float64
}

func Analyze(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if buf == nil || dec.NumChans == 0 || dec.SampleRate == 0 {
		return Info{}, ErrInvalidWAV
	}
	if dec.WavAudioFormat != pcmFormat {
		return Info{}, fmt.Errorf("%w: audio format %d", ErrUnsupportedWAV, dec.WavAudioFormat)
	}

	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Samples:    int64(len(buf.Data)),
		RMSdBFS:    math.Inf(-1),
		PeakdBFS:   math.Inf(-1),
	}

	frames := info.Samples / int64(info.Channels)
	info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)

	if info.Samples == 0 {
		return info, nil
	}

	fullScale, err := fullScaleFor(info.BitDepth)
	if err != nil {
		return Info{}, err
	}

	var peak, sumSquares float64
	for _, raw := range buf.Data {
		value := float64(raw) / fullScale
		if info.BitDepth == 8 {
			// 8-bit PCM is unsigned around 128.
			value = (float64(raw) - 128) / fullScale
		}
		if abs := math.Abs(value); abs > peak {
			peak = abs
		}
		sumSquares += value * value
	}

	info.PeakdBFS = amplitudeToDBFS(peak)
	info.RMSdBFS = amplitudeToDBFS(math.Sqrt(sumSquares / float64(info.Samples)))
	return info, nil
}

// IsSilentWAV reports whether both RMS and peak stay under the gate.
// Peak gets 6 dB of headroom so a single click does not defeat the gate.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, Info, error) {
	info, err := Analyze(path)
	if err != nil {
		return false, Info{}, err
	}

	if info.Samples == 0 {
		return true, info, nil
	}
	if math.IsInf(info.RMSdBFS, -1) && math.IsInf(info.PeakdBFS, -1) {
		return true, info, nil
	}

	return info.RMSdBFS <= thresholdDBFS && info.PeakdBFS <= thresholdDBFS+6, info, nil
}

func fullScaleFor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 8:
		return 128, nil
	case 16:
		return 32768, nil
	case 24:
		return 8388608, nil
	case 32:
		return 2147483648, nil
	default:
		return 0, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedWAV, bitDepth)
	}
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
