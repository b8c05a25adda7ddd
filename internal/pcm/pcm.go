// Package pcm holds small helpers for interleaved float PCM shared by the
// commands and tests.
package pcm

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// EncodeWAV writes interleaved samples as 16-bit PCM WAV.
func EncodeWAV(w io.WriteSeeker, samples []float32, channels, sampleRate int) error {
	if channels < 1 {
		return fmt.Errorf("pcm: invalid channel count %d", channels)
	}
	if len(samples)%channels != 0 {
		return fmt.Errorf("pcm: %d samples do not divide into %d channels", len(samples), channels)
	}
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// WriteWAV creates path (and its directory) and encodes samples into it.
func WriteWAV(path string, samples []float32, channels, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return EncodeWAV(f, samples, channels, sampleRate)
}

// Mono64 averages interleaved channels into one float64 signal.
func Mono64(interleaved []float32, channels int) []float64 {
	if channels < 1 || len(interleaved) < channels {
		return nil
	}
	n := len(interleaved) / channels
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[i*channels+c])
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample.
func Peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(float64(s)))
	}
	return p
}
