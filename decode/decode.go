// Package decode turns uploaded audio bytes into PCM buffers at the engine
// sample rate.
package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
	"github.com/hajimehoshi/go-mp3"
)

var (
	// ErrEmpty is returned for empty input or input without samples.
	ErrEmpty = errors.New("decode: no audio data")
	// ErrUnsupported is returned when the bytes are neither WAV nor MP3.
	ErrUnsupported = errors.New("decode: unsupported format")
)

// Format is the detected container.
type Format int

const (
	Unknown Format = iota
	WAV
	MP3
)

func (f Format) String() string {
	switch f {
	case WAV:
		return "wav"
	case MP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// Sniff detects the format from the leading bytes.
func Sniff(raw []byte) Format {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return WAV
	case len(raw) >= 3 && string(raw[0:3]) == "ID3":
		return MP3
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0:
		return MP3
	default:
		return Unknown
	}
}

// Decode parses raw WAV or MP3 bytes into interleaved float PCM.
func Decode(ctx context.Context, raw []byte) (*audio.Float32Buffer, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		buf *audio.Float32Buffer
		err error
	)
	switch Sniff(raw) {
	case WAV:
		buf, err = decodeWAV(raw)
	case MP3:
		buf, err = decodeMP3(ctx, raw)
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	if buf.Format.NumChannels < 1 || len(buf.Data) < buf.Format.NumChannels {
		return nil, ErrEmpty
	}
	return buf, nil
}

// DecodeFile reads and decodes path.
func DecodeFile(ctx context.Context, path string) (*audio.Float32Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	buf, err := Decode(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buf, nil
}

func decodeWAV(raw []byte) (*audio.Float32Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decode: invalid wav data")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode: wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrEmpty
	}
	return buf, nil
}

func decodeMP3(ctx context.Context, raw []byte) (*audio.Float32Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode: mp3: %w", err)
	}

	// go-mp3 always produces 16-bit little-endian stereo.
	var pcm []byte
	if n := dec.Length(); n > 0 {
		pcm = make([]byte, 0, n)
	}
	chunk := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := dec.Read(chunk)
		pcm = append(pcm, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode: mp3: %w", err)
		}
	}

	samples := len(pcm) / 2
	data := make([]float32, samples)
	for i := range data {
		data[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: dec.SampleRate()},
		Data:           data,
		SourceBitDepth: 16,
	}, nil
}

// Conform returns buf at sampleRate with at most two channels. Extra
// channels are folded into stereo; a buffer already in shape is returned
// as is.
func Conform(buf *audio.Float32Buffer, sampleRate int) (*audio.Float32Buffer, error) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, ErrEmpty
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("decode: invalid target rate %d", sampleRate)
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return nil, ErrEmpty
	}
	if ch <= 2 && buf.Format.SampleRate == sampleRate {
		return buf, nil
	}

	outCh := min(ch, 2)
	planes := make([][]float64, outCh)
	for c := range planes {
		planes[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			planes[c%outCh][i] += float64(buf.Data[i*ch+c])
		}
	}
	if ch > outCh {
		for c := range planes {
			share := float64((ch + outCh - 1 - c) / outCh)
			for i := range planes[c] {
				planes[c][i] /= share
			}
		}
	}

	if buf.Format.SampleRate != sampleRate {
		for c := range planes {
			r, err := dspresample.NewForRates(
				float64(buf.Format.SampleRate),
				float64(sampleRate),
				dspresample.WithQuality(dspresample.QualityBest),
			)
			if err != nil {
				return nil, fmt.Errorf("decode: resample: %w", err)
			}
			planes[c] = r.Process(planes[c])
		}
	}

	n := len(planes[0])
	for _, p := range planes[1:] {
		n = min(n, len(p))
	}
	data := make([]float32, n*outCh)
	for i := 0; i < n; i++ {
		for c := 0; c < outCh; c++ {
			data[i*outCh+c] = float32(planes[c][i])
		}
	}
	return &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: outCh, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: buf.SourceBitDepth,
	}, nil
}
