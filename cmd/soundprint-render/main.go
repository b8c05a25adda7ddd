package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cwbudde/algo-soundprint/analysis"
	"github.com/cwbudde/algo-soundprint/band"
	"github.com/cwbudde/algo-soundprint/capture"
	"github.com/cwbudde/algo-soundprint/decode"
	"github.com/cwbudde/algo-soundprint/engine"
	"github.com/cwbudde/algo-soundprint/internal/pcm"
	"github.com/cwbudde/algo-soundprint/preset"
	"github.com/cwbudde/algo-soundprint/timeline"
)

type report struct {
	Input     string              `json:"input"`
	Gesture   string              `json:"gesture"`
	Snapshot  engine.Snapshot     `json:"snapshot"`
	GainsDB   [band.Count]float64 `json:"gains_db"`
	Deviation analysis.Deviation  `json:"deviation"`
	MIMEType  string              `json:"mime_type,omitempty"`
	BlobBytes int                 `json:"blob_bytes"`
	Chunks    int                 `json:"chunks"`
}

func main() {
	input := flag.String("input", "", "Audio file to perform (WAV or MP3)")
	presetPath := flag.String("preset", "", "Preset JSON file path (optional)")
	gestureSpec := flag.String("gesture", "hold:0.5,0.9", "Scripted pointer: none, hold:X,Y, sweep:Y or diagonal")
	fps := flag.Int("fps", 60, "Frames per second of the simulated host loop")
	sampleRate := flag.Int("sample-rate", 0, "Output sample rate override in Hz")
	width := flag.Int("width", 0, "Surface width override")
	height := flag.Int("height", 0, "Surface height override")
	stopAfter := flag.Float64("stop-after", 0, "Stop the run after this many seconds (0 plays to the end)")
	out := flag.String("out", "soundprint", "Output path prefix for .mkv, .png, .json and .wav")
	verbose := flag.Bool("v", false, "Verbose engine logging")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Error: -input is required")
		os.Exit(1)
	}
	if *fps < 1 {
		fmt.Fprintln(os.Stderr, "Error: -fps must be > 0")
		os.Exit(1)
	}
	g, err := parseGesture(*gestureSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing gesture: %v\n", err)
		os.Exit(1)
	}

	cfg := engine.NewDefaultConfig()
	if *presetPath != "" {
		cfg, err = preset.LoadJSON(*presetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading preset %q: %v\n", *presetPath, err)
			os.Exit(1)
		}
	}
	if *sampleRate > 0 {
		cfg.SampleRate = *sampleRate
	}
	if *width > 0 {
		cfg.Width = *width
	}
	if *height > 0 {
		cfg.Height = *height
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	src, err := decode.DecodeFile(context.Background(), *input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %q: %v\n", *input, err)
		os.Exit(1)
	}
	src, err = decode.Conform(src, cfg.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error converting %q: %v\n", *input, err)
		os.Exit(1)
	}

	e, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating engine: %v\n", err)
		os.Exit(1)
	}
	if err := e.Initialize(src); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading track: %v\n", err)
		os.Exit(1)
	}

	var (
		done     bool
		snap     engine.Snapshot
		artifact *capture.Artifact
		still    []byte
	)
	e.OnComplete = func(s engine.Snapshot, a *capture.Artifact, png []byte) {
		done, snap, artifact, still = true, s, a, png
	}

	fmt.Printf("Performing %s (%.2fs at %d Hz, gesture %s, %d fps)...\n",
		*input, e.Duration().Seconds(), cfg.SampleRate, *gestureSpec, *fps)

	if err := e.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting run: %v\n", err)
		os.Exit(1)
	}

	dt := 1 / float64(*fps)
	block := make([]float32, 2*(cfg.SampleRate / *fps))
	processed := make([]float32, 0, len(src.Data)/src.Format.NumChannels*2)
	stopAt := time.Duration(*stopAfter * float64(time.Second))
	frames := 0
	for !done {
		if e.State() == timeline.Running {
			x, y, pressed := g(e.Progress())
			e.OnPointerEvent(x, y, pressed)
			if stopAt > 0 && e.Duration()-e.Remaining() >= stopAt {
				e.Stop()
			}
		}
		e.Frame(dt)
		if n := e.Process(block); n > 0 {
			processed = append(processed, block[:2*n]...)
		}
		frames++
		if e.State() == timeline.Completing {
			time.Sleep(time.Millisecond)
		}
	}

	rep := report{
		Input:     *input,
		Gesture:   *gestureSpec,
		Snapshot:  snap,
		GainsDB:   snap.GainsDB(),
		Deviation: analysis.Compare(pcm.Mono64(src.Data, src.Format.NumChannels), pcm.Mono64(processed, 2), cfg.SampleRate),
	}

	if artifact != nil {
		rep.MIMEType, rep.BlobBytes, rep.Chunks = artifact.MIMEType, len(artifact.Blob), artifact.Chunks
		if err := os.WriteFile(*out+".mkv", artifact.Blob, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing recording: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Warning: capture unavailable, no recording written")
	}
	if err := os.WriteFile(*out+".png", still, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing still: %v\n", err)
		os.Exit(1)
	}
	if err := pcm.WriteWAV(*out+".wav", processed, 2, cfg.SampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV file: %v\n", err)
		os.Exit(1)
	}
	js, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out+".json", append(js, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Touched %d/36 bands over %d frames (%.2fs), spectral deviation %.2f dB\n",
		snap.Touched, frames, snap.Elapsed.Seconds(), rep.Deviation.SpectralDB)
	fmt.Printf("Successfully wrote %s.{mkv,png,json,wav}\n", *out)
}
