package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-soundprint/analysis"
	"github.com/cwbudde/algo-soundprint/band"
	"github.com/cwbudde/algo-soundprint/decode"
	"github.com/cwbudde/algo-soundprint/internal/pcm"
)

func main() {
	srcPath := flag.String("source", "", "Original track (WAV or MP3)")
	procPath := flag.String("processed", "", "Processed track, e.g. the .wav written by soundprint-render")
	sampleRate := flag.Int("sample-rate", 48000, "Analysis sample rate")
	flag.Parse()

	if *srcPath == "" || *procPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -source and -processed are required")
		os.Exit(1)
	}
	sr := *sampleRate

	src, err := load(*srcPath, sr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "source: %v\n", err)
		os.Exit(1)
	}
	proc, err := load(*procPath, sr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "processed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Source:    %d frames @ %d Hz (%.2fs)\n", len(src), sr, float64(len(src))/float64(sr))
	fmt.Printf("Processed: %d frames @ %d Hz (%.2fs)\n\n", len(proc), sr, float64(len(proc))/float64(sr))

	srcPeak, procPeak := peak(src), peak(proc)
	fmt.Printf("Peak levels: src=%.4f (%.1f dB)  proc=%.4f (%.1f dB)  ratio=%.1fdB\n\n",
		srcPeak, toDB(srcPeak), procPeak, toDB(procPeak), toDB(procPeak)-toDB(srcPeak))

	d := analysis.Compare(src, proc, sr)
	fmt.Printf("Time RMSE: %.6f\n", d.TimeRMSE)
	fmt.Printf("Spectral RMSE: %.2f dB\n\n", d.SpectralDB)

	fmt.Printf("%4s %10s %9s\n", "band", "center Hz", "delta dB")
	for b := 0; b < band.Count; b++ {
		fmt.Printf("%4d %10.1f %+9.2f\n", b, band.CenterFrequency(b, float64(sr)), d.BandDB[b])
	}
}

func load(path string, sr int) ([]float64, error) {
	buf, err := decode.DecodeFile(context.Background(), path)
	if err != nil {
		return nil, err
	}
	buf, err = decode.Conform(buf, sr)
	if err != nil {
		return nil, err
	}
	return pcm.Mono64(buf.Data, buf.Format.NumChannels), nil
}

func peak(x []float64) float64 {
	p := 0.0
	for _, v := range x {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

func toDB(v float64) float64 {
	return 20 * math.Log10(math.Max(v, 1e-12))
}
