package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-soundprint/band"
)

func stereoSine(sr int, freq, amp float64, frames int) []float32 {
	out := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}

func randomSignal(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}

func TestBandBinsSquaredSpacing(t *testing.T) {
	edges := BandBins(1024)
	if edges[0] != [2]int{0, 0} {
		t.Fatalf("band 0 = %v, want [0 0]", edges[0])
	}
	if edges[band.Count-1][1] != 1023 {
		t.Fatalf("last band ends at %d, want 1023", edges[band.Count-1][1])
	}
	for i := 1; i < band.Count; i++ {
		if edges[i][0] < edges[i-1][0] || edges[i][1] < edges[i][0] {
			t.Fatalf("band %d edges %v not ordered after %v", i, edges[i], edges[i-1])
		}
		wPrev := edges[i-1][1] - edges[i-1][0]
		w := edges[i][1] - edges[i][0]
		if i > 2 && w < wPrev-1 {
			t.Fatalf("band %d narrower than band %d", i, i-1)
		}
	}
}

func TestMeterFindsTone(t *testing.T) {
	const sr = 48000
	m, err := NewMeter(DefaultMeterConfig())
	if err != nil {
		t.Fatalf("NewMeter: %v", err)
	}
	block := stereoSine(sr, 1000, 0.5, sr/2)
	for i := 0; i < len(block); i += 512 {
		m.Push(block[i:min(i+512, len(block))])
	}
	if m.Frames() == 0 {
		t.Fatalf("meter analysed no frames")
	}

	toneBin := int(math.Round(1000 / (float64(sr) / 2048)))
	want := -1
	for b, e := range BandBins(1024) {
		if toneBin >= e[0] && toneBin <= e[1] {
			want = b
			break
		}
	}
	levels := m.Levels()
	best := 0
	for b := range levels {
		if levels[b] > levels[best] {
			best = b
		}
	}
	if best != want {
		t.Fatalf("loudest band = %d, want %d (levels %v)", best, want, levels)
	}
	mean := m.Mean()
	if mean[want] <= 0 || mean[want] > 1 {
		t.Fatalf("mean level of tone band = %f", mean[want])
	}

	m.Reset()
	if m.Frames() != 0 || m.Levels() != [band.Count]float64{} {
		t.Fatalf("Reset did not clear the meter")
	}
}

func TestMeterSilence(t *testing.T) {
	m, err := NewMeter(DefaultMeterConfig())
	if err != nil {
		t.Fatal(err)
	}
	m.Push(make([]float32, 2*8192))
	for b, v := range m.Levels() {
		if v != 0 {
			t.Fatalf("band %d level %f for silence", b, v)
		}
	}
}

func TestNewMeterRejectsBadConfig(t *testing.T) {
	cfg := DefaultMeterConfig()
	cfg.FFTSize = 1000
	if _, err := NewMeter(cfg); err == nil {
		t.Fatalf("expected error for non power-of-two size")
	}
	cfg = DefaultMeterConfig()
	cfg.MaxDB = cfg.MinDB
	if _, err := NewMeter(cfg); err == nil {
		t.Fatalf("expected error for empty dB range")
	}
}

func TestCompareIdenticalSignals(t *testing.T) {
	x := randomSignal(48000, 7)
	d := Compare(x, x, 48000)
	if d.TimeRMSE != 0 || d.SpectralDB > 1e-9 {
		t.Fatalf("identical signals: time %f spectral %f", d.TimeRMSE, d.SpectralDB)
	}
	for b, v := range d.BandDB {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("band %d deviation %f", b, v)
		}
	}
}

func TestCompareDetectsGain(t *testing.T) {
	src := randomSignal(48000, 11)
	proc := make([]float64, len(src))
	for i, v := range src {
		proc[i] = 2 * v
	}
	d := Compare(src, proc, 48000)
	want := 20 * math.Log10(2)
	if math.Abs(d.SpectralDB-want) > 0.01 {
		t.Fatalf("spectral deviation = %f, want %f", d.SpectralDB, want)
	}
	for b, v := range d.BandDB {
		if math.Abs(v-want) > 0.01 {
			t.Fatalf("band %d deviation = %f, want %f", b, v, want)
		}
	}
}

func TestCompareShortInput(t *testing.T) {
	d := Compare([]float64{1, 2}, []float64{1}, 48000)
	if d.Frames != 1 || d.SpectralDB != 0 {
		t.Fatalf("short compare = %+v", d)
	}
	if d := Compare(nil, nil, 48000); d.Frames != 0 {
		t.Fatalf("empty compare = %+v", d)
	}
}
