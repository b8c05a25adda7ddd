package sim

import (
	"image"
	"math"
	"slices"
	"testing"

	pdefd "github.com/cwbudde/algo-pde/fd"
	pdepoisson "github.com/cwbudde/algo-pde/poisson"
)

func paintInput(x, y float64) Input {
	return Input{Aspect: 1, PointerX: x, PointerY: y, Down: true, Active: true}
}

func stepN(f *Field, in Input, p Params, n int) {
	for i := 0; i < n; i++ {
		in.Time = float64(i) / 60
		Step(f.Front(), in, p, f.Back())
		f.Swap()
	}
}

func TestDecayReachesZero(t *testing.T) {
	p := NewDefaultParams()
	p.Workers = 2
	f := NewField(32, 32)
	stepN(f, paintInput(16.5/32, 16.5/32), p, 5)
	if f.Front().TotalIntensity() == 0 {
		t.Fatalf("injection produced no ink")
	}

	prev := f.Front().TotalIntensity()
	idle := Input{Aspect: 1}
	for i := 0; i < 3000; i++ {
		idle.Time = float64(i) / 60
		Step(f.Front(), idle, p, f.Back())
		f.Swap()
		total := f.Front().TotalIntensity()
		if total == 0 {
			return
		}
		if total >= prev {
			t.Fatalf("step %d: total intensity %f did not decrease from %f", i, total, prev)
		}
		prev = total
	}
	t.Fatalf("field still holds %f after 3000 idle steps", prev)
}

func TestNoInjectionWithoutActiveDown(t *testing.T) {
	p := NewDefaultParams()
	tests := []struct {
		name string
		in   Input
	}{
		{"pointer up", Input{Aspect: 1, PointerX: 0.5, PointerY: 0.5, Active: true}},
		{"not running", Input{Aspect: 1, PointerX: 0.5, PointerY: 0.5, Down: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewField(24, 24)
			stepN(f, tt.in, p, 10)
			if got := f.Front().TotalIntensity(); got != 0 {
				t.Fatalf("total intensity = %f, want 0", got)
			}
		})
	}
}

func TestInjectionCarriesStyle(t *testing.T) {
	p := NewDefaultParams()
	f := NewField(128, 128)
	stepN(f, paintInput(0.5, 0.9), p, 12)

	b := f.Front()
	x, y := 63, 115
	c := b.At(x, y)
	if c.Intensity <= 0.3 {
		t.Fatalf("intensity at pointer = %f", c.Intensity)
	}
	if math.Abs(float64(c.MaterialY)-0.9) > 0.1 || math.Abs(float64(c.ColorX)-0.5) > 0.05 {
		t.Fatalf("style at pointer = %+v, want material ~0.9 color ~0.5", c)
	}
	for i, tx := range b.Pix {
		for _, v := range []float32{tx.Intensity, tx.MaterialY, tx.ColorX, tx.Seed} {
			if v < 0 || v > 1 || math.IsNaN(float64(v)) {
				t.Fatalf("texel %d out of range: %+v", i, tx)
			}
		}
	}
}

func TestFuseShiftsBehindMotion(t *testing.T) {
	p := NewDefaultParams()
	prev := NewBuffer(128, 128)
	next := NewBuffer(128, 128)
	in := paintInput(0.5, 0.5)
	in.VelX = 0.01
	Step(prev, in, p, next)

	bestX, best := 0, float32(0)
	row := int(0.5 * 128)
	for x := 0; x < 128; x++ {
		if v := next.At(x, row).Intensity; v > best {
			best, bestX = v, x
		}
	}
	want := int((0.5 - p.FuseOffset) * 128)
	if bestX < want-2 || bestX > want+2 {
		t.Fatalf("peak at x=%d, want near %d (behind the pointer)", bestX, want)
	}
}

func TestStepIsPureAndWorkerInvariant(t *testing.T) {
	p := NewDefaultParams()
	f := NewField(40, 30)
	stepN(f, paintInput(0.3, 0.6), p, 6)

	prev := f.Front()
	snapshot := slices.Clone(prev.Pix)

	in := paintInput(0.7, 0.2)
	in.Time = 1.5
	in.VelY = -0.02

	p.Workers = 1
	serial := NewBuffer(1, 1)
	Step(prev, in, p, serial)
	if !slices.Equal(prev.Pix, snapshot) {
		t.Fatalf("Step modified its input buffer")
	}

	p.Workers = 7
	parallel := NewBuffer(40, 30)
	Step(prev, in, p, parallel)
	if serial.W != 40 || serial.H != 30 {
		t.Fatalf("Step did not resize next: %dx%d", serial.W, serial.H)
	}
	if !slices.Equal(serial.Pix, parallel.Pix) {
		t.Fatalf("parallel step differs from serial step")
	}
}

func TestResizeClearsBothBuffers(t *testing.T) {
	p := NewDefaultParams()
	f := NewField(16, 16)
	stepN(f, paintInput(8.5/16, 8.5/16), p, 3)

	f.Resize(16, 16)
	if f.Front().TotalIntensity() == 0 {
		t.Fatalf("same-size Resize should keep state")
	}
	f.Resize(20, 12)
	if w, h := f.Size(); w != 20 || h != 12 {
		t.Fatalf("size = %dx%d", w, h)
	}
	if f.Front().TotalIntensity() != 0 || f.Back().TotalIntensity() != 0 {
		t.Fatalf("Resize should clear both buffers")
	}
	if f.Front() == f.Back() {
		t.Fatalf("ping-pong buffers alias")
	}
	f.Resize(0, -3)
	if w, h := f.Size(); w != 1 || h != 1 {
		t.Fatalf("degenerate resize = %dx%d, want 1x1", w, h)
	}
	stepN(f, paintInput(0.5, 0.5), p, 2)
}

func TestDiffusionIsStableForLaplacianSpectrum(t *testing.T) {
	p := NewDefaultParams()
	// The blend adds kappa times the 5-point Laplacian on a unit grid.
	kappa := p.BlurAmount * (1 - p.BlurCenter) / 4
	const n = 64
	eig := pdefd.Eigenvalues(n, 1, pdepoisson.Periodic)
	maxEig := slices.Max(eig)
	if maxEig > 4+1e-9 {
		t.Fatalf("unexpected unit-grid eigenvalue %g", maxEig)
	}
	for _, lx := range eig {
		for _, ly := range eig {
			g := 1 - kappa*(lx+ly)
			if g < -1 || g > 1 {
				t.Fatalf("diffusion amplification %g outside [-1,1] at %g+%g", g, lx, ly)
			}
		}
	}
}

func TestParamsValidate(t *testing.T) {
	if err := NewDefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	tests := []struct {
		name string
		mod  func(*Params)
	}{
		{"decay at one", func(p *Params) { p.DecayDense = 1 }},
		{"negative rate", func(p *Params) { p.ColorRate = -0.1 }},
		{"radii", func(p *Params) { p.AuraRadius = p.CoreRadius }},
		{"edges", func(p *Params) { p.DecayEdge1 = p.DecayEdge0 }},
		{"workers", func(p *Params) { p.Workers = -1 }},
		{"sublinear fire", func(p *Params) { p.FireExp = 0.5 }},
		{"glow edge", func(p *Params) { p.GlowEdge0 = 1.5 }},
		{"negative glow", func(p *Params) { p.GlowWeight = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDefaultParams()
			tt.mod(&p)
			if p.Validate() == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestRenderPointerAndReveal(t *testing.T) {
	p := NewDefaultParams()
	src := NewBuffer(32, 32)
	dst := image.NewRGBA(image.Rect(0, 0, 64, 64))

	in := NewRenderInput()
	in.PointerX, in.PointerY, in.Down = 32.5/64, 32.5/64, true
	Render(src, in, p, dst)

	center := dst.RGBAAt(32, 31)
	corner := dst.RGBAAt(2, 2)
	if sum(center) <= sum(corner) {
		t.Fatalf("pointer ember not drawn: center %v corner %v", center, corner)
	}
	if corner.A != 0xff || sum(corner) == 0 {
		t.Fatalf("background should be opaque and non-black, got %v", corner)
	}

	// Reveal lifts brightness and draws locked rows.
	in.ActiveRows[10] = 20
	quiet := image.NewRGBA(dst.Rect)
	Render(src, in, p, quiet)
	in.Progress = 1
	lit := image.NewRGBA(dst.Rect)
	Render(src, in, p, lit)

	x := 18 // column of band 10
	y := 27 // image row of grid row 20
	if sum(lit.RGBAAt(x, y)) <= sum(quiet.RGBAAt(x, y)) {
		t.Fatalf("reveal line not brighter: %v vs %v", lit.RGBAAt(x, y), quiet.RGBAAt(x, y))
	}
	if sum(lit.RGBAAt(2, 2)) < sum(quiet.RGBAAt(2, 2)) {
		t.Fatalf("reveal should not darken the background")
	}
	if src.TotalIntensity() != 0 {
		t.Fatalf("Render wrote into the field")
	}
}

func TestRenderInkVisible(t *testing.T) {
	p := NewDefaultParams()
	f := NewField(32, 32)
	stepN(f, paintInput(8.5/32, 25.5/32), p, 10)

	dst := image.NewRGBA(image.Rect(0, 0, 32, 32))
	in := NewRenderInput()
	in.PointerX, in.PointerY = 0.9, 0.1
	Render(f.Front(), in, p, dst)

	ink := dst.RGBAAt(8, 6)
	bg := dst.RGBAAt(24, 28)
	if sum(ink) <= sum(bg)+30 {
		t.Fatalf("ink %v not visible against background %v", ink, bg)
	}
}

func luma(c rgb) float64 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

func TestFireBrightensSuperlinearly(t *testing.T) {
	r := &renderer{p: NewDefaultParams(), w: 64, h: 64}
	at := func(intensity, material float64) float64 {
		return luma(r.ink(0.3, 0.4, [4]float64{intensity, material, 0.5, 0.25}))
	}
	water := at(1, 0.1) / at(0.5, 0.1)
	fire := at(1, 0.9) / at(0.5, 0.9)
	if fire <= water*1.2 {
		t.Fatalf("fire ratio %.3f should outgrow water ratio %.3f", fire, water)
	}

	r.p.FireBoost = 0
	if flat := at(1, 0.9) / at(0.5, 0.9); math.Abs(flat-water) > 1e-9 {
		t.Fatalf("without boost fire ratio %.3f, want water ratio %.3f", flat, water)
	}
}

func TestCoreGlowAboveThreshold(t *testing.T) {
	p := NewDefaultParams()
	with := &renderer{p: p, w: 64, h: 64}
	p.GlowWeight = 0
	without := &renderer{p: p, w: 64, h: 64}

	sample := func(intensity float64) [4]float64 { return [4]float64{intensity, 0.5, 0.5, 0.1} }
	if a, b := luma(with.ink(0.5, 0.5, sample(0.5))), luma(without.ink(0.5, 0.5, sample(0.5))); a != b {
		t.Fatalf("glow below its threshold changed luminance: %f vs %f", a, b)
	}
	a, b := luma(with.ink(0.5, 0.5, sample(1))), luma(without.ink(0.5, 0.5, sample(1)))
	if a <= b {
		t.Fatalf("core glow missing at full intensity: %f vs %f", a, b)
	}
}

func TestRevealCurve(t *testing.T) {
	p := NewDefaultParams()
	if p.Reveal(0) != 0 || p.Reveal(p.RevealStart) != 0 {
		t.Fatalf("reveal should be zero before its start")
	}
	if p.Reveal(1) != 1 || p.Reveal(2) != 1 {
		t.Fatalf("reveal should complete at the end of the run")
	}
	prev := 0.0
	for i := 0; i <= 100; i++ {
		r := p.Reveal(float64(i) / 100)
		if r < prev {
			t.Fatalf("reveal not monotonic at %d", i)
		}
		prev = r
	}
}

func sum(c interface{ RGBA() (r, g, b, a uint32) }) int {
	r, g, b, _ := c.RGBA()
	return int(r>>8) + int(g>>8) + int(b>>8)
}
