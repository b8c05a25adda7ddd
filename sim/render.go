package sim

import (
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/cwbudde/algo-soundprint/band"
)

// RenderInput is the per-frame drive of the render pass.
type RenderInput struct {
	Time     float64
	PointerX float64
	PointerY float64
	Down     bool
	// Progress is the run progress in [0,1]; the reveal starts at
	// Params.RevealStart and completes at 1.
	Progress   float64
	ActiveRows [band.Count]int
}

// NewRenderInput returns an input with every band untouched.
func NewRenderInput() RenderInput {
	var in RenderInput
	for i := range in.ActiveRows {
		in.ActiveRows[i] = band.Untouched
	}
	return in
}

type rgb [3]float64

func (c rgb) scale(s float64) rgb { return rgb{c[0] * s, c[1] * s, c[2] * s} }
func (c rgb) add(o rgb) rgb       { return rgb{c[0] + o[0], c[1] + o[1], c[2] + o[2]} }
func (c rgb) mul(o rgb) rgb       { return rgb{c[0] * o[0], c[1] * o[1], c[2] * o[2]} }

var paletteRGB = func() [band.Count]rgb {
	var out [band.Count]rgb
	for i := range out {
		r, g, b := band.Color(i).Float()
		out[i] = rgb{r, g, b}
	}
	return out
}()

func bandColor(x01 float64) rgb {
	i := int(math.Floor(x01 * band.Count))
	return paletteRGB[band.ClampIndex(i, band.Count)]
}

// materialize tints a palette color by its material selector. Fire gains
// brightness superlinearly with intensity.
func materialize(base rgb, y01, intensity float64, p Params) rgb {
	switch {
	case y01 < 0.33:
		t := y01 / 0.33
		return base.mul(rgb{0.35, 0.75, 1.25}).scale(mix(0.20, 0.55, t))
	case y01 < 0.66:
		t := (y01 - 0.33) / 0.33
		g := base[0]*0.299 + base[1]*0.587 + base[2]*0.114
		smoke := rgb{mix(g, base[0], 0.35), mix(g, base[1], 0.35), mix(g, base[2], 0.35)}
		return smoke.scale(mix(0.35, 0.85, t))
	default:
		t := (y01 - 0.66) / 0.34
		boost := 1 + p.FireBoost*math.Pow(clamp(intensity, 0, 1), p.FireExp)
		return base.mul(rgb{1.35, 0.85, 0.25}).scale(mix(0.65, 2.1, t) * boost)
	}
}

// Reveal returns the reveal amount for a run progress.
func (p Params) Reveal(progress float64) float64 {
	return smoothstep(p.RevealStart, 1, clamp(progress, 0, 1))
}

// Render draws src into dst. It only reads src.
func Render(src *Buffer, in RenderInput, p Params, dst *image.RGBA) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	r := &renderer{
		src:    src,
		in:     in,
		p:      p,
		dst:    dst,
		w:      float64(w),
		h:      float64(h),
		reveal: p.Reveal(in.Progress),
		pInk:   materialize(bandColor(in.PointerX), in.PointerY, 1, p),
	}
	r.ax, r.ay = aspectVec(float64(w) / float64(h))
	r.spark = p.SparkIdle
	if in.Down {
		r.spark = p.SparkDown
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, h)
	if workers <= 1 {
		r.rows(0, h)
		return
	}
	var wg sync.WaitGroup
	chunk := (h + workers - 1) / workers
	for y0 := 0; y0 < h; y0 += chunk {
		y1 := min(y0+chunk, h)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			r.rows(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

type renderer struct {
	src    *Buffer
	in     RenderInput
	p      Params
	dst    *image.RGBA
	w, h   float64
	ax, ay float64
	reveal float64
	spark  float64
	pInk   rgb
}

func (r *renderer) rows(y0, y1 int) {
	b := r.dst.Bounds()
	t := r.in.Time
	for py := y0; py < y1; py++ {
		// Image rows run top-down; the field runs bottom-up.
		v := 1 - (float64(py)+0.5)/r.h
		off := r.dst.PixOffset(b.Min.X, b.Min.Y+py)
		for px := 0; px < b.Dx(); px++ {
			u := (float64(px) + 0.5) / r.w

			col := rgb{
				0.010 + 0.018*math.Sin(u*6+t*0.12),
				0.018 + 0.018*math.Sin(v*7+t*0.12),
				0.030 + 0.018*math.Sin((u+v)*4+t*0.12),
			}

			if s := r.src.sampleClamped(u, v); s[0] > 0.001 {
				col = col.add(r.ink(u, v, s))
			}

			if r.reveal > 0 {
				col = col.add(r.revealLine(u, v))
			}

			dp := math.Hypot((u-r.in.PointerX)*r.ax, (v-r.in.PointerY)*r.ay)
			spark := 1 - smoothstep(0, r.p.SparkRadius, dp)
			col = col.add(r.pInk.scale(spark * r.spark))

			col = col.scale(1 + r.reveal*r.p.RevealLift)

			r.dst.Pix[off+0] = toByte(col[0])
			r.dst.Pix[off+1] = toByte(col[1])
			r.dst.Pix[off+2] = toByte(col[2])
			r.dst.Pix[off+3] = 0xff
			off += 4
		}
	}
}

// ink composites body, core glow, powder and shimmer for one field sample.
func (r *renderer) ink(u, v float64, s [4]float64) rgb {
	intensity := s[0]
	ink := materialize(bandColor(s[2]), s[1], intensity, r.p)
	body := smoothstep(0.02, 0.35, intensity)
	glow := smoothstep(r.p.GlowEdge0, 1, intensity) * r.p.GlowWeight

	// Settling ink breaks into powder.
	zone := 1 - smoothstep(0.03, 0.14, intensity)
	grain := hash2(u*r.w*0.65+s[3]*97, v*r.h*0.65+s[3]*97)
	powder := zone * smoothstep(0.35, 0.80, grain)

	shimmer := (0.5 + 0.5*math.Sin(u*90+v*70+r.in.Time*0.7+s[3]*6)) * 0.06 * body

	return ink.scale(0.55*body + 0.35*intensity + glow + powder*0.25 + shimmer)
}

// revealLine draws the locked row of the band column under u.
func (r *renderer) revealLine(u, v float64) rgb {
	bi := band.ClampIndex(int(math.Floor(u*band.Count)), band.Count)
	row := r.in.ActiveRows[bi]
	if row == band.Untouched {
		return rgb{}
	}
	ly := (float64(row) + 0.5) / band.Rows
	line := 1 - smoothstep(0, r.p.RevealLineWidth, math.Abs(v-ly))
	if line <= 0 {
		return rgb{}
	}
	return materialize(paletteRGB[bi], ly, 1, r.p).scale(line * r.reveal * r.p.RevealLine)
}

// toByte tonemaps, gamma-encodes and quantizes one channel.
func toByte(c float64) uint8 {
	if c <= 0 || math.IsNaN(c) {
		return 0
	}
	c = c / (1 + c)
	c = math.Pow(c, 0.4545)
	return uint8(math.Round(clamp(c, 0, 1) * 255))
}

// sampleClamped bilinearly interpolates with clamp-to-edge addressing.
func (b *Buffer) sampleClamped(u, v float64) [4]float64 {
	fx := u*float64(b.W) - 0.5
	fy := v*float64(b.H) - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)
	a := b.texel(x0, y0)
	c := b.texel(x0+1, y0)
	d := b.texel(x0, y0+1)
	e := b.texel(x0+1, y0+1)
	var out [4]float64
	for i := range out {
		out[i] = mix(mix(a[i], c[i], tx), mix(d[i], e[i], tx), ty)
	}
	return out
}

func (b *Buffer) texel(x, y int) [4]float64 {
	x = band.ClampIndex(x, b.W)
	y = band.ClampIndex(y, b.H)
	return vec(b.Pix[y*b.W+x])
}
