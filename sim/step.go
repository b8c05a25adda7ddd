package sim

import (
	"math"
	"runtime"
	"sync"
)

// Input is the per-frame drive of the field.
type Input struct {
	Time     float64 // seconds since the run started
	Aspect   float64 // viewport width / height
	PointerX float64 // unit square, y up
	PointerY float64
	VelX     float64 // pointer motion since the previous frame
	VelY     float64
	Down     bool
	Active   bool // injection only happens while the performance runs
}

// injecting reports whether this frame paints into the field.
func (in Input) injecting() bool {
	return in.Down && in.Active
}

// Step computes next from prev. prev is only read; next is fully
// overwritten and resized to match prev when needed.
func Step(prev *Buffer, in Input, p Params, next *Buffer) {
	if len(next.Pix) != len(prev.Pix) {
		next.Pix = make([]Texel, len(prev.Pix))
	}
	next.W, next.H = prev.W, prev.H

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > prev.H {
		workers = prev.H
	}

	k := newKernel(prev, in, p)
	if workers <= 1 {
		k.rows(next, 0, prev.H)
		return
	}

	var wg sync.WaitGroup
	chunk := (prev.H + workers - 1) / workers
	for y0 := 0; y0 < prev.H; y0 += chunk {
		y1 := min(y0+chunk, prev.H)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			k.rows(next, y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

// kernel holds the per-frame constants of one Step.
type kernel struct {
	prev   *Buffer
	in     Input
	p      Params
	ax, ay float64
	w, h   float64

	inject         bool
	centerX        float64
	centerY        float64
	neighborWeight float64
}

func newKernel(prev *Buffer, in Input, p Params) *kernel {
	k := &kernel{
		prev:           prev,
		in:             in,
		p:              p,
		w:              float64(prev.W),
		h:              float64(prev.H),
		inject:         in.injecting(),
		centerX:        in.PointerX,
		centerY:        in.PointerY,
		neighborWeight: (1 - p.BlurCenter) / 4,
	}
	k.ax, k.ay = aspectVec(in.Aspect)
	if k.inject {
		speed := math.Hypot(in.VelX, in.VelY)
		if speed > p.FuseMinSpeed {
			// Energy lands behind the direction of travel.
			k.centerX -= in.VelX / speed * p.FuseOffset
			k.centerY -= in.VelY / speed * p.FuseOffset
		}
	}
	return k
}

func (k *kernel) rows(next *Buffer, y0, y1 int) {
	p := k.p
	drift := k.in.Time * p.TimeScale
	for y := y0; y < y1; y++ {
		v := (float64(y) + 0.5) / k.h
		act := mix(p.ActivityLow, p.ActivityHigh, smoothstep(p.ActivityEdge0, p.ActivityEdge1, v))
		strength := p.AdvectStrength * act
		row := next.Pix[y*next.W : (y+1)*next.W]

		for x := range row {
			u := (float64(x) + 0.5) / k.w

			vx, vy := curl(u*p.NoiseScale+drift, v*p.NoiseScale+drift, p.CurlEpsilon)
			vy += p.Drift * act
			src := k.sample(u-vx*strength/k.ax, v-vy*strength/k.ay)

			// Diffuse: blend toward a 5-tap average.
			l, r := k.fetch(x-1, y), k.fetch(x+1, y)
			d, t := k.fetch(x, y-1), k.fetch(x, y+1)
			st := blend(src, l, r, d, t, p.BlurCenter, k.neighborWeight, p.BlurAmount)

			// Decay: dense ink lingers, faint ink fades.
			i := st[0]
			i *= mix(p.DecayFaint, p.DecayDense, smoothstep(p.DecayEdge0, p.DecayEdge1, i))
			if i < p.Epsilon {
				i = 0
			}
			st[0] = i

			if k.inject {
				k.paint(&st, u, v)
			}

			row[x] = Texel{
				Intensity: float32(clamp(st[0], 0, 1)),
				MaterialY: float32(clamp(st[1], 0, 1)),
				ColorX:    float32(clamp(st[2], 0, 1)),
				Seed:      float32(clamp(st[3], 0, 1)),
			}
		}
	}
}

func (k *kernel) paint(st *[4]float64, u, v float64) {
	p := k.p
	dist := math.Hypot((u-k.centerX)*k.ax, (v-k.centerY)*k.ay)
	core := 1 - smoothstep(0, p.CoreRadius, dist)
	aura := 1 - smoothstep(p.CoreRadius, p.AuraRadius, dist)
	add := core*p.CoreWeight + aura*p.AuraWeight
	if add <= p.InjectMin {
		return
	}
	st[0] = math.Min(1, st[0]+add)
	st[1] = mix(st[1], k.in.PointerY, p.MaterialRate)
	st[2] = mix(st[2], k.in.PointerX, p.ColorRate)
	st[3] = mix(st[3], hash2(u*k.w+k.in.Time, v*k.h+k.in.Time), p.SeedRate)
}

func blend(c0, l, r, d, t [4]float64, center, neighbor, amount float64) [4]float64 {
	var out [4]float64
	for c := range out {
		b := c0[c]*center + (l[c]+r[c]+d[c]+t[c])*neighbor
		out[c] = mix(c0[c], b, amount)
	}
	return out
}

// fetch reads a texel with clamp-to-edge addressing.
func (k *kernel) fetch(x, y int) [4]float64 {
	b := k.prev
	if x < 0 {
		x = 0
	} else if x >= b.W {
		x = b.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= b.H {
		y = b.H - 1
	}
	return vec(b.Pix[y*b.W+x])
}

// sample bilinearly interpolates prev at (u, v). Taps outside the grid read
// as empty, so ink carried past an edge leaves the field.
func (k *kernel) sample(u, v float64) [4]float64 {
	fx := u*k.w - 0.5
	fy := v*k.h - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	a := k.tap(x0, y0)
	b := k.tap(x0+1, y0)
	c := k.tap(x0, y0+1)
	d := k.tap(x0+1, y0+1)
	var out [4]float64
	for i := range out {
		out[i] = mix(mix(a[i], b[i], tx), mix(c[i], d[i], tx), ty)
	}
	return out
}

func (k *kernel) tap(x, y int) [4]float64 {
	b := k.prev
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return [4]float64{}
	}
	return vec(b.Pix[y*b.W+x])
}

func vec(t Texel) [4]float64 {
	return [4]float64{float64(t.Intensity), float64(t.MaterialY), float64(t.ColorX), float64(t.Seed)}
}
