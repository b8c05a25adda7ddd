// Package sim runs the ink/fire/smoke feedback field that the performance
// paints into, and renders it to an image.
package sim

// Texel is one cell of simulation state; every channel lies in [0,1].
type Texel struct {
	Intensity float32
	MaterialY float32 // water → smoke → fire selector
	ColorX    float32 // palette position
	Seed      float32 // grain seed for the powder speckle
}

// Buffer is a W×H grid of texels. Row 0 is the bottom edge.
type Buffer struct {
	W, H int
	Pix  []Texel
}

// NewBuffer allocates a cleared buffer.
func NewBuffer(w, h int) *Buffer {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return &Buffer{W: w, H: h, Pix: make([]Texel, w*h)}
}

// At returns the texel at (x, y).
func (b *Buffer) At(x, y int) Texel {
	return b.Pix[y*b.W+x]
}

// Clear zeroes every texel.
func (b *Buffer) Clear() {
	clear(b.Pix)
}

// TotalIntensity sums the intensity channel.
func (b *Buffer) TotalIntensity() float64 {
	var sum float64
	for i := range b.Pix {
		sum += float64(b.Pix[i].Intensity)
	}
	return sum
}

// MaxIntensity returns the brightest texel intensity.
func (b *Buffer) MaxIntensity() float32 {
	var m float32
	for i := range b.Pix {
		if b.Pix[i].Intensity > m {
			m = b.Pix[i].Intensity
		}
	}
	return m
}

// Field owns the ping-pong pair. Step reads Front and writes Back; Swap
// exchanges them. The two buffers never alias.
type Field struct {
	front *Buffer
	back  *Buffer
}

// NewField allocates both buffers cleared.
func NewField(w, h int) *Field {
	return &Field{front: NewBuffer(w, h), back: NewBuffer(w, h)}
}

// Front is the most recently written state.
func (f *Field) Front() *Buffer { return f.front }

// Back is the buffer the next step writes.
func (f *Field) Back() *Buffer { return f.back }

// Swap makes the just-written back buffer the front.
func (f *Field) Swap() {
	f.front, f.back = f.back, f.front
}

// Size returns the grid dimensions.
func (f *Field) Size() (w, h int) {
	return f.front.W, f.front.H
}

// Resize recreates both buffers cleared. A no-op when the size is unchanged.
func (f *Field) Resize(w, h int) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if w == f.front.W && h == f.front.H {
		return
	}
	f.front = NewBuffer(w, h)
	f.back = NewBuffer(w, h)
}

// Reset clears both buffers.
func (f *Field) Reset() {
	f.front.Clear()
	f.back.Clear()
}
