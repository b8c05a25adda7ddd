package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync/atomic"
	"time"
)

// EncodeStill encodes the sound print image as PNG.
func EncodeStill(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("capture: nil still image")
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("capture: encode still: %w", err)
	}
	return buf.Bytes(), nil
}

// FrameQueue is a bounded VideoSource. Offer never blocks; frames that do
// not fit are dropped and counted.
type FrameQueue struct {
	ch      chan Frame
	dropped atomic.Int64
}

// NewFrameQueue returns a queue holding up to depth frames.
func NewFrameQueue(depth int) *FrameQueue {
	if depth < 1 {
		depth = 1
	}
	return &FrameQueue{ch: make(chan Frame, depth)}
}

// Frames implements VideoSource.
func (q *FrameQueue) Frames() <-chan Frame {
	return q.ch
}

// Offer copies img and queues it at media time at.
func (q *FrameQueue) Offer(img *image.RGBA, at time.Duration) bool {
	if img == nil {
		return false
	}
	cp := &image.RGBA{
		Pix:    append([]byte(nil), img.Pix...),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	select {
	case q.ch <- Frame{Image: cp, At: at}:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of frames rejected by Offer.
func (q *FrameQueue) Dropped() int64 {
	return q.dropped.Load()
}
