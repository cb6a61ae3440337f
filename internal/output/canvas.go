// Package output is the hardware side of the player: a double-buffered canvas
// in front of an LED sink.
package output

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
)

// ErrVisibleBuffer is returned when a caller writes to or swaps in the buffer
// that is already on screen.
var ErrVisibleBuffer = errors.New("buffer is currently visible")

// Canvas is a double-buffered pixel output. Callers draw into an off-screen
// buffer and swap it in; Swap hands back the buffer that just left the screen.
type Canvas interface {
	CreateOffscreen() *Buffer
	Write(buf *Buffer, img *frame.Image) error
	Swap(buf *Buffer) (*Buffer, error)
}

// Sink pushes a full image to the physical (or simulated) panel.
type Sink interface {
	Show(img *frame.Image) error
	Close() error
}

// Buffer is one of the two canvas buffers.
type Buffer struct {
	id  int
	img *frame.Image
}

// Image returns the buffer contents. Callers must not keep it past a Swap.
func (b *Buffer) Image() *frame.Image { return b.img }

// DoubleBuffer implements Canvas over a Sink with two owned buffers.
// It is meant to be driven from a single goroutine.
type DoubleBuffer struct {
	rows, cols int
	sink       Sink
	buffers    [2]Buffer
	front      *Buffer

	swaps atomic.Uint64

	// OnSwap, when set, sees every image right after it becomes visible.
	// The image is only valid for the duration of the call.
	OnSwap func(seq uint64, img *frame.Image)
}

// NewDoubleBuffer allocates two black rows x cols buffers in front of sink.
func NewDoubleBuffer(rows, cols int, sink Sink) *DoubleBuffer {
	d := &DoubleBuffer{rows: rows, cols: cols, sink: sink}
	for i := range d.buffers {
		d.buffers[i] = Buffer{id: i, img: frame.NewImage(rows, cols)}
	}
	d.front = &d.buffers[1]
	return d
}

// Size reports the panel size as (rows, cols).
func (d *DoubleBuffer) Size() (int, int) { return d.rows, d.cols }

// CreateOffscreen returns the buffer that is not on screen.
func (d *DoubleBuffer) CreateOffscreen() *Buffer {
	if d.front == &d.buffers[0] {
		return &d.buffers[1]
	}
	return &d.buffers[0]
}

// Write copies img into buf. buf must be off screen and img must match the
// panel size.
func (d *DoubleBuffer) Write(buf *Buffer, img *frame.Image) error {
	if err := d.check(buf); err != nil {
		return err
	}
	if !img.HasSize(d.rows, d.cols) {
		return fmt.Errorf("write: image %dx%d does not fit %dx%d canvas", img.Rows, img.Cols, d.rows, d.cols)
	}
	copy(buf.img.Pix, img.Pix)
	return nil
}

// Swap shows buf and returns the buffer it replaced.
func (d *DoubleBuffer) Swap(buf *Buffer) (*Buffer, error) {
	if err := d.check(buf); err != nil {
		return nil, err
	}
	if d.sink != nil {
		if err := d.sink.Show(buf.img); err != nil {
			return nil, fmt.Errorf("swap: %w", err)
		}
	}
	prev := d.front
	d.front = buf
	seq := d.swaps.Add(1)
	if d.OnSwap != nil {
		d.OnSwap(seq, buf.img)
	}
	return prev, nil
}

// Swaps counts successful swaps; safe from any goroutine.
func (d *DoubleBuffer) Swaps() uint64 { return d.swaps.Load() }

// Close releases the sink.
func (d *DoubleBuffer) Close() error {
	if d.sink == nil {
		return nil
	}
	return d.sink.Close()
}

func (d *DoubleBuffer) check(buf *Buffer) error {
	if buf == nil || (buf != &d.buffers[0] && buf != &d.buffers[1]) {
		return errors.New("buffer does not belong to this canvas")
	}
	if buf == d.front {
		return ErrVisibleBuffer
	}
	return nil
}
