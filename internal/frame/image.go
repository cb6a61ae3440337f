// Package frame contains the pixel buffers and display metadata played by the
// scheduler.
package frame

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Channels is the number of bytes per pixel (RGB).
const Channels = 3

// RGB is an 8-bit per channel color.
type RGB struct {
	R, G, B uint8
}

// Image is a fixed-size grid of RGB pixels stored row-major.
// It satisfies image.Image so it can be handed to display drawers directly.
type Image struct {
	Rows int
	Cols int
	// Pix is a flat array of RGB values: [r0,g0,b0, r1,g1,b1, ...]
	Pix []byte
}

// NewImage creates a black image.
func NewImage(rows, cols int) *Image {
	return &Image{
		Rows: rows,
		Cols: cols,
		Pix:  make([]byte, rows*cols*Channels),
	}
}

// NewImageWithColor creates an image filled with c.
func NewImageWithColor(rows, cols int, c RGB) *Image {
	img := NewImage(rows, cols)
	img.Fill(c)
	return img
}

// FromImage copies any image.Image into an RGB grid of the same bounds.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)

	img := NewImage(b.Dy(), b.Dx())
	for i := 0; i < img.Rows*img.Cols; i++ {
		img.Pix[i*Channels+0] = rgba.Pix[i*4+0]
		img.Pix[i*Channels+1] = rgba.Pix[i*4+1]
		img.Pix[i*Channels+2] = rgba.Pix[i*4+2]
	}
	return img
}

// Size reports the image dimensions as (rows, cols).
func (m *Image) Size() (int, int) { return m.Rows, m.Cols }

// Valid reports whether the pixel slice matches the declared dimensions.
func (m *Image) Valid() bool {
	return m != nil && m.Rows > 0 && m.Cols > 0 && len(m.Pix) == m.Rows*m.Cols*Channels
}

// HasSize reports whether the image is a valid rows x cols buffer.
func (m *Image) HasSize(rows, cols int) bool {
	return m.Valid() && m.Rows == rows && m.Cols == cols
}

// Set writes one pixel. Out of bounds coordinates are ignored.
func (m *Image) Set(row, col int, c RGB) {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return
	}
	off := (row*m.Cols + col) * Channels
	m.Pix[off] = c.R
	m.Pix[off+1] = c.G
	m.Pix[off+2] = c.B
}

// Pixel returns the color at (row, col); out of bounds reads are black.
func (m *Image) Pixel(row, col int) RGB {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return RGB{}
	}
	off := (row*m.Cols + col) * Channels
	return RGB{R: m.Pix[off], G: m.Pix[off+1], B: m.Pix[off+2]}
}

// Fill sets every pixel to c.
func (m *Image) Fill(c RGB) {
	for i := 0; i+2 < len(m.Pix); i += Channels {
		m.Pix[i] = c.R
		m.Pix[i+1] = c.G
		m.Pix[i+2] = c.B
	}
}

// Clone returns an independent copy.
func (m *Image) Clone() *Image {
	c := &Image{Rows: m.Rows, Cols: m.Cols, Pix: make([]byte, len(m.Pix))}
	copy(c.Pix, m.Pix)
	return c
}

// Equal reports whether both images have the same size and pixels.
func (m *Image) Equal(o *Image) bool {
	n, err := m.Diff(o)
	return err == nil && n == 0
}

// Diff counts the pixels that differ between two images of the same size.
func (m *Image) Diff(o *Image) (int, error) {
	if m == nil || o == nil {
		return 0, fmt.Errorf("diff: nil image")
	}
	if m.Rows != o.Rows || m.Cols != o.Cols || len(m.Pix) != len(o.Pix) {
		return 0, fmt.Errorf("diff: size mismatch %dx%d vs %dx%d", m.Rows, m.Cols, o.Rows, o.Cols)
	}
	n := 0
	for i := 0; i+2 < len(m.Pix); i += Channels {
		if m.Pix[i] != o.Pix[i] || m.Pix[i+1] != o.Pix[i+1] || m.Pix[i+2] != o.Pix[i+2] {
			n++
		}
	}
	return n, nil
}

// Scale returns a copy with every channel multiplied by num/den, rounded and
// clamped to [0,255].
func (m *Image) Scale(num, den int) *Image {
	out := &Image{Rows: m.Rows, Cols: m.Cols, Pix: make([]byte, len(m.Pix))}
	if den <= 0 || num <= 0 {
		return out
	}
	for i, v := range m.Pix {
		s := (int(v)*num + den/2) / den
		if s > 255 {
			s = 255
		}
		out.Pix[i] = uint8(s)
	}
	return out
}

// ColorModel implements image.Image.
func (m *Image) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image; x is the column and y the row.
func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.Cols, m.Rows) }

// At implements image.Image.
func (m *Image) At(x, y int) color.Color {
	p := m.Pixel(y, x)
	return color.RGBA{R: p.R, G: p.G, B: p.B, A: 255}
}
