package output

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
	"github.com/coreman2200/funtimes-arcaluminis/internal/layout"
)

type recordingDrawer struct {
	n      int
	last   *image.NRGBA
	halted bool
}

func (r *recordingDrawer) String() string          { return "recorder" }
func (r *recordingDrawer) Halt() error             { r.halted = true; return nil }
func (r *recordingDrawer) ColorModel() color.Model { return color.NRGBAModel }
func (r *recordingDrawer) Bounds() image.Rectangle { return image.Rect(0, 0, r.n, 1) }
func (r *recordingDrawer) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	r.last = image.NewNRGBA(r.Bounds())
	draw.Draw(r.last, dst, src, sp, draw.Src)
	return nil
}

func TestDrawerSinkSerpentine(t *testing.T) {
	l := layout.Layout{Rows: 2, Cols: 3, Serpentine: true}
	rec := &recordingDrawer{n: l.Count()}
	s := NewDrawerSink(rec, l)

	img := frame.NewImage(2, 3)
	img.Set(1, 0, frame.RGB{R: 9, G: 8, B: 7})
	require.NoError(t, s.Show(img))

	got := rec.last.NRGBAAt(5, 0)
	assert.Equal(t, color.NRGBA{R: 9, G: 8, B: 7, A: 0xFF}, got, "row 1 col 0 lands at the end of the strip")
	assert.Equal(t, color.NRGBA{A: 0xFF}, rec.last.NRGBAAt(3, 0))

	require.NoError(t, s.Close())
	assert.True(t, rec.halted)
}

func TestDrawerSinkRejectsWrongSize(t *testing.T) {
	l := layout.Layout{Rows: 2, Cols: 2}
	s := NewDrawerSink(&recordingDrawer{n: 4}, l)
	assert.Error(t, s.Show(frame.NewImage(1, 4)))
}

func TestStripWritesToSPI(t *testing.T) {
	buf := bytes.Buffer{}
	l := layout.Layout{Rows: 2, Cols: 2}
	s, err := NewStrip(spitest.NewRecordRaw(&buf), l, 2500*physic.KiloHertz)
	require.NoError(t, err)
	halted := buf.Len()
	assert.NotZero(t, halted)

	require.NoError(t, s.Show(frame.NewImageWithColor(2, 2, frame.RGB{R: 0xFF, G: 0xFF, B: 0xFF})))
	assert.Greater(t, buf.Len(), halted)

	black := append([]byte(nil), buf.Bytes()[:halted]...)
	white := append([]byte(nil), buf.Bytes()[halted:]...)
	assert.NotEqual(t, black, white)
}
