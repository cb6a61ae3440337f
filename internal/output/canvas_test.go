package output

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
)

var red = frame.RGB{R: 255}

func TestOffscreenIsNeverFront(t *testing.T) {
	d := NewDoubleBuffer(2, 3, NewMemorySink(0))
	buf := d.CreateOffscreen()
	require.NoError(t, d.Write(buf, frame.NewImageWithColor(2, 3, red)))

	prev, err := d.Swap(buf)
	require.NoError(t, err)
	assert.NotSame(t, buf, prev)
	assert.Same(t, prev, d.CreateOffscreen())
}

func TestSwapShowsWrittenImage(t *testing.T) {
	sink := NewMemorySink(0)
	d := NewDoubleBuffer(2, 3, sink)
	img := frame.NewImageWithColor(2, 3, red)

	buf := d.CreateOffscreen()
	require.NoError(t, d.Write(buf, img))
	_, err := d.Swap(buf)
	require.NoError(t, err)

	assert.Equal(t, 1, sink.Count())
	assert.True(t, img.Equal(sink.Last()))
	assert.EqualValues(t, 1, d.Swaps())
}

func TestWriteCopiesPixels(t *testing.T) {
	d := NewDoubleBuffer(1, 1, nil)
	img := frame.NewImageWithColor(1, 1, red)
	buf := d.CreateOffscreen()
	require.NoError(t, d.Write(buf, img))

	img.Fill(frame.RGB{})
	assert.Equal(t, red, buf.Image().Pixel(0, 0))
}

func TestWriteToVisibleBufferFails(t *testing.T) {
	d := NewDoubleBuffer(1, 1, nil)
	buf := d.CreateOffscreen()
	_, err := d.Swap(buf)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Write(buf, frame.NewImage(1, 1)), ErrVisibleBuffer)
	_, err = d.Swap(buf)
	assert.ErrorIs(t, err, ErrVisibleBuffer)
}

func TestWriteWrongSizeFails(t *testing.T) {
	d := NewDoubleBuffer(2, 2, nil)
	assert.Error(t, d.Write(d.CreateOffscreen(), frame.NewImage(2, 3)))
}

func TestForeignBufferRejected(t *testing.T) {
	a := NewDoubleBuffer(1, 1, nil)
	b := NewDoubleBuffer(1, 1, nil)
	assert.Error(t, a.Write(b.CreateOffscreen(), frame.NewImage(1, 1)))
}

func TestSinkErrorKeepsFront(t *testing.T) {
	sink := NewMemorySink(0)
	sink.Err = errors.New("bus fault")
	d := NewDoubleBuffer(1, 1, sink)
	buf := d.CreateOffscreen()

	_, err := d.Swap(buf)
	require.Error(t, err)
	assert.Same(t, buf, d.CreateOffscreen(), "failed swap must not change the visible buffer")
	assert.EqualValues(t, 0, d.Swaps())
}

func TestOnSwapObserver(t *testing.T) {
	d := NewDoubleBuffer(1, 2, nil)
	var seqs []uint64
	var last frame.RGB
	d.OnSwap = func(seq uint64, img *frame.Image) {
		seqs = append(seqs, seq)
		last = img.Pixel(0, 1)
	}

	buf := d.CreateOffscreen()
	require.NoError(t, d.Write(buf, frame.NewImageWithColor(1, 2, red)))
	buf, err := d.Swap(buf)
	require.NoError(t, err)
	_, err = d.Swap(buf)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2}, seqs)
	assert.Equal(t, frame.RGB{}, last)
}

func TestMemorySinkKeepsTail(t *testing.T) {
	m := NewMemorySink(2)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Show(frame.NewImageWithColor(1, 1, frame.RGB{R: uint8(i)})))
	}
	assert.Equal(t, 5, m.Count())
	shown := m.Shown()
	require.Len(t, shown, 2)
	assert.Equal(t, uint8(3), shown[0].Pixel(0, 0).R)
	assert.Equal(t, uint8(4), m.Last().Pixel(0, 0).R)
}
