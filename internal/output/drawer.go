package output

import (
	"fmt"
	"image"
	"image/color"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
	"github.com/coreman2200/funtimes-arcaluminis/internal/layout"
)

// DefaultSPIFreq is the nrzled bit clock used when none is configured.
const DefaultSPIFreq = 2500 * physic.KiloHertz

// DrawerSink maps panel images onto a one-row periph display.Drawer, which is
// how both nrzled strips and the periph console screen look.
type DrawerSink struct {
	drawer display.Drawer
	layout layout.Layout
	strip  *image.NRGBA
	closer func() error

	// Limit, when set, caps the current each image draws.
	Limit *Limiter
}

// NewDrawerSink draws rows x cols images onto d through l.
func NewDrawerSink(d display.Drawer, l layout.Layout) *DrawerSink {
	return &DrawerSink{
		drawer: d,
		layout: l,
		strip:  image.NewNRGBA(image.Rect(0, 0, l.Count(), 1)),
	}
}

func (s *DrawerSink) Show(img *frame.Image) error {
	if !img.HasSize(s.layout.Rows, s.layout.Cols) {
		return fmt.Errorf("drawer: image %dx%d does not fit %dx%d layout", img.Rows, img.Cols, s.layout.Rows, s.layout.Cols)
	}
	if s.Limit != nil {
		img = s.Limit.Apply(img)
	}
	for row := 0; row < img.Rows; row++ {
		for col := 0; col < img.Cols; col++ {
			p := img.Pixel(row, col)
			s.strip.SetNRGBA(s.layout.Index(row, col), 0, color.NRGBA{R: p.R, G: p.G, B: p.B, A: 0xFF})
		}
	}
	return s.drawer.Draw(s.drawer.Bounds(), s.strip, image.Point{})
}

// Close blanks the LEDs and releases the underlying port, if any.
func (s *DrawerSink) Close() error {
	err := s.drawer.Halt()
	if s.closer != nil {
		if cerr := s.closer(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *DrawerSink) String() string { return s.drawer.String() }

// NewSPISink opens a WS281x strip on the SPI port (empty for the first one).
func NewSPISink(port string, l layout.Layout, freq physic.Frequency) (*DrawerSink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", port, err)
	}
	d, err := NewStrip(p, l, freq)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	d.closer = p.Close
	log.Info().Str("port", p.String()).Int("pixels", l.Count()).Str("freq", freq.String()).Msg("spi sink ready")
	return d, nil
}

// NewStrip builds an nrzled sink on an already opened port.
func NewStrip(p spi.Port, l layout.Layout, freq physic.Frequency) (*DrawerSink, error) {
	if freq == 0 {
		freq = DefaultSPIFreq
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: l.Count(),
		Channels:  frame.Channels,
		Freq:      freq,
	})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	if err := d.Halt(); err != nil {
		return nil, fmt.Errorf("nrzled halt: %w", err)
	}
	return NewDrawerSink(d, l), nil
}

// NewConsoleSink prints the strip to the terminal with ANSI colours.
func NewConsoleSink(l layout.Layout) *DrawerSink {
	return NewDrawerSink(screen.New(l.Count()), l)
}
