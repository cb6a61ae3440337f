// Command matrixcheck fills the panel with one colour and holds it until
// interrupted, to check wiring and power without the daemon.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-arcaluminis/internal/brightness"
	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
	"github.com/coreman2200/funtimes-arcaluminis/internal/layout"
	"github.com/coreman2200/funtimes-arcaluminis/internal/output"
)

func main() {
	var (
		rows       = flag.Int("rows", 32, "panel rows")
		cols       = flag.Int("cols", 64, "panel columns")
		serpentine = flag.Bool("serpentine", false, "odd rows are wired right to left")
		driver     = flag.String("driver", "spi", "driver: spi | console")
		spiPort    = flag.String("spi-port", "", "SPI port, empty for the first one")
		spiHz      = flag.Int("spi-hz", 2500000, "SPI clock in Hz")
		hex        = flag.String("color", "#ff0000", "fill colour")
		level      = flag.Float64("brightness", 1, "brightness 0..1")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	c, err := colorful.Hex(*hex)
	if err != nil {
		log.Fatal().Err(err).Str("color", *hex).Msg("bad colour")
	}
	lvl, err := brightness.Level(*level)
	if err != nil {
		log.Fatal().Err(err).Msg("bad brightness")
	}

	l := layout.Layout{Rows: *rows, Cols: *cols, Serpentine: *serpentine}
	var sink output.Sink
	switch *driver {
	case "spi":
		sink, err = output.NewSPISink(*spiPort, l, physic.Frequency(*spiHz)*physic.Hertz)
	case "console":
		sink = output.NewConsoleSink(l)
	default:
		log.Fatal().Str("driver", *driver).Msg("unknown driver")
	}
	if err != nil {
		log.Fatal().Err(err).Str("driver", *driver).Msg("output init failed")
	}
	defer sink.Close()

	r, g, b := c.RGB255()
	img := frame.NewImageWithColor(*rows, *cols, frame.RGB{R: r, G: g, B: b})
	img = frame.AdjustImage(img, lvl)
	if err := sink.Show(img); err != nil {
		log.Fatal().Err(err).Msg("show failed")
	}
	log.Info().Str("color", c.Hex()).Int("rows", *rows).Int("cols", *cols).Msg("panel filled; press CTRL-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
