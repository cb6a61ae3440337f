package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-arcaluminis/internal/api"
	"github.com/coreman2200/funtimes-arcaluminis/internal/brightness"
	"github.com/coreman2200/funtimes-arcaluminis/internal/config"
	"github.com/coreman2200/funtimes-arcaluminis/internal/layout"
	"github.com/coreman2200/funtimes-arcaluminis/internal/output"
	"github.com/coreman2200/funtimes-arcaluminis/internal/pixlet"
	"github.com/coreman2200/funtimes-arcaluminis/internal/producer"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scene"
	"github.com/coreman2200/funtimes-arcaluminis/internal/schedule"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scheduler"
	"github.com/coreman2200/funtimes-arcaluminis/internal/storage"
	"github.com/coreman2200/funtimes-arcaluminis/internal/storage/sqlite"
)

func main() {
	// ---- Flags (config.yaml overrides where set) ----
	var (
		rows       = flag.Int("rows", 32, "panel rows")
		cols       = flag.Int("cols", 64, "panel columns")
		serpentine = flag.Bool("serpentine", false, "odd rows are wired right to left")
		driver     = flag.String("driver", "sim", "driver: spi | console | sim")
		spiPort    = flag.String("spi-port", "", "SPI port, empty for the first one")
		spiHz      = flag.Int("spi-hz", 2500000, "SPI clock in Hz")
		addr       = flag.String("addr", ":8000", "HTTP listen address")
		dbPath     = flag.String("db", "matrixd.db", "sqlite database path")
		pixletBin  = flag.String("pixlet", pixlet.DefaultBinary, "pixlet binary")
		outDir     = flag.String("out-dir", filepath.Join(os.TempDir(), "matrixd"), "directory for rendered GIFs")
		logLevel   = flag.String("log-level", "info", "log level: debug | info | warn | error")
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config (required: it holds the applet schedule) ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("invalid config")
	}
	if lvl, err := zerolog.ParseLevel(firstNonEmpty(cfg.LogLevel, *logLevel)); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Err(err).Msg("unknown log level; keeping info")
	}

	eRows := firstNonZero(cfg.Display.Rows, *rows)
	eCols := firstNonZero(cfg.Display.Cols, *cols)
	l := layout.Layout{Rows: eRows, Cols: eCols, Serpentine: cfg.Display.Serpentine || *serpentine}

	// ---- Store ----
	store, err := sqlite.NewFileStore(firstNonEmpty(cfg.Database, *dbPath))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()

	// ---- Output driver: config.driver, then -driver ----
	selected := firstNonEmpty(cfg.Driver, *driver)
	var sink output.Sink
	switch selected {
	case "sim":
		sink = output.NewMemorySink(1)

	case "spi":
		port := firstNonEmpty(cfg.SPI.Port, *spiPort)
		hz := firstNonZero(cfg.SPI.SpeedHz, *spiHz)
		s, err := output.NewSPISink(port, l, physic.Frequency(hz)*physic.Hertz)
		if err != nil {
			log.Warn().Err(err).
				Str("driver", "spi").
				Str("port", port).
				Int("speed_hz", hz).
				Msg("SPI init failed; falling back to SIM")
			sink, selected = output.NewMemorySink(1), "sim"
		} else {
			if cfg.SPI.BudgetMA > 0 || cfg.SPI.WhiteCap > 0 {
				s.Limit = output.NewLimiter(cfg.SPI.BudgetMA, cfg.SPI.WhiteCap)
			}
			sink = s
		}

	case "console":
		sink = output.NewConsoleSink(l)

	default:
		log.Warn().Str("driver", selected).Msg("unknown driver; using SIM")
		sink, selected = output.NewMemorySink(1), "sim"
	}
	canvas := output.NewDoubleBuffer(eRows, eCols, sink)
	hub := api.NewHub(eRows, eCols, selected)
	canvas.OnSwap = hub.Observe

	// ---- Brightness ----
	scenes := scene.NewChannel()
	reg := brightness.NewRegister()
	reg.OnChange(scenes.Wake)
	brightnessAPI := cfg.Brightness.Source == config.SourceAPI
	if brightnessAPI {
		restoreBrightness(store, reg)
	}

	// ---- Scheduler ----
	sched, err := scheduler.New(scheduler.Options{
		Canvas:     canvas,
		Brightness: reg,
		Scenes:     scenes,
		Rows:       eRows,
		Cols:       eCols,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler init failed")
	}

	// ---- Producer ----
	table, err := schedule.Build(cfg.Applets, cfg.Brightness)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid schedule")
	}
	renderer, err := pixlet.New(firstNonEmpty(cfg.Pixlet.Binary, *pixletBin), firstNonEmpty(cfg.Pixlet.OutputDir, *outDir))
	if err != nil {
		log.Fatal().Err(err).Msg("pixlet unavailable")
	}
	popts := producer.Options{
		Table:    table,
		Renderer: renderer,
		Scenes:   scenes,
		Store:    store,
	}
	if !brightnessAPI {
		popts.Brightness = reg
	}
	runner, err := producer.New(popts)
	if err != nil {
		log.Fatal().Err(err).Msg("producer init failed")
	}

	// ---- HTTP ----
	srv := &http.Server{
		Addr: firstNonEmpty(cfg.HTTP.Addr, *addr),
		Handler: api.NewServer(api.Options{
			Brightness:     reg,
			Hub:            hub,
			Store:          store,
			SchedulerStats: sched.Stats,
			SceneStats:     scenes.Stats,
			BrightnessAPI:  brightnessAPI,
		}).Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ---- Run ----
	ctx, cancel := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go hub.Run(ctx)
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("scheduler stopped")
		}
	}()
	go func() {
		_ = runner.Run(ctx)
	}()
	go func() {
		log.Info().Str("addr", srv.Addr).Str("driver", selected).Int("rows", eRows).Int("cols", eCols).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("shutting down")

	cancel()
	scenes.Wake()
	_ = srv.Close()
	select {
	case <-schedDone:
	case <-time.After(2 * time.Second):
		log.Warn().Msg("scheduler did not stop in time")
	}
	if err := canvas.Close(); err != nil {
		log.Warn().Err(err).Msg("close output")
	}
	if err := renderer.Close(); err != nil {
		log.Warn().Err(err).Msg("remove rendered gifs")
	}
}

func restoreBrightness(store storage.Store, reg *brightness.Register) {
	v, err := store.LoadBrightness(context.Background())
	switch {
	case storage.IsNotFound(err):
		return
	case err != nil:
		log.Warn().Err(err).Msg("could not restore brightness")
		return
	}
	if err := reg.SetFraction(v); err != nil {
		log.Warn().Err(err).Msg("stored brightness rejected")
		return
	}
	log.Info().Float64("brightness", v).Msg("restored brightness")
}

func firstNonZero(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
