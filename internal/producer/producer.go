// Package producer decides what the panel should show: it follows the day
// schedule, renders applets, and publishes the resulting scenes.
package producer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-arcaluminis/internal/config"
	"github.com/coreman2200/funtimes-arcaluminis/internal/pixlet"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scene"
	"github.com/coreman2200/funtimes-arcaluminis/internal/schedule"
	"github.com/coreman2200/funtimes-arcaluminis/internal/storage"
)

// RetryInterval is how soon an applet that has never rendered successfully
// is tried again.
const RetryInterval = 30 * time.Second

type Renderer interface {
	Render(ctx context.Context, a config.Applet) (pixlet.Artifact, error)
}

type Publisher interface {
	Publish(s scene.Scene)
}

// FractionSetter receives scheduled brightness; see brightness.Register.
type FractionSetter interface {
	SetFraction(f float64) error
}

// Options wires a Runner. Table, Renderer and Scenes are required.
type Options struct {
	Table    *schedule.Table
	Renderer Renderer
	Scenes   Publisher
	// Brightness is set only when brightness follows the schedule.
	Brightness FractionSetter
	Store      storage.Store
	// Load turns a rendered GIF into a scene; defaults to pixlet.LoadScene.
	Load func(path, name string) (scene.Scene, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner is the producer loop. Step is not safe for concurrent use.
type Runner struct {
	opts Options
	gate Gate

	started    bool
	cur        schedule.Slot
	next       int
	hasNext    bool
	lastRender time.Time
	failedAt   time.Time // last failed attempt since lastRender, if any
}

func New(opts Options) (*Runner, error) {
	if opts.Table == nil || opts.Renderer == nil || opts.Scenes == nil {
		return nil, errors.New("producer: table, renderer and scenes are required")
	}
	if opts.Load == nil {
		opts.Load = pixlet.LoadScene
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}, nil
}

// Current returns the active slot, once the first Step has run.
func (r *Runner) Current() (schedule.Slot, bool) { return r.cur, r.started }

// Run steps until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		now := r.opts.Now()
		wake := r.Step(ctx, now)
		timer.Reset(max(wake.Sub(now), 0))
	}
}

// Step runs one producer cycle at now and returns when the next one is due.
// The slot active at now is rendered when it starts; dynamic applets are
// re-rendered whenever their refresh interval has passed.
func (r *Runner) Step(ctx context.Context, now time.Time) time.Time {
	day := schedule.DaySeconds(now)
	switch {
	case !r.started || schedule.ShouldUpdate(r.cur.Start, r.next, r.hasNext, day):
		r.cur, r.next, r.hasNext = r.opts.Table.Current(day)
		r.started = true
		log.Info().Str("applet", r.cur.Applet.Name).Float64("brightness", r.cur.Brightness).Msg("displaying applet")
		if r.opts.Brightness != nil {
			if err := r.opts.Brightness.SetFraction(r.cur.Brightness); err != nil {
				log.Warn().Err(err).Msg("scheduled brightness rejected")
			}
		}
		r.lastRender = r.render(ctx, now, time.Time{})
	case r.cur.Applet.Dynamic || r.lastRender.IsZero():
		r.lastRender = r.render(ctx, now, r.lastRender)
	}
	return now.Add(r.sleep(now, day))
}

func (r *Runner) refreshInterval() time.Duration {
	return time.Duration(r.cur.Applet.RefreshIntervalMs) * time.Millisecond
}

// render renders the current applet unless last is recent enough, and
// returns the new last-render time. Failures keep last so the next cycle
// retries.
func (r *Runner) render(ctx context.Context, now, last time.Time) time.Time {
	if !last.IsZero() && now.Before(last.Add(r.refreshInterval())) {
		return last
	}
	a := r.cur.Applet
	rec := &storage.Render{Applet: a.Name, RenderedAt: now}
	defer r.record(ctx, rec)

	start := time.Now()
	art, err := r.opts.Renderer.Render(ctx, a)
	rec.Took = time.Since(start)
	if err != nil {
		rec.Error = err.Error()
		log.Error().Err(err).Str("applet", a.Name).Msg("error creating gif")
		r.failedAt = now
		return last
	}
	rec.OK, rec.Hash = true, art.Hash
	r.failedAt = time.Time{}

	if !r.gate.ShouldSubmit(art.Hash, r.cur.Brightness) {
		log.Debug().Str("applet", a.Name).Str("hash", art.Hash).Msg("scene unchanged, not submitting")
		return now
	}
	sc, err := r.opts.Load(art.Path, a.Name)
	if err != nil {
		r.gate.Reset()
		rec.OK, rec.Error = false, err.Error()
		log.Error().Err(err).Str("applet", a.Name).Str("path", art.Path).Msg("error loading gif")
		r.failedAt = now
		return last
	}
	r.opts.Scenes.Publish(sc)
	rec.Submitted = true
	log.Debug().Str("applet", a.Name).Str("scene", sc.ID.String()).Int("frames", len(sc.Frames)).Msg("scene submitted")
	return now
}

func (r *Runner) record(ctx context.Context, rec *storage.Render) {
	if r.opts.Store == nil {
		return
	}
	if err := r.opts.Store.RecordRender(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("failed to record render")
	}
}

// sleep is the time until the next slot change, dynamic refresh or retry,
// whichever comes first, and never more than schedule.MaxSleep. A failed
// render is never retried sooner than RetryInterval.
func (r *Runner) sleep(now time.Time, day int) time.Duration {
	d := schedule.UntilNext(day, r.next, r.hasNext)
	if r.lastRender.IsZero() {
		d = min(d, RetryInterval)
	} else if r.cur.Applet.Dynamic {
		due := r.lastRender.Add(r.refreshInterval())
		if !r.failedAt.IsZero() {
			// overdue after a failure: retry at most every RetryInterval
			due = later(due, r.failedAt.Add(RetryInterval))
		}
		d = min(d, due.Sub(now))
	}
	return max(d, 0)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
