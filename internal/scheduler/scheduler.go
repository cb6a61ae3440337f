// Package scheduler runs the display loop: it keeps a queue of frames, shows
// the head on a double-buffered canvas at the current brightness, and splices
// in scenes from the producer as they arrive.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
	"github.com/coreman2200/funtimes-arcaluminis/internal/output"
	"github.com/coreman2200/funtimes-arcaluminis/internal/scene"
)

// MinWait is the shortest scene wait of a tick, so an overdue frame never
// turns the loop into a busy spin.
const MinWait = time.Millisecond

var (
	white = frame.RGB{R: 0xFF, G: 0xFF, B: 0xFF}
	black = frame.RGB{}
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SceneSource is the consumer end of the scene channel.
type SceneSource interface {
	Receive(timeout time.Duration) (scene.Scene, bool)
}

// Levels exposes the target brightness; see brightness.Register.
type Levels interface {
	Load() int
}

// Options wires a Scheduler. Canvas, Brightness and Scenes are required.
type Options struct {
	Canvas     output.Canvas
	Brightness Levels
	Scenes     SceneSource
	Clock      Clock

	Rows int
	Cols int
}

// Scheduler owns the frame queue and everything in it. Tick and Run must be
// called from a single goroutine; Stats is safe from anywhere.
type Scheduler struct {
	canvas    output.Canvas
	offscreen *output.Buffer
	levels    Levels
	scenes    SceneSource
	clock     Clock
	rows      int
	cols      int

	queue queue
	stats counters
}

type counters struct {
	ticks      atomic.Uint64
	advances   atomic.Uint64
	redraws    atomic.Uint64
	recomputes atomic.Uint64
	accepted   atomic.Uint64
	discarded  atomic.Uint64
	dropped    atomic.Uint64
	queueLen   atomic.Int64
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Ticks uint64 `json:"ticks"`
	// Advances counts frames that became head and were pushed to the canvas.
	Advances uint64 `json:"advances"`
	// Redraws counts brightness-only redraws of the current head.
	Redraws uint64 `json:"brightness_redraws"`
	// Recomputes counts adjusted images actually rebuilt.
	Recomputes     uint64 `json:"brightness_recomputes"`
	ScenesAccepted uint64 `json:"scenes_accepted"`
	// ScenesDiscarded counts scenes with no frame of the display size.
	ScenesDiscarded uint64 `json:"scenes_discarded"`
	FramesDropped   uint64 `json:"frames_dropped"`
	QueueLen        int    `json:"queue_len"`
}

// New builds a scheduler and seeds its queue so the first tick shows black.
func New(opts Options) (*Scheduler, error) {
	if opts.Canvas == nil || opts.Brightness == nil || opts.Scenes == nil {
		return nil, errors.New("scheduler: canvas, brightness and scenes are required")
	}
	if opts.Rows <= 0 || opts.Cols <= 0 {
		return nil, fmt.Errorf("scheduler: invalid display size %dx%d", opts.Rows, opts.Cols)
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	s := &Scheduler{
		canvas: opts.Canvas,
		levels: opts.Brightness,
		scenes: opts.Scenes,
		clock:  clock,
		rows:   opts.Rows,
		cols:   opts.Cols,
	}
	s.offscreen = s.canvas.CreateOffscreen()
	s.seed(clock.Now())
	return s, nil
}

// seed queues an already expired white frame followed by a black one that
// was never drawn, so the very first tick puts a known blank on the panel.
func (s *Scheduler) seed(now time.Time) {
	w := frame.NewFrame(frame.NewImageWithColor(s.rows, s.cols, white), frame.DefaultDuration, false, 0)
	w.DrawnAt = now.Add(-2 * frame.DefaultDuration)
	b := frame.NewFrame(frame.NewImageWithColor(s.rows, s.cols, black), frame.DefaultDuration, false, 0)

	s.queue.Clear()
	s.queue.PushTail(w)
	s.queue.PushTail(b)
	s.stats.queueLen.Store(int64(s.queue.Len()))
}

// Run ticks until ctx is done or the canvas fails. Cancellation is checked
// between ticks only; a hardware error is returned as is.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Int("rows", s.rows).Int("cols", s.cols).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("ticks", s.stats.ticks.Load()).Msg("scheduler stopped")
			return nil
		default:
		}
		if err := s.Tick(); err != nil {
			return err
		}
	}
}

// Tick runs one iteration of the display loop: advance an expired head,
// redraw a head whose brightness is stale, or else wait for a scene until the
// head expires.
func (s *Scheduler) Tick() error {
	s.stats.ticks.Add(1)
	defer func() { s.stats.queueLen.Store(int64(s.queue.Len())) }()

	now := s.clock.Now()
	head := s.queue.Head()
	d := s.effectiveDuration(head)
	if head.Expired(d, now) {
		return s.advance(now)
	}

	if level := s.levels.Load(); head.Brightness != level {
		s.stats.redraws.Add(1)
		log.Debug().Int("level", level).Int("was", head.Brightness).Msg("brightness redraw")
		return s.show(head, level)
	}

	wait := head.ExpiresAt(d).Sub(now)
	if wait < MinWait {
		wait = MinWait
	}
	sc, ok := s.scenes.Receive(wait)
	if !ok {
		return nil
	}
	if !s.splice(sc, s.clock.Now()) {
		return nil
	}
	return s.advance(s.clock.Now())
}

// effectiveDuration is the head's own duration, or the default redraw
// interval when it is the only frame left.
func (s *Scheduler) effectiveDuration(head *frame.Frame) time.Duration {
	if s.queue.Len() == 1 {
		return frame.DefaultDuration
	}
	return head.Duration
}

func (s *Scheduler) advance(now time.Time) error {
	level := s.levels.Load()
	head := s.queue.Head()
	if s.queue.Len() == 1 && head.Brightness == level {
		head.DrawnAt = now
		return nil
	}
	if !head.Expired(s.effectiveDuration(head), now) {
		return nil
	}

	popped := s.queue.PopHead()
	sole := s.queue.Len() == 0
	if sole {
		s.queue.PushTail(popped)
	}
	next := s.queue.Head()
	if err := s.show(next, level); err != nil {
		return err
	}
	next.DrawnAt = now
	s.stats.advances.Add(1)

	// A frame put back as the only entry is already queued.
	if sole {
		return nil
	}
	switch {
	case !popped.Loop:
		return nil
	case popped.LoopCount == 1:
		popped.Loop = false
	case popped.LoopCount > 1:
		popped.LoopCount--
	}
	popped.DrawnAt = time.Time{}
	s.queue.PushTail(popped)
	return nil
}

// show writes f at level into the off-screen buffer and swaps it in.
func (s *Scheduler) show(f *frame.Frame, level int) error {
	if frame.ApplyBrightness(f, level) {
		s.stats.recomputes.Add(1)
	}
	if err := s.canvas.Write(s.offscreen, f.Adjusted); err != nil {
		return fmt.Errorf("canvas write: %w", err)
	}
	prev, err := s.canvas.Swap(s.offscreen)
	if err != nil {
		return fmt.Errorf("canvas swap: %w", err)
	}
	s.offscreen = prev
	return nil
}

// splice replaces everything queued behind the visible frame with sc. The
// visible frame stays as head but is due immediately and never loops again.
// It reports false when sc had no usable frame and the queue was left alone.
func (s *Scheduler) splice(sc scene.Scene, now time.Time) bool {
	valid := make([]*frame.Frame, 0, len(sc.Frames))
	for i, f := range sc.Frames {
		if f == nil || !f.Image.HasSize(s.rows, s.cols) {
			s.stats.dropped.Add(1)
			ev := log.Warn().Str("scene", sc.Name).Int("index", i).Int("rows", s.rows).Int("cols", s.cols)
			if f != nil && f.Image != nil {
				ev = ev.Int("frame_rows", f.Image.Rows).Int("frame_cols", f.Image.Cols)
			}
			ev.Msg("dropping frame with wrong dimensions")
			continue
		}
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		s.stats.discarded.Add(1)
		log.Debug().Str("scene", sc.Name).Msg("scene has no usable frames")
		return false
	}

	head := s.queue.PopHead()
	head.Loop = false
	head.Duration = 0
	head.DrawnAt = now
	s.queue.Clear()
	s.queue.PushTail(head)
	for _, f := range valid {
		f.DrawnAt = time.Time{}
		s.queue.PushTail(f)
	}
	s.stats.accepted.Add(1)
	log.Info().Str("scene", sc.Name).Str("id", sc.ID.String()).Int("frames", len(valid)).Msg("scene accepted")
	return true
}

// Stats returns the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:           s.stats.ticks.Load(),
		Advances:        s.stats.advances.Load(),
		Redraws:         s.stats.redraws.Load(),
		Recomputes:      s.stats.recomputes.Load(),
		ScenesAccepted:  s.stats.accepted.Load(),
		ScenesDiscarded: s.stats.discarded.Load(),
		FramesDropped:   s.stats.dropped.Load(),
		QueueLen:        int(s.stats.queueLen.Load()),
	}
}
