package scheduler

import "github.com/coreman2200/funtimes-arcaluminis/internal/frame"

// queue is the ordered run of frames waiting to be shown; the head is on
// screen. Only the scheduler goroutine touches it.
type queue struct {
	frames []*frame.Frame
}

func (q *queue) Len() int { return len(q.frames) }

func (q *queue) Head() *frame.Frame {
	if len(q.frames) == 0 {
		return nil
	}
	return q.frames[0]
}

func (q *queue) PopHead() *frame.Frame {
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f
}

func (q *queue) PushTail(f *frame.Frame) {
	q.frames = append(q.frames, f)
}

func (q *queue) Clear() {
	clear(q.frames)
	q.frames = q.frames[:0]
}
