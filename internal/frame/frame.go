package frame

import "time"

const (
	// MaxBrightness is the register level meaning 100%, shown without scaling.
	MaxBrightness = 1000
	// Unset means no brightness override: frames are shown as authored.
	Unset = -1

	// DefaultDuration is how long a frame without timing stays up, and the
	// redraw interval used when the queue holds a single frame.
	DefaultDuration = time.Second
)

// Frame is one displayable image plus its timing and loop metadata.
//
// A Frame is built by the producer and handed over once through the scene
// channel; after that only the scheduler touches it.
type Frame struct {
	// Image is the original buffer. It is never modified.
	Image *Image
	// Adjusted is Image at the level recorded in Brightness.
	Adjusted *Image
	// Brightness is the level Adjusted reflects, in [Unset, MaxBrightness].
	Brightness int

	// Duration is how long the frame stays visible once it becomes head.
	Duration time.Duration
	Loop     bool
	// LoopCount is the number of remaining repetitions; 0 repeats forever.
	LoopCount int

	// DrawnAt is stamped when the frame becomes head. The zero value means
	// not drawn yet, which always compares as expired.
	DrawnAt time.Time
}

// NewFrame wraps img with display metadata. The adjusted image starts out as
// the original at level Unset.
func NewFrame(img *Image, d time.Duration, loop bool, loopCount int) *Frame {
	return &Frame{
		Image:      img,
		Adjusted:   img,
		Brightness: Unset,
		Duration:   d,
		Loop:       loop,
		LoopCount:  loopCount,
	}
}

// ExpiresAt is the instant the frame expires when shown for d.
func (f *Frame) ExpiresAt(d time.Duration) time.Time {
	return f.DrawnAt.Add(d)
}

// Expired reports whether the frame, shown for d, is due at now.
func (f *Frame) Expired(d time.Duration, now time.Time) bool {
	return !f.ExpiresAt(d).After(now)
}
