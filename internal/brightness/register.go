// Package brightness holds the process-wide target brightness shared between
// the controllers (schedule, HTTP API) and the frame scheduler.
package brightness

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
)

// ErrOutOfRange is returned for fractions outside [0,1] or levels outside
// [frame.Unset, frame.MaxBrightness].
var ErrOutOfRange = errors.New("brightness out of range")

// Register is a lock-free, last-write-wins brightness cell. Reads never block.
// The zero value is not ready; use NewRegister.
type Register struct {
	level  atomic.Int32
	notify func()
}

// NewRegister returns a register holding frame.Unset.
func NewRegister() *Register {
	r := &Register{}
	r.level.Store(frame.Unset)
	return r
}

// OnChange registers fn to run after every write that changes the level.
// Call it before the register is shared; fn must not block.
func (r *Register) OnChange(fn func()) { r.notify = fn }

// Load returns the current target level.
func (r *Register) Load() int { return int(r.level.Load()) }

// Store sets the target level. Values outside [Unset, MaxBrightness] are
// rejected and the register keeps its previous value.
func (r *Register) Store(level int) error {
	if level < frame.Unset || level > frame.MaxBrightness {
		return fmt.Errorf("%w: level %d", ErrOutOfRange, level)
	}
	r.set(level)
	return nil
}

// SetFraction validates f in [0,1] and stores it on the integer scale.
func (r *Register) SetFraction(f float64) error {
	level, err := Level(f)
	if err != nil {
		return err
	}
	r.set(level)
	return nil
}

func (r *Register) set(level int) {
	if old := r.level.Swap(int32(level)); int(old) != level && r.notify != nil {
		r.notify()
	}
}

// Fraction reports the current level as a fraction, or -1 when unset.
func (r *Register) Fraction() float64 {
	level := r.Load()
	if level == frame.Unset {
		return -1
	}
	return float64(level) / frame.MaxBrightness
}

// Level converts a fraction in [0,1] to the [0, MaxBrightness] scale. Exact
// half steps round to even.
func Level(f float64) (int, error) {
	if math.IsNaN(f) || f < 0 || f > 1 {
		return 0, fmt.Errorf("%w: %v not in [0, 1]", ErrOutOfRange, f)
	}
	return int(math.RoundToEven(f * frame.MaxBrightness)), nil
}
