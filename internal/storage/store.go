// Package storage persists the little state the daemon keeps across restarts:
// the API brightness override and a history of renders.
package storage

import (
	"context"
	"time"
)

// Store is the interface for persistent storage.
type Store interface {
	// Brightness override, as a fraction in [0, 1].
	SaveBrightness(ctx context.Context, value float64) error
	LoadBrightness(ctx context.Context) (float64, error)

	// Render history
	RecordRender(ctx context.Context, r *Render) error
	RecentRenders(ctx context.Context, limit int) ([]*Render, error)

	// Lifecycle
	Close() error
}

// Render is one renderer invocation.
type Render struct {
	ID         int64         `json:"id"`
	Applet     string        `json:"applet"`
	Hash       string        `json:"hash,omitempty"`
	OK         bool          `json:"ok"`
	Submitted  bool          `json:"submitted"`
	Error      string        `json:"error,omitempty"`
	RenderedAt time.Time     `json:"rendered_at"`
	Took       time.Duration `json:"took"`
}

// ErrNotFound is returned when a record is not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e ErrNotFound) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
