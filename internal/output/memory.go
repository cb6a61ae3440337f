package output

import (
	"sync"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
)

// MemorySink records shown images. It backs the "sim" driver and tests.
type MemorySink struct {
	mu    sync.Mutex
	keep  int
	shown []*frame.Image
	count int
	Err   error // returned from Show when set
}

// NewMemorySink keeps the last keep images; keep <= 0 keeps all of them.
func NewMemorySink(keep int) *MemorySink {
	return &MemorySink{keep: keep}
}

func (m *MemorySink) Show(img *frame.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.count++
	m.shown = append(m.shown, img.Clone())
	if m.keep > 0 && len(m.shown) > m.keep {
		m.shown = m.shown[len(m.shown)-m.keep:]
	}
	return nil
}

func (m *MemorySink) Close() error { return nil }

// Count is the total number of images shown.
func (m *MemorySink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Shown returns the retained images, oldest first.
func (m *MemorySink) Shown() []*frame.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*frame.Image(nil), m.shown...)
}

// Last returns the most recent image, or nil.
func (m *MemorySink) Last() *frame.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.shown) == 0 {
		return nil
	}
	return m.shown[len(m.shown)-1]
}
