package producer

import "sync"

// Gate suppresses scenes identical to the last one submitted. A scene is
// identical when both its content hash and the brightness it was rendered
// for match. An empty hash cannot be compared and always passes.
type Gate struct {
	mu         sync.Mutex
	hash       string
	brightness float64
}

// ShouldSubmit records (hash, brightness) as the latest scene and reports
// whether it differs from the previous one.
func (g *Gate) ShouldSubmit(hash string, brightness float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	changed := g.hash == "" || hash == "" || g.hash != hash || g.brightness != brightness
	g.hash, g.brightness = hash, brightness
	return changed
}

// Reset forgets the last scene so the next one always passes.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hash, g.brightness = "", 0
}
