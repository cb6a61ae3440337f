// Package scene carries whole rendered scenes from the producer to the frame
// scheduler.
package scene

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
)

// Scene is one rendered animation: an ordered run of frames produced by a
// single renderer invocation.
type Scene struct {
	ID     uuid.UUID
	Name   string
	Frames []*frame.Frame
}

// New builds a scene with a fresh ID.
func New(name string, frames []*frame.Frame) Scene {
	return Scene{ID: uuid.New(), Name: name, Frames: frames}
}

// Channel is a single-slot mailbox between one producer and one consumer.
//
// Publish never blocks: a scene the consumer has not picked up yet is
// replaced by the newer one, so the consumer always sees the latest scene.
// Receive waits at most the given timeout.
type Channel struct {
	mu    sync.Mutex // serializes publishers
	slot  chan Scene
	wake  chan struct{}
	drops atomic.Uint64
	sent  atomic.Uint64
}

// NewChannel returns an empty channel.
func NewChannel() *Channel {
	return &Channel{slot: make(chan Scene, 1), wake: make(chan struct{}, 1)}
}

// Wake cuts the consumer's current (or next) wait short without delivering a
// scene. Use it when state the consumer polls between waits has changed.
func (c *Channel) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Publish hands s to the consumer, replacing any unconsumed scene.
func (c *Channel) Publish(s Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.slot:
		c.drops.Add(1)
	default:
	}
	// Only publishers fill the slot and they hold mu, so this cannot block.
	c.slot <- s
	c.sent.Add(1)
}

// Receive returns the pending scene, waiting up to timeout for one to arrive.
// A Wake ends the wait early with no scene.
func (c *Channel) Receive(timeout time.Duration) (Scene, bool) {
	select {
	case s := <-c.slot:
		return s, true
	default:
	}
	if timeout <= 0 {
		return Scene{}, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s := <-c.slot:
		return s, true
	case <-c.wake:
		return Scene{}, false
	case <-t.C:
		return Scene{}, false
	}
}

// Stats is a snapshot of channel counters.
type Stats struct {
	// Published counts every Publish call.
	Published uint64 `json:"published"`
	// Dropped counts scenes replaced before the consumer received them.
	Dropped uint64 `json:"dropped"`
}

// Stats returns the counters; safe to call from any goroutine.
func (c *Channel) Stats() Stats {
	return Stats{Published: c.sent.Load(), Dropped: c.drops.Load()}
}
