package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-arcaluminis/internal/frame"
)

func testScene(name string) Scene {
	return New(name, []*frame.Frame{frame.NewFrame(frame.NewImage(1, 1), time.Second, false, 0)})
}

func TestNewAssignsID(t *testing.T) {
	a := testScene("a")
	b := testScene("b")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.Frames, 1)
}

func TestReceiveTimesOut(t *testing.T) {
	c := NewChannel()

	start := time.Now()
	_, ok := c.Receive(20 * time.Millisecond)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReceiveReturnsPending(t *testing.T) {
	c := NewChannel()
	s := testScene("clock")
	c.Publish(s)

	got, ok := c.Receive(time.Second)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)

	_, ok = c.Receive(0)
	assert.False(t, ok, "slot should be empty after receive")
}

func TestPublishOverwritesUnconsumed(t *testing.T) {
	c := NewChannel()
	a, b, latest := testScene("a"), testScene("b"), testScene("c")

	c.Publish(a)
	c.Publish(b)
	c.Publish(latest)

	got, ok := c.Receive(0)
	require.True(t, ok)
	assert.Equal(t, latest.ID, got.ID)
	assert.Equal(t, Stats{Published: 3, Dropped: 2}, c.Stats())
}

func TestPublishNeverBlocks(t *testing.T) {
	c := NewChannel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Publish(testScene("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a consumer")
	}
}

func TestReceiveWakesOnPublish(t *testing.T) {
	c := NewChannel()
	s := testScene("late")

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Publish(s)
	}()

	got, ok := c.Receive(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)
}

func TestWakeEndsWaitEarly(t *testing.T) {
	c := NewChannel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Wake()
	}()

	start := time.Now()
	_, ok := c.Receive(5 * time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWakeCoalesces(t *testing.T) {
	c := NewChannel()
	c.Wake()
	c.Wake()

	_, ok := c.Receive(time.Second)
	assert.False(t, ok)

	start := time.Now()
	_, ok = c.Receive(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "second wait must run to its timeout")
}
