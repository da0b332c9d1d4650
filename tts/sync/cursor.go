package sync

import (
	"time"

	"github.com/dgnsrekt/shravan/tts"
)

// Cursor tracks which word is current for an elapsed playback position.
// It is not goroutine-safe; the playback controller serializes access.
type Cursor struct {
	points []tts.Timepoint
	index  int
}

// NewCursor builds a cursor over a timing track. The cursor starts
// before the first word, so the first Advance reports a change onto
// word 0.
func NewCursor(points []tts.Timepoint) *Cursor {
	return &Cursor{points: points, index: -1}
}

// Advance moves the cursor to the word active at elapsed and reports
// whether the index changed since the previous call. The cursor never
// moves backward; a stalled or jittery position source cannot replay a
// boundary.
func (c *Cursor) Advance(elapsed time.Duration) (int, bool) {
	if len(c.points) == 0 {
		return -1, false
	}

	next := c.index
	if next < 0 {
		next = 0
	}
	for next+1 < len(c.points) && boundary(c.points[next+1]) <= elapsed {
		next++
	}

	if next == c.index {
		return c.index, false
	}
	c.index = next
	return c.index, true
}

// Index returns the current word index, or -1 before the first Advance.
func (c *Cursor) Index() int {
	return c.index
}

// Len returns the number of words the cursor tracks.
func (c *Cursor) Len() int {
	return len(c.points)
}

// NextBoundary returns the elapsed time at which the next word begins.
// ok is false at the last word or on an empty track.
func (c *Cursor) NextBoundary() (time.Duration, bool) {
	next := c.index + 1
	if next <= 0 {
		next = 0
	}
	if next >= len(c.points) {
		return 0, false
	}
	return boundary(c.points[next]), true
}

func boundary(p tts.Timepoint) time.Duration {
	return time.Duration(p.TimeSeconds * float64(time.Second))
}
