package sync

import (
	"time"

	"github.com/dgnsrekt/shravan/tts"
)

// Tracker implements tts.Timing by resolving a timing source and
// walking it with a Cursor.
type Tracker struct{}

var _ tts.Timing = Tracker{}

// Track implements tts.Timing.
func (Tracker) Track(words []string, provider []tts.Timepoint, duration time.Duration) tts.WordTrack {
	return NewCursor(Resolve(words, provider, duration))
}
