// Package sync estimates and tracks per-word timing for audio playback.
package sync

import (
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/shravan/tts"
)

// Estimate distributes a clip's duration across words by character
// weight. Word i starts at duration * (characters before word i) /
// (total characters). The result always has one Timepoint per word and
// times are non-decreasing. An empty word list yields nil; a
// zero-duration clip yields all-zero times.
//
// This is a heuristic stand-in for provider timing, good enough to move
// a reading cursor but not phoneme-accurate.
func Estimate(words []string, duration time.Duration) []tts.Timepoint {
	if len(words) == 0 {
		return nil
	}
	if duration < 0 {
		duration = 0
	}

	total := 0
	for _, w := range words {
		total += utf8.RuneCountInString(w)
	}

	points := make([]tts.Timepoint, len(words))
	if total == 0 {
		for i := range points {
			points[i] = tts.Timepoint{WordIndex: i}
		}
		return points
	}

	seconds := duration.Seconds()
	cum := 0
	for i, w := range words {
		points[i] = tts.Timepoint{
			WordIndex:   i,
			TimeSeconds: seconds * float64(cum) / float64(total),
		}
		cum += utf8.RuneCountInString(w)
	}
	return points
}

// Resolve picks the timing track for a clip. Provider timepoints win
// when they cover every word and are monotonic; otherwise the
// character-weighted estimate is used.
func Resolve(words []string, provider []tts.Timepoint, duration time.Duration) []tts.Timepoint {
	if usable(provider, len(words)) {
		return provider
	}
	return Estimate(words, duration)
}

// usable reports whether provider timepoints can drive the cursor
// directly.
func usable(points []tts.Timepoint, wordCount int) bool {
	if wordCount == 0 || len(points) != wordCount {
		return false
	}
	last := -1.0
	for i, p := range points {
		if p.WordIndex != i {
			return false
		}
		if p.TimeSeconds < last {
			return false
		}
		last = p.TimeSeconds
	}
	return true
}
