package tts

import (
	"context"
	"time"
)

// Synthesizer converts text to audio. Implementations live in tts/synth;
// the controller treats every provider, including fallback chains, as a
// single Synthesizer. A Synthesizer performs one attempt per call and
// never retries internally.
type Synthesizer interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Synthesize converts the request text to audio. It honors ctx
	// cancellation and deadline by aborting the in-flight request.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)

	// Validate checks that the provider is configured well enough to
	// attempt synthesis. It performs no network calls.
	Validate() error
}

// Device is the audio output. The production implementation wraps an
// oto context; tests use the mock in tts/audio.
type Device interface {
	// Ready unlocks the device, blocking until it can accept players
	// or ctx expires. It is called once per controller lifetime; later
	// calls are no-ops.
	Ready(ctx context.Context) error

	// NewPlayer creates a player for the clip. The clip must match the
	// device sample rate and channel count.
	NewPlayer(clip *Clip) (ClipPlayer, error)

	// SampleRate returns the device output rate in Hz.
	SampleRate() int

	// ChannelCount returns the device channel count.
	ChannelCount() int

	// Close releases the device.
	Close() error
}

// ClipPlayer plays one clip once. At most one player is active per
// controller at any instant.
type ClipPlayer interface {
	// Play starts playback. Calling Play twice is a no-op.
	Play()

	// Stop halts playback. Done is closed afterwards. Idempotent.
	Stop()

	// Position returns the elapsed play time of the clip.
	Position() time.Duration

	// Done is closed when playback finishes or is stopped.
	Done() <-chan struct{}

	// Close releases the player. Stops first if needed.
	Close() error
}

// Decoder turns provider audio into a clip the device can play.
// tts/audio implements it on top of the mp3 and wav decoders.
type Decoder interface {
	// Decode decodes and conforms the audio to the device format.
	Decode(audio Audio) (*Clip, error)
}

// WordTrack walks the word boundaries of one clip as playback advances.
type WordTrack interface {
	// Advance moves to the word active at elapsed and reports whether
	// the index changed since the previous call. Indices never
	// decrease.
	Advance(elapsed time.Duration) (int, bool)

	// Len returns the number of words tracked.
	Len() int
}

// Timing builds word timing tracks for clips. tts/sync implements it:
// provider timepoints drive the track when they are usable, otherwise
// timing is estimated from word lengths and the clip duration.
type Timing interface {
	Track(words []string, provider []Timepoint, duration time.Duration) WordTrack
}

// Store is the audio cache as the controller sees it: opaque payload
// bytes keyed by (language, normalized text), with an optional decoded
// handle kept by the fast tier. internal/cache.Manager implements it.
type Store interface {
	// Get returns the cached payload and, when the fast tier still
	// holds one, the decoded handle attached via Attach. The context
	// bounds remote tier lookups; local tiers never block on it.
	Get(ctx context.Context, lang, text string) (payload []byte, handle any, ok bool)

	// Put stores the payload in all writable tiers.
	Put(ctx context.Context, lang, text string, payload []byte) error

	// Attach associates a decoded handle with an existing fast-tier
	// entry so later hits skip decoding. The handle's resources are
	// released on eviction.
	Attach(lang, text string, handle any, release func())

	// Contains reports whether any local tier has the entry, without
	// touching the remote tier or recency.
	Contains(lang, text string) bool

	// Close flushes and releases all tiers.
	Close() error
}
