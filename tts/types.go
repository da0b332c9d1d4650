package tts

import "time"

// Audio represents synthesized audio as returned by a provider.
type Audio struct {
	Data       []byte        // Encoded or raw audio bytes
	Format     AudioFormat   // Encoding of Data
	SampleRate int           // Sample rate in Hz (0 if unknown before decode)
	Channels   int           // Number of channels (0 if unknown before decode)
	Duration   time.Duration // Duration if known, 0 otherwise
}

// AudioFormat represents the encoding of audio data.
type AudioFormat int

const (
	// FormatMP3 represents MP3 compressed audio.
	FormatMP3 AudioFormat = iota
	// FormatWAV represents RIFF/WAV audio.
	FormatWAV
	// FormatPCM16 represents raw 16-bit little-endian PCM.
	FormatPCM16
)

// String returns the string representation of the format.
func (f AudioFormat) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatWAV:
		return "wav"
	case FormatPCM16:
		return "pcm"
	default:
		return "unknown"
	}
}

// ParseAudioFormat maps a config string to an AudioFormat.
func ParseAudioFormat(s string) (AudioFormat, bool) {
	switch s {
	case "mp3":
		return FormatMP3, true
	case "wav":
		return FormatWAV, true
	case "pcm":
		return FormatPCM16, true
	}
	return FormatMP3, false
}

// Clip is decoded, device-ready audio: 16-bit little-endian PCM.
type Clip struct {
	PCM        []byte // Interleaved signed 16-bit little-endian samples
	SampleRate int    // Sample rate in Hz
	Channels   int    // Number of channels
}

// Duration returns the play time of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 || c.Channels <= 0 || len(c.PCM) == 0 {
		return 0
	}
	samples := len(c.PCM) / (2 * c.Channels)
	return time.Duration(float64(samples) / float64(c.SampleRate) * float64(time.Second))
}

// Timepoint marks the start of a word within synthesized audio.
type Timepoint struct {
	WordIndex   int     // 0-based index into the word list
	TimeSeconds float64 // Offset from the start of the audio, never negative
}

// SynthesisRequest describes one synthesis call.
type SynthesisRequest struct {
	Text      string // Normalized text to speak
	Language  string // Language code, e.g. "sa", "deva", "en"
	RequestID string // Correlation ID for logs
}

// SynthesisResult is the normalized provider response. Providers answer
// either with raw audio bytes or with a JSON envelope carrying base64
// audio plus word timepoints; both wire shapes decode into this one
// struct at the provider boundary.
type SynthesisResult struct {
	Audio      Audio       // The synthesized audio
	Timepoints []Timepoint // Provider word timings, empty when not offered
	Provider   string      // Name of the provider that answered
}

// Callbacks receives playback lifecycle events. Nil members are skipped.
// Callbacks are invoked sequentially in event order, never concurrently,
// and never while the controller's internal lock is held.
type Callbacks struct {
	// OnStart fires exactly once when playback of a line begins.
	OnStart func(line string)

	// OnEnd fires exactly once per playback lifecycle: natural end,
	// Stop, and failed-playback fallback completion all look identical.
	OnEnd func(line string)

	// OnError fires at most once per playback, after retries are
	// exhausted, before the silent fallback begins.
	OnError func(err error)

	// OnWordChange fires exactly once per word boundary with the
	// 0-based word index. Indices never decrease within one playback.
	OnWordChange func(wordIndex int)
}
