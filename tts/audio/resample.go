package audio

import (
	"encoding/binary"
	"math"

	"github.com/dgnsrekt/shravan/tts"
)

// Conform converts a clip to the given sample rate and channel count.
// The clip is returned unmodified when it already matches.
func Conform(clip *tts.Clip, rate, channels int) *tts.Clip {
	if clip.SampleRate == rate && clip.Channels == channels {
		return clip
	}

	samples := bytesToSamples(clip.PCM)
	if clip.Channels != channels {
		samples = mixChannels(samples, clip.Channels, channels)
	}
	if clip.SampleRate != rate {
		samples = resampleLinear(samples, channels, clip.SampleRate, rate)
	}

	return &tts.Clip{PCM: samplesToBytes(samples), SampleRate: rate, Channels: channels}
}

// mixChannels converts between mono and stereo interleaving.
func mixChannels(samples []int16, from, to int) []int16 {
	switch {
	case from == 1 && to == 2:
		out := make([]int16, len(samples)*2)
		for i, s := range samples {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out
	case from == 2 && to == 1:
		frames := len(samples) / 2
		out := make([]int16, frames)
		for i := range frames {
			out[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
		}
		return out
	default:
		return samples
	}
}

// resampleLinear converts the sample rate by linear interpolation
// between neighboring frames. Duration is preserved.
func resampleLinear(samples []int16, channels, from, to int) []int16 {
	frames := len(samples) / channels
	if frames == 0 || from == to {
		return samples
	}

	outFrames := int(math.Round(float64(frames) * float64(to) / float64(from)))
	if outFrames < 1 {
		outFrames = 1
	}

	ratio := float64(from) / float64(to)
	out := make([]int16, outFrames*channels)
	for i := range outFrames {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 > frames-1 {
			i0 = frames - 1
		}
		i1 := i0 + 1
		if i1 > frames-1 {
			i1 = frames - 1
		}
		frac := pos - float64(i0)
		for c := range channels {
			s0 := float64(samples[i0*channels+c])
			s1 := float64(samples[i1*channels+c])
			out[i*channels+c] = int16(s0 + (s1-s0)*frac)
		}
	}
	return out
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}
