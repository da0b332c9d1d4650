// Package audio adapts synthesized audio to the output device. It
// decodes provider formats into PCM clips, conforms them to the device
// rate, and wraps the oto backend behind the device interface.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/cwbudde/wav"

	"github.com/dgnsrekt/shravan/tts"
)

// Decoder decodes provider audio and conforms it to one output format.
type Decoder struct {
	sampleRate int
	channels   int
}

var _ tts.Decoder = (*Decoder)(nil)

// NewDecoder returns a Decoder targeting the given device format.
func NewDecoder(sampleRate, channels int) *Decoder {
	return &Decoder{sampleRate: sampleRate, channels: channels}
}

// Decode implements tts.Decoder.
func (d *Decoder) Decode(audio tts.Audio) (*tts.Clip, error) {
	clip, err := Decode(audio, d.sampleRate, d.channels)
	if err != nil {
		return nil, err
	}
	return Conform(clip, d.sampleRate, d.channels), nil
}

// Decode turns provider audio into a PCM clip at its native rate. Raw
// PCM uses the rate and channel count carried on the audio, falling
// back to the given defaults when the provider did not say.
func Decode(audio tts.Audio, defaultRate, defaultChannels int) (*tts.Clip, error) {
	var clip *tts.Clip
	var err error

	switch audio.Format {
	case tts.FormatMP3:
		clip, err = decodeMP3(audio.Data)
	case tts.FormatWAV:
		clip, err = decodeWAV(audio.Data)
	case tts.FormatPCM16:
		rate, channels := audio.SampleRate, audio.Channels
		if rate <= 0 {
			rate = defaultRate
		}
		if channels <= 0 {
			channels = defaultChannels
		}
		data := append([]byte(nil), audio.Data...)
		if len(data)%2 != 0 {
			data = data[:len(data)-1]
		}
		clip = &tts.Clip{PCM: data, SampleRate: rate, Channels: channels}
	default:
		err = fmt.Errorf("unsupported audio format %v", audio.Format)
	}
	if err != nil {
		return nil, err
	}

	if len(clip.PCM) == 0 {
		return nil, errors.New("decoded clip is empty")
	}
	if clip.SampleRate <= 0 || clip.Channels <= 0 {
		return nil, fmt.Errorf("decoded clip has no usable format: %dHz/%dch", clip.SampleRate, clip.Channels)
	}
	return clip, nil
}

// decodeMP3 decodes MP3 frames. go-mp3 always emits 16-bit stereo.
func decodeMP3(data []byte) (*tts.Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}

	return &tts.Clip{PCM: pcm, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// decodeWAV decodes a RIFF/WAV payload into 16-bit PCM.
func decodeWAV(data []byte) (*tts.Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav read: %w", err)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		clamped := math.Max(-1.0, math.Min(1.0, float64(s)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(clamped*32767)))
	}

	return &tts.Clip{
		PCM:        pcm,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}
