package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/dgnsrekt/shravan/tts"
)

// makeWAV builds a minimal RIFF/WAV file around 16-bit PCM samples.
func makeWAV(sampleRate int, channels int, samples []int16) []byte {
	dataSize := len(samples) * 2
	riffSize := 4 + (8 + 16) + (8 + dataSize)
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

// TestDecodeWAV tests RIFF decoding into a clip.
func TestDecodeWAV(t *testing.T) {
	samples := []int16{0, 1000, -1000, 16000, -16000, 32000}
	data := makeWAV(24000, 1, samples)

	clip, err := Decode(tts.Audio{Data: data, Format: tts.FormatWAV}, 24000, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if clip.SampleRate != 24000 {
		t.Errorf("Expected 24000 Hz, got %d", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", clip.Channels)
	}
	if len(clip.PCM) != len(samples)*2 {
		t.Fatalf("Expected %d PCM bytes, got %d", len(samples)*2, len(clip.PCM))
	}

	// Allow a couple of counts of rounding through the float path
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(clip.PCM[i*2:]))
		if abs16(got-want) > 2 {
			t.Errorf("Sample %d: got %d, want ~%d", i, got, want)
		}
	}
}

// TestDecodeWAVInvalid tests a non-RIFF payload.
func TestDecodeWAVInvalid(t *testing.T) {
	_, err := Decode(tts.Audio{Data: []byte("definitely not a wav"), Format: tts.FormatWAV}, 24000, 1)
	if err == nil {
		t.Fatal("Expected an error for invalid WAV data")
	}
}

// TestDecodePCMPassthrough tests the raw PCM path.
func TestDecodePCMPassthrough(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}

	clip, err := Decode(tts.Audio{
		Data:       data,
		Format:     tts.FormatPCM16,
		SampleRate: 22050,
		Channels:   1,
	}, 24000, 2)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !bytes.Equal(clip.PCM, data) {
		t.Error("PCM bytes should pass through untouched")
	}
	if clip.SampleRate != 22050 {
		t.Errorf("Expected the carried rate 22050, got %d", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("Expected the carried channel count 1, got %d", clip.Channels)
	}
}

// TestDecodePCMDefaults tests fallback when the provider did not say.
func TestDecodePCMDefaults(t *testing.T) {
	clip, err := Decode(tts.Audio{Data: []byte{0, 0, 0, 0}, Format: tts.FormatPCM16}, 24000, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if clip.SampleRate != 24000 || clip.Channels != 1 {
		t.Errorf("Expected defaults 24000/1, got %d/%d", clip.SampleRate, clip.Channels)
	}
}

// TestDecodePCMOddLength tests that a trailing half sample is dropped.
func TestDecodePCMOddLength(t *testing.T) {
	clip, err := Decode(tts.Audio{Data: []byte{1, 2, 3}, Format: tts.FormatPCM16}, 24000, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(clip.PCM) != 2 {
		t.Errorf("Expected odd byte dropped, got %d bytes", len(clip.PCM))
	}
}

// TestDecodeMP3Invalid tests garbage MP3 input.
func TestDecodeMP3Invalid(t *testing.T) {
	_, err := Decode(tts.Audio{Data: []byte("not mp3 frames at all"), Format: tts.FormatMP3}, 24000, 1)
	if err == nil {
		t.Fatal("Expected an error for invalid MP3 data")
	}
}

// TestDecodeEmpty tests that empty audio never yields a clip.
func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(tts.Audio{Data: nil, Format: tts.FormatPCM16}, 24000, 1)
	if err == nil {
		t.Fatal("Expected an error for empty audio")
	}
}
