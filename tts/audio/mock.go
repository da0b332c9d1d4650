package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/shravan/tts"
)

var (
	_ tts.Device     = (*MockDevice)(nil)
	_ tts.ClipPlayer = (*mockPlayer)(nil)
)

// MockDevice simulates the audio output without producing sound.
// Players advance their position on the wall clock and complete when
// the clip duration has passed, so everything above the device behaves
// exactly as it would with hardware. It backs `--device mock` dry runs
// and tests on machines with no audio backend.
type MockDevice struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	ready   bool
	closed  bool
	readies int
	players int
}

// NewMockDevice creates a silent device with the configured format.
func NewMockDevice(cfg tts.PlaybackConfig) *MockDevice {
	return &MockDevice{sampleRate: cfg.SampleRate, channels: cfg.Channels}
}

// Ready marks the device unlocked. It never blocks and never fails on
// a live device.
func (d *MockDevice) Ready(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return tts.NewError(tts.KindPlaybackStart, "device.ready", tts.ErrDisposed)
	}
	d.ready = true
	d.readies++
	return nil
}

// NewPlayer returns a clock-driven player for the clip. The same
// preconditions apply as on the real device, so tests exercise the
// unlock ordering.
func (d *MockDevice) NewPlayer(clip *tts.Clip) (tts.ClipPlayer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, tts.NewError(tts.KindPlaybackStart, "audio.player", tts.ErrDisposed)
	}
	if !d.ready {
		return nil, tts.NewError(tts.KindPlaybackStart, "audio.player", tts.ErrDeviceNotReady)
	}
	if clip == nil || len(clip.PCM) == 0 {
		return nil, tts.NewError(tts.KindPlaybackStart, "audio.player", errors.New("empty clip"))
	}
	d.players++
	return &mockPlayer{duration: clip.Duration(), done: make(chan struct{})}, nil
}

// SampleRate returns the configured output rate in Hz.
func (d *MockDevice) SampleRate() int {
	return d.sampleRate
}

// ChannelCount returns the configured channel count.
func (d *MockDevice) ChannelCount() int {
	return d.channels
}

// Readies returns how many times Ready was called.
func (d *MockDevice) Readies() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readies
}

// Players returns how many players were handed out.
func (d *MockDevice) Players() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.players
}

// Close drops the device. Further calls fail with ErrDisposed.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// mockPlayer plays one clip against the wall clock.
type mockPlayer struct {
	duration time.Duration

	mu       sync.Mutex
	playing  bool
	started  time.Time
	frozen   time.Duration
	timer    *time.Timer
	done     chan struct{}
	doneOnce sync.Once
}

// Play starts the clock. Calling Play twice is a no-op.
func (p *mockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing || p.timer != nil {
		return
	}
	p.playing = true
	p.started = time.Now()
	p.timer = time.AfterFunc(p.duration, p.finish)
}

// Stop halts playback, freezing the position. Done is closed
// afterwards. Idempotent.
func (p *mockPlayer) Stop() {
	p.mu.Lock()
	if p.playing {
		p.frozen = p.positionLocked()
		p.playing = false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.finish()
}

// Position returns the elapsed play time, capped at the clip duration.
func (p *mockPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *mockPlayer) positionLocked() time.Duration {
	if !p.playing {
		return p.frozen
	}
	pos := time.Since(p.started)
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

// Done is closed when the clip duration elapses or Stop is called.
func (p *mockPlayer) Done() <-chan struct{} {
	return p.done
}

// Close releases the player. Stops first if needed.
func (p *mockPlayer) Close() error {
	p.Stop()
	return nil
}

func (p *mockPlayer) finish() {
	p.doneOnce.Do(func() {
		close(p.done)
	})
}
