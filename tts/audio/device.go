package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/shravan/tts"
)

// OtoDevice is the production audio output. The oto context is created
// on the first Ready call, which is the unlock step: some backends only
// start accepting players after the hardware handshake completes. The
// context cannot be closed in oto v3, so Close just drops references.
type OtoDevice struct {
	sampleRate int
	channels   int
	volume     float64
	logger     *log.Logger

	mu     sync.Mutex
	ctx    *oto.Context
	ready  chan struct{}
	closed bool
}

// NewDevice creates the device without touching the hardware. Ready
// performs the actual unlock.
func NewDevice(cfg tts.PlaybackConfig, logger *log.Logger) *OtoDevice {
	volume := cfg.Volume
	if volume > 1 {
		volume = 1
	}
	if volume < 0 {
		volume = 0
	}
	return &OtoDevice{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		volume:     volume,
		logger:     logger,
	}
}

// Ready unlocks the device, blocking until the backend accepts players
// or ctx expires. The unlock happens once; later calls return
// immediately.
func (d *OtoDevice) Ready(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return tts.NewError(tts.KindPlaybackStart, "device.ready", tts.ErrDisposed)
	}
	if d.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   d.sampleRate,
			ChannelCount: d.channels,
			Format:       oto.FormatSignedInt16LE,
		}
		octx, ready, err := oto.NewContext(op)
		if err != nil {
			d.mu.Unlock()
			return tts.NewError(tts.KindPlaybackStart, "device.ready", errors.Join(tts.ErrDeviceUnlock, err))
		}
		d.ctx = octx
		d.ready = ready
	}
	ready := d.ready
	d.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return tts.NewError(tts.KindPlaybackStart, "device.ready", errors.Join(tts.ErrDeviceNotReady, ctx.Err()))
	}
}

// NewPlayer creates a player for a clip already conformed to the
// device format.
func (d *OtoDevice) NewPlayer(clip *tts.Clip) (tts.ClipPlayer, error) {
	d.mu.Lock()
	octx := d.ctx
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return nil, tts.NewError(tts.KindPlaybackStart, "audio.player", tts.ErrDisposed)
	}
	if octx == nil {
		return nil, tts.NewError(tts.KindPlaybackStart, "audio.player", tts.ErrDeviceNotReady)
	}
	if clip == nil || len(clip.PCM) == 0 {
		return nil, tts.NewError(tts.KindPlaybackStart, "audio.player", errors.New("empty clip"))
	}
	if clip.SampleRate != d.sampleRate || clip.Channels != d.channels {
		return nil, tts.NewError(tts.KindPlaybackStart, "audio.player",
			fmt.Errorf("clip format %dHz/%dch does not match device %dHz/%dch",
				clip.SampleRate, clip.Channels, d.sampleRate, d.channels))
	}

	reader := bytes.NewReader(clip.PCM)
	player := octx.NewPlayer(reader)
	player.SetVolume(d.volume)

	return &otoPlayer{
		player:         player,
		reader:         reader,
		total:          int64(len(clip.PCM)),
		bytesPerSecond: d.sampleRate * d.channels * 2,
		done:           make(chan struct{}),
		quit:           make(chan struct{}),
	}, nil
}

// SampleRate returns the device output rate in Hz.
func (d *OtoDevice) SampleRate() int {
	return d.sampleRate
}

// ChannelCount returns the device channel count.
func (d *OtoDevice) ChannelCount() int {
	return d.channels
}

// Close drops the device. oto contexts cannot be destroyed, so the
// backend thread stays until process exit.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.ctx = nil
	return nil
}

// otoPlayer plays one clip once. The reader must stay referenced while
// the backend drains it.
type otoPlayer struct {
	player         *oto.Player
	reader         *bytes.Reader
	total          int64
	bytesPerSecond int

	mu       sync.Mutex
	started  bool
	doneOnce sync.Once
	stopOnce sync.Once
	done     chan struct{}
	quit     chan struct{}
}

// Play starts playback. Calling Play twice is a no-op.
func (p *otoPlayer) Play() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.player.Play()
	go p.watch()
}

// watch polls the backend until the clip drains, then signals Done.
func (p *otoPlayer) watch() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			if !p.player.IsPlaying() {
				p.finish()
				return
			}
		}
	}
}

// Stop halts playback. Done is closed afterwards. Idempotent.
func (p *otoPlayer) Stop() {
	p.stopOnce.Do(func() {
		p.player.Pause()
		close(p.quit)
		p.finish()
	})
}

// Position returns the elapsed play time of the clip, derived from how
// many bytes the backend has consumed beyond its unplayed buffer.
func (p *otoPlayer) Position() time.Duration {
	consumed := p.total - int64(p.reader.Len())
	played := consumed - p.player.UnplayedBufferSize()
	if played < 0 {
		played = 0
	}
	if played > p.total {
		played = p.total
	}
	return time.Duration(played) * time.Second / time.Duration(p.bytesPerSecond)
}

// Done is closed when playback finishes or is stopped.
func (p *otoPlayer) Done() <-chan struct{} {
	return p.done
}

// Close releases the player. Stops first if needed.
func (p *otoPlayer) Close() error {
	p.Stop()
	return p.player.Close()
}

func (p *otoPlayer) finish() {
	p.doneOnce.Do(func() {
		close(p.done)
	})
}
