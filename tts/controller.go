// Package tts plays verse lines aloud and keeps a word cursor in sync
// with the audio. The Controller is the heart of the package. It
// resolves audio through the cache or the synthesis provider and
// drives the output device, reporting lifecycle events through
// Callbacks. Providers, the device, decoding, timing and the cache
// reach it as interfaces; production implementations live in the
// subpackages and internal/cache, wired together by the shravan
// command.
package tts

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/shravan/tts/text"
)

const (
	// cursorPollInterval is how often the word cursor samples the clip
	// position during playback.
	cursorPollInterval = 50 * time.Millisecond

	// startPollInterval is how often a starting player is checked for
	// its first output.
	startPollInterval = 10 * time.Millisecond

	// fallbackWordEvery is the fixed cadence of the no-audio fallback
	// cursor.
	fallbackWordEvery = 400 * time.Millisecond
)

// ControllerDeps collects the collaborators a Controller drives.
type ControllerDeps struct {
	Synth   Synthesizer
	Device  Device
	Decoder Decoder
	Timing  Timing
	Store   Store
	Logger  *log.Logger
}

// Controller owns playback: one line, one audio handle at a time. A
// newer PlayLine always wins over whatever is in flight; the loser is
// abandoned without callbacks. All async work is tagged with a
// generation number and re-checks it after every blocking step, so a
// superseded request can never mutate state or reach subscribers.
type Controller struct {
	synth   Synthesizer
	device  Device
	decoder Decoder
	timing  Timing
	store   Store
	config  Config
	logger  *log.Logger

	mu         sync.Mutex
	machine    *StateMachine
	generation uint64
	cancel     context.CancelFunc
	player     ClipPlayer
	callbacks  Callbacks
	line       string
	disposed   bool

	// Callback events queue under mu and drain on one dispatcher
	// goroutine, so subscribers observe events in the exact order the
	// state machine produced them and callbacks may call back into the
	// controller.
	events    []event
	eventCond *sync.Cond
}

type eventKind int

const (
	evStart eventKind = iota
	evEnd
	evError
	evWord
)

type event struct {
	kind eventKind
	line string
	word int
	err  error
}

// playRequest carries one accepted PlayLine through its goroutine.
type playRequest struct {
	id    string
	line  string
	norm  string
	lang  string
	words []string
}

// runState is the per-request bookkeeping shared by retry attempts.
type runState struct {
	startEmitted bool
}

// NewController builds a playback controller from its collaborators.
// The config must already be validated.
func NewController(cfg Config, deps ControllerDeps) (*Controller, error) {
	switch {
	case deps.Synth == nil:
		return nil, NewError(KindConfiguration, "controller.new", ErrNoProviderConfigured)
	case deps.Device == nil, deps.Decoder == nil, deps.Timing == nil, deps.Store == nil:
		return nil, NewError(KindConfiguration, "controller.new", ErrInvalidConfig)
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	c := &Controller{
		synth:   deps.Synth,
		device:  deps.Device,
		decoder: deps.Decoder,
		timing:  deps.Timing,
		store:   deps.Store,
		config:  cfg,
		logger:  logger,
		machine: NewStateMachine(),
	}
	c.eventCond = sync.NewCond(&c.mu)
	go c.dispatch()
	return c, nil
}

// PlayLine speaks one line. Any active or pending playback is
// superseded silently. The call returns once the request is accepted;
// progress arrives through the callbacks. An empty lang falls back to
// the configured language; words, when given, are the caller's token
// list for cursor sync, otherwise the line is tokenized here.
func (c *Controller) PlayLine(line, lang string, words []string) error {
	norm := text.Normalize(line)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if lang == "" {
		lang = c.config.Language
	}

	c.generation++
	gen := c.generation
	c.teardownLocked()
	c.settleLocked()

	if norm == "" {
		// Decoration-only lines keep the lifecycle moving so callers
		// that chain on OnEnd never stall.
		c.emitLocked(event{kind: evStart, line: line})
		c.emitLocked(event{kind: evEnd, line: line})
		c.mu.Unlock()
		return nil
	}

	c.transitionLocked(StateStarting)
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.line = line
	req := playRequest{
		id:    uuid.NewString(),
		line:  line,
		norm:  norm,
		lang:  lang,
		words: words,
	}
	c.mu.Unlock()

	go c.run(ctx, gen, req)
	return nil
}

// Stop halts playback. To subscribers a stop is indistinguishable from
// the line finishing naturally: exactly one OnEnd fires and the
// controller settles in Idle. Stopping an idle controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || !c.machine.Current().Active() {
		return
	}
	line := c.line
	c.generation++
	c.teardownLocked()
	c.transitionLocked(StateStopped)
	c.emitLocked(event{kind: evEnd, line: line})
	c.transitionLocked(StateIdle)
}

// IsPlaying reports whether a line is being started or spoken.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current().Active()
}

// State returns the current lifecycle state.
func (c *Controller) State() StateType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// SetCallbacks replaces the subscriber callbacks. It takes effect for
// every event dispatched after the call, including ones already queued.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

// Dispose stops playback and releases the device. Queued events are
// dropped; a callback already in flight may complete. The controller
// is unusable afterwards. Idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.generation++
	c.teardownLocked()
	c.settleLocked()
	c.events = nil
	c.eventCond.Signal()
	c.mu.Unlock()

	if err := c.device.Close(); err != nil {
		c.logger.Warn("Device close failed", "err", err)
	}
}

// run executes one play request from audio resolution to the end of
// playback. Start and mid-playback failures are retried up to the
// configured attempt cap; after that the silent fallback takes over.
func (c *Controller) run(ctx context.Context, gen uint64, req playRequest) {
	if len(req.words) == 0 {
		req.words = text.Tokenize(req.norm)
	}
	logger := c.logger.With("request", req.id, "lang", req.lang)

	rs := &runState{}
	attempts := c.config.Playback.MaxStartAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		err := c.attempt(ctx, gen, req, rs, logger)
		if err == nil {
			return
		}
		if errors.Is(err, ErrSuperseded) {
			return
		}
		lastErr = err
		logger.Warn("Playback attempt failed", "attempt", i, "of", attempts, "err", err)
	}

	c.fallback(ctx, gen, req, rs, lastErr, logger)
}

// attempt runs one start-to-finish try. It returns nil when playback
// ran to its natural end, ErrSuperseded when a newer request or a stop
// won, and the underlying failure otherwise.
func (c *Controller) attempt(ctx context.Context, gen uint64, req playRequest, rs *runState, logger *log.Logger) error {
	payload, handle, hit := c.store.Get(ctx, req.lang, req.norm)
	if err := c.guard(ctx, gen); err != nil {
		return err
	}

	var (
		clip   *Clip
		result *SynthesisResult
	)
	if hit {
		if cached, ok := handle.(*Clip); ok && cached != nil {
			clip = cached
		}
		logger.Debug("Cache hit", "bytes", len(payload), "decoded", clip != nil)
	} else {
		var err error
		result, err = c.synth.Synthesize(ctx, SynthesisRequest{
			Text:      req.norm,
			Language:  req.lang,
			RequestID: req.id,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ErrSuperseded
			}
			return err
		}
		if err := c.guard(ctx, gen); err != nil {
			return err
		}
		payload = result.Audio.Data
		// Cache trouble never interrupts playback.
		if err := c.store.Put(ctx, req.lang, req.norm, payload); err != nil {
			logger.Warn("Cache write failed", "err", err)
		}
	}

	if clip == nil {
		audio := Audio{Data: payload, Format: c.cachedFormat()}
		if result != nil {
			audio = result.Audio
		}
		decoded, err := c.decoder.Decode(audio)
		if err != nil {
			return NewError(KindPlaybackStart, "controller.decode", err)
		}
		clip = decoded
		c.store.Attach(req.lang, req.norm, clip, nil)
	}
	if err := c.guard(ctx, gen); err != nil {
		return err
	}

	// Unlocking is latched inside the device, so only the first play
	// pays for it.
	readyCtx, cancelReady := context.WithTimeout(ctx, c.config.Playback.StartTimeout)
	err := c.device.Ready(readyCtx)
	cancelReady()
	if err != nil {
		if ctx.Err() != nil {
			return ErrSuperseded
		}
		return err
	}
	if err := c.guard(ctx, gen); err != nil {
		return err
	}

	track := c.timing.Track(req.words, providerPoints(result), clip.Duration())

	player, err := c.device.NewPlayer(clip)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.generation || c.disposed {
		c.mu.Unlock()
		player.Close()
		return ErrSuperseded
	}
	c.player = player
	c.mu.Unlock()

	player.Play()

	startCtx, cancelStart := context.WithTimeout(ctx, c.config.Playback.StartTimeout)
	started := awaitStart(startCtx, player)
	cancelStart()
	if !started {
		c.detachPlayer(gen, player)
		player.Close()
		if ctx.Err() != nil {
			return ErrSuperseded
		}
		return NewError(KindPlaybackStart, "controller.start", ErrStartTimeout)
	}

	c.mu.Lock()
	if gen != c.generation || c.disposed {
		c.mu.Unlock()
		player.Close()
		return ErrSuperseded
	}
	if c.machine.Current() == StateStarting {
		c.transitionLocked(StatePlaying)
	}
	if !rs.startEmitted {
		rs.startEmitted = true
		c.emitLocked(event{kind: evStart, line: req.line})
	}
	c.mu.Unlock()

	logger.Debug("Playback started", "duration", clip.Duration(), "words", track.Len())
	return c.watch(ctx, gen, req, player, track, clip.Duration())
}

// watch follows playback to its end, advancing the word cursor as the
// clip position crosses boundaries. A position frozen short of the clip
// length for a full watchdog window means the backend wedged; the error
// returns into the attempt ladder like a start failure.
func (c *Controller) watch(ctx context.Context, gen uint64, req playRequest, player ClipPlayer, track WordTrack, duration time.Duration) error {
	ticker := time.NewTicker(cursorPollInterval)
	defer ticker.Stop()

	lastPos := time.Duration(-1)
	lastMove := time.Now()
	for {
		select {
		case <-ctx.Done():
			player.Close()
			return ErrSuperseded

		case <-player.Done():
			return c.finish(gen, req, player, track, duration)

		case <-ticker.C:
			pos := player.Position()
			if pos != lastPos {
				lastPos = pos
				lastMove = time.Now()
			} else if time.Since(lastMove) >= c.config.Playback.StartTimeout {
				if pos >= duration {
					// Fully drained, only the done signal is missing.
					return c.finish(gen, req, player, track, duration)
				}
				c.detachPlayer(gen, player)
				player.Close()
				return NewError(KindPlaybackStart, "controller.watch", ErrPlaybackStalled)
			}
			c.emitWord(gen, track, pos)
		}
	}
}

// finish ends a playback that delivered its clip: flush the boundaries
// the last poll missed, emit the single end event, settle in Idle.
func (c *Controller) finish(gen uint64, req playRequest, player ClipPlayer, track WordTrack, duration time.Duration) error {
	c.emitWord(gen, track, duration)
	player.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.disposed {
		return ErrSuperseded
	}
	c.player = nil
	c.transitionLocked(StateEnded)
	c.emitLocked(event{kind: evEnd, line: req.line})
	c.transitionLocked(StateIdle)
	c.cancel = nil
	c.line = ""
	return nil
}

// fallback keeps the reading cursor moving after audio failed for good.
// The terminal error surfaces once through OnError, then words advance
// on a fixed timer and the line ends normally, so auto-advance never
// stalls on a broken provider or device.
func (c *Controller) fallback(ctx context.Context, gen uint64, req playRequest, rs *runState, cause error, logger *log.Logger) {
	c.mu.Lock()
	if gen != c.generation || c.disposed {
		c.mu.Unlock()
		return
	}
	logger.Error("Playback failed, continuing without audio", "err", cause)
	c.emitLocked(event{kind: evError, err: cause})
	if c.machine.Current() == StateStarting {
		c.transitionLocked(StatePlaying)
	}
	if !rs.startEmitted {
		rs.startEmitted = true
		c.emitLocked(event{kind: evStart, line: req.line})
	}
	if len(req.words) > 0 {
		c.emitLocked(event{kind: evWord, word: 0})
	}
	c.mu.Unlock()

	ticker := time.NewTicker(fallbackWordEvery)
	defer ticker.Stop()
	for i := 1; i < len(req.words); i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		if gen != c.generation || c.disposed {
			c.mu.Unlock()
			return
		}
		c.emitLocked(event{kind: evWord, word: i})
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.disposed {
		return
	}
	c.transitionLocked(StateFailed)
	c.emitLocked(event{kind: evEnd, line: req.line})
	c.transitionLocked(StateIdle)
	c.cancel = nil
	c.line = ""
}

// dispatch delivers queued events one at a time, outside the lock.
func (c *Controller) dispatch() {
	for {
		c.mu.Lock()
		for len(c.events) == 0 && !c.disposed {
			c.eventCond.Wait()
		}
		if len(c.events) == 0 {
			c.mu.Unlock()
			return
		}
		ev := c.events[0]
		c.events = c.events[1:]
		cb := c.callbacks
		c.mu.Unlock()

		switch ev.kind {
		case evStart:
			if cb.OnStart != nil {
				cb.OnStart(ev.line)
			}
		case evEnd:
			if cb.OnEnd != nil {
				cb.OnEnd(ev.line)
			}
		case evError:
			if cb.OnError != nil {
				cb.OnError(ev.err)
			}
		case evWord:
			if cb.OnWordChange != nil {
				cb.OnWordChange(ev.word)
			}
		}
	}
}

// emitLocked queues a callback event. Queueing under the state lock is
// what makes event order match state order.
func (c *Controller) emitLocked(ev event) {
	if c.disposed {
		return
	}
	c.events = append(c.events, ev)
	c.eventCond.Signal()
}

// emitWord advances the cursor to elapsed and queues OnWordChange when
// a boundary was crossed.
func (c *Controller) emitWord(gen uint64, track WordTrack, elapsed time.Duration) {
	idx, changed := track.Advance(elapsed)
	if !changed {
		return
	}
	c.mu.Lock()
	if gen == c.generation && !c.disposed {
		c.emitLocked(event{kind: evWord, word: idx})
	}
	c.mu.Unlock()
}

// teardownLocked cancels the active request and releases its player.
// Callers bump the generation first so the request's goroutine abandons
// quietly.
func (c *Controller) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.player != nil {
		c.player.Stop()
		c.player.Close()
		c.player = nil
	}
	c.line = ""
}

// settleLocked walks the machine back to Idle without emitting events.
func (c *Controller) settleLocked() {
	switch c.machine.Current() {
	case StateStarting, StatePlaying:
		c.transitionLocked(StateStopped)
		c.transitionLocked(StateIdle)
	case StateEnded, StateStopped, StateFailed:
		c.transitionLocked(StateIdle)
	}
}

func (c *Controller) transitionLocked(to StateType) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Error("Illegal state transition", "err", err)
	}
}

// guard is the crossing point after every blocking step of the playback
// goroutine: superseded work stops here.
func (c *Controller) guard(ctx context.Context, gen uint64) error {
	if ctx.Err() != nil {
		return ErrSuperseded
	}
	if !c.alive(gen) {
		return ErrSuperseded
	}
	return nil
}

func (c *Controller) alive(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation && !c.disposed
}

// detachPlayer clears the active player if it is still ours.
func (c *Controller) detachPlayer(gen uint64, player ClipPlayer) {
	c.mu.Lock()
	if gen == c.generation && c.player == player {
		c.player = nil
	}
	c.mu.Unlock()
}

// cachedFormat is the encoding of cached payloads: whatever the
// configured provider emits.
func (c *Controller) cachedFormat() AudioFormat {
	if f, ok := ParseAudioFormat(c.config.Provider.Format); ok {
		return f
	}
	return FormatMP3
}

func providerPoints(result *SynthesisResult) []Timepoint {
	if result == nil {
		return nil
	}
	return result.Timepoints
}

// awaitStart waits for the player to produce output. Position moves
// once the backend consumes samples, which is the closest signal the
// device gives for start of output. A clip that finishes before the
// first poll counts as started.
func awaitStart(ctx context.Context, player ClipPlayer) bool {
	ticker := time.NewTicker(startPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-player.Done():
			return true
		case <-ticker.C:
			if player.Position() > 0 {
				return true
			}
		}
	}
}
