package tts

import (
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// Engine is the public face of the package: playback, navigation and
// cache warming behind one handle. It owns the store and the device
// for its lifetime; Dispose releases everything.
type Engine struct {
	controller *Controller
	flow       *Flow
	prefetch   *Prefetcher
	store      Store
	config     Config
	logger     *log.Logger

	mu       sync.Mutex
	disposed bool
}

// NewEngine validates the configuration and assembles the engine.
// Configuration problems fail here, before any audio or network work.
func NewEngine(cfg Config, deps ControllerDeps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	controller, err := NewController(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := deps.Synth.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	e := &Engine{
		controller: controller,
		flow:       NewFlow(cfg.Language),
		prefetch:   NewPrefetcher(cfg, deps.Synth, deps.Store, logger),
		store:      deps.Store,
		config:     cfg,
		logger:     logger,
	}
	logger.Debug("Engine ready", "provider", deps.Synth.Name(), "language", cfg.Language)
	return e, nil
}

// SetCallbacks registers the playback subscribers.
func (e *Engine) SetCallbacks(cb Callbacks) {
	e.controller.SetCallbacks(cb)
}

// SetDocument loads the verse lines to read and rewinds to the start.
// The first lines warm in the background.
func (e *Engine) SetDocument(lines []string) {
	e.flow.SetLines(lines)
	e.warmAhead()
}

// SetLanguage switches the reading language for navigation and
// subsequent plays.
func (e *Engine) SetLanguage(lang string) {
	e.flow.SetLanguage(lang)
}

// PlayLine speaks an arbitrary line, outside document navigation.
func (e *Engine) PlayLine(line, lang string, words []string) error {
	return e.controller.PlayLine(line, lang, words)
}

// PlayCurrent speaks the line the flow points at and warms the lines
// behind it.
func (e *Engine) PlayCurrent() error {
	line := e.flow.Line()
	if line == "" && e.flow.Len() == 0 {
		return ErrNotPlaying
	}
	e.warmAhead()
	return e.controller.PlayLine(line, e.flow.Language(), e.flow.Tokens())
}

// Stop halts playback, emitting the line's single OnEnd.
func (e *Engine) Stop() {
	e.controller.Stop()
}

// IsPlaying reports whether a line is being started or spoken.
func (e *Engine) IsPlaying() bool {
	return e.controller.IsPlaying()
}

// State returns the playback lifecycle state.
func (e *Engine) State() StateType {
	return e.controller.State()
}

// SeekLine jumps to a line, clamped into the document, rewinding the
// word cursor. It returns the line actually reached.
func (e *Engine) SeekLine(i int) int {
	line := e.flow.SeekLine(i)
	e.warmAhead()
	return line
}

// SeekWord jumps to a word of the current line, clamped into its
// tokens. It returns the word actually reached.
func (e *Engine) SeekWord(i int) int {
	return e.flow.SeekWord(i)
}

// Next advances the word cursor, crossing line boundaries. It reports
// false at the end of the document.
func (e *Engine) Next() bool {
	moved := e.flow.Next()
	if moved {
		e.warmAhead()
	}
	return moved
}

// Prev retreats the word cursor, crossing line boundaries. It reports
// false at the start of the document.
func (e *Engine) Prev() bool {
	return e.flow.Prev()
}

// RestartLine rewinds to the first word of the current line and plays
// it again.
func (e *Engine) RestartLine() error {
	e.flow.RestartLine()
	return e.PlayCurrent()
}

// Position returns the current line and word indices.
func (e *Engine) Position() (line, word int) {
	return e.flow.Position()
}

// Lines returns the number of document lines.
func (e *Engine) Lines() int {
	return e.flow.Len()
}

// Line returns the current line's text.
func (e *Engine) Line() string {
	return e.flow.Line()
}

// Tokens returns the spoken words of the current line.
func (e *Engine) Tokens() []string {
	return e.flow.Tokens()
}

// Dispose stops playback and releases the device, the warmer and the
// store. Idempotent.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.mu.Unlock()

	e.controller.Dispose()
	e.prefetch.Close()
	if err := e.store.Close(); err != nil {
		e.logger.Warn("Store close failed", "err", err)
	}
}

// warmAhead queues the lookahead window behind the current line.
// Nearer lines carry higher priority so the warm order follows the
// reader.
func (e *Engine) warmAhead() {
	lang := e.flow.Language()
	line, _ := e.flow.Position()
	total := e.flow.Len()
	ahead := e.config.Prefetch.Lookahead
	for i := 1; i <= ahead; i++ {
		next := line + i
		if next >= total {
			break
		}
		e.prefetch.Warm(e.flow.LineAt(next), lang, next, ahead-i)
	}
}
