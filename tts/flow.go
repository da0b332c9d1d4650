package tts

import (
	"sync"

	"github.com/dgnsrekt/shravan/tts/text"
)

// Flow tracks the reading position inside a document: which line is
// current, which word inside it, and the language the document reads
// in. Every position change clamps into range, so callers can feed it
// raw input without bounds checks. Flow is pure state; the Engine
// decides when a move triggers playback or prefetch.
type Flow struct {
	mu     sync.Mutex
	lines  []string
	lang   string
	line   int
	word   int
	tokens []string
}

// NewFlow returns an empty flow reading in lang.
func NewFlow(lang string) *Flow {
	return &Flow{lang: lang}
}

// SetLines replaces the document and rewinds to the first word of the
// first line.
func (f *Flow) SetLines(lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append([]string(nil), lines...)
	f.line = 0
	f.word = 0
	f.retokenizeLocked()
}

// SetLanguage switches the reading language. The current line is
// retokenized under the new language.
func (f *Flow) SetLanguage(lang string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lang == "" || lang == f.lang {
		return
	}
	f.lang = lang
	f.retokenizeLocked()
}

// Language returns the reading language.
func (f *Flow) Language() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lang
}

// Len returns the number of document lines.
func (f *Flow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}

// Position returns the current line and word indices.
func (f *Flow) Position() (line, word int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line, f.word
}

// Line returns the current line's text, or "" on an empty document.
func (f *Flow) Line() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lineAtLocked(f.line)
}

// LineAt returns the text of line i, clamped into the document.
func (f *Flow) LineAt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lineAtLocked(clamp(i, len(f.lines)))
}

// Tokens returns the spoken words of the current line.
func (f *Flow) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// SeekLine jumps to line i, clamped into the document, and rewinds the
// word cursor to 0. It returns the line actually reached.
func (f *Flow) SeekLine(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.line = clamp(i, len(f.lines))
	f.word = 0
	f.retokenizeLocked()
	return f.line
}

// SeekWord jumps to word i of the current line, clamped into its
// tokens. It returns the word actually reached.
func (f *Flow) SeekWord(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.word = clamp(i, len(f.tokens))
	return f.word
}

// Next advances one word, crossing into the next line when the current
// one is exhausted. At the end of the document it reports false and
// stays put.
func (f *Flow) Next() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.word+1 < len(f.tokens) {
		f.word++
		return true
	}
	for next := f.line + 1; next < len(f.lines); next++ {
		tokens := text.Tokenize(f.lines[next])
		if len(tokens) == 0 {
			// Decoration-only lines have nothing to speak; skip them.
			continue
		}
		f.line = next
		f.word = 0
		f.tokens = tokens
		return true
	}
	return false
}

// Prev retreats one word, crossing onto the last word of the previous
// line at a line start. At the beginning of the document it reports
// false and stays put.
func (f *Flow) Prev() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.word > 0 {
		f.word--
		return true
	}
	for prev := f.line - 1; prev >= 0; prev-- {
		tokens := text.Tokenize(f.lines[prev])
		if len(tokens) == 0 {
			continue
		}
		f.line = prev
		f.word = len(tokens) - 1
		f.tokens = tokens
		return true
	}
	return false
}

// RestartLine rewinds the word cursor to the start of the current line.
func (f *Flow) RestartLine() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.word = 0
}

func (f *Flow) lineAtLocked(i int) string {
	if i < 0 || i >= len(f.lines) {
		return ""
	}
	return f.lines[i]
}

func (f *Flow) retokenizeLocked() {
	f.tokens = text.Tokenize(f.lineAtLocked(f.line))
}

// clamp forces i into [0, n-1]. An empty range yields 0.
func clamp(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
