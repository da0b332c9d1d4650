package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"golang.org/x/term"
)

var (
	statusPlayStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusWordStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFF00"))
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

// statusLine paints playback progress for the line being spoken. On a
// terminal the line redraws in place as the word cursor moves;
// anywhere else it degrades to one plain line per verse.
type statusLine struct {
	mu        sync.Mutex
	w         io.Writer
	terminal  bool
	width     int
	total     int
	index     int
	line      string
	tokens    []string
	word      int
	lastWidth int
}

func newStatusLine(f *os.File, total int) *statusLine {
	s := &statusLine{w: f, total: total, word: -1, width: 80}
	if term.IsTerminal(int(f.Fd())) {
		s.terminal = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			s.width = w
		}
	}
	return s
}

// begin announces a new line. The word cursor resets until the first
// boundary arrives.
func (s *statusLine) begin(index int, line string, tokens []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index, s.line, s.tokens, s.word = index, line, tokens, -1
	if !s.terminal {
		fmt.Fprintf(s.w, "%d/%d %s\n", index+1, s.total, line)
		return
	}
	s.paint()
}

// wordAt moves the highlight to the given word index.
func (s *statusLine) wordAt(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.word = i
	if s.terminal {
		s.paint()
	}
}

// end closes out the painted line.
func (s *statusLine) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal && s.lastWidth > 0 {
		fmt.Fprint(s.w, "\n")
		s.lastWidth = 0
	}
}

// fail reports a playback error on its own line. The silent fallback
// repaints right after, so nothing is cleared here beyond the cursor.
func (s *statusLine) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal && s.lastWidth > 0 {
		fmt.Fprint(s.w, "\n")
		s.lastWidth = 0
	}
	fmt.Fprintln(s.w, statusErrorStyle.Render("✗ "+err.Error()))
}

func (s *statusLine) paint() {
	prefix := statusPlayStyle.Render("▶ ") + statusDimStyle.Render(fmt.Sprintf("%d/%d ", s.index+1, s.total))
	avail := s.width - ansi.PrintableRuneWidth(prefix) - 1
	out := prefix + s.renderBody(avail)

	w := ansi.PrintableRuneWidth(out)
	pad := ""
	if s.lastWidth > w {
		pad = strings.Repeat(" ", s.lastWidth-w)
	}
	fmt.Fprint(s.w, "\r"+out+pad)
	s.lastWidth = w
}

// renderBody lays the verse words out in the available columns with
// the current word highlighted. When the line does not fit, rendering
// restarts at the current word so the highlight stays visible.
func (s *statusLine) renderBody(avail int) string {
	if avail < 4 {
		return ""
	}
	if len(s.tokens) == 0 {
		return statusDimStyle.Render(runewidth.Truncate(s.line, avail, "…"))
	}

	full := s.renderTokens(0)
	if ansi.PrintableRuneWidth(full) <= avail {
		return full
	}

	from := s.word
	if from < 0 {
		from = 0
	}
	tail := statusDimStyle.Render("… ") + s.renderTokens(from)
	return truncate.StringWithTail(tail, uint(avail), "…") //nolint:gosec
}

func (s *statusLine) renderTokens(from int) string {
	parts := make([]string, 0, len(s.tokens)-from)
	for i := from; i < len(s.tokens); i++ {
		if i == s.word {
			parts = append(parts, statusWordStyle.Render(s.tokens[i]))
			continue
		}
		parts = append(parts, s.tokens[i])
	}
	return strings.Join(parts, " ")
}
