// Package sanitize strips or visualizes ANSI terminal control sequences in
// text flowing toward the MCP host: tool descriptions, tool result text
// content, and instructions surfaced to review UIs.
//
// The sanitizer is a stateless pure-function component, in the same shape
// as the teacher's validation.Sanitizer: a zero-value-usable struct with
// pure methods, no internal mutable state.
package sanitize

import (
	"regexp"
	"strings"
)

// Mode selects how control sequences are handled.
type Mode int

const (
	// Strip removes CSI, OSC, and C1 control sequences entirely. Default.
	Strip Mode = iota
	// Visualize replaces the ESC byte with the literal text "ESC" and
	// leaves the remainder of the sequence visible, so a human reviewer can
	// see exactly what the downstream server sent.
	Visualize
)

// csiPattern matches CSI sequences: ESC '[' followed by parameter/intermediate
// bytes (0x30-0x3F, 0x20-0x2F) and a single final byte (0x40-0x7E).
var csiPattern = regexp.MustCompile("\x1b\\[[0-\x3f]*[\x20-\x2f]*[\x40-\x7e]")

// oscPattern matches OSC sequences: ESC ']' ... terminated by BEL (\a) or
// ST (ESC '\').
var oscPattern = regexp.MustCompile("\x1b\\][^\x07\x1b]*(\x07|\x1b\\\\)?")

// Sanitizer strips or visualizes ANSI escapes. The zero value is ready to
// use.
type Sanitizer struct{}

// New returns a ready-to-use Sanitizer.
func New() *Sanitizer {
	return &Sanitizer{}
}

// Sanitize applies mode to s.
func (Sanitizer) Sanitize(s string, mode Mode) string {
	switch mode {
	case Visualize:
		return visualize(s)
	default:
		return strip(s)
	}
}

func strip(s string) string {
	s = csiPattern.ReplaceAllString(s, "")
	s = oscPattern.ReplaceAllString(s, "")
	return stripC1(s)
}

// stripC1 removes single-byte C0/C1 control characters other than tab,
// newline, and carriage return. It runs after CSI/OSC stripping so it only
// needs to handle lone control bytes (e.g. a bare ESC not part of a
// recognized sequence, or other C0 controls).
func stripC1(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		// C1 control range (U+0080-U+009F) when decoded as Unicode code
		// points from UTF-8 input.
		if r >= 0x80 && r <= 0x9f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// visualize replaces every ESC byte (0x1B) with the literal four
// characters "ESC", leaving the rest of any sequence visible.
func visualize(s string) string {
	return strings.ReplaceAll(s, "\x1b", "ESC")
}
