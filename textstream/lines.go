package textstream

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLineTooLong is returned when a pending line grows past Framer.MaxLine.
var ErrLineTooLong = errors.New("line too long")

// DefaultSeparator ends a line unless another separator is configured.
const DefaultSeparator = "\n"

// Framer splits a stream of text chunks into lines. The separator is not part
// of the emitted lines.
type Framer struct {
	// MaxLine bounds the length of a pending line, so that a stream without
	// separators cannot grow the residual without limit. Zero means no limit.
	MaxLine int

	sep string
	// residual is appended to, never rebuilt, so a long line costs time
	// linear in its length.
	residual strings.Builder
}

// NewFramer returns a Framer splitting on sep, or DefaultSeparator if sep is
// empty.
func NewFramer(sep string) *Framer {
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Framer{sep: sep}
}

// Write emits every line completed by text. The text after the last
// separator is kept until the next call.
func (f *Framer) Write(text string, emit func(string) error) error {
	pos := 0
	if n := f.residual.Len(); n > 0 {
		pending := f.residual.String()
		if k := f.splitSeparator(pending, text); k >= 0 {
			f.residual.Reset()
			if err := emit(pending[:k]); err != nil {
				return err
			}
			pos = len(f.sep) - (n - k)
		} else {
			i := strings.Index(text, f.sep)
			if i < 0 {
				f.residual.WriteString(text)
				return f.checkResidual()
			}
			f.residual.Reset()
			if err := emit(pending + text[:i]); err != nil {
				return err
			}
			pos = i + len(f.sep)
		}
	}
	for {
		i := strings.Index(text[pos:], f.sep)
		if i < 0 {
			break
		}
		if err := emit(text[pos : pos+i]); err != nil {
			return err
		}
		pos += i + len(f.sep)
	}
	f.residual.WriteString(text[pos:])
	return f.checkResidual()
}

// splitSeparator returns where a separator starts in pending when it ends in
// text, or -1. That happens when a multi-character separator was split
// across chunks.
func (f *Framer) splitSeparator(pending, text string) int {
	for k := max(0, len(pending)-len(f.sep)+1); k < len(pending); k++ {
		m := len(pending) - k
		if pending[k:] == f.sep[:m] && strings.HasPrefix(text, f.sep[m:]) {
			return k
		}
	}
	return -1
}

func (f *Framer) checkResidual() error {
	if f.MaxLine > 0 && f.residual.Len() > f.MaxLine {
		return fmt.Errorf("%w: more than %d bytes without %q", ErrLineTooLong, f.MaxLine, f.sep)
	}
	return nil
}

// Close emits the final line if the stream did not end with a separator.
// Lines emitted by a Framer are therefore not all terminated in the source.
func (f *Framer) Close(emit func(string) error) error {
	if f.residual.Len() == 0 {
		return nil
	}
	line := f.residual.String()
	f.residual.Reset()
	return emit(line)
}
