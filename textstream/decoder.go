// Package textstream decodes chunked bytes into text and text into lines,
// carrying partial characters and partial lines across chunk boundaries.
package textstream

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DefaultCharset is the charset used when none is configured.
const DefaultCharset = "utf-8"

const outputSize = 2048

// ErrMalformedText is matched by every MalformedTextError.
var ErrMalformedText = errors.New("malformed text")

// errUndecodable is the cause of a MalformedTextError for input a non-UTF-8
// charset decoder replaced with U+FFFD.
var errUndecodable = errors.New("malformed or unmappable input")

// MalformedTextError reports input the charset cannot decode, including a
// multi-byte sequence left incomplete at the end of the stream.
type MalformedTextError struct {
	Charset string
	// Offset is the position of the offending input, counted in bytes from
	// the start of the stream.
	Offset int64
	Err    error
}

func (e *MalformedTextError) Error() string {
	return fmt.Sprintf("invalid text: MALFORMED %s input at byte %d: %v", e.Charset, e.Offset, e.Err)
}

func (e *MalformedTextError) Is(target error) bool { return target == ErrMalformedText }

func (e *MalformedTextError) Unwrap() error { return e.Err }

// Decoder turns a stream of byte chunks into a stream of text chunks.
// Bytes of a character split across chunks are held back until the rest
// arrives.
type Decoder struct {
	charset string
	t       transform.Transformer
	// strict rejects U+FFFD in the output. x/text decoders substitute it
	// for input they cannot decode instead of failing.
	strict   bool
	residual []byte
	offset   int64 // stream position of residual[0]
}

// NewDecoder returns a Decoder for the named charset (IANA names and aliases).
// An empty name means DefaultCharset. Input is validated strictly in every
// charset: invalid or unmappable sequences are errors, never replacement
// characters. For charsets other than UTF-8 this means a U+FFFD actually
// encoded in the input is reported as malformed too.
func NewDecoder(charset string) (*Decoder, error) {
	if charset == "" {
		charset = DefaultCharset
	}
	switch strings.ToLower(charset) {
	case "utf-8", "utf8":
		return &Decoder{charset: charset, t: encoding.UTF8Validator}, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return &Decoder{charset: charset, t: enc.NewDecoder(), strict: true}, nil
}

// Write decodes as much of the residual plus b as possible, emitting the
// text produced. Bytes of an incomplete trailing character become the new
// residual.
func (d *Decoder) Write(b []byte, emit func(string) error) error {
	src := b
	if len(d.residual) > 0 {
		src = append(d.residual, b...)
	}
	rest, err := d.decode(src, false, emit)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		// Copy: b is owned by the producer.
		d.residual = append([]byte(nil), rest...)
	} else {
		d.residual = nil
	}
	return nil
}

// Close decodes whatever residual is left as the end of the stream and
// flushes the charset decoder. A residual that can never complete a
// character is reported as malformed.
func (d *Decoder) Close(emit func(string) error) error {
	_, err := d.decode(d.residual, true, emit)
	d.residual = nil
	return err
}

// decode runs the transformer over src and returns the unconsumed tail.
func (d *Decoder) decode(src []byte, atEOF bool, emit func(string) error) ([]byte, error) {
	dst := make([]byte, outputSize)
	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		if nDst > 0 {
			text := string(dst[:nDst])
			if d.strict {
				if i := strings.IndexRune(text, utf8.RuneError); i >= 0 {
					// Text before the bad input is still valid.
					if i > 0 {
						if err := emit(text[:i]); err != nil {
							return nil, err
						}
					}
					// The exact byte is lost in the decoder; report where
					// this run of input started.
					return nil, &MalformedTextError{Charset: d.charset, Offset: d.offset, Err: errUndecodable}
				}
			}
			if err := emit(text); err != nil {
				return nil, err
			}
		}
		src = src[nSrc:]
		d.offset += int64(nSrc)
		switch err {
		case nil:
			if atEOF {
				d.t.Reset()
			}
			return src, nil
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				// A single character does not fit; grow the output buffer.
				dst = make([]byte, 2*len(dst))
			}
		case transform.ErrShortSrc:
			if atEOF {
				return nil, &MalformedTextError{Charset: d.charset, Offset: d.offset, Err: err}
			}
			return src, nil
		default:
			return nil, &MalformedTextError{Charset: d.charset, Offset: d.offset, Err: err}
		}
	}
}
