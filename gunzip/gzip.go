// Package gunzip decompresses chunked byte streams read through a
// chunk.Cursor, emitting decompressed buffers as soon as they are produced.
//
// The gzip container (RFC 1952) is parsed here; raw DEFLATE inflation is
// delegated to github.com/klauspost/compress/flate and checksums to
// hash/crc32. Multi-member gzip files and preset dictionaries are not
// supported.
package gunzip

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/etnz/library-versions/chunk"
	"github.com/klauspost/compress/flate"
)

const (
	gzipMagic   = 0x8b1f
	methodFlate = 8

	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

// DefaultBufferSize is the size of the buffers a Decoder emits at most.
const DefaultBufferSize = 2048

// Emitter receives decompressed buffers. A buffer is never reused by the
// decoder. Returning an error aborts decoding with that error.
type Emitter func([]byte) error

// State is the position of a Decoder in the gzip container.
type State int

const (
	StateHeader State = iota
	StateBody
	StateTrailer
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateHeader:
		return "header"
	case StateBody:
		return "body"
	case StateTrailer:
		return "trailer"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithHeaderCRC sets whether an FHCRC header checksum is validated (the
// default) or only consumed.
func WithHeaderCRC(validate bool) Option {
	return func(d *Decoder) { d.checkHeaderCRC = validate }
}

// WithBufferSize sets the maximum size of emitted buffers.
func WithBufferSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.bufSize = n
		}
	}
}

// Decoder decodes one gzip member from a Cursor.
type Decoder struct {
	cur            *chunk.Cursor
	state          State
	err            error
	checkHeaderCRC bool
	bufSize        int

	crc  uint32 // running CRC32 of the decompressed data
	size uint32 // decompressed bytes, modulo 2^32
}

// NewDecoder returns a Decoder reading the gzip stream from cur.
func NewDecoder(cur *chunk.Cursor, opts ...Option) *Decoder {
	d := &Decoder{cur: cur, checkHeaderCRC: true, bufSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode is a shortcut for NewDecoder(cur, opts...).Run(emit).
func Decode(cur *chunk.Cursor, emit Emitter, opts ...Option) error {
	return NewDecoder(cur, opts...).Run(emit)
}

// State returns the current state of the decoder.
func (d *Decoder) State() State { return d.state }

// Run drives the decoder to completion, emitting decompressed data as it
// goes. The stream must end right after the trailer: anything else fails
// with ErrTrailingData, after the first member has been emitted. Once Run
// has failed, it keeps returning the same error.
func (d *Decoder) Run(emit Emitter) error {
	for {
		var err error
		switch d.state {
		case StateHeader:
			if err = d.readHeader(); err == nil {
				d.state = StateBody
			}
		case StateBody:
			if err = d.inflate(emit); err == nil {
				d.state = StateTrailer
			}
		case StateTrailer:
			if err = d.readTrailer(); err == nil {
				err = d.checkEnd()
			}
			if err == nil {
				d.state = StateDone
			}
		case StateDone:
			return nil
		case StateFailed:
			return d.err
		}
		if err != nil {
			d.state, d.err = StateFailed, err
			return err
		}
	}
}

// headerReader reads header bytes through the cursor while keeping the CRC32
// the FHCRC field is checked against.
type headerReader struct {
	cur *chunk.Cursor
	crc uint32
}

func (h *headerReader) byte() (byte, error) {
	b, err := h.cur.ReadByte()
	if err != nil {
		return 0, err
	}
	h.crc = crc32.Update(h.crc, crc32.IEEETable, []byte{b})
	return b, nil
}

func (h *headerReader) u16() (uint16, error) {
	lo, err := h.byte()
	if err != nil {
		return 0, err
	}
	hi, err := h.byte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (h *headerReader) skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := h.byte(); err != nil {
			return err
		}
	}
	return nil
}

func (h *headerReader) skipString() error {
	for {
		b, err := h.byte()
		if err != nil {
			return err
		}
		if b == 0 {
			return nil
		}
	}
}

func (d *Decoder) readHeader() error {
	h := &headerReader{cur: d.cur}
	magic, err := h.u16()
	if err != nil {
		return err
	}
	if magic != gzipMagic {
		return ErrNotGzipFormat
	}
	method, err := h.byte()
	if err != nil {
		return err
	}
	if method != methodFlate {
		return fmt.Errorf("%w: %d", ErrUnsupportedMethod, method)
	}
	flags, err := h.byte()
	if err != nil {
		return err
	}
	// mtime, extra flags and OS are not used.
	if err := h.skip(6); err != nil {
		return err
	}
	if flags&flagExtra != 0 {
		n, err := h.u16()
		if err != nil {
			return err
		}
		if err := h.skip(int(n)); err != nil {
			return err
		}
	}
	if flags&flagName != 0 {
		if err := h.skipString(); err != nil {
			return err
		}
	}
	if flags&flagComment != 0 {
		if err := h.skipString(); err != nil {
			return err
		}
	}
	if flags&flagHdrCrc != 0 {
		computed := uint16(h.crc)
		stored, err := d.cur.ReadU16LE()
		if err != nil {
			return err
		}
		if d.checkHeaderCRC && stored != computed {
			return &CRCMismatchError{Checksum: "header crc16", Expected: uint32(stored), Actual: uint32(computed)}
		}
	}
	return nil
}

func (d *Decoder) inflate(emit Emitter) error {
	fr := flate.NewReader(d.cur)
	defer fr.Close()
	return drain(fr, d.bufSize, func(b []byte) error {
		d.crc = crc32.Update(d.crc, crc32.IEEETable, b)
		d.size += uint32(len(b))
		return emit(b)
	})
}

func (d *Decoder) readTrailer() error {
	theirCRC, err := d.cur.ReadU32LE()
	if err != nil {
		return err
	}
	theirSize, err := d.cur.ReadU32LE()
	if err != nil {
		return err
	}
	var errs []error
	if theirCRC != d.crc {
		errs = append(errs, &CRCMismatchError{Checksum: "crc32", Expected: theirCRC, Actual: d.crc})
	}
	if theirSize != d.size {
		errs = append(errs, &LengthMismatchError{Expected: theirSize, Actual: d.size})
	}
	return errors.Join(errs...)
}

// checkEnd fails if the source has any byte left after the trailer.
func (d *Decoder) checkEnd() error {
	for {
		ch, err := d.cur.NextChunk()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ch.Remaining() > 0 {
			d.cur.PutBack(ch)
			return ErrTrailingData
		}
	}
}

// drain reads r until io.EOF, emitting each read into a fresh buffer.
func drain(r io.Reader, size int, emit Emitter) error {
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			if err := emit(buf[:n]); err != nil {
				return err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return inflateError(err)
		}
	}
}

// inflateError maps decompressor errors onto this package's taxonomy.
func inflateError(err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, chunk.ErrTruncatedInput):
		return err
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", chunk.ErrTruncatedInput, err)
	case errors.As(err, &corrupt):
		return fmt.Errorf("%w: %v", ErrCorruptInput, err)
	default:
		return err
	}
}
