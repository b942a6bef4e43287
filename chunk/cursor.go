package chunk

import (
	"context"
	"errors"
	"io"
)

// ErrTruncatedInput is returned when the upstream source ends while a read
// still needs bytes. Callers may retry the fetch: the payload was cut short,
// not found to be corrupt.
var ErrTruncatedInput = errors.New("truncated input")

// Cursor reads bytes out of the chunks of a Source.
//
// It holds at most one current chunk. NextChunk hands that chunk (or a new
// one) to the caller, who may hand back what it did not consume with
// PutBack. There is exactly one reader, so no locking is done.
type Cursor struct {
	ctx     context.Context
	src     Source
	current *Chunk
}

// NewCursor returns a Cursor reading from src. ctx bounds every wait for
// upstream chunks.
func NewCursor(ctx context.Context, src Source) *Cursor {
	return &Cursor{ctx: ctx, src: src}
}

// NextChunk returns the chunk previously handed back, if any, or waits for
// the next chunk from the source. It returns io.EOF when the source is
// exhausted.
func (c *Cursor) NextChunk() (*Chunk, error) {
	if ch := c.current; ch != nil {
		c.current = nil
		return ch, nil
	}
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	b, err := c.src.Next(c.ctx)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

// PutBack hands a partially consumed chunk back for later reads.
// It panics if a chunk is already held: that is a bug in the caller.
func (c *Cursor) PutBack(ch *Chunk) {
	if c.current != nil {
		panic("chunk: had already pulled a buffer when PutBack was called")
	}
	c.current = ch
}

// buffer returns a chunk with remaining bytes, pulling from the source as
// needed. The chunk stays in the slot.
func (c *Cursor) buffer() (*Chunk, error) {
	for {
		if ch := c.current; ch != nil && ch.Remaining() > 0 {
			return ch, nil
		}
		c.current = nil
		ch, err := c.NextChunk()
		if err == io.EOF {
			return nil, ErrTruncatedInput
		}
		if err != nil {
			return nil, err
		}
		c.current = ch
	}
}

// ReadByte consumes one byte, waiting for upstream chunks if needed.
func (c *Cursor) ReadByte() (byte, error) {
	ch, err := c.buffer()
	if err != nil {
		return 0, err
	}
	b, _ := ch.ReadByte()
	return b, nil
}

// ReadU16LE reads a little-endian uint16.
func (c *Cursor) ReadU16LE() (uint16, error) {
	lo, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	hi, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// ReadU32LE reads a little-endian uint32.
func (c *Cursor) ReadU32LE() (uint32, error) {
	lo, err := c.ReadU16LE()
	if err != nil {
		return 0, err
	}
	hi, err := c.ReadU16LE()
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// Skip discards n bytes.
func (c *Cursor) Skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := c.ReadByte(); err != nil {
			return err
		}
	}
	return nil
}

// Read copies as many bytes as the current chunk holds into p and hands the
// rest of the chunk back. Running out of input is ErrTruncatedInput.
//
// Together with ReadByte this makes the Cursor a flate.Reader: a decompressor
// reading from it consumes exactly the bytes of its stream and leaves
// whatever follows in the cursor.
func (c *Cursor) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	ch, err := c.buffer()
	if err != nil {
		return 0, err
	}
	c.current = nil
	n := copy(p, ch.Bytes())
	ch.Advance(n)
	if ch.Remaining() > 0 {
		c.PutBack(ch)
	}
	return n, nil
}

// Stream returns an io.Reader over the remaining input that reports io.EOF
// at the clean end of the source, for stages that read until the end.
func (c *Cursor) Stream() io.Reader {
	return streamReader{c}
}

type streamReader struct{ c *Cursor }

func (r streamReader) Read(p []byte) (int, error) {
	n, err := r.c.Read(p)
	if err == ErrTruncatedInput {
		return n, io.EOF
	}
	return n, err
}
