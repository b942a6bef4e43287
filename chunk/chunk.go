// Package chunk turns a push-style sequence of immutable byte chunks into a
// pull-style reading interface.
//
// A Source hands out chunks (typically slices of an HTTP response body as
// they arrive) and a Cursor reads bytes from them one at a time or in bulk,
// suspending when the current chunk is exhausted. Chunk boundaries never
// need to line up with anything structural in the payload.
package chunk

// Chunk is a read-once view over a byte range. Its position only moves
// forward; a chunk is either consumed or handed back to its Cursor.
type Chunk struct {
	buf []byte
	pos int
}

// New wraps b. The caller must not modify b afterwards.
func New(b []byte) *Chunk {
	return &Chunk{buf: b}
}

// Remaining returns the number of unconsumed bytes.
func (c *Chunk) Remaining() int {
	return len(c.buf) - c.pos
}

// Bytes returns the unconsumed bytes without consuming them.
func (c *Chunk) Bytes() []byte {
	return c.buf[c.pos:]
}

// Advance consumes n bytes.
func (c *Chunk) Advance(n int) {
	if n < 0 || n > c.Remaining() {
		panic("chunk: advance out of range")
	}
	c.pos += n
}

// ReadByte consumes one byte. ok is false when the chunk is exhausted.
func (c *Chunk) ReadByte() (b byte, ok bool) {
	if c.pos >= len(c.buf) {
		return 0, false
	}
	b = c.buf[c.pos]
	c.pos++
	return b, true
}
