package chunk

import (
	"context"
	"io"
)

// DefaultSize is the read size Produce uses when none is given.
const DefaultSize = 16 * 1024

// Feed is a Source backed by a goroutine reading an io.Reader.
//
// Chunks are handed over an unbuffered channel: the producer blocks until the
// consumer asks for the next chunk, so it is never more than one read ahead
// of the consumer and never drains the reader on its own.
type Feed struct {
	ch     chan []byte
	cancel context.CancelFunc
	err    error // set before ch is closed
}

// Produce starts reading r in the background, size bytes at a time.
// The goroutine exits when r is exhausted, on a read error, or when ctx is
// cancelled or Close is called.
func Produce(ctx context.Context, r io.Reader, size int) *Feed {
	if size <= 0 {
		size = DefaultSize
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{ch: make(chan []byte), cancel: cancel}
	go f.run(ctx, r, size)
	return f
}

func (f *Feed) run(ctx context.Context, r io.Reader, size int) {
	defer close(f.ch)
	for {
		// A fresh buffer per chunk: the consumer owns what it receives.
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case f.ch <- buf[:n]:
			case <-ctx.Done():
				f.err = ctx.Err()
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			f.err = err
			return
		}
	}
}

// Next returns the next chunk read from the underlying reader.
func (f *Feed) Next(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-f.ch:
		if !ok {
			if f.err != nil {
				return nil, f.err
			}
			return nil, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the producer. It does not close the underlying reader.
func (f *Feed) Close() error {
	f.cancel()
	return nil
}
