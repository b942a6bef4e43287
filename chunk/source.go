package chunk

import (
	"context"
	"io"
)

// Source produces chunks on demand. Next returns io.EOF once the upstream is
// exhausted; the end of stream is a signal, never a chunk. A returned slice
// belongs to the caller.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]byte, error)

// Next calls f(ctx).
func (f SourceFunc) Next(ctx context.Context) ([]byte, error) { return f(ctx) }

// Slices returns a Source that yields the given chunks in order.
func Slices(chunks ...[]byte) Source {
	i := 0
	return SourceFunc(func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i >= len(chunks) {
			return nil, io.EOF
		}
		b := chunks[i]
		i++
		return b, nil
	})
}

// Split cuts b into chunks of at most size bytes.
func Split(b []byte, size int) [][]byte {
	if size <= 0 {
		size = len(b)
	}
	var out [][]byte
	for len(b) > size {
		out = append(out, b[:size:size])
		b = b[size:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}

// Tee calls fn with every chunk src produces, before handing it on.
// It is used to hash or count the raw bytes of a stream while it flows.
func Tee(src Source, fn func([]byte)) Source {
	return SourceFunc(func(ctx context.Context) ([]byte, error) {
		b, err := src.Next(ctx)
		if err != nil {
			return nil, err
		}
		fn(b)
		return b, nil
	})
}

// FromReader returns a Source reading r synchronously, size bytes at a time.
// Unlike Produce it starts no goroutine: r is only read from within Next.
func FromReader(r io.Reader, size int) Source {
	if size <= 0 {
		size = DefaultSize
	}
	return SourceFunc(func(ctx context.Context) ([]byte, error) {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			buf := make([]byte, size)
			n, err := r.Read(buf)
			if n > 0 {
				// A final chunk and io.EOF may come together; EOF is
				// reported by the next call.
				return buf[:n], nil
			}
			if err != nil {
				return nil, err
			}
		}
	})
}
