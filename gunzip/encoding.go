package gunzip

import (
	"fmt"
	"strings"

	"github.com/etnz/library-versions/chunk"
	"github.com/klauspost/compress/zstd"
)

// Stage decodes a compressed stream from a cursor into an Emitter.
type Stage func(cur *chunk.Cursor, emit Emitter) error

// ForContentEncoding returns the Stage decoding the given HTTP content coding.
// It returns a nil Stage for the identity coding.
func ForContentEncoding(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity":
		return nil, nil
	case "gzip", "x-gzip":
		return func(cur *chunk.Cursor, emit Emitter) error { return Decode(cur, emit) }, nil
	case "deflate":
		return Inflate, nil
	case "zstd":
		return Unzstd, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}

// Unzstd decodes a Zstandard stream (RFC 8878) until the end of the input.
func Unzstd(cur *chunk.Cursor, emit Emitter) error {
	dec, err := zstd.NewReader(cur.Stream(), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return err
	}
	defer dec.Close()
	return drain(dec, DefaultBufferSize, emit)
}
