package gunzip

import (
	"errors"
	"fmt"
)

var (
	// ErrNotGzipFormat is returned when the stream does not start with the
	// gzip magic number.
	ErrNotGzipFormat = errors.New("not in gzip format")
	// ErrNotZlibFormat is returned when a zlib header fails its check bits.
	ErrNotZlibFormat = errors.New("not in zlib format")
	// ErrUnsupportedMethod is returned for a compression method other than
	// DEFLATE.
	ErrUnsupportedMethod = errors.New("unsupported compression method")
	// ErrDictionaryNotSupported is returned when the stream requires a preset
	// dictionary.
	ErrDictionaryNotSupported = errors.New("inflater needs dictionary: not implemented")
	// ErrTrailingData is returned when bytes follow the gzip trailer, as in
	// a multi-member file. Only the first member is decoded.
	ErrTrailingData = errors.New("data after gzip trailer: multi-member gzip not supported")
	// ErrCorruptInput is returned when the compressed data itself is invalid.
	ErrCorruptInput = errors.New("corrupt compressed data")
	// ErrUnsupportedEncoding is returned by ForContentEncoding for an unknown
	// content coding.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// CRCMismatchError reports a checksum stored in the stream that disagrees
// with the one computed over the decompressed data.
type CRCMismatchError struct {
	// Checksum names the algorithm: "crc32", "adler32" or "header crc16".
	Checksum string
	// Expected is the value stored in the stream.
	Expected uint32
	// Actual is the value computed while decoding.
	Actual uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("%s error in decompressed content; ours=0x%08x theirs=0x%08x", e.Checksum, e.Actual, e.Expected)
}

// LengthMismatchError reports a trailer size that disagrees with the number of
// bytes produced (modulo 2^32).
type LengthMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length differs in decompressed content; ours=%d theirs=%d", e.Actual, e.Expected)
}
