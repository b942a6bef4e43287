package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/etnz/library-versions/chunk"
	"github.com/etnz/library-versions/gunzip"
	"github.com/etnz/library-versions/textstream"
)

// Error classes returned by Classify.
const (
	ClassTruncated   = "truncated"
	ClassFormat      = "format"
	ClassCorrupt     = "corrupt"
	ClassChecksum    = "checksum"
	ClassLength      = "length"
	ClassMalformed   = "malformed"
	ClassLineTooLong = "line_too_long"
	ClassCanceled    = "canceled"
	ClassOther       = "other"
)

// Classify returns a short, stable name for the kind of failure err is. It
// is used as a metric label and in log lines.
func Classify(err error) string {
	var (
		crc    *gunzip.CRCMismatchError
		length *gunzip.LengthMismatchError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	case errors.Is(err, chunk.ErrTruncatedInput), errors.Is(err, io.ErrUnexpectedEOF):
		return ClassTruncated
	case errors.As(err, &crc):
		return ClassChecksum
	case errors.As(err, &length):
		return ClassLength
	case errors.Is(err, gunzip.ErrCorruptInput):
		return ClassCorrupt
	case errors.Is(err, gunzip.ErrNotGzipFormat),
		errors.Is(err, gunzip.ErrNotZlibFormat),
		errors.Is(err, gunzip.ErrUnsupportedMethod),
		errors.Is(err, gunzip.ErrDictionaryNotSupported),
		errors.Is(err, gunzip.ErrUnsupportedEncoding),
		errors.Is(err, gunzip.ErrTrailingData):
		return ClassFormat
	case errors.Is(err, textstream.ErrMalformedText):
		return ClassMalformed
	case errors.Is(err, textstream.ErrLineTooLong):
		return ClassLineTooLong
	}
	return ClassOther
}

// Retryable reports whether fetching the same resource again may succeed.
// Only a stream that ended early qualifies; corrupt or mismatched content
// would fail the same way.
func Retryable(err error) bool {
	return Classify(err) == ClassTruncated
}
