package gunzip

import (
	"fmt"
	"hash/adler32"

	"github.com/etnz/library-versions/chunk"
	"github.com/klauspost/compress/flate"
)

const zlibDict = 0x20

// Inflate decodes a zlib-wrapped DEFLATE stream (RFC 1950), the format HTTP
// calls "deflate" content coding.
func Inflate(cur *chunk.Cursor, emit Emitter) error {
	cmf, err := cur.ReadByte()
	if err != nil {
		return err
	}
	flg, err := cur.ReadByte()
	if err != nil {
		return err
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 || cmf>>4 > 7 {
		return ErrNotZlibFormat
	}
	if cmf&0x0f != methodFlate {
		return fmt.Errorf("%w: %d", ErrUnsupportedMethod, cmf&0x0f)
	}
	if flg&zlibDict != 0 {
		return ErrDictionaryNotSupported
	}

	sum := adler32.New()
	fr := flate.NewReader(cur)
	defer fr.Close()
	err = drain(fr, DefaultBufferSize, func(b []byte) error {
		sum.Write(b)
		return emit(b)
	})
	if err != nil {
		return err
	}

	// The Adler-32 trailer is big-endian.
	var theirs uint32
	for i := 0; i < 4; i++ {
		b, err := cur.ReadByte()
		if err != nil {
			return err
		}
		theirs = theirs<<8 | uint32(b)
	}
	if ours := sum.Sum32(); ours != theirs {
		return &CRCMismatchError{Checksum: "adler32", Expected: theirs, Actual: ours}
	}
	return nil
}
