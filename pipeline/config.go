package pipeline

import (
	"fmt"

	"github.com/etnz/library-versions/gunzip"
	"github.com/etnz/library-versions/textstream"
)

// Config selects the stages of a pipeline.
type Config struct {
	// ContentEncoding is the HTTP content coding of the input: "" or
	// "identity" for plain input, "gzip", "deflate" or "zstd".
	ContentEncoding string `json:"content_encoding,omitempty" yaml:"content_encoding,omitempty"`
	// Charset of the decompressed bytes. Defaults to UTF-8.
	Charset string `json:"charset,omitempty" yaml:"charset,omitempty"`
	// Separator between lines. Defaults to "\n".
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`
	// ChunkSize is the read size used when the input is an io.Reader.
	ChunkSize int `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	// MaxLine bounds the length of a single line. Zero means no limit.
	MaxLine int `json:"max_line,omitempty" yaml:"max_line,omitempty"`
}

// Validate checks that every configured stage exists.
func (c Config) Validate() error {
	if _, err := gunzip.ForContentEncoding(c.ContentEncoding); err != nil {
		return err
	}
	if c.Charset != "" {
		if _, err := textstream.NewDecoder(c.Charset); err != nil {
			return err
		}
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative")
	}
	if c.MaxLine < 0 {
		return fmt.Errorf("max line must not be negative")
	}
	return nil
}
