// Package pipeline chains the decode stages of a live byte stream:
//
//	chunk source → cursor → [decompression] → text decoder → line framer
//
// Every stage works chunk by chunk; the payload is never held in memory as a
// whole (except by ReadAll, on request). The decompression stage is chosen
// from the content coding of the input and is skipped for plain input.
package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/etnz/library-versions/chunk"
	"github.com/etnz/library-versions/gunzip"
	"github.com/etnz/library-versions/textstream"
)

// ErrStop can be returned by an emitter to end a pipeline early. The
// pipeline then returns nil.
var ErrStop = errors.New("stop")

// Pipeline decodes sources according to a Config. It holds no per-stream
// state and may be used by several goroutines at once.
type Pipeline struct {
	cfg     Config
	stage   gunzip.Stage
	metrics *Metrics
	label   string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records the pipeline's activity in m under the given source
// label.
func WithMetrics(m *Metrics, label string) Option {
	return func(p *Pipeline) {
		p.metrics = m
		p.label = label
	}
}

// New returns a Pipeline for cfg.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stage, err := gunzip.ForContentEncoding(cfg.ContentEncoding)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, stage: stage}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Open starts a background producer feeding r to a pipeline, ChunkSize bytes
// at a time. The caller must Close the returned feed.
func (p *Pipeline) Open(ctx context.Context, r io.Reader) *chunk.Feed {
	return chunk.Produce(ctx, r, p.cfg.ChunkSize)
}

// Bytes emits the decompressed bytes of src.
func (p *Pipeline) Bytes(ctx context.Context, src chunk.Source, emit func([]byte) error) error {
	return p.finish(p.bytes(ctx, src, emit))
}

// Text emits the decoded text of src, in chunks of arbitrary size.
func (p *Pipeline) Text(ctx context.Context, src chunk.Source, emit func(string) error) error {
	return p.finish(p.text(ctx, src, emit))
}

// Lines emits the lines of src, without their separators.
func (p *Pipeline) Lines(ctx context.Context, src chunk.Source, emit func(string) error) error {
	return p.finish(p.lines(ctx, src, emit))
}

// ReadAll returns the whole decompressed content of src. It is meant for
// documents a parser needs in one piece (JSON or XML indices).
func (p *Pipeline) ReadAll(ctx context.Context, src chunk.Source) ([]byte, error) {
	var out []byte
	err := p.Bytes(ctx, src, func(b []byte) error {
		out = append(out, b...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) bytes(ctx context.Context, src chunk.Source, emit func([]byte) error) error {
	src = chunk.Tee(src, func(b []byte) { p.metrics.raw(p.label, len(b)) })
	cur := chunk.NewCursor(ctx, src)
	out := func(b []byte) error {
		// Stop emitting as soon as the consumer is gone, even in the
		// middle of a chunk that inflates to many buffers.
		if err := ctx.Err(); err != nil {
			return err
		}
		p.metrics.decoded(p.label, len(b))
		return emit(b)
	}
	if p.stage == nil {
		return passThrough(cur, out)
	}
	return p.stage(cur, out)
}

func passThrough(cur *chunk.Cursor, emit func([]byte) error) error {
	for {
		ch, err := cur.NextChunk()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ch.Remaining() > 0 {
			if err := emit(ch.Bytes()); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) text(ctx context.Context, src chunk.Source, emit func(string) error) error {
	dec, err := textstream.NewDecoder(p.cfg.Charset)
	if err != nil {
		return err
	}
	// One decompressed buffer can decode to several text buffers.
	out := func(s string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return emit(s)
	}
	err = p.bytes(ctx, src, func(b []byte) error {
		return dec.Write(b, out)
	})
	if err != nil {
		return err
	}
	return dec.Close(out)
}

func (p *Pipeline) lines(ctx context.Context, src chunk.Source, emit func(string) error) error {
	fr := textstream.NewFramer(p.cfg.Separator)
	fr.MaxLine = p.cfg.MaxLine
	out := func(line string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.metrics.line(p.label)
		return emit(line)
	}
	err := p.text(ctx, src, func(s string) error {
		return fr.Write(s, out)
	})
	if err != nil {
		return err
	}
	return fr.Close(out)
}

func (p *Pipeline) finish(err error) error {
	if err == nil || errors.Is(err, ErrStop) {
		return nil
	}
	p.metrics.failure(p.label, Classify(err))
	return err
}
