package deb

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/blakesmith/ar"
	"golang.org/x/sync/errgroup"

	"github.com/etnz/library-versions/chunk"
	"github.com/etnz/library-versions/pipeline"
)

// ErrControlNotFound is returned when a .deb has no control file.
var ErrControlNotFound = errors.New("control file not found")

// ReadControl reads the control stanza of the .deb package streamed by r.
//
// The archive is never buffered: the ar members are walked in order and the
// control tarball is decompressed chunk by chunk while tar reads it. Reading
// stops as soon as the control file has been found, so the data member is
// never downloaded past its header.
func ReadControl(ctx context.Context, r io.Reader) (*Stanza, error) {
	arR := ar.NewReader(r)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			return nil, ErrControlNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("reading ar archive: %w", err)
		}
		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		if !strings.HasPrefix(name, string(PkgControlTar)) {
			continue
		}
		encoding, err := controlEncoding(name)
		if err != nil {
			return nil, err
		}
		text, err := extractControl(ctx, io.LimitReader(arR, header.Size), encoding)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return ParseControl(text)
	}
}

// controlEncoding maps the name of the control member to a content coding
// of the decode pipeline.
func controlEncoding(name string) (string, error) {
	switch strings.TrimPrefix(name, string(PkgControlTar)) {
	case "":
		return "", nil
	case ".gz":
		return "gzip", nil
	case ".zst":
		return "zstd", nil
	}
	return "", fmt.Errorf("unsupported control archive %s", name)
}

// extractControl decompresses r and returns the content of the "control"
// file of the tarball it holds.
func extractControl(ctx context.Context, r io.Reader, encoding string) (string, error) {
	p, err := pipeline.New(pipeline.Config{ContentEncoding: encoding})
	if err != nil {
		return "", err
	}
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := p.Bytes(gctx, chunk.FromReader(r, 0), func(b []byte) error {
			if _, err := pw.Write(b); err != nil {
				// tar is done with the stream.
				return pipeline.ErrStop
			}
			return nil
		})
		pw.CloseWithError(err)
		return err
	})

	control, terr := findControl(pr)
	pr.Close()
	if err := g.Wait(); err != nil {
		return "", err
	}
	return control, terr
}

func findControl(r io.Reader) (string, error) {
	tr := tar.NewReader(r)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			return "", ErrControlNotFound
		}
		if err != nil {
			return "", err
		}
		if path.Base(th.Name) == "control" {
			b, err := io.ReadAll(tr)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}
}
