package deb

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// addBufferToAr writes a named byte slice as a file entry to the AR archive.
func addBufferToAr(w *ar.Writer, name string, body []byte) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func tarBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range []string{"./md5sums", "./control", "./postinst"} {
		content, ok := files[name]
		if !ok {
			continue
		}
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}); err != nil {
			t.Fatalf("tar header failed: %v", err)
		}
		tw.Write([]byte(content))
	}
	tw.Close()
	return buf.Bytes()
}

func compress(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch encoding {
	case "gz":
		w := gzip.NewWriter(&buf)
		w.Write(data)
		w.Close()
	case "zst":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatalf("zstd writer failed: %v", err)
		}
		w.Write(data)
		w.Close()
	default:
		buf.Write(data)
	}
	return buf.Bytes()
}

// createMockDeb builds a .deb whose control member is compressed with
// encoding ("gz", "zst" or "" for none), followed by a data member.
func createMockDeb(t *testing.T, encoding string, files map[string]string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	arW := ar.NewWriter(&buf)
	arW.WriteGlobalHeader()
	addBufferToAr(arW, string(PkgDebianBinary), []byte("2.0\n"))

	name := string(PkgControlTar)
	if encoding != "" {
		name += "." + encoding
	}
	addBufferToAr(arW, name, compress(t, encoding, tarBytes(t, files)))
	addBufferToAr(arW, "data.tar.gz", data)
	return buf.Bytes()
}

const mockControl = "Package: zulu8-ca\nVersion: 8.0.402-1\nArchitecture: amd64\n"

func TestReadControl(t *testing.T) {
	for _, enc := range []string{"gz", "zst", ""} {
		deb := createMockDeb(t, enc, map[string]string{
			"./md5sums":  "d41d8cd98f00b204e9800998ecf8427e  usr/bin/java\n",
			"./control":  mockControl,
			"./postinst": "#!/bin/sh\n",
		}, []byte("data"))

		s, err := ReadControl(context.Background(), bytes.NewReader(deb))
		if err != nil {
			t.Fatalf("ReadControl(%q) failed: %v", enc, err)
		}
		if s.Get(FieldPackage) != "zulu8-ca" || s.Get(FieldVersion) != "8.0.402-1" {
			t.Errorf("ReadControl(%q): unexpected stanza %v", enc, s.values)
		}
	}
}

// failAfter returns an error once more than n bytes have been read.
type failAfter struct {
	r io.Reader
	n int
}

func (f *failAfter) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, errors.New("read past the control member")
	}
	if len(p) > f.n {
		p = p[:f.n]
	}
	n, err := f.r.Read(p)
	f.n -= n
	return n, err
}

func TestReadControl_StopsBeforeData(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 1<<20)
	deb := createMockDeb(t, "gz", map[string]string{"./control": mockControl}, data)
	// Everything but the data member payload may be read.
	limit := len(deb) - len(data)

	s, err := ReadControl(context.Background(), &failAfter{r: bytes.NewReader(deb), n: limit})
	if err != nil {
		t.Fatalf("ReadControl failed: %v", err)
	}
	if s.Get(FieldArchitecture) != "amd64" {
		t.Errorf("unexpected stanza %v", s.values)
	}
}

func TestReadControl_NotFound(t *testing.T) {
	deb := createMockDeb(t, "gz", map[string]string{"./md5sums": ""}, nil)
	_, err := ReadControl(context.Background(), bytes.NewReader(deb))
	if !errors.Is(err, ErrControlNotFound) {
		t.Fatalf("expected ErrControlNotFound, got %v", err)
	}

	var buf bytes.Buffer
	arW := ar.NewWriter(&buf)
	arW.WriteGlobalHeader()
	addBufferToAr(arW, string(PkgDebianBinary), []byte("2.0\n"))
	_, err = ReadControl(context.Background(), &buf)
	if !errors.Is(err, ErrControlNotFound) {
		t.Fatalf("expected ErrControlNotFound, got %v", err)
	}
}

func TestReadControl_UnsupportedCompression(t *testing.T) {
	deb := createMockDeb(t, "xz", map[string]string{"./control": mockControl}, nil)
	_, err := ReadControl(context.Background(), bytes.NewReader(deb))
	if err == nil || !strings.Contains(err.Error(), "control.tar.xz") {
		t.Fatalf("expected an unsupported archive error, got %v", err)
	}
}

func TestReadControl_Truncated(t *testing.T) {
	deb := createMockDeb(t, "gz", map[string]string{"./control": mockControl}, nil)
	// Cut inside the control member.
	_, err := ReadControl(context.Background(), bytes.NewReader(deb[:8+60+4+60+40]))
	if err == nil {
		t.Fatal("expected an error")
	}
}
