package main

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
)

func writeDeb(t *testing.T, control string) []byte {
	t.Helper()
	var ctl bytes.Buffer
	gw := gzip.NewWriter(&ctl)
	tw := tar.NewWriter(gw)
	tw.WriteHeader(&tar.Header{Name: "./control", Mode: 0644, Size: int64(len(control))})
	tw.Write([]byte(control))
	tw.Close()
	gw.Close()

	var out bytes.Buffer
	w := ar.NewWriter(&out)
	w.WriteGlobalHeader()
	for _, m := range []struct {
		name string
		body []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{"control.tar.gz", ctl.Bytes()},
		{"data.tar.gz", []byte("payload")},
	} {
		w.WriteHeader(&ar.Header{Name: m.name, Size: int64(len(m.body)), Mode: 0644, ModTime: time.Now()})
		w.Write(m.body)
	}
	return out.Bytes()
}

const control = "Package: hello\nVersion: 2.10-3\nArchitecture: amd64\nDescription: greeter\n example program\n"

func TestShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.deb")
	if err := os.WriteFile(path, writeDeb(t, control), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runShow(context.Background(), []string{path}, &out); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	want := "Package: hello\nVersion: 2.10-3\nArchitecture: amd64\nDescription: greeter\n example program\n"
	if out.String() != want {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := runShow(context.Background(), []string{"--format", "{{.Package}}={{.Version}}", path}, &out); err != nil {
		t.Fatalf("show --format failed: %v", err)
	}
	if out.String() != "hello=2.10-3\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	if err := runShow(context.Background(), []string{"-f", "{{.Maintainer}}", path}, &out); err == nil {
		t.Error("expected an error for a missing field")
	}
}

func TestShow_URL(t *testing.T) {
	body := writeDeb(t, control)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := runShow(context.Background(), []string{"-f", "{{.Architecture}}", srv.URL + "/hello.deb"}, &out); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if out.String() != "amd64\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"1.0", "1.0"}, "=\n"},
		{[]string{"1.0~rc1", "1.0"}, "<\n"},
		{[]string{"1:0.1", "2.0"}, ">\n"},
	}
	for _, tc := range tests {
		var out bytes.Buffer
		if err := runCompare(tc.args, &out); err != nil {
			t.Fatalf("compare %v failed: %v", tc.args, err)
		}
		if out.String() != tc.want {
			t.Errorf("compare %v = %q, want %q", tc.args, out.String(), tc.want)
		}
	}

	if err := runCompare([]string{"1.0-1", "lt", "1.0-2"}, &bytes.Buffer{}); err != nil {
		t.Errorf("expected 1.0-1 lt 1.0-2 to hold, got %v", err)
	}
	if err := runCompare([]string{"1.0-1", "gt", "1.0-2"}, &bytes.Buffer{}); !errors.Is(err, errFalse) {
		t.Errorf("expected errFalse, got %v", err)
	}
	if err := runCompare([]string{"1", "<<", "2"}, &bytes.Buffer{}); err == nil {
		t.Error("expected an unknown relation error")
	}
}

func TestLatest(t *testing.T) {
	var out bytes.Buffer
	if err := runLatest([]string{"1.2", "1.10", "1.9~beta"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "1.10\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}
