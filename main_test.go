package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/library-versions/apt"
	"github.com/etnz/library-versions/pipeline"
	"github.com/etnz/library-versions/registry"
)

func TestState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	logger := log.NewNopLogger()

	s := loadState(logger, path)
	s.update([]registry.Result{{Resolver: "Gradle", Versions: []string{"8.5", "8.4"}}})
	s.assets = apt.NewAssetCache(map[string]apt.CachedAsset{
		"http://dl/tool.deb": {URL: "http://dl/tool.deb", Package: "tool", Version: "1.0", Architecture: "amd64"},
	})
	require.NoError(t, s.save(path))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded := loadState(logger, path)
	assert.Equal(t, []string{"8.5", "8.4"}, loaded.versions["Gradle"])
	assert.Equal(t, "tool", loaded.assets.Snapshot()["http://dl/tool.deb"].Package)

	// Deterministic encoding: saving again gives the same bytes.
	require.NoError(t, loaded.save(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	require.NoError(t, os.WriteFile(path, []byte("not cbor at all"), 0644))

	var buf bytes.Buffer
	s := loadState(log.NewLogfmtLogger(&buf), path)
	assert.Empty(t, s.versions)
	assert.Empty(t, s.assets.Snapshot())
	assert.Contains(t, buf.String(), "corrupt state")
}

func TestState_Update(t *testing.T) {
	s := loadState(log.NewNopLogger(), "")

	changed := s.update([]registry.Result{
		{Resolver: "a", Versions: []string{"1.0"}},
		{Resolver: "b", Versions: []string{"2.0"}},
	})
	assert.Empty(t, changed, "first sighting is not a change")

	changed = s.update([]registry.Result{
		{Resolver: "a", Versions: []string{"1.1"}},
		{Resolver: "b", Err: errors.New("boom")},
	})
	assert.Equal(t, map[string]bool{"a": true}, changed)
	assert.Equal(t, []string{"2.0"}, s.versions["b"], "failure keeps the last versions")
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	writeReport(&buf, []registry.Result{
		{Resolver: "Gradle", Versions: []string{"8.5", "8.4"}},
		{Resolver: "Maven: com.google.guava:guava", Versions: []string{"33.0.0-jre"}},
		{Resolver: "NodeJs", Err: errors.New("timeout")},
	}, map[string]bool{"Gradle": true})

	want := "Latest Versions\n" +
		"===============\n" +
		"\n" +
		"- Gradle\n" +
		"  8.5 (changed)\n" +
		"  8.4 (changed)\n" +
		"- Maven: com.google.guava:guava\n" +
		"  33.0.0-jre\n" +
		"- NodeJs\n" +
		"  FAILED: timeout\n"
	assert.Equal(t, want, buf.String())
}

func TestMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	pipeline.NewMetrics(reg)
	m := registry.NewMetrics(reg)
	m.Resolvers.Set(3)

	b := &board{}
	srv := httptest.NewServer(newMux(b, reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	b.set([]registry.Result{{Resolver: "NodeJs", Versions: []string{"v20.10.0 Iron"}}}, nil)
	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body.String(), "- NodeJs\n  v20.10.0 Iron\n")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body.Reset()
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Contains(t, body.String(), "library_versions_resolvers 3")

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCat_File(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("alpha\r\nbeta\r\ngamma"))
	zw.Close()
	path := filepath.Join(t.TempDir(), "lines.txt.gz")
	require.NoError(t, os.WriteFile(path, gz.Bytes(), 0644))

	var out bytes.Buffer
	require.NoError(t, runCat(context.Background(), []string{"--separator", "\r\n", "-n", path}, &out))
	assert.Equal(t, "     1\talpha\n     2\tbeta\n     3\tgamma\n", out.String())
}

func TestCat_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("one\ntwo\n"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runCat(context.Background(), []string{srv.URL}, &out))
	assert.Equal(t, "one\ntwo\n", out.String())
}

func TestCat_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gz")
	require.NoError(t, os.WriteFile(path, []byte("definitely not gzip"), 0644))

	err := runCat(context.Background(), []string{path}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), path+": "))
	assert.Equal(t, pipeline.ClassFormat, pipeline.Classify(err))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "info")
	require.NoError(t, err)
	level.Debug(logger).Log("msg", "hidden")
	assert.Empty(t, buf.String())
	level.Info(logger).Log("msg", "shown")
	assert.Contains(t, buf.String(), "msg=shown")

	_, err = newLogger(&buf, "loud")
	assert.Error(t, err)
}
