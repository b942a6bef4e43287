package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/etnz/library-versions/chunk"
	"github.com/etnz/library-versions/fetch"
)

// serve answers every request with body, gzip-encoded when asked to.
func serve(t *testing.T, body string, gzipped bool) *httptest.Server {
	t.Helper()
	var payload []byte
	if gzipped {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		w.Write([]byte(body))
		require.NoError(t, w.Close())
		payload = buf.Bytes()
	} else {
		payload = []byte(body)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gzipped {
			w.Header().Set("Content-Encoding", "gzip")
		}
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const metadata = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>org.scala-lang</groupId>
  <artifactId>scala-library</artifactId>
  <versioning>
    <latest>3.0.0</latest>
    <versions>
      <version>2.11.12</version>
      <version>2.12.9</version>
      <version>2.12.18</version>
      <version>2.13.0-M1</version>
      <version>2.13.12</version>
      <version>2.13.2</version>
    </versions>
  </versioning>
</metadata>
`

func TestMaven(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(metadata))
	}))
	defer srv.Close()

	m := &Maven{RepoURL: srv.URL + "/maven2/", GroupID: "org.scala-lang", ArtifactID: "scala-library"}
	got, err := m.Resolve(context.Background(), &fetch.Client{})
	require.NoError(t, err)
	require.Equal(t, "/maven2/org/scala-lang/scala-library/maven-metadata.xml", path)
	require.Equal(t, []string{"2.13.12"}, got)
	require.Equal(t, "Maven: org.scala-lang:scala-library", m.String())

	m.Filters = []*regexp.Regexp{regexp.MustCompile(`^2\.13`), regexp.MustCompile(`^2\.10`), regexp.MustCompile(`^2\.12`)}
	got, err = m.Resolve(context.Background(), &fetch.Client{})
	require.NoError(t, err)
	require.Equal(t, []string{"2.13.12", "2.12.18"}, got)
	require.Equal(t, `Maven: org.scala-lang:scala-library =~ /^2\.13|^2\.10|^2\.12/`, m.String())
}

func TestMaven_Gzip(t *testing.T) {
	srv := serve(t, metadata, true)
	m := &Maven{RepoURL: srv.URL, GroupID: "g", ArtifactID: "a", Filters: []*regexp.Regexp{regexp.MustCompile(`^2\.11`)}}
	got, err := m.Resolve(context.Background(), &fetch.Client{})
	require.NoError(t, err)
	require.Equal(t, []string{"2.11.12"}, got)
}

func TestMaven_BadXML(t *testing.T) {
	srv := serve(t, "<html>not metadata", false)
	m := &Maven{RepoURL: srv.URL, GroupID: "g", ArtifactID: "a"}
	_, err := m.Resolve(context.Background(), &fetch.Client{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "maven-metadata.xml")
}

func TestMavenCentral(t *testing.T) {
	m := MavenCentral("com.google.guava", "guava")
	require.Equal(t, "https://repo.maven.apache.org/maven2/com/google/guava/guava/maven-metadata.xml", m.metadataURL())
}

const nodeIndex = `[
{"version":"v21.2.0","date":"2023-11-14","lts":false,"security":false},
{"version":"v20.10.0","date":"2023-11-22","lts":"Iron","security":false},
{"version":"v21.10.0","date":"2024-04-10","lts":false,"security":false},
{"version":"v20.9.0","date":"2023-10-24","lts":"Iron","security":false},
{"version":"v18.19.0","date":"2023-11-29","lts":"Hydrogen","security":false}
]`

func TestNodeJs(t *testing.T) {
	srv := serve(t, nodeIndex, true)
	got, err := NodeJs{IndexURL: srv.URL}.Resolve(context.Background(), &fetch.Client{})
	require.NoError(t, err)
	require.Equal(t, []string{"v20.10.0 Iron", "v21.10.0"}, got)
}

func TestNodeJs_BadLTS(t *testing.T) {
	srv := serve(t, `[{"version":"v1.0.0","lts":12}]`, false)
	_, err := NodeJs{IndexURL: srv.URL}.Resolve(context.Background(), &fetch.Client{})
	require.Error(t, err)
}

func gradlePage() string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	for _, v := range []string{"8.5", "8.4", "8.3", "8.2.1", "8.2", "7.6.3", "7.6.2", "7.5"} {
		fmt.Fprintf(&b, "<div class=\"resources-contents\"><a name=\"%s\"></a>\n<h3>v%s</h3></div>\n", v, v)
	}
	b.WriteString("</body></html>\n")
	return b.String()
}

func TestGradle(t *testing.T) {
	srv := serve(t, gradlePage(), true)
	got, err := Gradle{PageURL: srv.URL}.Resolve(context.Background(), &fetch.Client{})
	require.NoError(t, err)
	require.Equal(t, []string{"8.5", "8.4", "8.3"}, got)
}

func TestGradle_SkipsPatchReleasesOfSameLine(t *testing.T) {
	srv := serve(t, `<a name="8.2.1">
<a name="8.2">
<a name="7.6.3">
<a name="7.6.2">
<a name="7.5">
`, false)
	got, err := Gradle{PageURL: srv.URL}.Resolve(context.Background(), &fetch.Client{})
	require.NoError(t, err)
	require.Equal(t, []string{"8.2.1", "7.6.3", "7.5"}, got)
}

type fakeResolver struct {
	name     string
	versions []string
	err      error
}

func (f fakeResolver) String() string { return f.name }

func (f fakeResolver) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	return f.versions, f.err
}

func TestPoll(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := &Poller{Metrics: NewMetrics(reg), Concurrency: 2}
	results, err := p.Poll(context.Background(), []Resolver{
		fakeResolver{name: "Zulu", versions: []string{"zulu-17 17.0.9-1"}},
		fakeResolver{name: "Gradle", err: fmt.Errorf("get: %w", chunk.ErrTruncatedInput)},
		fakeResolver{name: "Maven: a:b", versions: []string{"1.0"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "Gradle", results[0].Resolver)
	require.ErrorIs(t, results[0].Err, chunk.ErrTruncatedInput)
	require.Equal(t, "Maven: a:b", results[1].Resolver)
	require.Equal(t, []string{"1.0"}, results[1].Versions)
	require.Equal(t, "Zulu", results[2].Resolver)

	require.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Failures.WithLabelValues("Gradle", "truncated")))
	require.Equal(t, 3.0, testutil.ToFloat64(p.Metrics.Resolvers))
	require.Equal(t, 3, testutil.CollectAndCount(p.Metrics.Duration))
}

func TestPoll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Poller{}
	_, err := p.Poll(ctx, []Resolver{fakeResolver{name: "x", err: ctx.Err()}})
	require.True(t, errors.Is(err, context.Canceled))
}
