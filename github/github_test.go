package github

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"

	"github.com/etnz/library-versions/apt"
	"github.com/etnz/library-versions/fetch"
)

// fakeGithub implements http.RoundTripper to mock GitHub API.
type fakeGithub struct {
	mu sync.Mutex
	// Map "owner/repo" -> list of releases
	repos map[string][]*release
	// Map download URL -> content
	downloads        map[string][]byte
	requests         []string
	requestValidator func(*http.Request)
}

func newFakeGithub() *fakeGithub {
	return &fakeGithub{
		repos:     make(map[string][]*release),
		downloads: make(map[string][]byte),
	}
}

func (f *fakeGithub) addRelease(owner, repo, tag string, prerelease bool, assets []asset) {
	key := owner + "/" + repo
	rel := &release{
		ID:         int64(len(f.repos[key]) + 1),
		TagName:    tag,
		Prerelease: prerelease,
		Assets:     assets,
	}
	f.repos[key] = append(f.repos[key], rel)
}

func (f *fakeGithub) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.URL.String())
	if f.requestValidator != nil {
		f.requestValidator(req)
	}

	parts := strings.Split(strings.TrimPrefix(req.URL.Path, "/"), "/")
	// parts example: ["repos", "owner", "repo", "releases"]
	if req.URL.Host == "api.github.com" && req.Method == "GET" &&
		len(parts) == 4 && parts[0] == "repos" && parts[3] == "releases" {
		return f.listReleases(parts[1], parts[2])
	}
	if body, ok := f.downloads[req.URL.String()]; ok {
		return &http.Response{StatusCode: 200, Status: "200 OK", Body: io.NopCloser(bytes.NewReader(body))}, nil
	}

	return &http.Response{
		StatusCode: 404,
		Status:     "404 Not Found",
		Body:       io.NopCloser(strings.NewReader("Not Found")),
		Header:     make(http.Header),
	}, nil
}

func (f *fakeGithub) listReleases(owner, repo string) (*http.Response, error) {
	key := owner + "/" + repo
	releases := f.repos[key]
	// Return empty list if nil, to match API behavior
	if releases == nil {
		releases = []*release{}
	}
	body, _ := json.Marshal(releases)
	return &http.Response{StatusCode: 200, Status: "200 OK", Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeGithub) client() *fetch.Client {
	return &fetch.Client{HTTP: &http.Client{Transport: f}}
}

// mockDeb builds a .deb whose control file holds the given fields.
func mockDeb(t *testing.T, control string) []byte {
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
	if err := w.WriteGlobalHeader(); err != nil {
		t.Fatal(err)
	}
	for _, m := range []struct {
		name string
		body []byte
	}{
		{"debian-binary", []byte("2.0\n")},
		{"control.tar.gz", ctl.Bytes()},
		{"data.tar.gz", []byte("dummy data")},
	} {
		if err := w.WriteHeader(&ar.Header{Name: m.name, Size: int64(len(m.body)), Mode: 0644, ModTime: time.Now()}); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(m.body); err != nil {
			t.Fatal(err)
		}
	}
	return out.Bytes()
}

// --- Tests ---

func TestReleaseResolver(t *testing.T) {
	fake := newFakeGithub()
	fake.addRelease("owner1", "repo1", "v1.10.0", false, nil)
	fake.addRelease("owner1", "repo1", "v2.0.0-rc1", true, nil)
	fake.addRelease("owner1", "repo1", "v1.9.3", false, nil)

	r := &ReleaseResolver{Repo: Repo{Owner: "owner1", Name: "repo1"}}
	got, err := r.Resolve(context.Background(), fake.client())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(got) != 1 || got[0] != "v1.10.0" {
		t.Errorf("expected [v1.10.0], got %v", got)
	}

	r.Repo.Prereleases = true
	got, _ = r.Resolve(context.Background(), fake.client())
	if len(got) != 1 || got[0] != "v2.0.0-rc1" {
		t.Errorf("expected [v2.0.0-rc1], got %v", got)
	}

	r.Repo.Tags = regexp.MustCompile(`^v1\.9`)
	got, _ = r.Resolve(context.Background(), fake.client())
	if len(got) != 1 || got[0] != "v1.9.3" {
		t.Errorf("expected [v1.9.3], got %v", got)
	}
	if r.String() != `GitHub: owner1/repo1 =~ /^v1\.9/` {
		t.Errorf("unexpected String(): %s", r.String())
	}
}

func TestReleaseResolver_NoRelease(t *testing.T) {
	fake := newFakeGithub()
	r := &ReleaseResolver{Repo: Repo{Owner: "o", Name: "r"}}
	got, err := r.Resolve(context.Background(), fake.client())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no version, got %v", got)
	}
}

func TestFetchDebURLs(t *testing.T) {
	fake := newFakeGithub()
	fake.addRelease("owner1", "repo1", "v1.0", false, []asset{
		{Name: "app_1.0_amd64.deb", BrowserDownloadURL: "http://dl/app_1.0.deb"},
		{Name: "readme.txt", BrowserDownloadURL: "http://dl/readme.txt"},
	})
	fake.addRelease("owner1", "repo1", "v1.1-beta", true, []asset{
		{Name: "app_1.1_amd64.deb", BrowserDownloadURL: "http://dl/app_1.1.deb"},
	})

	urls, err := FetchDebURLs(context.Background(), fake.client(), Repo{Owner: "owner1", Name: "repo1"})
	if err != nil {
		t.Fatalf("FetchDebURLs failed: %v", err)
	}
	if len(urls) != 1 || urls[0] != "http://dl/app_1.0.deb" {
		t.Errorf("unexpected URLs %v", urls)
	}
}

func TestDebResolver(t *testing.T) {
	fake := newFakeGithub()
	fake.addRelease("owner", "tools", "v1.1", false, []asset{
		{Name: "tool_1.1_amd64.deb", BrowserDownloadURL: "http://dl/tool_1.1_amd64.deb"},
	})
	fake.addRelease("owner", "tools", "v1.0", false, []asset{
		{Name: "tool_1.0_amd64.deb", BrowserDownloadURL: "http://dl/tool_1.0_amd64.deb"},
	})
	fake.downloads["http://dl/tool_1.1_amd64.deb"] = mockDeb(t, "Package: tool\nVersion: 1.1\nArchitecture: amd64\n")
	fake.downloads["http://dl/tool_1.0_amd64.deb"] = mockDeb(t, "Package: tool\nVersion: 1.0\nArchitecture: amd64\n")

	cache := apt.NewAssetCache(nil)
	r := &DebResolver{Repo: Repo{Owner: "owner", Name: "tools"}, Cache: cache}
	got, err := r.Resolve(context.Background(), fake.client())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(got) != 1 || got[0] != "tool 1.1" {
		t.Errorf("expected [tool 1.1], got %v", got)
	}
	if len(cache.Snapshot()) != 2 {
		t.Errorf("expected 2 cached assets, got %d", len(cache.Snapshot()))
	}

	// Second poll only lists the releases.
	fake.requests = nil
	if _, err := r.Resolve(context.Background(), fake.client()); err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if len(fake.requests) != 1 {
		t.Errorf("expected a single API request, got %v", fake.requests)
	}
}

func TestNotFound(t *testing.T) {
	fake := newFakeGithub()
	r := &ReleaseResolver{Repo: Repo{Owner: "o", Name: "r", APIURL: "https://example.com/api/"}}
	_, err := r.Resolve(context.Background(), fake.client())
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.Code != 404 {
		t.Fatalf("expected a 404 StatusError, got %v", err)
	}
	if !strings.HasPrefix(se.URL, "https://example.com/api/repos/o/r/releases") {
		t.Errorf("unexpected URL %s", se.URL)
	}
}

func TestTokenPassing(t *testing.T) {
	fake := newFakeGithub()

	// Case 1: Token present
	token := "secret-token"
	fake.requestValidator = func(req *http.Request) {
		auth := req.Header.Get("Authorization")
		expected := "token " + token
		if auth != expected {
			t.Errorf("Expected Authorization header %q, got %q", expected, auth)
		}
	}
	_, _ = FetchDebURLs(context.Background(), fake.client(), Repo{Owner: "o", Name: "r", Token: token})

	// Case 2: Token empty
	fake.requestValidator = func(req *http.Request) {
		auth := req.Header.Get("Authorization")
		if auth != "" {
			t.Errorf("Expected no Authorization header, got %q", auth)
		}
	}
	_, _ = FetchDebURLs(context.Background(), fake.client(), Repo{Owner: "o", Name: "r"})
}
