// Package apt resolves the latest package versions published by APT
// repositories and by loose .deb files.
//
// Packages indices are streamed: the compressed index is inflated, decoded
// and split into stanzas while it downloads, so even the index of a large
// archive is never held in memory.
package apt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/etnz/library-versions/chunk"
	"github.com/etnz/library-versions/deb"
	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/pipeline"
)

// ErrChecksumMismatch is returned when a Packages index does not match the
// SHA256 entry of a verified InRelease file.
var ErrChecksumMismatch = errors.New("index checksum mismatch")

// RepoConfig defines a source APT repository to read package versions from.
// It supports both:
// 1. Flat Repositories: Just a URL (Suite is empty).
// 2. Standard Repositories: URL + Suite + Component + Architectures (e.g., deb http://archive.ubuntu.com/ubuntu focal main).
type RepoConfig struct {
	// Name is shown in reports. Defaults to "Debian".
	Name          string
	URL           string
	Suite         string
	Component     string
	Architectures []string
	// Packages selects the package names to report. All packages when nil.
	Packages *regexp.Regexp
	// Keyring holds armored public keys. When set, the InRelease file is
	// fetched and verified, and every index is checked against it.
	Keyring string
}

// Resolver reports the latest version of every selected package of a
// repository, as "name version" lines sorted by name.
type Resolver struct {
	cfg RepoConfig
}

// NewResolver checks cfg and returns a Resolver for it.
func NewResolver(cfg RepoConfig) (*Resolver, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("repository URL is required")
	}
	if cfg.Suite != "" {
		if len(cfg.Architectures) == 0 {
			return nil, fmt.Errorf("architectures required for suite %s", cfg.Suite)
		}
		if cfg.Component == "" {
			return nil, fmt.Errorf("component required for suite %s", cfg.Suite)
		}
	}
	if cfg.Name == "" {
		cfg.Name = "Debian"
	}
	return &Resolver{cfg: cfg}, nil
}

// Zulu returns the resolver of the Azul Zulu JDK packages.
func Zulu() *Resolver {
	return &Resolver{cfg: RepoConfig{
		Name:          "Zulu",
		URL:           "https://repos.azulsystems.com/debian",
		Suite:         "stable",
		Component:     "main",
		Architectures: []string{"amd64"},
		Packages:      regexp.MustCompile(`^zulu-(8|1[13-9])`),
	}}
}

func (r *Resolver) String() string {
	s := fmt.Sprintf("%s: %s", r.cfg.Name, r.cfg.URL)
	if r.cfg.Suite != "" {
		s += fmt.Sprintf(" %s/%s", r.cfg.Suite, r.cfg.Component)
	}
	if r.cfg.Packages != nil {
		s += fmt.Sprintf(" =~ /%s/", r.cfg.Packages)
	}
	return s
}

// index is one Packages file of a repository.
type index struct {
	url string
	// path relative to the directory of the InRelease file, as listed in
	// its checksum table.
	path string
}

func (r *Resolver) baseURL() string {
	baseURL := r.cfg.URL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL
}

// releaseURL is the location of the InRelease file covering the indices.
func (r *Resolver) releaseURL() string {
	if r.cfg.Suite == "" {
		return r.baseURL() + "InRelease"
	}
	return fmt.Sprintf("%sdists/%s/InRelease", r.baseURL(), r.cfg.Suite)
}

func (r *Resolver) indices() []index {
	baseURL := r.baseURL()
	if r.cfg.Suite == "" {
		// Flat repository
		return []index{{url: baseURL + "Packages.gz", path: "Packages.gz"}}
	}
	var out []index
	for _, arch := range r.cfg.Architectures {
		// Standard layout: dists/<suite>/<component>/binary-<arch>/Packages.gz
		p := fmt.Sprintf("%s/binary-%s/Packages.gz", r.cfg.Component, arch)
		out = append(out, index{
			url:  fmt.Sprintf("%sdists/%s/%s", baseURL, r.cfg.Suite, p),
			path: p,
		})
	}
	return out
}

// Resolve reads every index of the repository and returns the latest version
// of each selected package.
func (r *Resolver) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	var release *deb.Release
	if r.cfg.Keyring != "" {
		var err error
		if release, err = r.fetchRelease(ctx, c); err != nil {
			return nil, err
		}
	}

	latest := make(map[string]string)
	for _, ix := range r.indices() {
		found, err := r.scan(ctx, c, ix, release)
		if err != nil {
			return nil, err
		}
		merge(latest, found)
	}
	return report(latest), nil
}

func (r *Resolver) fetchRelease(ctx context.Context, c *fetch.Client) (*deb.Release, error) {
	u := r.releaseURL()
	data, err := c.ReadAll(ctx, fetch.Request{URL: u})
	if err != nil {
		return nil, err
	}
	content, err := deb.VerifyInRelease(data, r.cfg.Keyring)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}
	release, err := deb.ParseRelease(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}
	return release, nil
}

// scan streams one index and returns the latest version of each selected
// package it lists. When release is set, the compressed bytes are hashed on
// the way and the result is only returned if they match.
func (r *Resolver) scan(ctx context.Context, c *fetch.Client, ix index, release *deb.Release) (map[string]string, error) {
	var want deb.FileHash
	if release != nil {
		var ok bool
		if want, ok = release.Lookup(ix.path); !ok {
			return nil, fmt.Errorf("%s: not listed in InRelease", ix.url)
		}
	}

	found := make(map[string]string)
	add := func(s *deb.Stanza) error {
		name, version := s.Get(deb.FieldPackage), s.Get(deb.FieldVersion)
		if name == "" {
			return fmt.Errorf("%w: no Package field", deb.ErrInvalidStanza)
		}
		if version == "" {
			return fmt.Errorf("%w: no Version field in %s", deb.ErrInvalidStanza, name)
		}
		if r.cfg.Packages != nil && !r.cfg.Packages.MatchString(name) {
			return nil
		}
		if cur, ok := found[name]; !ok || deb.CompareVersions(version, cur) > 0 {
			found[name] = version
		}
		return nil
	}

	sum := sha256.New()
	var size int64
	req := fetch.Request{URL: ix.url, Config: pipeline.Config{ContentEncoding: "gzip"}}
	err := c.Stream(ctx, req, func(p *pipeline.Pipeline, src chunk.Source) error {
		src = chunk.Tee(src, func(b []byte) {
			sum.Write(b)
			size += int64(len(b))
		})
		var sr deb.StanzaReader
		if err := p.Lines(ctx, src, func(line string) error { return sr.Line(line, add) }); err != nil {
			return err
		}
		return sr.Close(add)
	})
	if err != nil {
		return nil, err
	}

	if release != nil {
		got := hex.EncodeToString(sum.Sum(nil))
		if got != want.Hash || size != want.Size {
			return nil, fmt.Errorf("%s: %w: got %s (%d bytes), want %s (%d bytes)", ix.url, ErrChecksumMismatch, got, size, want.Hash, want.Size)
		}
	}
	return found, nil
}

func merge(into, from map[string]string) {
	for name, version := range from {
		if cur, ok := into[name]; !ok || deb.CompareVersions(version, cur) > 0 {
			into[name] = version
		}
	}
}

func report(latest map[string]string) []string {
	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = name + " " + latest[name]
	}
	return out
}

// CachedAsset holds the control fields of a .deb file already read, so that
// later polls do not download it again. Release assets are immutable.
type CachedAsset struct {
	URL          string `cbor:"url" json:"url"`
	Package      string `cbor:"package" json:"package"`
	Version      string `cbor:"version" json:"version"`
	Architecture string `cbor:"architecture" json:"architecture"`
}

// AssetCache maps .deb URLs to their control fields. It is safe for
// concurrent use and may be shared by several resolvers.
type AssetCache struct {
	mu     sync.Mutex
	assets map[string]CachedAsset
}

// NewAssetCache returns a cache holding a copy of assets, which may be nil.
func NewAssetCache(assets map[string]CachedAsset) *AssetCache {
	c := &AssetCache{assets: make(map[string]CachedAsset, len(assets))}
	for k, v := range assets {
		c.assets[k] = v
	}
	return c
}

func (c *AssetCache) get(url string) (CachedAsset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assets[url]
	return a, ok
}

func (c *AssetCache) put(a CachedAsset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[a.URL] = a
}

// Snapshot returns a copy of the cached assets.
func (c *AssetCache) Snapshot() map[string]CachedAsset {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]CachedAsset, len(c.assets))
	for k, v := range c.assets {
		out[k] = v
	}
	return out
}

// maxConcurrentDebs bounds the downloads of a DebResolver.
const maxConcurrentDebs = 4

// DebResolver reports the latest version of the packages found in loose .deb
// files, for instance GitHub release assets. Only the start of each file is
// downloaded: the transfer stops once the control file has been read.
type DebResolver struct {
	Name  string
	URLs  []string
	Cache *AssetCache
}

// NewDebResolver returns a resolver for urls. A nil cache gets a private one.
func NewDebResolver(name string, urls []string, cache *AssetCache) *DebResolver {
	if cache == nil {
		cache = NewAssetCache(nil)
	}
	if name == "" {
		name = "Deb"
	}
	return &DebResolver{Name: name, URLs: urls, Cache: cache}
}

func (r *DebResolver) String() string {
	bases := make([]string, len(r.URLs))
	for i, u := range r.URLs {
		bases[i] = path.Base(u)
	}
	return fmt.Sprintf("%s: %s", r.Name, strings.Join(bases, ", "))
}

// Resolve reads the control file of every .deb.
func (r *DebResolver) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	assets, err := ReadAssets(ctx, c, r.URLs, r.Cache)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]string)
	for _, a := range assets {
		merge(latest, map[string]string{a.Package: a.Version})
	}
	return report(latest), nil
}

// ReadAssets returns the control fields of the .deb files at urls, in the
// same order. Files missing from cache are downloaded concurrently and
// added to it.
func ReadAssets(ctx context.Context, c *fetch.Client, urls []string, cache *AssetCache) ([]CachedAsset, error) {
	if cache == nil {
		cache = NewAssetCache(nil)
	}
	assets := make([]CachedAsset, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDebs)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			a, ok := cache.get(u)
			if !ok {
				var err error
				if a, err = readAsset(ctx, c, u); err != nil {
					return err
				}
				cache.put(a)
			}
			assets[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assets, nil
}

func readAsset(ctx context.Context, c *fetch.Client, u string) (CachedAsset, error) {
	rc, err := c.Open(ctx, fetch.Request{URL: u})
	if err != nil {
		return CachedAsset{}, err
	}
	defer rc.Close()
	control, err := deb.ReadControl(ctx, rc)
	if err != nil {
		return CachedAsset{}, fmt.Errorf("%s: %w", u, err)
	}
	a := CachedAsset{
		URL:          u,
		Package:      control.Get(deb.FieldPackage),
		Version:      control.Get(deb.FieldVersion),
		Architecture: control.Get(deb.FieldArchitecture),
	}
	if a.Package == "" || a.Version == "" {
		return CachedAsset{}, fmt.Errorf("%s: %w: control file lacks Package or Version", u, deb.ErrInvalidStanza)
	}
	return a, nil
}
