package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/etnz/library-versions/apt"
	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/github"
	"github.com/etnz/library-versions/registry"
)

// Resolver types accepted in a manifest.
const (
	TypeMaven         = "maven"
	TypeMavenCentral  = "maven-central"
	TypeNodeJs        = "nodejs"
	TypeGradle        = "gradle"
	TypeDebian        = "debian"
	TypeZulu          = "zulu"
	TypeGitHubRelease = "github-release"
	TypeGitHubDebs    = "github-debs"
	TypeDeb           = "deb"
)

// Resolver is the declaration of one resolver. Which fields apply depends
// on Type; every string field is a template.
type Resolver struct {
	// Type selects the kind of registry, one of the Type constants.
	Type string `json:"type" yaml:"type"`
	// Name overrides the name shown in reports, where the type supports it.
	Name string `json:"name" yaml:"name"`
	// Defines is a map of local variables available to templates in this resolver.
	Defines map[string]string `json:"defines" yaml:"defines"`

	// URL of the repository (maven, debian), index (nodejs) or page (gradle).
	URL string `json:"url" yaml:"url"`

	// Maven coordinates.
	Group    string `json:"group" yaml:"group"`
	Artifact string `json:"artifact" yaml:"artifact"`
	// Filters are regular expressions selecting version lines (maven).
	Filters []string `json:"filters" yaml:"filters"`

	// APT repository layout (debian).
	Suite         string   `json:"suite" yaml:"suite"`
	Component     string   `json:"component" yaml:"component"`
	Architectures []string `json:"architectures" yaml:"architectures"`
	// Packages is a regular expression selecting package names (debian).
	Packages string `json:"packages" yaml:"packages"`
	// Keyring is the path or URL of armored public keys checking InRelease (debian).
	Keyring string `json:"keyring" yaml:"keyring"`

	// GitHub repository (github-release, github-debs).
	Owner string `json:"owner" yaml:"owner"`
	Repo  string `json:"repo" yaml:"repo"`
	// Tags is a regular expression selecting release tags.
	Tags        string `json:"tags" yaml:"tags"`
	Prereleases bool   `json:"prereleases" yaml:"prereleases"`
	Token       string `json:"token" yaml:"token"`

	// Debs lists .deb URLs (deb).
	Debs []string `json:"debs" yaml:"debs"`

	filePath string
	engine   *templateEngine
}

func (r *Resolver) resolve(path string) string {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return filepath.Join(filepath.Dir(r.filePath), path)
}

// loadResource reads a local file or downloads a URL, decompressing it if
// the server sends it compressed.
func (r *Resolver) loadResource(ctx context.Context, c *fetch.Client, path string) (string, error) {
	resolved := r.resolve(path)
	if strings.HasPrefix(resolved, "http://") || strings.HasPrefix(resolved, "https://") {
		content, err := c.ReadAll(ctx, fetch.Request{URL: resolved})
		if err != nil {
			return "", fmt.Errorf("failed to fetch resource: %w", err)
		}
		return string(content), nil
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("reading resource %s: %w", resolved, err)
	}
	return string(content), nil
}

// compile renders a template holding a regular expression. An empty
// pattern gives a nil Regexp.
func (r *Resolver) compile(name, pattern string) (*regexp.Regexp, error) {
	p, err := r.engine.render(name, pattern)
	if err != nil || p == "" {
		return nil, err
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return re, nil
}

// fields renders the scalar fields, in place of their templates.
func (r *Resolver) fields() (map[string]string, error) {
	out := make(map[string]string)
	for name, text := range map[string]string{
		"name": r.Name, "url": r.URL, "group": r.Group, "artifact": r.Artifact,
		"suite": r.Suite, "component": r.Component, "keyring": r.Keyring,
		"owner": r.Owner, "repo": r.Repo, "token": r.Token,
	} {
		v, err := r.engine.render(name, text)
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func requireFields(f map[string]string, names ...string) error {
	for _, n := range names {
		if f[n] == "" {
			return fmt.Errorf("%q is required", n)
		}
	}
	return nil
}

// Build renders the declaration and returns the resolver it describes. c
// is used to download a keyring given by URL. .deb resolvers share cache.
func (r *Resolver) Build(ctx context.Context, c *fetch.Client, cache *apt.AssetCache) (registry.Resolver, error) {
	f, err := r.fields()
	if err != nil {
		return nil, err
	}

	switch r.Type {
	case TypeMaven, TypeMavenCentral:
		if r.Type == TypeMavenCentral {
			f["url"] = registry.MavenCentralURL
		}
		if err := requireFields(f, "url", "group", "artifact"); err != nil {
			return nil, err
		}
		m := &registry.Maven{RepoURL: f["url"], GroupID: f["group"], ArtifactID: f["artifact"]}
		for i, pattern := range r.Filters {
			re, err := r.compile(fmt.Sprintf("filters[%d]", i), pattern)
			if err != nil {
				return nil, err
			}
			if re != nil {
				m.Filters = append(m.Filters, re)
			}
		}
		return m, nil

	case TypeNodeJs:
		return registry.NodeJs{IndexURL: f["url"]}, nil

	case TypeGradle:
		return registry.Gradle{PageURL: f["url"]}, nil

	case TypeZulu:
		return apt.Zulu(), nil

	case TypeDebian:
		packages, err := r.compile("packages", r.Packages)
		if err != nil {
			return nil, err
		}
		archs, err := r.engine.renderAll("architectures", r.Architectures)
		if err != nil {
			return nil, err
		}
		cfg := apt.RepoConfig{
			Name:          f["name"],
			URL:           f["url"],
			Suite:         f["suite"],
			Component:     f["component"],
			Architectures: archs,
			Packages:      packages,
		}
		if f["keyring"] != "" {
			if cfg.Keyring, err = r.loadResource(ctx, c, f["keyring"]); err != nil {
				return nil, fmt.Errorf("loading keyring: %w", err)
			}
		}
		return apt.NewResolver(cfg)

	case TypeGitHubRelease, TypeGitHubDebs:
		if err := requireFields(f, "owner", "repo"); err != nil {
			return nil, err
		}
		tags, err := r.compile("tags", r.Tags)
		if err != nil {
			return nil, err
		}
		repo := github.Repo{
			Owner:       f["owner"],
			Name:        f["repo"],
			Tags:        tags,
			Prereleases: r.Prereleases,
			Token:       f["token"],
			APIURL:      f["url"],
		}
		if r.Type == TypeGitHubDebs {
			return &github.DebResolver{Repo: repo, Cache: cache}, nil
		}
		return &github.ReleaseResolver{Repo: repo}, nil

	case TypeDeb:
		urls, err := r.engine.renderAll("debs", r.Debs)
		if err != nil {
			return nil, err
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("%q is required", "debs")
		}
		return apt.NewDebResolver(f["name"], urls, cache), nil

	case "":
		return nil, fmt.Errorf("%q is required", "type")
	}
	return nil, fmt.Errorf("unknown resolver type %q", r.Type)
}
