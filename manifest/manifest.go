// Package manifest declares, in YAML or JSON files, the registries whose
// latest versions are tracked.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/etnz/library-versions/apt"
	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/pipeline"
	"github.com/etnz/library-versions/registry"
)

// Load loads and parses a Manifest from the specified file path.
// It supports both JSON and YAML formats based on the file extension.
func Load(path string) (*Manifest, error) {
	return load(path, nil, map[string]bool{})
}

func load(path string, parent *templateEngine, seen map[string]bool) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, fmt.Errorf("include cycle at %s", path)
	}
	seen[abs] = true
	defer delete(seen, abs)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := unmarshal(path, content, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	m.filePath = path
	if parent == nil {
		m.engine, err = newTemplateEngine(m.Defines)
	} else {
		m.engine, err = parent.sub(m.Defines)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize template engine: %w", err)
	}

	for i := range m.Resolvers {
		r := &m.Resolvers[i]
		r.filePath = path
		if r.engine, err = m.engine.sub(r.Defines); err != nil {
			return nil, fmt.Errorf("%s: resolvers[%d]: %w", path, i, err)
		}
	}

	for _, inc := range m.Includes {
		incPath, err := m.engine.render("includes", inc)
		if err != nil {
			return nil, fmt.Errorf("rendering include %q: %w", inc, err)
		}
		sub, err := load(m.resolve(incPath), m.engine, seen)
		if err != nil {
			return nil, err
		}
		m.Resolvers = append(m.Resolvers, sub.Resolvers...)
	}
	return &m, nil
}

// Manifest is the configuration of the resolvers to poll.
type Manifest struct {
	// Defines is a map of global variables available to templates.
	Defines map[string]string `json:"defines" yaml:"defines"`
	// Includes lists other manifests, relative to this one, whose
	// resolvers are added to this one's. They inherit its defines.
	Includes []string `json:"includes" yaml:"includes"`
	// Resolvers declares what to poll.
	Resolvers []Resolver `json:"resolvers" yaml:"resolvers"`

	filePath string
	engine   *templateEngine
}

// Build returns the resolvers declared by the manifest and its includes.
func (m *Manifest) Build(ctx context.Context, c *fetch.Client, cache *apt.AssetCache) ([]registry.Resolver, error) {
	var out []registry.Resolver
	for i := range m.Resolvers {
		r := &m.Resolvers[i]
		res, err := r.Build(ctx, c, cache)
		if err != nil {
			return nil, fmt.Errorf("%s: resolvers[%d] (%s): %w", r.filePath, i, r.Type, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// Poll builds the resolvers and runs them with p, reporting progress to l.
func (m *Manifest) Poll(ctx context.Context, p *registry.Poller, cache *apt.AssetCache, l Listener) ([]registry.Result, error) {
	if l == nil {
		l = func(fmt.Stringer) {}
	}
	client := p.Client
	if client == nil {
		client = &fetch.Client{}
	}

	resolvers, err := m.Build(ctx, client, cache)
	if err != nil {
		return nil, err
	}
	l(EventManifestLoaded{Path: m.filePath, Resolvers: len(resolvers)})

	results, err := p.Poll(ctx, resolvers)
	if err != nil {
		return nil, err
	}

	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			l(EventResolverFailure{
				Resolver: res.Resolver,
				Class:    pipeline.Classify(res.Err),
				Error:    res.Err.Error(),
			})
			continue
		}
		l(EventResolverSuccess{
			Resolver:   res.Resolver,
			Versions:   res.Versions,
			DurationMS: res.Duration.Milliseconds(),
		})
	}
	l(EventPollComplete{Resolvers: len(results), Failures: failures})
	return results, nil
}

func (m *Manifest) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(m.filePath), path)
}

// unmarshal parses JSON or YAML based on file extension.
func unmarshal(path string, data []byte, v interface{}) error {
	ext := strings.ToLower(filepath.Ext(path))
	r := bytes.NewReader(data)
	if ext == ".yaml" || ext == ".yml" {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(v)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
