package registry

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/version"
)

// MavenCentralURL is the repository used by MavenCentral.
const MavenCentralURL = "https://repo.maven.apache.org/maven2"

// Maven resolves the versions of an artifact of a Maven repository, from
// its maven-metadata.xml.
type Maven struct {
	RepoURL    string
	GroupID    string
	ArtifactID string
	// Filters select version lines. With no filter the highest version is
	// reported; otherwise the highest version matching each filter, in
	// filter order.
	Filters []*regexp.Regexp
}

// MavenCentral returns the resolver of an artifact published on Maven
// Central.
func MavenCentral(groupID, artifactID string, filters ...*regexp.Regexp) *Maven {
	return &Maven{RepoURL: MavenCentralURL, GroupID: groupID, ArtifactID: artifactID, Filters: filters}
}

func (m *Maven) String() string {
	if len(m.Filters) == 0 {
		return fmt.Sprintf("Maven: %s:%s", m.GroupID, m.ArtifactID)
	}
	patterns := make([]string, len(m.Filters))
	for i, f := range m.Filters {
		patterns[i] = f.String()
	}
	return fmt.Sprintf("Maven: %s:%s =~ /%s/", m.GroupID, m.ArtifactID, strings.Join(patterns, "|"))
}

func (m *Maven) metadataURL() string {
	return fmt.Sprintf("%s/%s/%s/maven-metadata.xml",
		strings.TrimSuffix(m.RepoURL, "/"), strings.ReplaceAll(m.GroupID, ".", "/"), m.ArtifactID)
}

type mavenMetadata struct {
	XMLName  xml.Name `xml:"metadata"`
	Versions []string `xml:"versioning>versions>version"`
}

// Resolve reads the metadata and picks the versions.
func (m *Maven) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	u := m.metadataURL()
	rc, err := c.Open(ctx, fetch.Request{URL: u})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var md mavenMetadata
	if err := xml.NewDecoder(rc).Decode(&md); err != nil {
		return nil, fmt.Errorf("%s: decoding metadata: %w", u, err)
	}
	return m.pick(md.Versions), nil
}

func (m *Maven) pick(versions []string) []string {
	if len(m.Filters) == 0 {
		if latest, ok := version.Max(versions); ok {
			return []string{latest}
		}
		return nil
	}
	var out []string
	for _, f := range m.Filters {
		var matching []string
		for _, v := range versions {
			if f.MatchString(v) {
				matching = append(matching, v)
			}
		}
		if latest, ok := version.Max(matching); ok {
			out = append(out, latest)
		}
	}
	return out
}
