package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/pipeline"
	"github.com/etnz/library-versions/version"
)

// GradleReleasesURL is the page listing Gradle releases, newest first.
const GradleReleasesURL = "https://gradle.org/releases/"

// gradleLines is the number of release lines Gradle reports.
const gradleLines = 3

var gradleAnchor = regexp.MustCompile(`<a name="([0-9]\.[0-9.]+)">`)

// Gradle reports the latest release of each of the three most recent Gradle
// release lines. The release page is read line by line and the download
// stops once they are found.
type Gradle struct {
	// PageURL defaults to GradleReleasesURL.
	PageURL string
}

func (Gradle) String() string { return "Gradle" }

// Resolve scans the release page.
func (g Gradle) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	u := g.PageURL
	if u == "" {
		u = GradleReleasesURL
	}
	var (
		out  []string
		last string
	)
	err := c.Lines(ctx, fetch.Request{URL: u}, func(line string) error {
		m := gradleAnchor.FindStringSubmatch(line)
		if m == nil {
			return nil
		}
		major, minor := version.Parse(m[1]).MajorMinor()
		prefix := fmt.Sprintf("%d.%d", major, minor)
		if prefix == last {
			return nil
		}
		last = prefix
		out = append(out, m[1])
		if len(out) == gradleLines {
			return pipeline.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
