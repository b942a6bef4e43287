package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/version"
)

// NodeJsIndexURL lists every Node.js release.
const NodeJsIndexURL = "https://nodejs.org/dist/index.json"

// NodeJs reports the latest long-term support release of Node.js, followed
// by its codename, and the latest current release.
type NodeJs struct {
	// IndexURL defaults to NodeJsIndexURL.
	IndexURL string
}

func (NodeJs) String() string { return "NodeJs" }

// ltsName is the lts field of a release: false, or the codename of the
// release line.
type ltsName string

func (l *ltsName) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*l = ltsName(name)
		return nil
	}
	var flag bool
	if err := json.Unmarshal(b, &flag); err != nil {
		return fmt.Errorf("lts: expected a string or a boolean, got %s", b)
	}
	*l = ""
	return nil
}

type nodeRelease struct {
	Version  string  `json:"version"`
	LTS      ltsName `json:"lts"`
	Security bool    `json:"security"`
}

// Resolve reads the release index.
func (n NodeJs) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	u := n.IndexURL
	if u == "" {
		u = NodeJsIndexURL
	}
	rc, err := c.Open(ctx, fetch.Request{URL: u})
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var releases []nodeRelease
	if err := json.NewDecoder(rc).Decode(&releases); err != nil {
		return nil, fmt.Errorf("%s: decoding index: %w", u, err)
	}

	var lts, current []string
	codenames := make(map[string]ltsName)
	for _, r := range releases {
		if r.LTS != "" {
			lts = append(lts, r.Version)
			codenames[r.Version] = r.LTS
		} else {
			current = append(current, r.Version)
		}
	}

	var out []string
	if v, ok := version.Max(lts); ok {
		out = append(out, fmt.Sprintf("%s %s", v, codenames[v]))
	}
	if v, ok := version.Max(current); ok {
		out = append(out, v)
	}
	return out, nil
}
