// Package github resolves versions published as GitHub releases.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/etnz/library-versions/apt"
	"github.com/etnz/library-versions/fetch"
	"github.com/etnz/library-versions/version"
)

// DefaultAPIURL is the endpoint of the public GitHub API.
const DefaultAPIURL = "https://api.github.com"

// Repo defines a GitHub repository to read releases from.
type Repo struct {
	Owner string
	Name  string
	// Tags selects the release tags to consider. All tags when nil.
	Tags *regexp.Regexp
	// Prereleases includes releases marked as pre-releases.
	Prereleases bool
	// Token, if set, authenticates API requests.
	Token string
	// APIURL defaults to DefaultAPIURL.
	APIURL string
}

func (r Repo) String() string {
	s := r.Owner + "/" + r.Name
	if r.Tags != nil {
		s += fmt.Sprintf(" =~ /%s/", r.Tags)
	}
	return s
}

type release struct {
	ID         int64   `json:"id"`
	TagName    string  `json:"tag_name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []asset `json:"assets"`
}

type asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// fetchReleases lists the releases of repo, newest first, as the API
// returns them. The JSON body is decoded while it downloads.
func fetchReleases(ctx context.Context, c *fetch.Client, repo Repo) ([]release, error) {
	apiURL := repo.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	req := fetch.Request{
		URL:    fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100", strings.TrimSuffix(apiURL, "/"), repo.Owner, repo.Name),
		Header: http.Header{"Accept": {"application/vnd.github+json"}},
	}
	if repo.Token != "" {
		req.Header.Set("Authorization", "token "+repo.Token)
	}

	rc, err := c.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var releases []release
	if err := json.NewDecoder(rc).Decode(&releases); err != nil {
		return nil, fmt.Errorf("%s: decoding releases: %w", req.URL, err)
	}
	return releases, nil
}

// selected returns the published releases of repo that match its filters.
func selected(ctx context.Context, c *fetch.Client, repo Repo) ([]release, error) {
	releases, err := fetchReleases(ctx, c, repo)
	if err != nil {
		return nil, err
	}
	var out []release
	for _, rel := range releases {
		if rel.Draft || (rel.Prerelease && !repo.Prereleases) {
			continue
		}
		if repo.Tags != nil && !repo.Tags.MatchString(rel.TagName) {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// ReleaseResolver reports the highest release tag of a repository.
type ReleaseResolver struct {
	Repo Repo
}

func (r *ReleaseResolver) String() string { return "GitHub: " + r.Repo.String() }

// Resolve returns the highest tag, compared as a dotted version.
func (r *ReleaseResolver) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	releases, err := selected(ctx, c, r.Repo)
	if err != nil {
		return nil, err
	}
	tags := make([]string, len(releases))
	for i, rel := range releases {
		tags[i] = rel.TagName
	}
	latest, ok := version.Max(tags)
	if !ok {
		return nil, nil
	}
	return []string{latest}, nil
}

// FetchDebURLs scans a GitHub repository's Releases and returns the download URLs
// for all assets ending in ".deb".
func FetchDebURLs(ctx context.Context, c *fetch.Client, repo Repo) ([]string, error) {
	releases, err := selected(ctx, c, repo)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, rel := range releases {
		for _, asset := range rel.Assets {
			if strings.HasSuffix(asset.Name, ".deb") {
				urls = append(urls, asset.BrowserDownloadURL)
			}
		}
	}
	return urls, nil
}

// DebResolver reports the latest version of each package shipped as a .deb
// asset of a repository's releases.
type DebResolver struct {
	Repo Repo
	// Cache is shared with other resolvers; assets it holds are not
	// downloaded again. A nil Cache disables caching across polls.
	Cache *apt.AssetCache
}

func (r *DebResolver) String() string { return "GitHub debs: " + r.Repo.String() }

// Resolve lists the .deb assets and reads the control file of each.
func (r *DebResolver) Resolve(ctx context.Context, c *fetch.Client) ([]string, error) {
	urls, err := FetchDebURLs(ctx, c, r.Repo)
	if err != nil {
		return nil, err
	}
	return apt.NewDebResolver(r.String(), urls, r.Cache).Resolve(ctx, c)
}
