package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultRegistryURL  = "https://registry.npmjs.org"
	defaultDownloadsURL = "https://api.npmjs.org"

	// A package counts as recently maintained if it was modified
	// within this window.
	maintenanceWindow = 6 * 30 * 24 * time.Hour
)

// FetchError reports a failed call to the npm registry.
type FetchError struct {
	Resource string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("npm: fetch %s: status %d", e.Resource, e.Status)
	}
	return fmt.Sprintf("npm: fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client wraps the npm registry and downloads APIs.
type Client struct {
	httpClient   *http.Client
	registryURL  string
	downloadsURL string

	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the registry and downloads endpoints. Used by tests.
func WithBaseURLs(registry, downloads string) Option {
	return func(c *Client) {
		c.registryURL = registry
		c.downloadsURL = downloads
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates an npm registry client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		registryURL:  defaultRegistryURL,
		downloadsURL: defaultDownloadsURL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchOptions control package search paging and score weighting.
type SearchOptions struct {
	Size        int
	From        int
	Quality     float64
	Popularity  float64
	Maintenance float64
}

// SearchResult is a page of package search results.
type SearchResult struct {
	Total   int            `json:"total"`
	Objects []SearchObject `json:"objects"`
}

// SearchObject is one search hit with its provider-assigned sub-scores.
type SearchObject struct {
	Package SearchPackage `json:"package"`
	Score   struct {
		Final  float64 `json:"final"`
		Detail struct {
			Quality     float64 `json:"quality"`
			Popularity  float64 `json:"popularity"`
			Maintenance float64 `json:"maintenance"`
		} `json:"detail"`
	} `json:"score"`
}

// SearchPackage is the package summary embedded in a search hit.
type SearchPackage struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Links       struct {
		Repository string `json:"repository"`
		Homepage   string `json:"homepage"`
	} `json:"links"`
	Author struct {
		Name string `json:"name"`
	} `json:"author"`
	Publisher struct {
		Username string `json:"username"`
	} `json:"publisher"`
}

// PackageInfo is the full registry document for a package.
type PackageInfo struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	DistTags    map[string]string         `json:"dist-tags"`
	Versions    map[string]PackageVersion `json:"versions"`
	Time        map[string]time.Time      `json:"time"`
	Keywords    []string                  `json:"keywords"`
	License     string                    `json:"license"`
	Homepage    string                    `json:"homepage"`
	// Repository is a string or a {type,url} object depending on how
	// the package.json was written; parsed lazily by ExtractRepositoryURL.
	Repository json.RawMessage `json:"repository"`
	Author     struct {
		Name string `json:"name"`
	} `json:"author"`
}

// LatestVersion returns the manifest tagged "latest", or nil.
func (p *PackageInfo) LatestVersion() *PackageVersion {
	tag, ok := p.DistTags["latest"]
	if !ok {
		return nil
	}
	v, ok := p.Versions[tag]
	if !ok {
		return nil
	}
	return &v
}

// PackageVersion is one version's manifest.
type PackageVersion struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Description      string            `json:"description"`
	Main             string            `json:"main"`
	Keywords         []string          `json:"keywords"`
	Scripts          map[string]string `json:"scripts"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// DownloadStats is a download count over a period.
type DownloadStats struct {
	Downloads int    `json:"downloads"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Package   string `json:"package"`
}

// SearchPackages searches the registry.
func (c *Client) SearchPackages(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	params := url.Values{}
	params.Set("text", query)
	if opts.Size > 0 {
		params.Set("size", strconv.Itoa(opts.Size))
	}
	if opts.From > 0 {
		params.Set("from", strconv.Itoa(opts.From))
	}
	if opts.Quality > 0 {
		params.Set("quality", strconv.FormatFloat(opts.Quality, 'f', -1, 64))
	}
	if opts.Popularity > 0 {
		params.Set("popularity", strconv.FormatFloat(opts.Popularity, 'f', -1, 64))
	}
	if opts.Maintenance > 0 {
		params.Set("maintenance", strconv.FormatFloat(opts.Maintenance, 'f', -1, 64))
	}

	var result SearchResult
	resource := fmt.Sprintf("package search %q", query)
	if err := c.getJSON(ctx, c.registryURL+"/-/v1/search?"+params.Encode(), resource, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPackageInfo fetches the full registry document for a package.
func (c *Client) GetPackageInfo(ctx context.Context, name string) (*PackageInfo, error) {
	var info PackageInfo
	resource := fmt.Sprintf("package %s", name)
	if err := c.getJSON(ctx, c.registryURL+"/"+url.PathEscape(name), resource, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetPackageVersion fetches one version's manifest.
func (c *Client) GetPackageVersion(ctx context.Context, name, version string) (*PackageVersion, error) {
	var v PackageVersion
	resource := fmt.Sprintf("package %s@%s", name, version)
	u := c.registryURL + "/" + url.PathEscape(name) + "/" + url.PathEscape(version)
	if err := c.getJSON(ctx, u, resource, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetDownloadStats fetches the download count for a period (e.g.
// "last-month"). Download stats are best-effort enrichment: on any
// provider error a zeroed stats object is returned instead of the
// error.
func (c *Client) GetDownloadStats(ctx context.Context, name, period string) *DownloadStats {
	u := fmt.Sprintf("%s/downloads/point/%s/%s", c.downloadsURL, period, name)

	var stats DownloadStats
	resource := fmt.Sprintf("downloads %s/%s", period, name)
	if err := c.getJSON(ctx, u, resource, &stats); err != nil {
		return &DownloadStats{Package: name}
	}
	return &stats
}

// IsRecentlyMaintained reports whether the package was modified within
// the last six months.
func (c *Client) IsRecentlyMaintained(info *PackageInfo) bool {
	modified, ok := info.Time["modified"]
	if !ok {
		return false
	}
	return c.now().Sub(modified) < maintenanceWindow
}

func (c *Client) getJSON(ctx context.Context, rawurl, resource string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return &FetchError{Resource: resource, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{Resource: resource, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	return nil
}
