package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultRawURL  = "https://raw.githubusercontent.com"

	// Documented ceiling for authenticated requests; used before any
	// response has reported actual quota.
	defaultRateLimit = 5000
)

// Branch names tried, in order, when downloading raw files.
var branchFallback = []string{"main", "master"}

// Client wraps the GitHub search and contents APIs. The only mutable
// state is the rate-limit bookkeeping updated from response headers.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
	rawURL     string

	mu            sync.Mutex
	rateRemaining int
	rateReset     time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the API and raw-content endpoints. Used by tests.
func WithBaseURLs(api, raw string) Option {
	return func(c *Client) {
		c.baseURL = api
		c.rawURL = raw
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a GitHub client. An empty token is allowed but
// subject to much lower rate limits.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		token:         token,
		baseURL:       defaultBaseURL,
		rawURL:        defaultRawURL,
		rateRemaining: defaultRateLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Repository is a single repository record as returned by the API.
type Repository struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	DefaultBranch   string   `json:"default_branch"`
	Topics          []string `json:"topics"`
	Fork            bool     `json:"fork"`
	License         *struct {
		SpdxID string `json:"spdx_id"`
		Name   string `json:"name"`
	} `json:"license"`
	PushedAt time.Time `json:"pushed_at"`
}

// SearchResult is a page of repository search results.
type SearchResult struct {
	TotalCount int          `json:"total_count"`
	Items      []Repository `json:"items"`
}

// SearchOptions control repository search paging and ordering.
type SearchOptions struct {
	Sort    string // "stars", "updated", ...
	Order   string // "asc" or "desc"
	PerPage int
	Page    int
}

// ContentEntry is one file or directory in a contents listing.
type ContentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
}

// RateLimitStatus is the client's view of the remaining search quota.
type RateLimitStatus struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Exhausted bool      `json:"exhausted"`
}

// SearchRepositories searches for repositories matching query. The
// query is augmented with the protocol terms so callers only supply
// the user-facing term.
func (c *Client) SearchRepositories(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	augmented := fmt.Sprintf(`%s mcp OR "model context protocol"`, query)

	params := url.Values{}
	params.Set("q", augmented)
	if opts.Sort != "" {
		params.Set("sort", opts.Sort)
	}
	if opts.Order != "" {
		params.Set("order", opts.Order)
	}
	if opts.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}

	var result SearchResult
	resource := fmt.Sprintf("repository search %q", query)
	if err := c.getJSON(ctx, c.baseURL+"/search/repositories?"+params.Encode(), resource, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRepository fetches a single repository's metadata.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*Repository, error) {
	var repo Repository
	resource := fmt.Sprintf("repository %s/%s", owner, name)
	u := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, name)
	if err := c.getJSON(ctx, u, resource, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetDirectoryListing lists files and directories at path. An empty
// path lists the repository root.
func (c *Client) GetDirectoryListing(ctx context.Context, owner, name, path string) ([]ContentEntry, error) {
	var entries []ContentEntry
	resource := fmt.Sprintf("contents %s/%s/%s", owner, name, path)
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, name, path)
	if err := c.getJSON(ctx, u, resource, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DownloadRawFile fetches a file's raw text content, trying the
// primary default branch name first and falling back once to the
// conventional secondary name. Exactly two attempts, no more.
func (c *Client) DownloadRawFile(ctx context.Context, owner, name, path string) (string, error) {
	var lastErr error
	for _, branch := range branchFallback {
		u := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawURL, owner, name, branch, path)
		content, err := c.getText(ctx, u, fmt.Sprintf("file %s/%s:%s", owner, name, path))
		if err == nil {
			return content, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// RateLimitStatus reports the quota observed on the most recent
// response. Before any call has been made, remaining defaults to the
// documented ceiling so Exhausted starts false.
func (c *Client) RateLimitStatus() RateLimitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RateLimitStatus{
		Remaining: c.rateRemaining,
		ResetAt:   c.rateReset,
		Exhausted: c.rateRemaining <= 0,
	}
}

// CanMakeRequest reports whether quota remains.
func (c *Client) CanMakeRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateRemaining > 0
}

func (c *Client) getJSON(ctx context.Context, rawurl, resource string, out any) error {
	resp, err := c.do(ctx, rawurl, resource, "application/vnd.github.v3+json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Resource: resource, Err: err}
	}
	return nil
}

func (c *Client) getText(ctx context.Context, rawurl, resource string) (string, error) {
	resp, err := c.do(ctx, rawurl, resource, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Resource: resource, Err: err}
	}
	return string(body), nil
}

// do performs a GET and updates rate-limit bookkeeping from the
// response headers.
func (c *Client) do(ctx context.Context, rawurl, resource, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, &FetchError{Resource: resource, Err: err}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Resource: resource, Err: err}
	}

	c.updateRateLimit(resp)

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return nil, &RateLimitError{ResetAt: c.RateLimitStatus().ResetAt}
		}
		return nil, &FetchError{Resource: resource, Status: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) updateRateLimit(resp *http.Response) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateRemaining = n
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if secs, err := strconv.ParseInt(reset, 10, 64); err == nil {
			c.rateReset = time.Unix(secs, 0)
		}
	}
}
