package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("", WithBaseURLs(srv.URL, srv.URL))
}

func TestSearchRepositoriesAugmentsQuery(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(`{"total_count":1,"items":[{"full_name":"acme/fs-mcp","stargazers_count":50,"owner":{"login":"acme"}}]}`))
	}))

	result, err := c.SearchRepositories(context.Background(), "file system", SearchOptions{PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "acme/fs-mcp", result.Items[0].FullName)
	assert.Contains(t, gotQuery, "file system")
	assert.Contains(t, gotQuery, "mcp")
	assert.Contains(t, gotQuery, `"model context protocol"`)
}

func TestGetRepositoryErrorIncludesOwnerAndName(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetRepository(context.Background(), "acme", "missing")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Error(), "acme/missing")
	assert.Equal(t, http.StatusNotFound, fe.Status)
}

func TestRateLimitTracking(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.Write([]byte(`{"full_name":"a/b","owner":{"login":"a"}}`))
	}))

	// Before any call, remaining defaults to the documented ceiling.
	status := c.RateLimitStatus()
	assert.Equal(t, defaultRateLimit, status.Remaining)
	assert.False(t, status.Exhausted)
	assert.True(t, c.CanMakeRequest())

	_, err := c.GetRepository(context.Background(), "a", "b")
	require.NoError(t, err)

	status = c.RateLimitStatus()
	assert.Equal(t, 7, status.Remaining)
	assert.Equal(t, int64(1700000000), status.ResetAt.Unix())
	assert.False(t, status.Exhausted)
}

func TestRateLimitExceededIsDistinguished(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.GetRepository(context.Background(), "a", "b")
	require.Error(t, err)

	var rle *RateLimitError
	assert.True(t, errors.As(err, &rle))
	assert.False(t, c.CanMakeRequest())
	assert.True(t, c.RateLimitStatus().Exhausted)
}

func TestDownloadRawFileBranchFallback(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, "/main/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("# readme"))
	}))

	content, err := c.DownloadRawFile(context.Background(), "acme", "fs-mcp", "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# readme", content)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "/main/")
	assert.Contains(t, paths[1], "/master/")
}

func TestDownloadRawFileBothBranchesFail(t *testing.T) {
	var attempts int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.DownloadRawFile(context.Background(), "acme", "fs-mcp", "README.md")
	require.Error(t, err)

	var fe *FetchError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, attempts)
}
