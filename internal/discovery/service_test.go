package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpwizard/mcpwizard/internal/analyzer"
	"github.com/mcpwizard/mcpwizard/internal/catalog"
	"github.com/mcpwizard/mcpwizard/internal/github"
	"github.com/mcpwizard/mcpwizard/internal/npm"
)

// ---- scripted collaborators ----

type fakeRepoSearcher struct {
	mu     sync.Mutex
	result *github.SearchResult
	err    error
	calls  int
	block  chan struct{}
	rate   github.RateLimitStatus
	canReq bool
}

func (f *fakeRepoSearcher) SearchRepositories(ctx context.Context, query string, opts github.SearchOptions) (*github.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

func (f *fakeRepoSearcher) RateLimitStatus() github.RateLimitStatus { return f.rate }
func (f *fakeRepoSearcher) CanMakeRequest() bool                   { return f.canReq }

func (f *fakeRepoSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePkgSearcher struct {
	mu     sync.Mutex
	result *npm.SearchResult
	err    error
	calls  int
}

func (f *fakePkgSearcher) SearchPackages(ctx context.Context, query string, opts npm.SearchOptions) (*npm.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result, f.err
}

type fakeRepoAnalyzer struct {
	mu      sync.Mutex
	entries map[string]*catalog.Entry
	calls   int
}

func (f *fakeRepoAnalyzer) Analyze(ctx context.Context, owner, name string) (*catalog.Entry, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.entries[owner+"/"+name], nil
}

type fakePkgAnalyzer struct {
	analyses map[string]*catalog.PackageAnalysis
}

func (f *fakePkgAnalyzer) Analyze(ctx context.Context, packageName string) (*catalog.PackageAnalysis, error) {
	if analysis, ok := f.analyses[packageName]; ok {
		return analysis, nil
	}
	return &catalog.PackageAnalysis{PackageName: packageName}, nil
}

func (f *fakePkgAnalyzer) ToEntry(analysis *catalog.PackageAnalysis) *catalog.Entry {
	if analysis == nil || !analysis.IsMCP {
		return nil
	}
	return &catalog.Entry{
		Identity:   catalog.RegistryIdentity(analysis.PackageName),
		Name:       analysis.PackageName,
		Source:     catalog.SourceRegistry,
		Popularity: analysis.Metadata.Downloads,
		Tags:       []string{"npm"},
	}
}

type fakeStore struct {
	mu      sync.Mutex
	upserts []string
	err     error
}

func (f *fakeStore) UpsertEntry(ctx context.Context, entry *catalog.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, entry.Identity)
	return nil
}

func searchRepo(owner, name string, stars, forks int) github.Repository {
	repo := github.Repository{
		Name:            name,
		FullName:        owner + "/" + name,
		HTMLURL:         "https://github.com/" + owner + "/" + name,
		StargazersCount: stars,
		ForksCount:      forks,
	}
	repo.Owner.Login = owner
	return repo
}

func repoEntry(identity string, popularity int) *catalog.Entry {
	return &catalog.Entry{
		Identity:   identity,
		Source:     catalog.SourceRepository,
		Popularity: popularity,
		Tags:       []string{"mcp"},
	}
}

// ---- merge and rank ----

func TestMergeEntriesCollisionKeepsRepositoryPriority(t *testing.T) {
	repo := repoEntry("acme/fs-mcp", 0)
	repo.Readme = "short"
	repo.Description = "from repository"

	registry := &catalog.Entry{
		Identity:    "acme/fs-mcp",
		Source:      catalog.SourceRegistry,
		Popularity:  42,
		Tags:        []string{"npm"},
		Readme:      "a considerably longer readme body",
		Description: "from registry",
	}
	other := &catalog.Entry{Identity: "registry:other", Source: catalog.SourceRegistry, Popularity: 7}

	merged := mergeEntries([]*catalog.Entry{repo}, []*catalog.Entry{registry, other})

	// |A| + |B| - |collisions|
	require.Len(t, merged, 2)

	collided := merged[0]
	assert.Equal(t, "acme/fs-mcp", collided.Identity)
	// Repository fields win...
	assert.Equal(t, catalog.SourceRepository, collided.Source)
	assert.Equal(t, "from repository", collided.Description)
	// ...except popularity falls through to the first non-zero,
	assert.Equal(t, 42, collided.Popularity)
	// tags are unioned,
	assert.ElementsMatch(t, []string{"mcp", "npm"}, collided.Tags)
	// and the longer README wins.
	assert.Equal(t, "a considerably longer readme body", collided.Readme)
}

func TestMergeEntriesNonZeroRepoPopularityWins(t *testing.T) {
	repo := repoEntry("acme/fs-mcp", 7)
	registry := &catalog.Entry{Identity: "acme/fs-mcp", Popularity: 9000}

	merged := mergeEntries([]*catalog.Entry{repo}, []*catalog.Entry{registry})
	require.Len(t, merged, 1)
	// First-truthy precedence, not max.
	assert.Equal(t, 7, merged[0].Popularity)
}

func TestRankEntriesStableOnTies(t *testing.T) {
	entries := []*catalog.Entry{
		{Identity: "a", Popularity: 3},
		{Identity: "b", Popularity: 10},
		{Identity: "c", Popularity: 1},
		{Identity: "d", Popularity: 10},
	}

	ranked := rankEntries(entries, 10)
	got := make([]string, len(ranked))
	for i, e := range ranked {
		got[i] = e.Identity
	}
	// The two 10s keep their original relative order.
	assert.Equal(t, []string{"b", "d", "a", "c"}, got)

	truncated := rankEntries(entries, 2)
	assert.Len(t, truncated, 2)
}

// ---- orchestration ----

func newTestService(repos *fakeRepoSearcher, pkgs *fakePkgSearcher, ra *fakeRepoAnalyzer, pa *fakePkgAnalyzer, store CatalogStore) *Service {
	return NewService(Config{
		Repositories: repos,
		Packages:     pkgs,
		RepoAnalyzer: ra,
		PkgAnalyzer:  pa,
		Store:        store,
	})
}

func TestDiscoverBranchIsolation(t *testing.T) {
	repos := &fakeRepoSearcher{err: errors.New("github down")}
	pkgs := &fakePkgSearcher{result: &npm.SearchResult{Objects: []npm.SearchObject{
		{Package: npm.SearchPackage{Name: "fs-mcp-server"}},
	}}}
	pa := &fakePkgAnalyzer{analyses: map[string]*catalog.PackageAnalysis{
		"fs-mcp-server": {PackageName: "fs-mcp-server", IsMCP: true, Confidence: 0.45},
	}}

	svc := newTestService(repos, pkgs, &fakeRepoAnalyzer{}, pa, nil)
	entries, err := svc.Discover(context.Background(), DefaultOptions())

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "registry:fs-mcp-server", entries[0].Identity)
}

func TestDiscoverRegistryFailureIsolated(t *testing.T) {
	repos := &fakeRepoSearcher{result: &github.SearchResult{Items: []github.Repository{
		searchRepo("acme", "fs-mcp", 50, 2),
	}}}
	pkgs := &fakePkgSearcher{err: errors.New("npm down")}
	ra := &fakeRepoAnalyzer{entries: map[string]*catalog.Entry{
		"acme/fs-mcp": repoEntry("acme/fs-mcp", 50),
	}}

	svc := newTestService(repos, pkgs, ra, &fakePkgAnalyzer{}, nil)
	entries, err := svc.Discover(context.Background(), DefaultOptions())

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme/fs-mcp", entries[0].Identity)
}

func TestDiscoverCacheHitSkipsProviders(t *testing.T) {
	repos := &fakeRepoSearcher{result: &github.SearchResult{}}
	pkgs := &fakePkgSearcher{result: &npm.SearchResult{}}
	svc := newTestService(repos, pkgs, &fakeRepoAnalyzer{}, &fakePkgAnalyzer{}, nil)

	opts := DefaultOptions()
	opts.Query = "file system"

	_, err := svc.Discover(context.Background(), opts)
	require.NoError(t, err)
	_, err = svc.Discover(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, repos.callCount())
	assert.Equal(t, 1, pkgs.calls)
}

func TestDiscoverFiltersCandidates(t *testing.T) {
	repos := &fakeRepoSearcher{result: &github.SearchResult{Items: []github.Repository{
		searchRepo("acme", "starving", 9, 0),   // below the popularity floor
		searchRepo("acme", "forky", 20, 50),    // forks > 2x stars
		searchRepo("acme", "healthy", 20, 5),   // analyzed
	}}}
	ra := &fakeRepoAnalyzer{entries: map[string]*catalog.Entry{
		"acme/healthy": repoEntry("acme/healthy", 20),
	}}

	svc := newTestService(repos, &fakePkgSearcher{result: &npm.SearchResult{}}, ra, &fakePkgAnalyzer{}, nil)
	entries, err := svc.Discover(context.Background(), DefaultOptions())

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme/healthy", entries[0].Identity)
	assert.Equal(t, 1, ra.calls)
}

func TestDiscoverIncludeForks(t *testing.T) {
	repos := &fakeRepoSearcher{result: &github.SearchResult{Items: []github.Repository{
		searchRepo("acme", "forky", 20, 50),
	}}}
	ra := &fakeRepoAnalyzer{entries: map[string]*catalog.Entry{
		"acme/forky": repoEntry("acme/forky", 20),
	}}

	svc := newTestService(repos, &fakePkgSearcher{result: &npm.SearchResult{}}, ra, &fakePkgAnalyzer{}, nil)

	opts := DefaultOptions()
	opts.IncludeForks = true
	entries, err := svc.Discover(context.Background(), opts)

	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiscoverPersistsTolerantly(t *testing.T) {
	repos := &fakeRepoSearcher{result: &github.SearchResult{Items: []github.Repository{
		searchRepo("acme", "fs-mcp", 50, 2),
	}}}
	ra := &fakeRepoAnalyzer{entries: map[string]*catalog.Entry{
		"acme/fs-mcp": repoEntry("acme/fs-mcp", 50),
	}}
	store := &fakeStore{err: errors.New("db down")}

	svc := newTestService(repos, &fakePkgSearcher{result: &npm.SearchResult{}}, ra, &fakePkgAnalyzer{}, store)
	entries, err := svc.Discover(context.Background(), DefaultOptions())

	// Discovery succeeding is independent of persistence succeeding.
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// ---- jobs ----

func TestSubmitJobReturnsImmediately(t *testing.T) {
	block := make(chan struct{})
	repos := &fakeRepoSearcher{result: &github.SearchResult{}, block: block}
	svc := newTestService(repos, &fakePkgSearcher{result: &npm.SearchResult{}}, &fakeRepoAnalyzer{}, &fakePkgAnalyzer{}, nil)

	opts := DefaultOptions()
	opts.Query = "file system"

	id := svc.SubmitJob(opts)
	require.NotEmpty(t, id)

	// Before the provider call resolves the job is pending or running,
	// never completed.
	job := svc.GetJobStatus(id)
	require.NotNil(t, job)
	assert.Contains(t, []catalog.JobStatus{catalog.JobPending, catalog.JobRunning}, job.Status)
	assert.Equal(t, "file system", job.Query)

	close(block)
	assert.Eventually(t, func() bool {
		return svc.GetJobStatus(id).Status == catalog.JobCompleted
	}, time.Second, 5*time.Millisecond)
}

type panickyCache struct{}

func (panickyCache) Get(key string) (any, bool)                  { panic("cache unavailable") }
func (panickyCache) Set(key string, value any, ttl time.Duration) {}
func (panickyCache) Delete(key string)                            {}
func (panickyCache) DeleteByPattern(pattern string)               {}

func TestJobFailurePropagation(t *testing.T) {
	repos := &fakeRepoSearcher{result: &github.SearchResult{}}
	svc := NewService(Config{
		Repositories: repos,
		Packages:     &fakePkgSearcher{result: &npm.SearchResult{}},
		RepoAnalyzer: &fakeRepoAnalyzer{},
		PkgAnalyzer:  &fakePkgAnalyzer{},
		Cache:        panickyCache{},
	})

	id := svc.SubmitJob(DefaultOptions())

	assert.Eventually(t, func() bool {
		return svc.GetJobStatus(id).Status == catalog.JobFailed
	}, time.Second, 5*time.Millisecond)

	job := svc.GetJobStatus(id)
	assert.Equal(t, "cache unavailable", job.Error)
	assert.Empty(t, job.Results)
}

func TestGetJobStatusUnknown(t *testing.T) {
	svc := newTestService(&fakeRepoSearcher{}, &fakePkgSearcher{}, &fakeRepoAnalyzer{}, &fakePkgAnalyzer{}, nil)
	assert.Nil(t, svc.GetJobStatus("missing"))
}

// ---- analyzeSingle ----

func TestAnalyzeSingleRejectsBadURL(t *testing.T) {
	svc := newTestService(&fakeRepoSearcher{}, &fakePkgSearcher{}, &fakeRepoAnalyzer{}, &fakePkgAnalyzer{}, nil)

	_, err := svc.AnalyzeSingle(context.Background(), "ftp://example.com/not/github")
	require.Error(t, err)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestAnalyzeSingleCachesByURL(t *testing.T) {
	ra := &fakeRepoAnalyzer{entries: map[string]*catalog.Entry{
		"acme/fs-mcp": repoEntry("acme/fs-mcp", 50),
	}}
	svc := newTestService(&fakeRepoSearcher{}, &fakePkgSearcher{}, ra, &fakePkgAnalyzer{}, nil)

	first, err := svc.AnalyzeSingle(context.Background(), "https://github.com/acme/fs-mcp")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.AnalyzeSingle(context.Background(), "https://github.com/acme/fs-mcp")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.Identity, second.Identity)
	assert.Equal(t, 1, ra.calls)
}

func TestAnalyzeSingleAcceptsGitSuffix(t *testing.T) {
	ra := &fakeRepoAnalyzer{entries: map[string]*catalog.Entry{
		"acme/fs-mcp": repoEntry("acme/fs-mcp", 50),
	}}
	svc := newTestService(&fakeRepoSearcher{}, &fakePkgSearcher{}, ra, &fakePkgAnalyzer{}, nil)

	entry, err := svc.AnalyzeSingle(context.Background(), "https://github.com/acme/fs-mcp.git")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "acme/fs-mcp", entry.Identity)
}

// ---- provider status ----

func TestGetProviderStatus(t *testing.T) {
	repos := &fakeRepoSearcher{
		canReq: true,
		rate:   github.RateLimitStatus{Remaining: 4999},
	}
	svc := newTestService(repos, &fakePkgSearcher{}, &fakeRepoAnalyzer{}, &fakePkgAnalyzer{}, nil)

	status := svc.GetProviderStatus()
	assert.True(t, status.Repository.Available)
	assert.Equal(t, 4999, status.Repository.RateLimit.Remaining)
	assert.True(t, status.Registry.Available)
}

// ---- end to end with the real analyzers ----

type scriptedGitHub struct {
	fakeRepoSearcher
	repos map[string]*github.Repository
	files map[string]string
}

func (s *scriptedGitHub) GetRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	if repo, ok := s.repos[owner+"/"+name]; ok {
		return repo, nil
	}
	return nil, &github.FetchError{Resource: "repository " + owner + "/" + name, Status: 404}
}

func (s *scriptedGitHub) GetDirectoryListing(ctx context.Context, owner, name, path string) ([]github.ContentEntry, error) {
	return nil, nil
}

func (s *scriptedGitHub) DownloadRawFile(ctx context.Context, owner, name, path string) (string, error) {
	if content, ok := s.files[path]; ok {
		return content, nil
	}
	return "", &github.FetchError{Resource: "file " + path, Status: 404}
}

type scriptedNPM struct {
	fakePkgSearcher
	infos map[string]*npm.PackageInfo
}

func (s *scriptedNPM) GetPackageInfo(ctx context.Context, name string) (*npm.PackageInfo, error) {
	if info, ok := s.infos[name]; ok {
		return info, nil
	}
	return nil, &npm.FetchError{Resource: "package " + name, Status: 404}
}

func (s *scriptedNPM) GetDownloadStats(ctx context.Context, name, period string) *npm.DownloadStats {
	return &npm.DownloadStats{Package: name}
}

func (s *scriptedNPM) IsRecentlyMaintained(info *npm.PackageInfo) bool { return true }

func TestDiscoverEndToEnd(t *testing.T) {
	repo := searchRepo("acme", "fs-mcp", 50, 2)
	gh := &scriptedGitHub{
		fakeRepoSearcher: fakeRepoSearcher{result: &github.SearchResult{
			TotalCount: 1,
			Items:      []github.Repository{repo},
		}},
		repos: map[string]*github.Repository{"acme/fs-mcp": &repo},
		files: map[string]string{
			"package.json": `{"name":"fs-mcp","version":"1.0.0","keywords":["mcp"],"main":"index.js"}`,
		},
	}
	reg := &scriptedNPM{
		fakePkgSearcher: fakePkgSearcher{result: &npm.SearchResult{
			Total: 1,
			Objects: []npm.SearchObject{
				{Package: npm.SearchPackage{Name: "fs-server"}},
			},
		}},
		infos: map[string]*npm.PackageInfo{
			"fs-server": {Name: "fs-server", Description: "An MCP server for file access"},
		},
	}
	store := &fakeStore{}

	svc := NewService(Config{
		Repositories: gh,
		Packages:     reg,
		RepoAnalyzer: analyzer.NewRepositoryAnalyzer(gh, nil),
		PkgAnalyzer:  analyzer.NewPackageAnalyzer(reg, nil),
		Store:        store,
	})

	opts := DefaultOptions()
	opts.Query = "file system"
	entries, err := svc.Discover(context.Background(), opts)
	require.NoError(t, err)

	// The package's description-only confidence of 0.20 is below the
	// 0.3 threshold, so only the repository entry survives.
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "acme/fs-mcp", entry.Identity)
	assert.Equal(t, catalog.SourceRepository, entry.Source)
	assert.Contains(t, entry.Tags, "mcp")
	assert.Equal(t, 50, entry.Popularity)

	assert.Equal(t, []string{"acme/fs-mcp"}, store.upserts)
}
