package discovery

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwizard/mcpwizard/internal/cache"
	"github.com/mcpwizard/mcpwizard/internal/catalog"
	"github.com/mcpwizard/mcpwizard/internal/github"
	"github.com/mcpwizard/mcpwizard/internal/npm"
	"github.com/mcpwizard/mcpwizard/internal/telemetry"
)

const (
	discoveryCacheTTL = time.Hour
	analysisCacheTTL  = 6 * time.Hour

	defaultMaxResults    = 50
	defaultMinPopularity = 10
	defaultWorkers       = 4

	// The provider caps search pages at 100 items.
	maxSearchPageSize = 100
)

var repoURLPattern = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ValidationError reports caller-supplied input that fails a
// precondition before any I/O is attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// Options are the knobs of one discovery request.
type Options struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	MinPopularity int    `json:"min_popularity"`
	IncludeForks  bool   `json:"include_forks"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{MaxResults: defaultMaxResults, MinPopularity: defaultMinPopularity}
}

func (o *Options) normalize() {
	if o.MaxResults <= 0 {
		o.MaxResults = defaultMaxResults
	}
	if o.MinPopularity < 0 {
		o.MinPopularity = defaultMinPopularity
	}
}

func (o Options) cacheKey() string {
	return fmt.Sprintf("discovery:%s:%d:%d", o.Query, o.MaxResults, o.MinPopularity)
}

// RepositorySearcher is the subset of the GitHub client the service needs.
type RepositorySearcher interface {
	SearchRepositories(ctx context.Context, query string, opts github.SearchOptions) (*github.SearchResult, error)
	RateLimitStatus() github.RateLimitStatus
	CanMakeRequest() bool
}

// PackageSearcher is the subset of the npm client the service needs.
type PackageSearcher interface {
	SearchPackages(ctx context.Context, query string, opts npm.SearchOptions) (*npm.SearchResult, error)
}

// RepositoryAnalyzer turns owner/name into zero-or-one catalog entry.
type RepositoryAnalyzer interface {
	Analyze(ctx context.Context, owner, name string) (*catalog.Entry, error)
}

// PackageAnalyzer scores one package and materializes qualifying ones.
type PackageAnalyzer interface {
	Analyze(ctx context.Context, packageName string) (*catalog.PackageAnalysis, error)
	ToEntry(analysis *catalog.PackageAnalysis) *catalog.Entry
}

// CatalogStore persists surviving entries. Persistence failures never
// fail a discovery.
type CatalogStore interface {
	UpsertEntry(ctx context.Context, entry *catalog.Entry) error
}

// ProviderStatus reports availability of both upstream providers. The
// registry provider exposes no client-visible rate limit.
type ProviderStatus struct {
	Repository struct {
		Available bool                   `json:"available"`
		RateLimit github.RateLimitStatus `json:"rate_limit"`
	} `json:"repository_provider"`
	Registry struct {
		Available bool `json:"available"`
	} `json:"registry_provider"`
}

// Config wires a Service.
type Config struct {
	Repositories RepositorySearcher
	Packages     PackageSearcher
	RepoAnalyzer RepositoryAnalyzer
	PkgAnalyzer  PackageAnalyzer
	Store        CatalogStore
	Cache        cache.Cache
	Logger       *zap.Logger
	Metrics      *telemetry.Metrics
	Workers      int
	JobRetention time.Duration

	// Zero means the documented defaults (1h list, 6h single analysis).
	DiscoveryTTL time.Duration
	AnalysisTTL  time.Duration
}

// Service orchestrates multi-source discovery and owns the job registry.
type Service struct {
	repos        RepositorySearcher
	packages     PackageSearcher
	repoAnalyzer RepositoryAnalyzer
	pkgAnalyzer  PackageAnalyzer
	store        CatalogStore
	cache        cache.Cache
	logger       *zap.Logger
	metrics      *telemetry.Metrics
	workers      int
	discoveryTTL time.Duration
	analysisTTL  time.Duration
	jobs         *JobRegistry
}

// NewService creates the aggregation service.
func NewService(cfg Config) *Service {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DiscoveryTTL <= 0 {
		cfg.DiscoveryTTL = discoveryCacheTTL
	}
	if cfg.AnalysisTTL <= 0 {
		cfg.AnalysisTTL = analysisCacheTTL
	}
	return &Service{
		repos:        cfg.Repositories,
		packages:     cfg.Packages,
		repoAnalyzer: cfg.RepoAnalyzer,
		pkgAnalyzer:  cfg.PkgAnalyzer,
		store:        cfg.Store,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		workers:      cfg.Workers,
		discoveryTTL: cfg.DiscoveryTTL,
		analysisTTL:  cfg.AnalysisTTL,
		jobs:         NewJobRegistry(cfg.JobRetention),
	}
}

// Discover runs both provider branches concurrently, merges and ranks
// the results, persists survivors and memoizes the final list. Branch,
// per-item and persistence failures degrade gracefully; Discover only
// errors on its own setup.
func (s *Service) Discover(ctx context.Context, opts Options) ([]*catalog.Entry, error) {
	opts.normalize()

	key := opts.cacheKey()
	if cached, ok := s.cache.Get(key); ok {
		if entries, ok := cached.([]*catalog.Entry); ok {
			s.metrics.IncCacheHits()
			return entries, nil
		}
	}
	s.metrics.IncCacheMisses()
	s.metrics.IncDiscoveryRuns()

	// Fan out to both providers and settle: a failed branch becomes an
	// empty list, never an abort of the other branch.
	var (
		wg              sync.WaitGroup
		repoEntries     []*catalog.Entry
		registryEntries []*catalog.Entry
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		entries, err := s.discoverRepositories(ctx, opts)
		if err != nil {
			s.logger.Warn("repository branch failed", zap.Error(err))
			return
		}
		repoEntries = entries
	}()
	go func() {
		defer wg.Done()
		entries, err := s.discoverPackages(ctx, opts)
		if err != nil {
			s.logger.Warn("registry branch failed", zap.Error(err))
			return
		}
		registryEntries = entries
	}()
	wg.Wait()

	merged := mergeEntries(repoEntries, registryEntries)
	ranked := rankEntries(merged, opts.MaxResults)

	s.persist(ctx, ranked)
	s.cache.Set(key, ranked, s.discoveryTTL)

	return ranked, nil
}

// discoverRepositories is the repository-search branch.
func (s *Service) discoverRepositories(ctx context.Context, opts Options) ([]*catalog.Entry, error) {
	pageSize := opts.MaxResults * 2
	if pageSize > maxSearchPageSize {
		pageSize = maxSearchPageSize
	}

	result, err := s.repos.SearchRepositories(ctx, opts.Query, github.SearchOptions{
		Sort:    "stars",
		Order:   "desc",
		PerPage: pageSize,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]github.Repository, 0, len(result.Items))
	for _, repo := range result.Items {
		if repo.StargazersCount < opts.MinPopularity {
			continue
		}
		// A fork count far above the star count usually marks a
		// template or mirror rather than a maintained server.
		if !opts.IncludeForks && repo.ForksCount > repo.StargazersCount*2 {
			continue
		}
		candidates = append(candidates, repo)
		if len(candidates) >= opts.MaxResults {
			break
		}
	}

	// Analyze candidates concurrently, preserving search order in the
	// result slots so ranking stays deterministic.
	entries := make([]*catalog.Entry, len(candidates))
	jobs := make(chan int, len(candidates))
	for i := range candidates {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	workers := s.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				repo := candidates[i]
				entry, err := s.repoAnalyzer.Analyze(ctx, repo.Owner.Login, repo.Name)
				if err != nil {
					s.logger.Warn("repository analysis failed",
						zap.String("repo", repo.FullName),
						zap.Error(err))
					continue
				}
				entries[i] = entry
			}
		}()
	}
	wg.Wait()

	kept := make([]*catalog.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry != nil {
			kept = append(kept, entry)
		}
	}
	return kept, nil
}

// discoverPackages is the registry-search branch. Only analyses whose
// verdict passed the confidence threshold materialize entries.
func (s *Service) discoverPackages(ctx context.Context, opts Options) ([]*catalog.Entry, error) {
	result, err := s.packages.SearchPackages(ctx, opts.Query, npm.SearchOptions{
		Size: opts.MaxResults * 2,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*catalog.Entry, 0, len(result.Objects))
	for _, obj := range result.Objects {
		analysis, err := s.pkgAnalyzer.Analyze(ctx, obj.Package.Name)
		if err != nil {
			s.logger.Warn("package analysis failed",
				zap.String("package", obj.Package.Name),
				zap.Error(err))
			continue
		}
		if entry := s.pkgAnalyzer.ToEntry(analysis); entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// mergeEntries dedups by identity with source priority: repository
// entries are seeded first and win field-for-field, except popularity
// takes the first non-zero of repo-then-registry, tags are unioned and
// the longer README wins.
func mergeEntries(repoEntries, registryEntries []*catalog.Entry) []*catalog.Entry {
	byIdentity := make(map[string]*catalog.Entry, len(repoEntries)+len(registryEntries))
	order := make([]string, 0, len(repoEntries)+len(registryEntries))

	for _, entry := range repoEntries {
		if _, exists := byIdentity[entry.Identity]; exists {
			continue
		}
		byIdentity[entry.Identity] = entry
		order = append(order, entry.Identity)
	}

	for _, entry := range registryEntries {
		existing, exists := byIdentity[entry.Identity]
		if !exists {
			byIdentity[entry.Identity] = entry
			order = append(order, entry.Identity)
			continue
		}

		if existing.Popularity == 0 {
			existing.Popularity = entry.Popularity
		}
		existing.Tags = unionTags(existing.Tags, entry.Tags)
		if len(entry.Readme) > len(existing.Readme) {
			existing.Readme = entry.Readme
		}
	}

	merged := make([]*catalog.Entry, 0, len(order))
	for _, identity := range order {
		merged = append(merged, byIdentity[identity])
	}
	return merged
}

// rankEntries sorts descending by popularity, stable so equal
// popularity keeps discovery order, then truncates.
func rankEntries(entries []*catalog.Entry, maxResults int) []*catalog.Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Popularity > entries[j].Popularity
	})
	if len(entries) > maxResults {
		entries = entries[:maxResults]
	}
	return entries
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	union := make([]string, 0, len(a)+len(b))
	for _, tags := range [][]string{a, b} {
		for _, tag := range tags {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			union = append(union, tag)
		}
	}
	return union
}

// persist upserts every surviving entry, tolerating individual
// failures: discovery succeeding is independent of persistence.
func (s *Service) persist(ctx context.Context, entries []*catalog.Entry) {
	if s.store == nil {
		return
	}
	for _, entry := range entries {
		if err := s.store.UpsertEntry(ctx, entry); err != nil {
			s.logger.Warn("catalog upsert failed",
				zap.String("identity", entry.Identity),
				zap.Error(err))
			continue
		}
		s.metrics.IncEntriesUpserts()
	}
}

// AnalyzeSingle parses a repository URL, consults the per-URL cache
// and delegates to the repository analyzer. Returns nil when the
// repository is not an MCP server.
func (s *Service) AnalyzeSingle(ctx context.Context, rawurl string) (*catalog.Entry, error) {
	match := repoURLPattern.FindStringSubmatch(rawurl)
	if match == nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("not a recognized repository URL: %q", rawurl)}
	}
	owner, name := match[1], match[2]

	key := "analysis:" + rawurl
	if cached, ok := s.cache.Get(key); ok {
		if entry, ok := cached.(*catalog.Entry); ok {
			return entry, nil
		}
	}

	entry, err := s.repoAnalyzer.Analyze(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		s.cache.Set(key, entry, s.analysisTTL)
		if s.store != nil {
			if err := s.store.UpsertEntry(ctx, entry); err != nil {
				s.logger.Warn("catalog upsert failed",
					zap.String("identity", entry.Identity),
					zap.Error(err))
			}
		}
	}
	return entry, nil
}

// SubmitJob creates a pending job and starts its background run,
// returning the job id without waiting for any provider call.
func (s *Service) SubmitJob(opts Options) string {
	opts.normalize()
	id := s.jobs.Create(opts.Query)
	s.metrics.IncJobsSubmitted()

	go s.runJob(id, opts)
	return id
}

func (s *Service) runJob(id string, opts Options) {
	// A failure with no designated recovery point is fatal to the job,
	// never to the process.
	defer func() {
		if p := recover(); p != nil {
			s.jobs.Fail(id, fmt.Sprint(p))
			s.metrics.IncJobsFailed()
		}
	}()

	s.jobs.MarkRunning(id)

	entries, err := s.Discover(context.Background(), opts)
	if err != nil {
		s.logger.Error("discovery job failed",
			zap.String("job_id", id),
			zap.Error(err))
		s.jobs.Fail(id, err.Error())
		s.metrics.IncJobsFailed()
		return
	}

	s.jobs.Complete(id, entries)
	s.metrics.IncJobsCompleted()
}

// GetJobStatus returns a snapshot of a job, or nil for unknown or
// already-evicted ids.
func (s *Service) GetJobStatus(id string) *catalog.DiscoveryJob {
	return s.jobs.Get(id)
}

// GetProviderStatus reports both providers' availability.
func (s *Service) GetProviderStatus() ProviderStatus {
	var status ProviderStatus
	status.Repository.Available = s.repos.CanMakeRequest()
	status.Repository.RateLimit = s.repos.RateLimitStatus()
	status.Registry.Available = true
	return status
}
