package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
	"github.com/mcpwizard/mcpwizard/internal/npm"
)

// An analysis needs at least this confidence to count as an MCP server.
const confidenceThreshold = 0.3

// Scoring weights. Additive terms sum to 100; the staleness multiplier
// applies to the additive total before the download bonus.
const (
	nameAbbrevPoints      = 25
	nameExpansionPoints   = 15
	keywordPoints         = 10
	keywordCap            = 25
	descriptionFullPoints = 20
	descriptionHalfPoints = 10
	dependencyPoints      = 8
	dependencyCap         = 15
	repositoryURLPoints   = 5
	stalenessMultiplier   = 0.7
	downloadsHighBonus    = 5
	downloadsLowBonus     = 2
)

// RegistryClient is the subset of the npm client the analyzer needs.
type RegistryClient interface {
	GetPackageInfo(ctx context.Context, name string) (*npm.PackageInfo, error)
	GetDownloadStats(ctx context.Context, name, period string) *npm.DownloadStats
	IsRecentlyMaintained(info *npm.PackageInfo) bool
}

// PackageAnalyzer scores registry packages for protocol relevance and
// converts the qualifying ones into catalog entries.
type PackageAnalyzer struct {
	client RegistryClient
	logger *zap.Logger
}

// NewPackageAnalyzer creates a package analyzer.
func NewPackageAnalyzer(client RegistryClient, logger *zap.Logger) *PackageAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PackageAnalyzer{client: client, logger: logger}
}

// Analyze fetches registry metadata for one package and computes a
// weighted confidence score that it is an MCP server.
func (a *PackageAnalyzer) Analyze(ctx context.Context, packageName string) (*catalog.PackageAnalysis, error) {
	info, err := a.client.GetPackageInfo(ctx, packageName)
	if err != nil {
		return nil, fmt.Errorf("analyze package %s: %w", packageName, err)
	}

	score := 0.0
	indicators := make([]string, 0, 4)
	lowerName := strings.ToLower(info.Name)

	// Name signals; both may apply.
	if strings.Contains(lowerName, protocolAbbrev) {
		score += nameAbbrevPoints
		indicators = append(indicators, "package name contains \"mcp\"")
	}
	if strings.Contains(lowerName, "model") && strings.Contains(lowerName, "context") {
		score += nameExpansionPoints
		indicators = append(indicators, "package name contains \"model\" and \"context\"")
	}

	// Keyword signals, capped.
	matched := matchingKeywords(info.Keywords)
	if len(matched) > 0 {
		points := float64(len(matched) * keywordPoints)
		if points > keywordCap {
			points = keywordCap
		}
		score += points
		indicators = append(indicators, fmt.Sprintf("keywords match: %s", strings.Join(matched, ", ")))
	}

	// Description signal; only the higher-scoring branch applies.
	lowerDesc := strings.ToLower(info.Description)
	if strings.Contains(lowerDesc, protocolAbbrev) || strings.Contains(lowerDesc, protocolExpansion) {
		score += descriptionFullPoints
		indicators = append(indicators, "description mentions the protocol")
	} else if strings.Contains(lowerDesc, "model context") {
		score += descriptionHalfPoints
		indicators = append(indicators, "description mentions \"model context\"")
	}

	// Dependency signals, capped.
	latest := info.LatestVersion()
	if deps := matchingDependencies(latest); deps > 0 {
		points := float64(deps * dependencyPoints)
		if points > dependencyCap {
			points = dependencyCap
		}
		score += points
		indicators = append(indicators, fmt.Sprintf("%d protocol dependencies", deps))
	}

	repoURL := npm.ExtractRepositoryURL(info)
	if repoURL != "" {
		score += repositoryURLPoints
		indicators = append(indicators, "repository URL present")
	}

	recent := a.client.IsRecentlyMaintained(info)
	if !recent {
		score *= stalenessMultiplier
		indicators = append(indicators, "not maintained in the last 6 months")
	}

	stats := a.client.GetDownloadStats(ctx, packageName, "last-month")
	downloads := stats.Downloads
	switch {
	case downloads > 1000:
		score += downloadsHighBonus
	case downloads > 100:
		score += downloadsLowBonus
	}

	if score > 100 {
		score = 100
	}
	confidence := score / 100

	analysis := &catalog.PackageAnalysis{
		PackageName:   info.Name,
		IsMCP:         confidence >= confidenceThreshold,
		Confidence:    confidence,
		Indicators:    indicators,
		RepositoryURL: repoURL,
		Metadata: catalog.PackageMetadata{
			Description:        info.Description,
			Author:             info.Author.Name,
			License:            info.License,
			Keywords:           info.Keywords,
			Homepage:           info.Homepage,
			Downloads:          downloads,
			RecentlyMaintained: recent,
		},
	}
	if latest != nil {
		analysis.Metadata.Version = latest.Version
	}

	return analysis, nil
}

// ToEntry materializes a catalog entry from a positive analysis.
// Returns nil when the verdict is negative. Registry-sourced entries
// get a synthesized README and no parameter inference.
func (a *PackageAnalyzer) ToEntry(analysis *catalog.PackageAnalysis) *catalog.Entry {
	if analysis == nil || !analysis.IsMCP {
		return nil
	}

	pkg := analysis.PackageName
	sourceURL := analysis.RepositoryURL
	if sourceURL == "" {
		sourceURL = "https://www.npmjs.com/package/" + pkg
	}

	return &catalog.Entry{
		Identity:    catalog.RegistryIdentity(pkg),
		Name:        pkg,
		Description: analysis.Metadata.Description,
		Version:     analysis.Metadata.Version,
		Author:      analysis.Metadata.Author,
		License:     analysis.Metadata.License,
		Tags:        registryTags(analysis.Metadata.Keywords),
		Readme:      synthesizeReadme(analysis),
		Launch: catalog.LaunchTemplate{
			Command:   "node",
			Args:      []string{"node_modules/" + pkg + "/dist/index.js"},
			Env:       map[string]string{},
			Transport: catalog.TransportStdio,
		},
		RequiredParams: []catalog.Parameter{},
		OptionalParams: []catalog.Parameter{},
		Source:         catalog.SourceRegistry,
		SourceURL:      sourceURL,
		PackageName:    &pkg,
		Popularity:     analysis.Metadata.Downloads,
		Verified:       false,
		LastResearched: time.Now().UTC(),
	}
}

// synthesizeReadme generates a short document from registry metadata;
// registry-sourced entries have no README to fetch.
func synthesizeReadme(analysis *catalog.PackageAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", analysis.PackageName)
	if analysis.Metadata.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", analysis.Metadata.Description)
	}
	fmt.Fprintf(&b, "## Installation\n\n```bash\nnpm install %s\n```\n", analysis.PackageName)
	if analysis.RepositoryURL != "" {
		fmt.Fprintf(&b, "\nRepository: %s\n", analysis.RepositoryURL)
	}
	if analysis.Metadata.Homepage != "" {
		fmt.Fprintf(&b, "\nHomepage: %s\n", analysis.Metadata.Homepage)
	}
	if len(analysis.Indicators) > 0 {
		fmt.Fprintf(&b, "\n## Detection\n\nConfidence: %.0f%%\n\n", analysis.Confidence*100)
		for _, indicator := range analysis.Indicators {
			fmt.Fprintf(&b, "- %s\n", indicator)
		}
	}
	return b.String()
}

func registryTags(keywords []string) []string {
	seen := make(map[string]bool)
	tags := make([]string, 0, len(keywords)+3)

	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	add("npm")
	for _, tag := range protocolTags {
		add(tag)
	}
	for _, keyword := range keywords {
		add(keyword)
	}
	return tags
}

func matchingKeywords(keywords []string) []string {
	matched := make([]string, 0)
	for _, keyword := range keywords {
		if containsProtocolTerm(keyword) {
			matched = append(matched, keyword)
		}
	}
	return matched
}

func matchingDependencies(version *npm.PackageVersion) int {
	if version == nil {
		return 0
	}

	count := 0
	for _, deps := range []map[string]string{
		version.Dependencies,
		version.DevDependencies,
		version.PeerDependencies,
	} {
		for dep := range deps {
			if dependencyMarkerPattern.MatchString(dep) {
				count++
			}
		}
	}
	return count
}
