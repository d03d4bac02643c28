package analyzer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
	"github.com/mcpwizard/mcpwizard/internal/github"
)

// Repositories below this star count are not analyzed at all.
const minStarsForAnalysis = 5

// At most this many candidate schema files are downloaded per repository.
const maxSchemaFiles = 5

// RepositoryClient is the subset of the GitHub client the analyzer needs.
type RepositoryClient interface {
	GetRepository(ctx context.Context, owner, name string) (*github.Repository, error)
	GetDirectoryListing(ctx context.Context, owner, name, path string) ([]github.ContentEntry, error)
	DownloadRawFile(ctx context.Context, owner, name, path string) (string, error)
}

// RepositoryAnalyzer turns one owner/name pair into zero-or-one
// catalog entry.
type RepositoryAnalyzer struct {
	client RepositoryClient
	logger *zap.Logger
}

// NewRepositoryAnalyzer creates a repository analyzer.
func NewRepositoryAnalyzer(client RepositoryClient, logger *zap.Logger) *RepositoryAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepositoryAnalyzer{client: client, logger: logger}
}

// packageManifest is the subset of package.json the detectors read.
type packageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	Main            string            `json:"main"`
	Keywords        []string          `json:"keywords"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// readmeSignals is what the README detector extracted.
type readmeSignals struct {
	mentionsProtocol bool
	command          string
	args             []string
	env              map[string]string
	transport        catalog.Transport
}

// schemaSignals is what the schema-file detector accumulated.
type schemaSignals struct {
	found     bool
	tools     []json.RawMessage
	resources []json.RawMessage
	prompts   []json.RawMessage
}

// Analyze fetches repository metadata, an optional manifest and a
// README, runs the three MCP-signal detectors and assembles a catalog
// entry when at least one fired. A nil entry with nil error means the
// repository was examined and rejected; network failures on the
// primary fetch also yield nil so one bad repository never aborts a
// batch.
func (a *RepositoryAnalyzer) Analyze(ctx context.Context, owner, name string) (*catalog.Entry, error) {
	repo, err := a.client.GetRepository(ctx, owner, name)
	if err != nil {
		a.logger.Warn("repository fetch failed",
			zap.String("repo", owner+"/"+name),
			zap.Error(err))
		return nil, nil
	}

	// Low-signal repositories are not worth further requests.
	if repo.StargazersCount < minStarsForAnalysis {
		return nil, nil
	}

	manifest := a.fetchManifest(ctx, owner, name)
	readme := a.fetchReadme(ctx, owner, name)

	manifestHit := detectManifestSignals(manifest)
	readmeHit := detectReadmeSignals(readme)
	schemaHit := a.detectSchemaSignals(ctx, owner, name)

	if !manifestHit && !readmeHit.mentionsProtocol && !schemaHit.found {
		return nil, nil
	}

	launch := buildLaunchTemplate(manifest, readmeHit)
	required, optional := InferParameters(launch.Env)

	entry := &catalog.Entry{
		Identity:       catalog.RepositoryIdentity(owner, name),
		Name:           repo.Name,
		Description:    repo.Description,
		Author:         repo.Owner.Login,
		Tags:           collectTags(repo.Topics, manifest),
		Readme:         readme,
		Tools:          schemaHit.tools,
		Resources:      schemaHit.resources,
		Prompts:        schemaHit.prompts,
		Launch:         launch,
		RequiredParams: required,
		OptionalParams: optional,
		Source:         catalog.SourceRepository,
		SourceURL:      repo.HTMLURL,
		Popularity:     repo.StargazersCount,
		Verified:       false,
		LastResearched: time.Now().UTC(),
	}
	if repo.License != nil {
		entry.License = repo.License.SpdxID
	}
	if manifest != nil {
		entry.Version = manifest.Version
		if manifest.Name != "" {
			pkg := manifest.Name
			entry.PackageName = &pkg
		}
	}

	return entry, nil
}

// fetchManifest downloads package.json from the repository root.
// Absence is not an error, just "no manifest".
func (a *RepositoryAnalyzer) fetchManifest(ctx context.Context, owner, name string) *packageManifest {
	content, err := a.client.DownloadRawFile(ctx, owner, name, "package.json")
	if err != nil {
		return nil
	}

	var manifest packageManifest
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return nil
	}
	return &manifest
}

// fetchReadme tries the conventional filename casings in order,
// stopping at first success. Absence yields an empty string.
func (a *RepositoryAnalyzer) fetchReadme(ctx context.Context, owner, name string) string {
	for _, candidate := range readmeCandidates {
		content, err := a.client.DownloadRawFile(ctx, owner, name, candidate)
		if err == nil {
			return content
		}
	}
	return ""
}

// detectManifestSignals fires when any dependency name, any keyword or
// the description mentions the protocol.
func detectManifestSignals(manifest *packageManifest) bool {
	if manifest == nil {
		return false
	}

	for dep := range manifest.Dependencies {
		if containsProtocolTerm(dep) {
			return true
		}
	}
	for dep := range manifest.DevDependencies {
		if containsProtocolTerm(dep) {
			return true
		}
	}
	for _, keyword := range manifest.Keywords {
		if containsProtocolTerm(keyword) {
			return true
		}
	}
	return containsProtocolTerm(manifest.Description)
}

// detectReadmeSignals matches the protocol regex and, when it fires,
// tries to pull a launch command out of a fenced mcpServers block and
// a transport out of the surrounding prose.
func detectReadmeSignals(readme string) readmeSignals {
	signals := readmeSignals{}
	if readme == "" || !protocolPattern.MatchString(readme) {
		return signals
	}
	signals.mentionsProtocol = true

	if match := mcpServersBlockPattern.FindStringSubmatch(readme); match != nil {
		var block struct {
			McpServers map[string]struct {
				Command string            `json:"command"`
				Args    []string          `json:"args"`
				Env     map[string]string `json:"env"`
			} `json:"mcpServers"`
		}
		if err := json.Unmarshal([]byte(match[1]), &block); err == nil && len(block.McpServers) > 0 {
			// Map iteration is unordered; take the first server by
			// sorted name so extraction is deterministic.
			names := make([]string, 0, len(block.McpServers))
			for serverName := range block.McpServers {
				names = append(names, serverName)
			}
			sort.Strings(names)

			server := block.McpServers[names[0]]
			signals.command = server.Command
			signals.args = server.Args
			signals.env = server.Env
		}
	}

	if ssePattern.MatchString(readme) {
		signals.transport = catalog.TransportSSE
	} else if stdioPattern.MatchString(readme) {
		signals.transport = catalog.TransportStdio
	}

	return signals
}

// detectSchemaSignals lists the repository root, downloads up to five
// plausible schema files and accumulates capability arrays from every
// file that parses — it does not stop at the first hit.
func (a *RepositoryAnalyzer) detectSchemaSignals(ctx context.Context, owner, name string) schemaSignals {
	signals := schemaSignals{}

	entries, err := a.client.GetDirectoryListing(ctx, owner, name, "")
	if err != nil {
		return signals
	}

	inspected := 0
	for _, entry := range entries {
		if entry.Type != "file" || !isSchemaCandidate(entry.Name) {
			continue
		}
		if inspected >= maxSchemaFiles {
			break
		}
		inspected++

		content, err := a.client.DownloadRawFile(ctx, owner, name, entry.Path)
		if err != nil {
			continue
		}

		doc := parseSchemaDocument(content)
		if doc == nil || !hasCapabilityArray(doc) {
			continue
		}

		signals.found = true
		signals.tools = append(signals.tools, rawItems(doc["tools"])...)
		signals.resources = append(signals.resources, rawItems(doc["resources"])...)
		signals.prompts = append(signals.prompts, rawItems(doc["prompts"])...)
	}

	return signals
}

// parseSchemaDocument tries JSON first, then the narrow YAML subset.
func parseSchemaDocument(content string) map[string]any {
	var doc map[string]any
	if err := json.Unmarshal([]byte(content), &doc); err == nil {
		return doc
	}
	if doc := parseYAMLSubset(content); len(doc) > 0 {
		return doc
	}
	return nil
}

func isSchemaCandidate(filename string) bool {
	lower := strings.ToLower(filename)
	if strings.Contains(lower, "mcp") || strings.Contains(lower, "schema") {
		return true
	}
	return schemaExtensions[filepath.Ext(lower)]
}

// rawItems re-encodes each element of a capability array as an opaque
// blob; descriptors pass through unmodified.
func rawItems(value any) []json.RawMessage {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	raws := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		encoded, err := json.Marshal(item)
		if err != nil {
			continue
		}
		raws = append(raws, json.RawMessage(encoded))
	}
	return raws
}

// buildLaunchTemplate fills the command/args/env/transport tuple with
// README-extracted values first, manifest values second, conventional
// defaults last.
func buildLaunchTemplate(manifest *packageManifest, readme readmeSignals) catalog.LaunchTemplate {
	launch := catalog.LaunchTemplate{
		Command:   readme.command,
		Args:      readme.args,
		Env:       readme.env,
		Transport: readme.transport,
	}

	if launch.Command == "" && manifest != nil && manifest.Name != "" {
		launch.Command = manifest.Name
	}
	if launch.Command == "" {
		launch.Command = "node"
	}
	if len(launch.Args) == 0 && manifest != nil && manifest.Main != "" {
		launch.Args = []string{manifest.Main}
	}
	if launch.Args == nil {
		launch.Args = []string{}
	}
	if launch.Env == nil {
		launch.Env = map[string]string{}
	}
	if launch.Transport == "" {
		launch.Transport = catalog.TransportStdio
	}

	return launch
}

// collectTags unions provider topics, manifest keywords and the fixed
// protocol tags.
func collectTags(topics []string, manifest *packageManifest) []string {
	seen := make(map[string]bool)
	tags := make([]string, 0, len(topics)+2)

	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, topic := range topics {
		add(topic)
	}
	if manifest != nil {
		for _, keyword := range manifest.Keywords {
			add(keyword)
		}
	}
	for _, tag := range protocolTags {
		add(tag)
	}

	return tags
}

func containsProtocolTerm(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, protocolAbbrev) || strings.Contains(lower, protocolExpansion)
}
