package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source identifies where a catalog entry was discovered.
type Source string

const (
	SourceRepository Source = "repository"
	SourceRegistry   Source = "registry"
	SourceManual     Source = "manual"
)

// Transport is how a server expects to be spoken to once launched.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
)

// ParamType classifies a launch parameter so the UI layer can render
// an appropriate input for it.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamPath    ParamType = "path"
	ParamSecret  ParamType = "secret"
)

// LaunchTemplate is the command/args/env/transport tuple needed to
// start a discovered server process.
type LaunchTemplate struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Transport Transport         `json:"transport"`
}

// Parameter describes one configurable input of a launch template.
type Parameter struct {
	Key         string    `json:"key"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Default     *string   `json:"default,omitempty"`
}

// Entry is a normalized, source-agnostic description of a discovered
// MCP server. Identity is the dedup key: "owner/repo" for
// repository-sourced entries, "registry:<package>" for registry-sourced
// ones, stable across repeated discovery runs so re-discovery acts as
// an upsert.
type Entry struct {
	Identity    string   `json:"identity"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Author      string   `json:"author,omitempty"`
	License     string   `json:"license,omitempty"`
	Tags        []string `json:"tags"`

	Readme string `json:"readme,omitempty"`

	// Capability descriptors are opaque schema blobs passed through
	// unmodified; callers interpret them by structural inspection.
	Tools     []json.RawMessage `json:"tools,omitempty"`
	Resources []json.RawMessage `json:"resources,omitempty"`
	Prompts   []json.RawMessage `json:"prompts,omitempty"`

	Launch         LaunchTemplate `json:"launch"`
	RequiredParams []Parameter    `json:"required_params"`
	OptionalParams []Parameter    `json:"optional_params"`

	Source      Source  `json:"source"`
	SourceURL   string  `json:"source_url"`
	PackageName *string `json:"package_name,omitempty"`
	Popularity  int     `json:"popularity"`
	Verified    bool    `json:"verified"`

	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastResearched time.Time `json:"last_researched"`
}

// RepositoryIdentity builds the dedup key for a repository-sourced entry.
func RepositoryIdentity(owner, name string) string {
	return fmt.Sprintf("%s/%s", owner, name)
}

// RegistryIdentity builds the dedup key for a registry-sourced entry.
func RegistryIdentity(packageName string) string {
	return "registry:" + packageName
}

// PackageAnalysis is the intermediate scoring result for one registry
// package. It is never persisted; it only decides whether and how a
// package becomes an Entry.
type PackageAnalysis struct {
	PackageName   string   `json:"package_name"`
	IsMCP         bool     `json:"is_mcp"`
	Confidence    float64  `json:"confidence"`
	Indicators    []string `json:"indicators"`
	RepositoryURL string   `json:"repository_url,omitempty"`

	Metadata PackageMetadata `json:"metadata"`
}

// PackageMetadata carries the registry fields the analyzer extracted
// alongside its verdict.
type PackageMetadata struct {
	Description        string   `json:"description,omitempty"`
	Version            string   `json:"version,omitempty"`
	Author             string   `json:"author,omitempty"`
	License            string   `json:"license,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
	Homepage           string   `json:"homepage,omitempty"`
	Downloads          int      `json:"downloads"`
	RecentlyMaintained bool     `json:"recently_maintained"`
}
