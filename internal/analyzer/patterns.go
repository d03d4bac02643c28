package analyzer

import "regexp"

// Protocol terms the detectors look for.
const (
	protocolAbbrev    = "mcp"
	protocolExpansion = "model context protocol"
)

// Fixed tags attached to every entry that passed detection.
var protocolTags = []string{"mcp", "model-context-protocol"}

// Compiled patterns for the README and transport detectors
var (
	// Protocol mention anywhere in prose.
	protocolPattern = regexp.MustCompile(`(?i)\bmcp\b|model[-_ ]context[-_ ]protocol`)

	// Fenced code block that looks like an mcpServers config snippet.
	mcpServersBlockPattern = regexp.MustCompile("(?s)```(?:json[c5]?)?\\s*(\\{[^`]*\"mcpServers\"[^`]*\\})\\s*```")

	// Transport hints.
	ssePattern   = regexp.MustCompile(`(?i)\bsse\b|server[- ]sent events`)
	stdioPattern = regexp.MustCompile(`(?i)\bstdio\b`)

	// Dependency names that mark a package as protocol-adjacent.
	dependencyMarkerPattern = regexp.MustCompile(`(?i)@modelcontextprotocol/|\bmcp\b|mcp[-_]`)
)

// README filenames tried in order; first hit wins.
var readmeCandidates = []string{"README.md", "readme.md", "Readme.md", "README"}

// Schema file name fragments and extensions worth inspecting.
var schemaExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}
