package npm

import (
	"encoding/json"
	"strings"
)

// ExtractRepositoryURL parses a package's declared repository field,
// which may be a plain string or a {type,url} object, into a
// normalized GitHub URL. Returns "" when no recognizable pattern is
// found.
func ExtractRepositoryURL(info *PackageInfo) string {
	if len(info.Repository) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(info.Repository, &asString); err == nil {
		return NormalizeGitHubURL(asString)
	}

	var asObject struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(info.Repository, &asObject); err == nil {
		return NormalizeGitHubURL(asObject.URL)
	}

	return ""
}

// NormalizeGitHubURL converts the various repository URL spellings
// (git://, git+https://, git@github.com:, trailing .git) to a
// canonical https form. Non-GitHub URLs normalize to "".
func NormalizeGitHubURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)

	if strings.HasPrefix(rawURL, "git://") {
		rawURL = strings.Replace(rawURL, "git://", "https://", 1)
	}
	if strings.HasPrefix(rawURL, "git+") {
		rawURL = strings.TrimPrefix(rawURL, "git+")
	}
	if strings.HasPrefix(rawURL, "git@github.com:") {
		rawURL = "https://github.com/" + strings.TrimPrefix(rawURL, "git@github.com:")
	}
	rawURL = strings.TrimSuffix(rawURL, ".git")

	if !strings.Contains(rawURL, "github.com") {
		return ""
	}
	return rawURL
}
