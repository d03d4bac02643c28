package github

import (
	"fmt"
	"time"
)

// FetchError reports a failed call to the GitHub API. Resource names
// what was being fetched (e.g. "repository acme/fs-mcp") so the error
// is actionable in logs.
type FetchError struct {
	Resource string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("github: fetch %s: status %d", e.Resource, e.Status)
	}
	return fmt.Sprintf("github: fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RateLimitError is the distinguished exhaustion signal: GitHub
// answered 403 with a zero remaining-quota header. Callers may back
// off until ResetAt rather than retry immediately.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}
