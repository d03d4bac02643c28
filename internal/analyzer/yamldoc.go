package analyzer

import (
	"encoding/json"
	"strings"
)

// parseYAMLSubset reads a deliberately narrow YAML subset: flat
// top-level "key: value" pairs where value may be a scalar, an inline
// array "[a, b]" or an inline JSON object. Anything else (nesting,
// block sequences, anchors) makes the line unparseable and the line is
// skipped, not rejected — the schema detector only needs the three
// top-level array keys and must never throw on a legitimate file it
// does not understand. Do not replace this with a full YAML parser.
func parseYAMLSubset(text string) map[string]any {
	doc := make(map[string]any)

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		// Indented lines belong to structures this reader does not
		// model; skip them.
		if line != trimmed {
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}

		doc[key] = parseYAMLValue(value)
	}

	return doc
}

func parseYAMLValue(value string) any {
	switch {
	case strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
		return parseInlineArray(value)
	case strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}"):
		var obj map[string]any
		if err := json.Unmarshal([]byte(value), &obj); err == nil {
			return obj
		}
		return value
	default:
		return strings.Trim(value, `"'`)
	}
}

func parseInlineArray(value string) []any {
	// Try strict JSON first; "[a, b]" with bare words falls through.
	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
	if strings.TrimSpace(inner) == "" {
		return []any{}
	}

	parts := strings.Split(inner, ",")
	items := make([]any, 0, len(parts))
	for _, part := range parts {
		items = append(items, strings.Trim(strings.TrimSpace(part), `"'`))
	}
	return items
}

// hasCapabilityArray reports whether a parsed document declares one of
// the capability arrays that mark a file as an MCP schema.
func hasCapabilityArray(doc map[string]any) bool {
	for _, key := range []string{"tools", "resources", "prompts"} {
		if _, ok := doc[key].([]any); ok {
			return true
		}
	}
	return false
}
