package analyzer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
)

// InferParameters derives required/optional parameter lists from a
// launch template's environment map. An entry is required iff its
// value is empty; otherwise the value becomes the default.
func InferParameters(env map[string]string) (required, optional []catalog.Parameter) {
	required = make([]catalog.Parameter, 0)
	optional = make([]catalog.Parameter, 0)

	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := env[key]
		param := catalog.Parameter{
			Key:         key,
			Type:        inferParamType(key, value),
			Description: fmt.Sprintf("Value for the %s environment variable", key),
		}
		if value == "" {
			required = append(required, param)
		} else {
			def := value
			param.Default = &def
			optional = append(optional, param)
		}
	}

	return required, optional
}

// inferParamType classifies an env entry. Secrets are recognized from
// the key or value; the remaining rules inspect the value in order:
// path, number, boolean, string.
func inferParamType(key, value string) catalog.ParamType {
	if containsSecretTerm(key) || containsSecretTerm(value) {
		return catalog.ParamSecret
	}
	if strings.ContainsAny(value, "/\\") || strings.Contains(value, ".") {
		return catalog.ParamPath
	}
	if value != "" {
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return catalog.ParamNumber
		}
	}
	if strings.EqualFold(value, "true") || strings.EqualFold(value, "false") {
		return catalog.ParamBoolean
	}
	return catalog.ParamString
}

func containsSecretTerm(s string) bool {
	lower := strings.ToLower(s)
	for _, term := range []string{"key", "token", "secret"} {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
