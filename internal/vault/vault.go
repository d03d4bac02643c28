// Package vault stores secret parameter values in the OS credential
// store. Database rows only ever hold vault references, never the
// secrets themselves.
package vault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	service         = "mcpwizard"
	referenceScheme = "vault://"
)

// ErrNotFound is returned when no secret exists at the given address.
var ErrNotFound = errors.New("vault: secret not found")

// Vault addresses secrets by owner/scope/key: owner is the config id,
// scope the catalog entry identity, key the parameter name.
type Vault struct {
	service string
}

// New creates a vault backed by the OS credential store.
func New() *Vault {
	return &Vault{service: service}
}

// Scopes are entry identities and may contain "/", so the separator
// must be something an identity never carries.
func compositeKey(owner, scope, key string) string {
	return owner + "::" + scope + "::" + key
}

// Store saves a secret value.
func (v *Vault) Store(owner, scope, key, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("vault: refusing to store empty secret for %s", compositeKey(owner, scope, key))
	}
	if err := keyring.Set(v.service, compositeKey(owner, scope, key), value); err != nil {
		return fmt.Errorf("vault: store %s: %w", compositeKey(owner, scope, key), err)
	}
	return nil
}

// Retrieve loads a secret value.
func (v *Vault) Retrieve(owner, scope, key string) (string, error) {
	value, err := keyring.Get(v.service, compositeKey(owner, scope, key))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("vault: retrieve %s: %w", compositeKey(owner, scope, key), err)
	}
	return value, nil
}

// Delete removes a secret. Deleting a missing secret is not an error.
func (v *Vault) Delete(owner, scope, key string) error {
	err := keyring.Delete(v.service, compositeKey(owner, scope, key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("vault: delete %s: %w", compositeKey(owner, scope, key), err)
	}
	return nil
}

// Reference renders the address that replaces a secret value in
// persisted rows.
func Reference(owner, scope, key string) string {
	return referenceScheme + compositeKey(owner, scope, key)
}

// ParseReference splits a reference back into its address parts.
func ParseReference(ref string) (owner, scope, key string, err error) {
	rest, ok := strings.CutPrefix(ref, referenceScheme)
	if !ok {
		return "", "", "", fmt.Errorf("vault: not a secret reference: %q", ref)
	}
	parts := strings.SplitN(rest, "::", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("vault: malformed secret reference: %q", ref)
	}
	return parts[0], parts[1], parts[2], nil
}

// IsReference reports whether a parameter value is a vault reference
// rather than a literal.
func IsReference(value string) bool {
	return strings.HasPrefix(value, referenceScheme)
}
