// Package normalization maps free-form configuration strings onto typed enums.
package normalization

import (
	"fmt"
	"slices"
	"strings"
)

// Normalizer resolves case-insensitive aliases to enum values of type T.
type Normalizer[T comparable] struct {
	aliases  map[string]T
	fallback T
	keys     []string
}

// NewNormalizer builds a Normalizer from alias -> value pairs. Aliases are
// folded to lower case and trimmed; fallback is returned for empty input.
func NewNormalizer[T comparable](aliases map[string]T, fallback T) *Normalizer[T] {
	n := &Normalizer[T]{aliases: make(map[string]T, len(aliases)), fallback: fallback}
	for alias, v := range aliases {
		key := fold(alias)
		n.aliases[key] = v
		n.keys = append(n.keys, key)
	}
	slices.Sort(n.keys)
	return n
}

// Normalize resolves raw, falling back for empty or unknown input.
func (n *Normalizer[T]) Normalize(raw string) T {
	v, err := n.NormalizeWithError(raw)
	if err != nil {
		return n.fallback
	}
	return v
}

// NormalizeWithError resolves raw. Empty input yields the fallback; unknown
// input is an error listing the accepted aliases.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	key := fold(raw)
	if key == "" {
		return n.fallback, nil
	}
	if v, ok := n.aliases[key]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("unknown value %q (accepted: %s)", raw, strings.Join(n.keys, ", "))
}

// ValidKeys returns the accepted aliases, sorted.
func (n *Normalizer[T]) ValidKeys() []string {
	return slices.Clone(n.keys)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
