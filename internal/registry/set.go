package registry

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Set is a set of attribute names.
type Set map[string]struct{}

// NewSet builds a Set from names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set. A nil Set is empty.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// HasAll reports whether every name is in the set.
func (s Set) HasAll(names []string) bool {
	for _, n := range names {
		if !s.Has(n) {
			return false
		}
	}
	return true
}

// Add inserts names.
func (s Set) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// CanonicalName normalizes an attribute name at a configuration boundary:
// surrounding whitespace is dropped and the text is NFC-normalized so that
// names typed in different Unicode forms compare equal.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func canonicalNames(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = CanonicalName(n)
	}
	return out
}

func sameSet(a, b []string) bool {
	sa, sb := NewSet(a...), NewSet(b...)
	if len(sa) != len(sb) {
		return false
	}
	for n := range sa {
		if !sb.Has(n) {
			return false
		}
	}
	return true
}
