package metadata

import "strings"

// Bag is the flat key/value metadata supplied with a meeting. Keys are
// compared case-insensitively and empty values count as absent.
type Bag map[string]string

// NewBag copies m, lower-casing every key.
func NewBag(m map[string]string) Bag {
	b := make(Bag, len(m))
	for k, v := range m {
		b[strings.ToLower(k)] = v
	}
	return b
}

// Get returns the value stored under key, or "" when absent.
func (b Bag) Get(key string) string {
	return b[strings.ToLower(key)]
}

// Lookup reports whether key resolves to a non-empty value.
func (b Bag) Lookup(key string) (string, bool) {
	v := b.Get(key)
	return v, v != ""
}

// List splits a comma-separated value, trimming entries and dropping
// empty ones.
func (b Bag) List(key string) []string {
	return SplitList(b.Get(key))
}

// SplitList splits a comma-separated role or id list.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
