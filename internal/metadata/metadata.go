// Package metadata implements the ordered key/value lists attached to
// feeds and items.
package metadata

// knownKeys is the closed registry of metadata keys the renderers
// understand. Unknown keys are stored anyway so nothing is lost, callers
// may warn about them.
var knownKeys = map[string]struct{}{
	"author":            {},
	"contributor":       {},
	"creator":           {},
	"category":          {},
	"copyright":         {},
	"description":       {},
	"pubDate":           {},
	"contentUpdateDate": {},
	"language":          {},
	"webmaster":         {},
	"managingEditor":    {},
	"publisher":         {},
	"feedgenerator":     {},
	"feedgeneratorUri":  {},
	"textInput":         {},
	"enclosure":         {},
	"license":           {},
	"slash":             {},
	"point":             {},
	"photo":             {},
	"agSource":          {},
	"agTimestamp":       {},
	"related":           {},
	"commentFeedUri":    {},
	"commentsUri":       {},
	"errorReportsTo":    {},
	"fmScreenshot":      {},
	"feedTitle":         {},
}

// IsKnownKey reports whether key belongs to the key registry.
func IsKnownKey(key string) bool {
	_, ok := knownKeys[key]
	return ok
}

// Pair is a single metadata entry.
type Pair struct {
	Key   string
	Value string
}

// List is an ordered sequence of metadata pairs. Duplicate keys are allowed
// for multi-valued attributes like author, category and enclosure. The zero
// value is an empty list ready for use.
type List struct {
	pairs []Pair
}

// Append adds a new entry, keeping any existing entries with the same key.
func (l *List) Append(key, value string) {
	if value == "" {
		return
	}
	l.pairs = append(l.pairs, Pair{Key: key, Value: value})
}

// Set replaces all entries with the given key by a single one. An empty
// value removes the key entirely.
func (l *List) Set(key, value string) {
	kept := l.pairs[:0]
	for _, p := range l.pairs {
		if p.Key != key {
			kept = append(kept, p)
		}
	}
	l.pairs = kept
	if value != "" {
		l.pairs = append(l.pairs, Pair{Key: key, Value: value})
	}
}

// Get returns the first value stored for key, or "".
func (l *List) Get(key string) string {
	for _, p := range l.pairs {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// All returns every value stored for key in order.
func (l *List) All(key string) []string {
	var values []string
	for _, p := range l.pairs {
		if p.Key == key {
			values = append(values, p.Value)
		}
	}
	return values
}

// ForEach invokes cb for every pair in order.
func (l *List) ForEach(cb func(key, value string)) {
	for _, p := range l.pairs {
		cb(p.Key, p.Value)
	}
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.pairs)
}
