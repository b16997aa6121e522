// Package classify matches container items against a compiled pattern set
// and toggles their hide markers.
package classify

import (
	"regexp"

	"github.com/listveil/listveil/pkg/interfaces"
)

// MatcherSet is one immutable compiled form of the pattern list. The rules
// store replaces the whole set on every mutation; holders of an old set keep
// a consistent view until they fetch the next one.
type MatcherSet struct {
	matchers []*regexp.Regexp
}

// BadPattern reports a stored pattern that no longer compiles.
type BadPattern struct {
	Raw string
	Err error
}

// CompileOne compiles a single pattern with the case-insensitive matching
// the filter guarantees. This is the validation gate for new patterns.
func CompileOne(raw string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + raw)
}

// Compile rebuilds a MatcherSet from raw patterns. Entries that fail to
// compile are reported rather than fatal; every pattern was validated at
// insertion, so a failure here means the stored list predates a regexp
// dialect change.
func Compile(raws []string) (*MatcherSet, []BadPattern) {
	set := &MatcherSet{matchers: make([]*regexp.Regexp, 0, len(raws))}

	var bad []BadPattern
	for _, raw := range raws {
		re, err := CompileOne(raw)
		if err != nil {
			bad = append(bad, BadPattern{Raw: raw, Err: err})
			continue
		}
		set.matchers = append(set.matchers, re)
	}

	return set, bad
}

// Match reports whether any matcher matches text.
func (s *MatcherSet) Match(text string) bool {
	for _, re := range s.matchers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no matchers.
func (s *MatcherSet) Empty() bool {
	return s == nil || len(s.matchers) == 0
}

// Len returns the number of compiled matchers.
func (s *MatcherSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.matchers)
}

// Classify tests every item against the set and updates markers, returning
// the number of markers it changed. Each item's text is read at call time.
// Reclassifying unchanged items with an unchanged set writes nothing, and an
// empty set is a guaranteed no-op: items are left exactly as they are, which
// makes "no rules configured" a zero-cost steady state.
func Classify(items []interfaces.Item, set *MatcherSet) int {
	if set.Empty() {
		return 0
	}

	changed := 0
	for _, item := range items {
		hidden := set.Match(item.Text())
		if hidden != item.Hidden() {
			item.SetHidden(hidden)
			changed++
		}
	}
	return changed
}

// Reveal removes the marker from every hidden item and returns the number of
// markers cleared. The config interface calls this when a mutation empties
// the pattern set, since Classify never touches markers with an empty set.
func Reveal(items []interfaces.Item) int {
	changed := 0
	for _, item := range items {
		if item.Hidden() {
			item.SetHidden(false)
			changed++
		}
	}
	return changed
}
