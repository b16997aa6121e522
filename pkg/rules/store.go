// Package rules holds the user's hide patterns: an ordered, deduplicated
// list of raw regex strings persisted through a storage.KV, plus the
// compiled matcher snapshot derived from it.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/listveil/listveil/pkg/classify"
	"github.com/listveil/listveil/pkg/storage"
)

// DefaultKey is the storage key the pattern list lives under.
const DefaultKey = "patterns"

// Policy controls how Open treats persisted patterns that no longer compile.
type Policy int

const (
	// PolicyExclude keeps the raw string in the list, excludes it from
	// matching, and logs a warning.
	PolicyExclude Policy = iota
	// PolicyStrict makes Open fail on the first malformed pattern.
	PolicyStrict
)

// ValidationError reports a pattern rejected at insertion because it does
// not compile as a regular expression.
type ValidationError struct {
	Raw string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Raw, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Store is the mutable pattern list. Mutations run under a mutex and
// publish a fresh immutable MatcherSet on success, so readers can call
// Matchers without any lock.
type Store struct {
	kv     storage.KV
	key    string
	policy Policy
	logger *zap.Logger

	mu       sync.Mutex
	patterns []string

	matchers atomic.Pointer[classify.MatcherSet]
}

// Open loads the persisted pattern list from kv under key and compiles the
// initial matcher snapshot. A missing key is an empty list. Under
// PolicyStrict any persisted pattern that fails to compile makes Open fail;
// under PolicyExclude it stays in the list, contributes no matches, and is
// logged at Warn.
func Open(kv storage.KV, key string, policy Policy, logger *zap.Logger) (*Store, error) {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	patterns, err := kv.Load(key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	set, bad := classify.Compile(patterns)
	if len(bad) > 0 && policy == PolicyStrict {
		first := bad[0]
		return nil, fmt.Errorf("persisted pattern %q does not compile: %w", first.Raw, first.Err)
	}
	for _, b := range bad {
		logger.Warn("persisted pattern does not compile, excluded from matching",
			zap.String("pattern", b.Raw),
			zap.Error(b.Err))
	}

	s := &Store{
		kv:       kv,
		key:      key,
		policy:   policy,
		logger:   logger,
		patterns: patterns,
	}
	s.matchers.Store(set)
	return s, nil
}

// Patterns returns the raw patterns in insertion order.
func (s *Store) Patterns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Len returns the number of stored patterns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patterns)
}

// Matchers returns the current compiled snapshot. The returned set is
// immutable; mutations replace it wholesale.
func (s *Store) Matchers() *classify.MatcherSet {
	return s.matchers.Load()
}

// Add inserts a pattern. It trims whitespace; an empty result is ignored
// with (false, nil). A pattern that does not compile returns
// (false, *ValidationError). A duplicate returns (true, nil) without
// touching storage. Otherwise the pattern is persisted first and committed
// only when the save succeeds, so a storage failure leaves the store
// unchanged.
func (s *Store) Add(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	if _, err := classify.CompileOne(raw); err != nil {
		return false, &ValidationError{Raw: raw, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.patterns {
		if p == raw {
			return true, nil
		}
	}

	next := make([]string, len(s.patterns), len(s.patterns)+1)
	copy(next, s.patterns)
	next = append(next, raw)

	if err := s.kv.Save(s.key, next); err != nil {
		return false, fmt.Errorf("failed to persist patterns: %w", err)
	}
	s.patterns = next
	s.recompileLocked()
	s.logger.Info("pattern added", zap.String("pattern", raw), zap.Int("count", len(next)))
	return true, nil
}

// Remove deletes a pattern if present. Removing an absent pattern is not an
// error; the list is persisted either way.
func (s *Store) Remove(raw string) error {
	raw = strings.TrimSpace(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]string, 0, len(s.patterns))
	for _, p := range s.patterns {
		if p != raw {
			next = append(next, p)
		}
	}

	if err := s.kv.Save(s.key, next); err != nil {
		return fmt.Errorf("failed to persist patterns: %w", err)
	}
	removed := len(next) != len(s.patterns)
	s.patterns = next
	s.recompileLocked()
	if removed {
		s.logger.Info("pattern removed", zap.String("pattern", raw), zap.Int("count", len(next)))
	}
	return nil
}

// Clear empties the pattern list.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Save(s.key, []string{}); err != nil {
		return fmt.Errorf("failed to persist patterns: %w", err)
	}
	s.patterns = nil
	s.recompileLocked()
	s.logger.Info("patterns cleared")
	return nil
}

// recompileLocked rebuilds the matcher snapshot from the current list.
// Every pattern was validated at insertion, so a compile failure here is
// environment drift; it is excluded and logged, never fatal.
func (s *Store) recompileLocked() {
	set, bad := classify.Compile(s.patterns)
	for _, b := range bad {
		s.logger.Warn("pattern no longer compiles, excluded from matching",
			zap.String("pattern", b.Raw),
			zap.Error(b.Err))
	}
	s.matchers.Store(set)
}
