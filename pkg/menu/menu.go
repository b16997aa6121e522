// Package menu drives the pattern management commands. The Controller
// translates add, remove and clear intents into pattern store calls, keeps
// the item set classified after every mutation, and mirrors the stored
// patterns onto an external command surface through diffing registration.
package menu

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/listveil/listveil/pkg/classify"
	"github.com/listveil/listveil/pkg/interfaces"
	"github.com/listveil/listveil/pkg/rules"
)

// Stable command keys. Remove commands derive their key from the raw
// pattern so entries never go stale across rebuilds.
const (
	KeyAddPattern = "add-pattern"
	KeyClearAll   = "clear-all"

	removeKeyPrefix = "remove:"
)

// RemoveKey returns the command key for removing raw.
func RemoveKey(raw string) string {
	return removeKeyPrefix + raw
}

// Controller owns the mutation path: store update, immediate
// reclassification, command rebuild.
type Controller struct {
	store     *rules.Store
	container interfaces.Container
	surface   interfaces.Surface
	logger    *zap.Logger

	mu         sync.Mutex
	registered map[string]bool
}

// nopSurface swallows registrations when no real surface is attached.
type nopSurface struct{}

func (nopSurface) Register(interfaces.Command) error { return nil }
func (nopSurface) Unregister(string) error           { return nil }

// NewController creates a controller. Call Rebuild once after construction
// to publish the initial command set.
func NewController(store *rules.Store, container interfaces.Container, surface interfaces.Surface, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if surface == nil {
		surface = nopSurface{}
	}
	return &Controller{
		store:      store,
		container:  container,
		surface:    surface,
		logger:     logger,
		registered: make(map[string]bool),
	}
}

// AddPattern validates and stores a new pattern, then synchronously
// reclassifies the current items and rebuilds the command set. Empty input
// is ignored; a validation or persistence error leaves items and commands
// untouched.
func (c *Controller) AddPattern(raw string) error {
	ok, err := c.store.Add(raw)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c.afterMutation()
	return nil
}

// RemovePattern deletes a pattern and runs the same post-mutation pass.
func (c *Controller) RemovePattern(raw string) error {
	if err := c.store.Remove(raw); err != nil {
		return err
	}
	c.afterMutation()
	return nil
}

// ClearPatterns removes every pattern. The follow-up pass reveals all
// hidden items, since nothing can match anymore.
func (c *Controller) ClearPatterns() error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.afterMutation()
	return nil
}

// Reclassify runs one classification pass over the current items and
// returns the number of markers changed. The watcher uses this as its
// flush.
func (c *Controller) Reclassify() int {
	changed := classify.Classify(c.container.Items(), c.store.Matchers())
	if changed > 0 {
		c.logger.Debug("items reclassified", zap.Int("changed", changed))
	}
	return changed
}

// afterMutation applies the new pattern set to the items already on
// screen. Classify never touches markers with an empty set, so an emptied
// set needs an explicit reveal to restore visibility.
func (c *Controller) afterMutation() {
	items := c.container.Items()
	if c.store.Matchers().Empty() {
		if changed := classify.Reveal(items); changed > 0 {
			c.logger.Debug("all items revealed", zap.Int("changed", changed))
		}
	} else {
		if changed := classify.Classify(items, c.store.Matchers()); changed > 0 {
			c.logger.Debug("items reclassified", zap.Int("changed", changed))
		}
	}
	c.Rebuild()
}

// Rebuild diffs the desired command set against what is currently
// registered: missing keys are registered, stale keys unregistered.
// Surviving keys are left alone.
func (c *Controller) Rebuild() {
	desired := c.desiredCommands()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, cmd := range desired {
		if c.registered[key] {
			continue
		}
		if err := c.surface.Register(cmd); err != nil {
			c.logger.Warn("failed to register command", zap.String("key", key), zap.Error(err))
			continue
		}
		c.registered[key] = true
	}
	for key := range c.registered {
		if _, ok := desired[key]; ok {
			continue
		}
		if err := c.surface.Unregister(key); err != nil {
			c.logger.Warn("failed to unregister command", zap.String("key", key), zap.Error(err))
		}
		delete(c.registered, key)
	}
}

// desiredCommands computes the command set for the current patterns: one
// prompting add entry, one remove entry per pattern, and a confirmed
// clear-all entry once anything exists.
func (c *Controller) desiredCommands() map[string]interfaces.Command {
	cmds := map[string]interfaces.Command{
		KeyAddPattern: {
			Key:    KeyAddPattern,
			Title:  "Add hide pattern",
			Prompt: "Pattern to hide (regular expression)",
			Run: func(input string) error {
				return c.AddPattern(input)
			},
		},
	}

	patterns := c.store.Patterns()
	for _, raw := range patterns {
		raw := raw
		key := RemoveKey(raw)
		cmds[key] = interfaces.Command{
			Key:   key,
			Title: fmt.Sprintf("Remove pattern %q", raw),
			Run: func(string) error {
				return c.RemovePattern(raw)
			},
		}
	}

	if len(patterns) > 0 {
		cmds[KeyClearAll] = interfaces.Command{
			Key:     KeyClearAll,
			Title:   "Remove all patterns",
			Confirm: fmt.Sprintf("Remove all %d patterns?", len(patterns)),
			Run: func(string) error {
				return c.ClearPatterns()
			},
		}
	}

	return cmds
}
