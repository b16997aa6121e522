// Package interfaces defines the core interfaces used throughout the application.
package interfaces

import "context"

// Item is one entry of a watched container. The marker set through SetHidden
// is the single externally visible classification bit; hosts map it to their
// own hiding mechanism (a CSS class, a suppressed line).
type Item interface {
	// Text returns the item's current visible text. Implementations must
	// read it fresh on every call; hosts can rewrite content in place
	// without a structural notification.
	Text() string

	// Hidden reports whether the hide marker is present.
	Hidden() bool

	// SetHidden adds or removes the hide marker.
	SetHidden(hidden bool)
}

// Change describes one mutation notification from a container. A change with
// no added items is noise (removals, text or attribute churn) and never
// triggers reclassification.
type Change struct {
	AddedItems   int
	RemovedItems int
}

// Qualifies reports whether the change should wake the watcher.
func (c Change) Qualifies() bool {
	return c.AddedItems > 0
}

// SubscriptionID identifies one container subscription.
type SubscriptionID string

// Container is a dynamically growing list of items.
type Container interface {
	// Items returns the items currently present, in display order.
	Items() []Item

	// Subscribe registers fn to be called for every mutation notification.
	// Callbacks run synchronously on the mutating goroutine and must not
	// block.
	Subscribe(fn func(Change)) SubscriptionID

	// Unsubscribe removes a subscription. Unknown IDs are ignored.
	Unsubscribe(id SubscriptionID)
}

// Locator resolves the watched container in a host document. Find makes one
// resolution attempt; bootstrap owns the retry loop, so "not there yet" is
// an error like any other and only the caller decides when to give up.
type Locator interface {
	Find(ctx context.Context) (Container, error)
}

// Command is one entry in an external command menu. Run receives the free
// text collected through Prompt, or an empty string for prompt-less
// commands.
type Command struct {
	// Key is the stable identity used for diffing registrations.
	Key string

	// Title is the display label.
	Title string

	// Prompt, when non-empty, asks the surface to collect free text before
	// invoking Run.
	Prompt string

	// Confirm, when non-empty, asks the surface to confirm before invoking
	// Run.
	Confirm string

	// Run executes the command.
	Run func(input string) error
}

// Surface is the external command-menu boundary. Implementations own the
// interaction: prompting, confirmation, and presenting errors returned by
// Run.
type Surface interface {
	// Register adds or replaces the command under its key.
	Register(cmd Command) error

	// Unregister removes the command under key. Unknown keys are ignored.
	Unregister(key string) error
}
