// Package list provides an in-memory item container. It backs the process
// host, where each captured output line becomes one entry, and stands alone
// as the simplest host for exercising the pipeline.
package list

import (
	"sync"

	"github.com/google/uuid"

	"github.com/listveil/listveil/pkg/interfaces"
)

// Entry is a single list item with its own lock so classification can write
// markers while the list grows.
type Entry struct {
	mu     sync.Mutex
	text   string
	hidden bool
}

// Text implements the Item interface.
func (e *Entry) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// Hidden implements the Item interface.
func (e *Entry) Hidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}

// SetHidden implements the Item interface.
func (e *Entry) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = hidden
}

func (e *Entry) setText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

// List is an observable, append-mostly collection of entries. Subscribers
// receive a Change for every structural or textual mutation; notification
// runs outside the list lock.
type List struct {
	mu      sync.Mutex
	entries []*Entry
	subs    map[interfaces.SubscriptionID]func(interfaces.Change)
}

// New creates an empty list.
func New() *List {
	return &List{
		subs: make(map[interfaces.SubscriptionID]func(interfaces.Change)),
	}
}

// Items implements the Container interface.
func (l *List) Items() []interfaces.Item {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]interfaces.Item, len(l.entries))
	for i, e := range l.entries {
		out[i] = e
	}
	return out
}

// Len returns the number of entries.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Append adds one entry per text and notifies subscribers of the growth.
func (l *List) Append(texts ...string) {
	if len(texts) == 0 {
		return
	}

	l.mu.Lock()
	for _, text := range texts {
		l.entries = append(l.entries, &Entry{text: text})
	}
	l.mu.Unlock()

	l.notify(interfaces.Change{AddedItems: len(texts)})
}

// RemoveAt deletes the entry at index i. It reports whether anything was
// removed.
func (l *List) RemoveAt(i int) bool {
	l.mu.Lock()
	if i < 0 || i >= len(l.entries) {
		l.mu.Unlock()
		return false
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	l.mu.Unlock()

	l.notify(interfaces.Change{RemovedItems: 1})
	return true
}

// SetText rewrites the entry at index i in place. The resulting change
// carries no additions, so watchers treat it as noise.
func (l *List) SetText(i int, text string) bool {
	l.mu.Lock()
	if i < 0 || i >= len(l.entries) {
		l.mu.Unlock()
		return false
	}
	entry := l.entries[i]
	l.mu.Unlock()

	entry.setText(text)
	l.notify(interfaces.Change{})
	return true
}

// Subscribe implements the Container interface.
func (l *List) Subscribe(fn func(interfaces.Change)) interfaces.SubscriptionID {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := interfaces.SubscriptionID(uuid.NewString())
	l.subs[id] = fn
	return id
}

// Unsubscribe implements the Container interface.
func (l *List) Unsubscribe(id interfaces.SubscriptionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
}

func (l *List) notify(change interfaces.Change) {
	l.mu.Lock()
	fns := make([]func(interfaces.Change), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
