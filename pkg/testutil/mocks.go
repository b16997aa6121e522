package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/listveil/listveil/pkg/interfaces"
	"github.com/listveil/listveil/pkg/storage"
)

// ErrNotYet is returned by MockLocator before its container appears.
var ErrNotYet = errors.New("container not present yet")

// MockItem is a thread-safe mock implementation of interfaces.Item that
// counts marker writes and text reads for testing
type MockItem struct {
	mu             sync.Mutex
	text           string
	hidden         bool
	textReads      int
	setHiddenCalls int
}

// NewMockItem creates a new visible mock item with the given text
func NewMockItem(text string) *MockItem {
	return &MockItem{text: text}
}

// Text implements the Item interface
func (m *MockItem) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textReads++
	return m.text
}

// Hidden implements the Item interface
func (m *MockItem) Hidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden
}

// SetHidden implements the Item interface
func (m *MockItem) SetHidden(hidden bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setHiddenCalls++
	m.hidden = hidden
}

// SetText replaces the item text in place, without any change notification
func (m *MockItem) SetText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
}

// GetMarkerWrites returns how many times SetHidden was called
func (m *MockItem) GetMarkerWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setHiddenCalls
}

// GetTextReads returns how many times Text was called
func (m *MockItem) GetTextReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textReads
}

// MockContainer is a thread-safe mock implementation of
// interfaces.Container whose change notifications are driven by the test
type MockContainer struct {
	mu    sync.Mutex
	items []*MockItem
	subs  map[interfaces.SubscriptionID]func(interfaces.Change)
}

// NewMockContainer creates a new container holding one visible item per text
func NewMockContainer(texts ...string) *MockContainer {
	c := &MockContainer{
		subs: make(map[interfaces.SubscriptionID]func(interfaces.Change)),
	}
	for _, text := range texts {
		c.items = append(c.items, NewMockItem(text))
	}
	return c
}

// Items implements the Container interface
func (c *MockContainer) Items() []interfaces.Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]interfaces.Item, len(c.items))
	for i, item := range c.items {
		result[i] = item
	}
	return result
}

// Subscribe implements the Container interface
func (c *MockContainer) Subscribe(fn func(interfaces.Change)) interfaces.SubscriptionID {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := interfaces.SubscriptionID(uuid.NewString())
	c.subs[id] = fn
	return id
}

// Unsubscribe implements the Container interface
func (c *MockContainer) Unsubscribe(id interfaces.SubscriptionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// GetSubscriberCount returns the number of live subscriptions
func (c *MockContainer) GetSubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Append adds items and notifies subscribers of the growth
func (c *MockContainer) Append(texts ...string) {
	c.mu.Lock()
	for _, text := range texts {
		c.items = append(c.items, NewMockItem(text))
	}
	c.mu.Unlock()

	c.Emit(interfaces.Change{AddedItems: len(texts)})
}

// GetMockItems returns the concrete items for counter assertions
func (c *MockContainer) GetMockItems() []*MockItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]*MockItem, len(c.items))
	copy(result, c.items)
	return result
}

// Emit delivers a raw change notification to every subscriber
func (c *MockContainer) Emit(change interfaces.Change) {
	c.mu.Lock()
	fns := make([]func(interfaces.Change), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// MockLocator is a mock implementation of interfaces.Locator that resolves
// only after a configurable number of failed attempts
type MockLocator struct {
	mu        sync.Mutex
	container interfaces.Container
	failures  int
	attempts  int
	err       error
}

// NewMockLocator creates a locator that fails the first `failures` attempts
// before returning container
func NewMockLocator(container interfaces.Container, failures int) *MockLocator {
	return &MockLocator{container: container, failures: failures}
}

// SetError sets the error returned by failing Find attempts
func (l *MockLocator) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Find implements the Locator interface
func (l *MockLocator) Find(_ context.Context) (interfaces.Container, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attempts++
	if l.attempts <= l.failures {
		if l.err != nil {
			return nil, l.err
		}
		return nil, ErrNotYet
	}
	return l.container, nil
}

// GetAttempts returns how many times Find was called
func (l *MockLocator) GetAttempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// MockSurface is a thread-safe mock implementation of interfaces.Surface
// that records every registration operation
type MockSurface struct {
	mu          sync.Mutex
	commands    map[string]interfaces.Command
	ops         []string
	registerErr error
}

// NewMockSurface creates a new empty mock surface
func NewMockSurface() *MockSurface {
	return &MockSurface{commands: make(map[string]interfaces.Command)}
}

// Register implements the Surface interface
func (m *MockSurface) Register(cmd interfaces.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops = append(m.ops, "register:"+cmd.Key)
	if m.registerErr != nil {
		return m.registerErr
	}
	m.commands[cmd.Key] = cmd
	return nil
}

// Unregister implements the Surface interface
func (m *MockSurface) Unregister(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops = append(m.ops, "unregister:"+key)
	delete(m.commands, key)
	return nil
}

// SetRegisterError sets the error to return on Register calls
func (m *MockSurface) SetRegisterError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerErr = err
}

// GetCommand returns the registered command under key, if any
func (m *MockSurface) GetCommand(key string) (interfaces.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, ok := m.commands[key]
	return cmd, ok
}

// GetKeys returns the currently registered command keys
func (m *MockSurface) GetKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.commands))
	for key := range m.commands {
		keys = append(keys, key)
	}
	return keys
}

// GetOps returns the ordered log of register and unregister calls
func (m *MockSurface) GetOps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := make([]string, len(m.ops))
	copy(ops, m.ops)
	return ops
}

// FlakyKV is a thread-safe storage.KV backed by memory, with error
// injection for load and save
type FlakyKV struct {
	mu        sync.Mutex
	inner     storage.KV
	loadErr   error
	saveErr   error
	saveCalls int
}

// NewFlakyKV creates a new KV backed by an in-memory store
func NewFlakyKV() *FlakyKV {
	return &FlakyKV{inner: storage.NewMemory()}
}

// Load implements the KV interface
func (f *FlakyKV) Load(key string) ([]string, error) {
	f.mu.Lock()
	err := f.loadErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return f.inner.Load(key)
}

// Save implements the KV interface
func (f *FlakyKV) Save(key string, values []string) error {
	f.mu.Lock()
	f.saveCalls++
	err := f.saveErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.inner.Save(key, values)
}

// SetLoadError sets the error to return on Load calls
func (f *FlakyKV) SetLoadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
}

// SetSaveError sets the error to return on Save calls
func (f *FlakyKV) SetSaveError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

// GetSaveCalls returns how many times Save was attempted
func (f *FlakyKV) GetSaveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

// Seed writes directly to the backing store, bypassing error injection
func (f *FlakyKV) Seed(key string, values []string) {
	_ = f.inner.Save(key, values)
}
