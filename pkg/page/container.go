package page

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/listveil/listveil/pkg/interfaces"
)

// Item adapts one element node. The hide marker is the presence of the
// marker class token on the element.
type Item struct {
	doc    *Document
	node   *html.Node
	marker string
}

// Text implements the Item interface. The text is read fresh from the tree
// on every call.
func (i *Item) Text() string {
	i.doc.mu.Lock()
	defer i.doc.mu.Unlock()
	return collapseText(i.node)
}

// Hidden implements the Item interface.
func (i *Item) Hidden() bool {
	i.doc.mu.Lock()
	defer i.doc.mu.Unlock()
	return hasClassToken(i.node, i.marker)
}

// SetHidden implements the Item interface.
func (i *Item) SetHidden(hidden bool) {
	i.doc.mu.Lock()
	defer i.doc.mu.Unlock()
	if hidden {
		addClassToken(i.node, i.marker)
	} else {
		removeClassToken(i.node, i.marker)
	}
}

// Container adapts one container element of a document. Because a polled
// page is refetched wholesale, Swap repoints the container at the fresh
// copy, carries markers over and reports the size delta to subscribers.
type Container struct {
	marker  string
	itemSel Selector

	mu   sync.Mutex
	doc  *Document
	node *html.Node
	subs map[interfaces.SubscriptionID]func(interfaces.Change)
}

// NewContainer wraps the container element node of doc. Items are the
// elements below node matching itemSel.
func NewContainer(doc *Document, node *html.Node, itemSel Selector, marker string) *Container {
	if marker == "" {
		marker = DefaultMarkerClass
	}
	return &Container{
		marker:  marker,
		itemSel: itemSel,
		doc:     doc,
		node:    node,
		subs:    make(map[interfaces.SubscriptionID]func(interfaces.Change)),
	}
}

// Items implements the Container interface.
func (c *Container) Items() []interfaces.Item {
	c.mu.Lock()
	doc, node := c.doc, c.node
	c.mu.Unlock()

	doc.mu.Lock()
	nodes := findAll(node, c.itemSel)
	doc.mu.Unlock()

	out := make([]interfaces.Item, len(nodes))
	for i, n := range nodes {
		out[i] = &Item{doc: doc, node: n, marker: c.marker}
	}
	return out
}

// Len returns the current item count.
func (c *Container) Len() int {
	return len(c.Items())
}

// Subscribe implements the Container interface.
func (c *Container) Subscribe(fn func(interfaces.Change)) interfaces.SubscriptionID {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := interfaces.SubscriptionID(uuid.NewString())
	c.subs[id] = fn
	return id
}

// Unsubscribe implements the Container interface.
func (c *Container) Unsubscribe(id interfaces.SubscriptionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// Document returns the document currently backing the container.
func (c *Container) Document() *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Swap repoints the container at a freshly fetched copy of the page.
// Markers carry over to new items whose text matches a previously hidden
// item, so an unchanged page round-trips without losing classification
// state. Subscribers then see the size delta; growth qualifies, shrinkage
// is noise.
func (c *Container) Swap(doc *Document, node *html.Node) {
	c.mu.Lock()
	oldDoc, oldNode := c.doc, c.node
	c.mu.Unlock()

	oldDoc.mu.Lock()
	oldNodes := findAll(oldNode, c.itemSel)
	hiddenTexts := make(map[string]bool)
	for _, n := range oldNodes {
		if hasClassToken(n, c.marker) {
			hiddenTexts[collapseText(n)] = true
		}
	}
	oldCount := len(oldNodes)
	oldDoc.mu.Unlock()

	doc.mu.Lock()
	newNodes := findAll(node, c.itemSel)
	for _, n := range newNodes {
		if hiddenTexts[collapseText(n)] {
			addClassToken(n, c.marker)
		}
	}
	newCount := len(newNodes)
	doc.mu.Unlock()

	c.mu.Lock()
	c.doc = doc
	c.node = node
	fns := make([]func(interfaces.Change), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	change := interfaces.Change{}
	if newCount > oldCount {
		change.AddedItems = newCount - oldCount
	} else {
		change.RemovedItems = oldCount - newCount
	}
	for _, fn := range fns {
		fn(change)
	}
}
