package page

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/listveil/listveil/pkg/interfaces"
)

// Locator fetches a page over HTTP and resolves the watched container in
// it. Find makes a single attempt; retrying is the caller's loop.
type Locator struct {
	url          string
	containerSel Selector
	itemSel      Selector
	marker       string
	client       *http.Client
	logger       *zap.Logger
}

// NewLocator creates a locator for the container matched by containerSel
// on the page at pageURL, with items matched by itemSel.
func NewLocator(pageURL, containerSel, itemSel, marker string, client *http.Client, logger *zap.Logger) (*Locator, error) {
	cSel, err := ParseSelector(containerSel)
	if err != nil {
		return nil, fmt.Errorf("container selector: %w", err)
	}
	iSel, err := ParseSelector(itemSel)
	if err != nil {
		return nil, fmt.Errorf("item selector: %w", err)
	}
	if marker == "" {
		marker = DefaultMarkerClass
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{
		url:          pageURL,
		containerSel: cSel,
		itemSel:      iSel,
		marker:       marker,
		client:       client,
		logger:       logger,
	}, nil
}

// Find implements the Locator interface. The hide stylesheet is injected
// before the container is handed out, so the hiding mechanism is in place
// before the first marker write.
func (l *Locator) Find(ctx context.Context) (interfaces.Container, error) {
	doc, node, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	doc.EnsureHideStyle(l.marker)
	return NewContainer(doc, node, l.itemSel, l.marker), nil
}

// fetch downloads and parses the page and locates the container element.
func (l *Locator) fetch(ctx context.Context) (*Document, *html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("failed to fetch page: status %d", resp.StatusCode)
	}

	doc, err := Parse(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	node := doc.Select(l.containerSel)
	if node == nil {
		return nil, nil, fmt.Errorf("container not found on page")
	}
	return doc, node, nil
}
