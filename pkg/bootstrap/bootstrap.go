// Package bootstrap assembles the pipeline: wait for the watched container
// to appear, open the pattern store, publish commands, classify what is
// already on screen, then hand ongoing changes to the watcher.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/listveil/listveil/pkg/classify"
	"github.com/listveil/listveil/pkg/interfaces"
	"github.com/listveil/listveil/pkg/menu"
	"github.com/listveil/listveil/pkg/rules"
	"github.com/listveil/listveil/pkg/storage"
	"github.com/listveil/listveil/pkg/watch"
)

// Defaults for container discovery.
const (
	DefaultDiscoveryInterval = 250 * time.Millisecond
	DefaultDiscoveryTimeout  = 30 * time.Second
)

// ErrContainerNotFound is returned when discovery gives up before the
// container appears.
var ErrContainerNotFound = errors.New("watched container never appeared")

// Options carries everything Run needs to assemble a pipeline.
type Options struct {
	// Locator resolves the watched container; Run polls it until it
	// succeeds or the discovery timeout expires.
	Locator interfaces.Locator

	// Surface receives the pattern commands.
	Surface interfaces.Surface

	// KV persists the pattern list under Key.
	KV  storage.KV
	Key string

	// Policy controls malformed persisted pattern handling.
	Policy rules.Policy

	// Window is the watcher quiescence window.
	Window time.Duration

	// DiscoveryInterval and DiscoveryTimeout bound the locator poll loop.
	DiscoveryInterval time.Duration
	DiscoveryTimeout  time.Duration

	// OnFlush, when set, runs after every watcher flush with the item
	// slice that pass covered. The process host hooks its printer here.
	OnFlush func(items []interfaces.Item)

	Logger *zap.Logger
}

// Pipeline is a running filter: store, controller and watch session.
type Pipeline struct {
	Store      *rules.Store
	Controller *menu.Controller
	Container  interfaces.Container

	session *watch.Session
	flush   func()
	logger  *zap.Logger
}

// Run assembles and starts the pipeline. Failures are atomic: if any step
// fails, nothing keeps running and no item has been hidden.
func Run(ctx context.Context, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	container, err := discover(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	store, err := rules.Open(opts.KV, opts.Key, opts.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern store: %w", err)
	}

	controller := menu.NewController(store, container, opts.Surface, logger)
	controller.Rebuild()

	flush := func() {
		items := container.Items()
		if changed := classify.Classify(items, store.Matchers()); changed > 0 {
			logger.Debug("flush reclassified items", zap.Int("changed", changed))
		}
		if opts.OnFlush != nil {
			opts.OnFlush(items)
		}
	}

	// Classify what is already present before watching for more.
	flush()

	watcher := watch.New(opts.Window, flush, logger)
	session := watcher.Watch(container)

	logger.Info("pipeline active",
		zap.Int("patterns", store.Len()),
		zap.Int("items", len(container.Items())))

	return &Pipeline{
		Store:      store,
		Controller: controller,
		Container:  container,
		session:    session,
		flush:      flush,
		logger:     logger,
	}, nil
}

// Flush classifies the current item set immediately, without waiting for
// the debounce window. Callers use it to settle stragglers after the
// source has stopped producing changes.
func (p *Pipeline) Flush() {
	p.flush()
}

// Close disposes the watch session. The pattern store and surface stay
// usable; only change-driven reclassification stops.
func (p *Pipeline) Close() {
	p.session.Dispose()
	p.logger.Debug("pipeline closed")
}

// discover polls the locator until the container appears, the timeout
// expires, or ctx is cancelled.
func discover(ctx context.Context, opts Options, logger *zap.Logger) (interfaces.Container, error) {
	interval := opts.DiscoveryInterval
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}
	timeout := opts.DiscoveryTimeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		container, err := opts.Locator.Find(ctx)
		if err == nil {
			return container, nil
		}
		lastErr = err
		logger.Debug("container not found yet", zap.Error(err))

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrContainerNotFound, lastErr)
			}
			return nil, ErrContainerNotFound
		case <-time.After(interval):
		}
	}
}
