package page

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is used when no refresh interval is configured.
const DefaultPollInterval = 5 * time.Second

// Poller refreshes a polled page on an interval and swaps the fresh copy
// into the container. The swap emits the growth delta, which is what wakes
// the watcher when new items appear between polls.
type Poller struct {
	locator   *Locator
	container *Container
	interval  time.Duration
	logger    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller for container using locator's fetch path.
func NewPoller(locator *Locator, container *Container, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		locator:   locator,
		container: container,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins polling until Stop is called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doc, node, err := p.locator.fetch(ctx)
			if err != nil {
				// A failed poll keeps the last good copy on screen.
				p.logger.Warn("page refresh failed", zap.Error(err))
				continue
			}
			doc.EnsureHideStyle(p.container.marker)
			p.container.Swap(doc, node)
		}
	}
}

// Stop cancels polling and waits for the loop to exit.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}
