package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/cozylink/internal/device"
)

// DefaultPollInterval between state reads.
const DefaultPollInterval = 30 * time.Second

// Poller periodically reads the state of every available device and hands
// the values to the notifier.
//
// Query failures are logged and skipped; the session layer already
// disconnected on anything fatal, and the reconciler's next pass makes
// the reconnect attempt.
type Poller struct {
	registry *device.Registry
	notifier Notifier
	interval time.Duration
	logger   Logger

	done chan struct{}

	mu      sync.Mutex
	running bool
}

// NewPoller creates a state poller over the registry. notifier and logger
// may be nil.
func NewPoller(registry *device.Registry, notifier Notifier, interval time.Duration, logger Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{
		registry: registry,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs the polling loop until ctx is cancelled. The first poll
// happens after one full interval; the reconciler already published each
// device's state when it came online.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

// Wait blocks until the loop has exited after context cancellation.
func (p *Poller) Wait() {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}
	<-p.done
}

// poll reads every available device once.
func (p *Poller) poll(ctx context.Context) {
	for _, sess := range p.registry.All() {
		if ctx.Err() != nil {
			return
		}
		if !sess.Available() {
			continue
		}

		dev := sess.Device()
		values, err := sess.Query(ctx)
		if err != nil {
			p.logger.Debug("state poll failed", "id", dev.ID, "error", err)
			continue
		}
		p.notifier.DeviceState(dev, values)
	}
}
