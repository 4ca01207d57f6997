package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/cozylink/internal/device"
	"github.com/nerrad567/cozylink/internal/protocol"
)

// DefaultInterval between reconciliation passes.
const DefaultInterval = 300 * time.Second

// Discoverer reports the device addresses currently visible on the network.
type Discoverer interface {
	Discover(ctx context.Context) []string
}

// SessionFactory builds an unconnected session for a host.
type SessionFactory func(host string) device.Session

// Notifier receives device lifecycle and state events. Implementations
// fan out to MQTT, InfluxDB, or anything else; a nil Notifier is valid.
type Notifier interface {
	DeviceOnline(dev device.Device)
	DeviceOffline(dev device.Device)
	DeviceState(dev device.Device, values protocol.Values)
}

// Store persists device identity. A nil Store disables persistence.
type Store interface {
	Upsert(ctx context.Context, dev device.Device) error
}

// Logger defines the logging interface used by the reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopNotifier struct{}

func (noopNotifier) DeviceOnline(device.Device)                   {}
func (noopNotifier) DeviceOffline(device.Device)                  {}
func (noopNotifier) DeviceState(device.Device, protocol.Values)   {}

// Config tunes the reconciliation loop.
type Config struct {
	// Interval between passes. Defaults to DefaultInterval; the config
	// layer enforces the lower bound before it gets here.
	Interval time.Duration
}

// Reconciler keeps the session registry in step with the network.
//
// Each pass discovers the current address set, diffs it against the
// previous pass, connects and registers devices at new addresses, tears
// down devices whose address vanished, and makes one best-effort reconnect
// attempt for registered devices that lost their connection. A failing
// pass is logged and the loop carries on; only context cancellation or
// Close stops it.
type Reconciler struct {
	cfg        Config
	discoverer Discoverer
	factory    SessionFactory
	registry   *device.Registry
	notifier   Notifier
	store      Store
	logger     Logger

	trigger chan struct{}
	done    chan struct{}

	mu       sync.Mutex
	previous map[string]bool
	running  bool
}

// New creates a reconciler. discoverer, factory, and registry are
// required; notifier, store, and logger may be nil.
func New(cfg Config, discoverer Discoverer, factory SessionFactory, registry *device.Registry, notifier Notifier, store Store, logger Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Reconciler{
		cfg:        cfg,
		discoverer: discoverer,
		factory:    factory,
		registry:   registry,
		notifier:   notifier,
		store:      store,
		logger:     logger,
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		previous:   make(map[string]bool),
	}
}

// Start runs the reconciliation loop until ctx is cancelled. The first
// pass runs immediately; later passes wait for the interval or a trigger.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.loop(ctx)
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)

	r.tick(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case <-ticker.C:
			r.tick(ctx)
		case <-r.trigger:
			r.tick(ctx)
		}
	}
}

// TriggerScan requests an immediate pass. Non-blocking; a pass already
// pending absorbs the request.
func (r *Reconciler) TriggerScan() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Wait blocks until the loop has exited after context cancellation.
func (r *Reconciler) Wait() {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return
	}
	<-r.done
}

// shutdown disconnects every registered session on the way out.
func (r *Reconciler) shutdown() {
	for _, sess := range r.registry.Clear() {
		dev := sess.Device()
		_ = sess.Disconnect()
		r.notifier.DeviceOffline(dev)
	}
	r.logger.Info("reconciler stopped")
}

// tick runs one reconciliation pass. Errors are logged, never returned;
// a bad pass must not kill the loop.
func (r *Reconciler) tick(ctx context.Context) {
	current := make(map[string]bool)
	for _, host := range r.discoverer.Discover(ctx) {
		current[host] = true
	}
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	previous := r.previous
	r.mu.Unlock()

	var added, gone []string
	for host := range current {
		if !previous[host] {
			added = append(added, host)
		}
	}
	for host := range previous {
		if !current[host] {
			gone = append(gone, host)
		}
	}

	// New addresses first, so a device that moved address hands its id
	// conflict to the duplicate check instead of racing the removal.
	// An address that fails to register leaves the seen set, making it
	// "new" again on the next pass.
	for _, host := range added {
		if ctx.Err() != nil {
			return
		}
		if !r.connectNew(ctx, host) {
			delete(current, host)
		}
	}

	for _, host := range gone {
		if ctx.Err() != nil {
			return
		}
		r.removeGone(host)
	}

	r.reconnectUnavailable(ctx)

	r.mu.Lock()
	r.previous = current
	r.mu.Unlock()

	r.logger.Debug("reconciliation pass complete",
		"visible", len(current), "new", len(added), "gone", len(gone),
		"registered", r.registry.Count())
}

// connectNew dials a freshly discovered address and registers the device.
// Returns true when the device ended up registered.
func (r *Reconciler) connectNew(ctx context.Context, host string) bool {
	if _, err := r.registry.FindByHost(host); err == nil {
		// Already have a session at this address.
		return true
	}

	sess := r.factory(host)
	if err := sess.Connect(ctx); err != nil {
		r.logger.Debug("new address did not answer", "host", host, "error", err)
		return false
	}

	dev := sess.Device()
	if !dev.Identified() {
		r.logger.Warn("device at new address has no identity, dropping", "host", host)
		_ = sess.Disconnect()
		return false
	}

	added, err := r.registry.Add(sess)
	if err != nil || !added {
		// Duplicate id: the same device is still registered at its old
		// address. Drop this session; once the old address is removed a
		// later pass re-registers the device here.
		r.logger.Info("device already registered elsewhere, dropping new session",
			"id", dev.ID, "host", host)
		_ = sess.Disconnect()
		return false
	}

	r.notifier.DeviceOnline(dev)
	r.persist(ctx, dev)
	return true
}

// removeGone tears down the session whose address left the network.
func (r *Reconciler) removeGone(host string) {
	sess, err := r.registry.FindByHost(host)
	if err != nil {
		return
	}

	dev := sess.Device()
	if _, err := r.registry.Remove(dev.ID); err != nil {
		return
	}
	_ = sess.Disconnect()
	r.notifier.DeviceOffline(dev)
	r.logger.Info("device left the network", "id", dev.ID, "host", host)
}

// reconnectUnavailable makes one best-effort connect attempt for every
// registered session without a live connection.
func (r *Reconciler) reconnectUnavailable(ctx context.Context) {
	for _, sess := range r.registry.All() {
		if ctx.Err() != nil {
			return
		}
		if sess.Available() {
			continue
		}

		dev := sess.Device()
		if err := sess.Connect(ctx); err != nil {
			r.logger.Debug("reconnect attempt failed", "id", dev.ID, "error", err)
			continue
		}
		r.notifier.DeviceOnline(sess.Device())
		r.persist(ctx, sess.Device())
	}
}

func (r *Reconciler) persist(ctx context.Context, dev device.Device) {
	if r.store == nil {
		return
	}
	if err := r.store.Upsert(ctx, dev); err != nil {
		r.logger.Warn("persisting device identity failed", "id", dev.ID, "error", err)
	}
}
