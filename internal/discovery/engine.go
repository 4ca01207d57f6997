package discovery

import (
	"context"
	"sort"
	"time"
)

// Logger defines the logging interface used by discovery.
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

// Config selects and tunes the discovery sources.
type Config struct {
	// Broadcast enables the UDP probe. nil disables it.
	Broadcast *BroadcastConfig

	// Subnets lists CIDR ranges to sweep with TCP connect probes.
	Subnets       []string
	SubnetPort    int
	SubnetTimeout time.Duration

	// StaticHosts are always reported present without probing. Covers
	// devices on networks that filter broadcast, plus last-known
	// addresses restored from the identity store.
	StaticHosts []string
}

// Engine merges every configured discovery source into one address set.
type Engine struct {
	cfg    Config
	logger Logger
}

// NewEngine creates a discovery engine.
func NewEngine(cfg Config, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Discover runs every enabled source and returns the deduplicated, sorted
// union of the hosts they found. A failing source is logged and skipped;
// one bad source never hides the devices the others can see.
func (e *Engine) Discover(ctx context.Context) []string {
	seen := make(map[string]bool)
	var hosts []string
	add := func(host string) {
		if host == "" || seen[host] {
			return
		}
		seen[host] = true
		hosts = append(hosts, host)
	}

	if e.cfg.Broadcast != nil {
		found, err := Broadcast(ctx, *e.cfg.Broadcast, e.logger)
		if err != nil {
			e.logger.Warn("broadcast discovery failed", "error", err)
		}
		for _, h := range found {
			add(h)
		}
	}

	if len(e.cfg.Subnets) > 0 {
		for _, h := range ScanSubnets(ctx, e.cfg.Subnets, e.cfg.SubnetPort, e.cfg.SubnetTimeout, e.logger) {
			add(h)
		}
	}

	for _, h := range e.cfg.StaticHosts {
		add(h)
	}

	sort.Strings(hosts)
	e.logger.Debug("discovery pass complete", "hosts", len(hosts))
	return hosts
}
