package device

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps device ids to live sessions.
//
// It is pure bookkeeping: no I/O, no session lifecycle. The reconciliation
// loop is the only writer; the API server and any entity layer read
// concurrently. An RWMutex keeps reads safe during a concurrent add/remove.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	logger   Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add registers a session under its device id. Re-adding an existing id is a
// no-op and returns false; the caller still owns the rejected session and
// must tear it down. Sessions without an identified device are rejected with
// ErrUnidentified.
func (r *Registry) Add(sess Session) (bool, error) {
	dev := sess.Device()
	if !dev.Identified() {
		return false, ErrUnidentified
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[dev.ID]; exists {
		r.logger.Debug("device already registered", "id", dev.ID)
		return false, nil
	}

	r.sessions[dev.ID] = sess
	r.logger.Info("device registered", "id", dev.ID, "model", dev.ModelName, "address", dev.Address())
	return true, nil
}

// Remove deletes the session for id and returns it. Returns ErrNotFound when
// the id is not registered. The caller is responsible for disconnecting the
// returned session.
func (r *Registry) Remove(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	delete(r.sessions, id)
	r.logger.Info("device removed", "id", id)
	return sess, nil
}

// Get returns the session for id, or ErrNotFound.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// GetByType returns all sessions whose device carries the given type code.
func (r *Registry) GetByType(typeCode string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Session
	for _, sess := range r.sessions {
		if sess.Device().TypeCode == typeCode {
			out = append(out, sess)
		}
	}
	return out
}

// FindByHost returns the session whose device currently lives at host, or
// ErrNotFound. Used by the reconciler to map a vanished address back to its
// device.
func (r *Registry) FindByHost(host string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sess := range r.sessions {
		if sess.Device().Host == host {
			return sess, nil
		}
	}
	return nil, ErrNotFound
}

// All returns every registered session, ordered by device id for stable
// iteration.
func (r *Registry) All() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, r.sessions[id])
	}
	return out
}

// Devices returns a snapshot of every registered device, ordered by id.
func (r *Registry) Devices() []Device {
	sessions := r.All()
	out := make([]Device, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Device())
	}
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Clear removes every session and returns them for teardown.
func (r *Registry) Clear() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	r.sessions = make(map[string]Session)
	return out
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	Total     int            `json:"total"`
	Available int            `json:"available"`
	ByType    map[string]int `json:"by_type"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:  len(r.sessions),
		ByType: make(map[string]int),
	}

	for _, sess := range r.sessions {
		dev := sess.Device()
		if dev.Available {
			stats.Available++
		}
		if dev.TypeCode != "" {
			stats.ByType[dev.TypeCode]++
		}
	}

	return stats
}
