package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/cozylink/internal/device"
	"github.com/nerrad567/cozylink/internal/protocol"
)

// fakeSession is a scripted device.Session with no I/O.
type fakeSession struct {
	mu          sync.Mutex
	id          string
	host        string
	available   bool
	connectErr  error
	queryErr    error
	values      protocol.Values
	connects    int
	disconnects int
	queries     int
}

func (f *fakeSession) Device() device.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return device.Device{ID: f.id, Host: f.host, Port: 5555, Available: f.available}
}

func (f *fakeSession) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeSession) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.available = true
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.available = false
	return nil
}

func (f *fakeSession) Query(context.Context) (protocol.Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.values, nil
}

func (f *fakeSession) Control(context.Context, protocol.Values) error { return nil }

// fakeDiscoverer returns scripted address lists, one per call; the last
// list repeats.
type fakeDiscoverer struct {
	mu      sync.Mutex
	results [][]string
	calls   int
}

func (f *fakeDiscoverer) Discover(context.Context) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	if i < 0 {
		return nil
	}
	return f.results[i]
}

// fakeNotifier records lifecycle events.
type fakeNotifier struct {
	mu      sync.Mutex
	online  []string
	offline []string
	states  map[string]protocol.Values
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{states: make(map[string]protocol.Values)}
}

func (f *fakeNotifier) DeviceOnline(dev device.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, dev.ID)
}

func (f *fakeNotifier) DeviceOffline(dev device.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, dev.ID)
}

func (f *fakeNotifier) DeviceState(dev device.Device, values protocol.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[dev.ID] = values
}

// fakeStore records upserted devices.
type fakeStore struct {
	mu      sync.Mutex
	upserts []string
}

func (f *fakeStore) Upsert(_ context.Context, dev device.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, dev.ID)
	return nil
}

// testHarness wires a reconciler over fakes. sessions maps host to the
// session the factory hands out.
type testHarness struct {
	reconciler *Reconciler
	registry   *device.Registry
	notifier   *fakeNotifier
	store      *fakeStore
	sessions   map[string]*fakeSession
}

func newHarness(disc *fakeDiscoverer, sessions map[string]*fakeSession) *testHarness {
	registry := device.NewRegistry()
	notifier := newFakeNotifier()
	store := &fakeStore{}

	factory := func(host string) device.Session {
		if sess, ok := sessions[host]; ok {
			return sess
		}
		return &fakeSession{id: "id-" + host, host: host}
	}

	rec := New(Config{Interval: time.Hour}, disc, factory, registry, notifier, store, nil)
	return &testHarness{
		reconciler: rec,
		registry:   registry,
		notifier:   notifier,
		store:      store,
		sessions:   sessions,
	}
}

func session(id, host string) *fakeSession {
	return &fakeSession{id: id, host: host}
}

func TestFirstPassRegistersDiscoveredDevices(t *testing.T) {
	sessions := map[string]*fakeSession{
		"10.0.0.1": session("dev-a", "10.0.0.1"),
		"10.0.0.2": session("dev-b", "10.0.0.2"),
	}
	h := newHarness(&fakeDiscoverer{results: [][]string{{"10.0.0.1", "10.0.0.2"}}}, sessions)

	h.reconciler.tick(context.Background())

	if h.registry.Count() != 2 {
		t.Fatalf("registered = %d, want 2", h.registry.Count())
	}
	if len(h.notifier.online) != 2 {
		t.Errorf("online events = %v", h.notifier.online)
	}
	if len(h.store.upserts) != 2 {
		t.Errorf("persisted = %v", h.store.upserts)
	}
}

func TestDiffAddsNewAndRemovesGone(t *testing.T) {
	sessions := map[string]*fakeSession{
		"10.0.0.1": session("dev-a", "10.0.0.1"),
		"10.0.0.2": session("dev-b", "10.0.0.2"),
		"10.0.0.3": session("dev-c", "10.0.0.3"),
	}
	disc := &fakeDiscoverer{results: [][]string{
		{"10.0.0.1", "10.0.0.2"},
		{"10.0.0.2", "10.0.0.3"},
	}}
	h := newHarness(disc, sessions)
	ctx := context.Background()

	h.reconciler.tick(ctx)
	h.reconciler.tick(ctx)

	if h.registry.Count() != 2 {
		t.Fatalf("registered = %d, want 2", h.registry.Count())
	}
	if _, err := h.registry.Get("dev-a"); !errors.Is(err, device.ErrNotFound) {
		t.Error("dev-a should have been removed")
	}
	if _, err := h.registry.Get("dev-c"); err != nil {
		t.Error("dev-c should be registered")
	}
	if sessions["10.0.0.1"].disconnects != 1 {
		t.Errorf("gone session disconnects = %d, want 1", sessions["10.0.0.1"].disconnects)
	}
	if len(h.notifier.offline) != 1 || h.notifier.offline[0] != "dev-a" {
		t.Errorf("offline events = %v, want [dev-a]", h.notifier.offline)
	}
}

func TestConnectFailureRetriedNextPass(t *testing.T) {
	flaky := session("dev-a", "10.0.0.1")
	flaky.connectErr = errors.New("refused")

	disc := &fakeDiscoverer{results: [][]string{{"10.0.0.1"}}}
	h := newHarness(disc, map[string]*fakeSession{"10.0.0.1": flaky})
	ctx := context.Background()

	h.reconciler.tick(ctx)
	if h.registry.Count() != 0 {
		t.Fatalf("registered = %d, want 0 after failed connect", h.registry.Count())
	}

	// Device starts answering; the address must count as new again.
	flaky.mu.Lock()
	flaky.connectErr = nil
	flaky.mu.Unlock()

	h.reconciler.tick(ctx)
	if h.registry.Count() != 1 {
		t.Fatalf("registered = %d, want 1 after retry", h.registry.Count())
	}
	if flaky.connects != 2 {
		t.Errorf("connects = %d, want 2", flaky.connects)
	}
}

func TestUnidentifiedDeviceDropped(t *testing.T) {
	anon := session("", "10.0.0.1")

	h := newHarness(&fakeDiscoverer{results: [][]string{{"10.0.0.1"}}},
		map[string]*fakeSession{"10.0.0.1": anon})

	h.reconciler.tick(context.Background())

	if h.registry.Count() != 0 {
		t.Error("unidentified device was registered")
	}
	if anon.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", anon.disconnects)
	}
}

func TestAddressMoveReRegistersAfterOldAddressLeaves(t *testing.T) {
	oldSess := session("dev-a", "10.0.0.1")
	newSess := session("dev-a", "10.0.0.9")

	disc := &fakeDiscoverer{results: [][]string{
		{"10.0.0.1"},
		{"10.0.0.9"},
		{"10.0.0.9"},
	}}
	h := newHarness(disc, map[string]*fakeSession{
		"10.0.0.1": oldSess,
		"10.0.0.9": newSess,
	})
	ctx := context.Background()

	h.reconciler.tick(ctx)

	// The move pass: the new address carries a duplicate id while the
	// old session is still registered, so the new session is dropped and
	// the old one removed.
	h.reconciler.tick(ctx)
	if newSess.disconnects != 1 {
		t.Errorf("new session disconnects = %d, want dropped duplicate", newSess.disconnects)
	}
	if len(h.notifier.offline) != 1 {
		t.Errorf("offline events = %v", h.notifier.offline)
	}

	// The follow-up pass registers the device at its new address.
	h.reconciler.tick(ctx)
	sess, err := h.registry.Get("dev-a")
	if err != nil {
		t.Fatalf("dev-a not registered after move: %v", err)
	}
	if sess.Device().Host != "10.0.0.9" {
		t.Errorf("host = %q, want new address", sess.Device().Host)
	}
}

func TestReconnectUnavailableSession(t *testing.T) {
	sess := session("dev-a", "10.0.0.1")
	disc := &fakeDiscoverer{results: [][]string{{"10.0.0.1"}}}
	h := newHarness(disc, map[string]*fakeSession{"10.0.0.1": sess})
	ctx := context.Background()

	h.reconciler.tick(ctx)

	// Connection drops between passes.
	sess.mu.Lock()
	sess.available = false
	sess.mu.Unlock()

	h.reconciler.tick(ctx)

	if sess.connects != 2 {
		t.Errorf("connects = %d, want reconnect attempt", sess.connects)
	}
	if !sess.Available() {
		t.Error("session still unavailable after reconnect")
	}
	if len(h.notifier.online) != 2 {
		t.Errorf("online events = %v, want reconnect announced", h.notifier.online)
	}
}

func TestStartTriggerAndShutdown(t *testing.T) {
	sess := session("dev-a", "10.0.0.1")
	disc := &fakeDiscoverer{results: [][]string{{"10.0.0.1"}}}
	h := newHarness(disc, map[string]*fakeSession{"10.0.0.1": sess})

	ctx, cancel := context.WithCancel(context.Background())
	h.reconciler.Start(ctx)

	// The first pass runs immediately.
	deadline := time.Now().Add(2 * time.Second)
	for h.registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.registry.Count() != 1 {
		t.Fatal("first pass never registered the device")
	}

	cancel()
	h.reconciler.Wait()

	if h.registry.Count() != 0 {
		t.Error("registry not cleared on shutdown")
	}
	if sess.disconnects == 0 {
		t.Error("session not disconnected on shutdown")
	}
	h.notifier.mu.Lock()
	offline := len(h.notifier.offline)
	h.notifier.mu.Unlock()
	if offline != 1 {
		t.Errorf("offline events = %d, want shutdown announcement", offline)
	}
}
