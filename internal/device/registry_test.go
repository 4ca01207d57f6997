package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/cozylink/internal/protocol"
)

// fakeSession is a registry-only stand-in; no I/O happens in these tests.
type fakeSession struct {
	dev Device
}

func (f *fakeSession) Device() Device                  { return f.dev.Clone() }
func (f *fakeSession) Available() bool                 { return f.dev.Available }
func (f *fakeSession) Connect(context.Context) error   { return nil }
func (f *fakeSession) Disconnect() error               { return nil }
func (f *fakeSession) Query(context.Context) (protocol.Values, error) {
	return protocol.Values{}, nil
}
func (f *fakeSession) Control(context.Context, protocol.Values) error { return nil }

func newFakeSession(id, typeCode, host string) *fakeSession {
	return &fakeSession{dev: Device{
		ID:       id,
		TypeCode: typeCode,
		Host:     host,
		Port:     5555,
	}}
}

func TestRegistryAdd(t *testing.T) {
	reg := NewRegistry()

	added, err := reg.Add(newFakeSession("dev-1", "01", "192.168.1.10"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !added {
		t.Error("Add() = false, want true")
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegistryAddDuplicateIsNoOp(t *testing.T) {
	reg := NewRegistry()

	first := newFakeSession("dev-1", "01", "192.168.1.10")
	second := newFakeSession("dev-1", "01", "192.168.1.99")

	if _, err := reg.Add(first); err != nil {
		t.Fatalf("Add(first) error = %v", err)
	}

	added, err := reg.Add(second)
	if err != nil {
		t.Fatalf("Add(second) error = %v", err)
	}
	if added {
		t.Error("Add(duplicate) = true, want false")
	}

	// The original session must survive the rejected add.
	sess, err := reg.Get("dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.Device().Host != "192.168.1.10" {
		t.Errorf("registered host = %q, want original", sess.Device().Host)
	}
}

func TestRegistryAddUnidentified(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Add(newFakeSession("", "01", "192.168.1.10")); !errors.Is(err, ErrUnidentified) {
		t.Errorf("Add() error = %v, want ErrUnidentified", err)
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Add(newFakeSession("dev-1", "01", "192.168.1.10")); err != nil {
		t.Fatal(err)
	}

	sess, err := reg.Remove("dev-1")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if sess == nil {
		t.Fatal("Remove() returned nil session")
	}
	if reg.Count() != 0 {
		t.Errorf("Count() = %d, want 0", reg.Count())
	}

	if _, err := reg.Remove("dev-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(absent) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Add(newFakeSession("dev-1", "01", "192.168.1.10")); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Get("dev-1"); err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if _, err := reg.Get("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryGetByType(t *testing.T) {
	reg := NewRegistry()
	for i, tc := range []string{"01", "01", "02"} {
		sess := newFakeSession(fmt.Sprintf("dev-%d", i), tc, "192.168.1.10")
		if _, err := reg.Add(sess); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(reg.GetByType("01")); got != 2 {
		t.Errorf("GetByType(01) = %d sessions, want 2", got)
	}
	if got := len(reg.GetByType("09")); got != 0 {
		t.Errorf("GetByType(09) = %d sessions, want 0", got)
	}
}

func TestRegistryFindByHost(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Add(newFakeSession("dev-1", "01", "192.168.1.10")); err != nil {
		t.Fatal(err)
	}

	sess, err := reg.FindByHost("192.168.1.10")
	if err != nil {
		t.Fatalf("FindByHost() error = %v", err)
	}
	if sess.Device().ID != "dev-1" {
		t.Errorf("found device = %q, want dev-1", sess.Device().ID)
	}

	if _, err := reg.FindByHost("192.168.1.200"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByHost(absent) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryAllOrdered(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"dev-c", "dev-a", "dev-b"} {
		if _, err := reg.Add(newFakeSession(id, "01", "h")); err != nil {
			t.Fatal(err)
		}
	}

	all := reg.All()
	want := []string{"dev-a", "dev-b", "dev-c"}
	for i, sess := range all {
		if sess.Device().ID != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, sess.Device().ID, want[i])
		}
	}
}

func TestRegistryClear(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 3; i++ {
		if _, err := reg.Add(newFakeSession(fmt.Sprintf("dev-%d", i), "01", "h")); err != nil {
			t.Fatal(err)
		}
	}

	cleared := reg.Clear()
	if len(cleared) != 3 {
		t.Errorf("Clear() returned %d sessions, want 3", len(cleared))
	}
	if reg.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", reg.Count())
	}
}

func TestRegistryStats(t *testing.T) {
	reg := NewRegistry()

	online := newFakeSession("dev-1", "01", "h")
	online.dev.Available = true
	offline := newFakeSession("dev-2", "02", "h")

	for _, s := range []*fakeSession{online, offline} {
		if _, err := reg.Add(s); err != nil {
			t.Fatal(err)
		}
	}

	stats := reg.GetStats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.Available != 1 {
		t.Errorf("Available = %d, want 1", stats.Available)
	}
	if stats.ByType["01"] != 1 || stats.ByType["02"] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, _ = reg.Add(newFakeSession(fmt.Sprintf("dev-%d", n), "01", "h"))
		}(i)
		go func() {
			defer wg.Done()
			_ = reg.All()
			_ = reg.Count()
		}()
	}
	wg.Wait()

	if reg.Count() != 10 {
		t.Errorf("Count() = %d, want 10", reg.Count())
	}
}

func TestDeviceClone(t *testing.T) {
	dev := Device{ID: "dev-1", DatapointIDs: []int{1, 2, 3}}
	cpy := dev.Clone()
	cpy.DatapointIDs[0] = 99

	if dev.DatapointIDs[0] != 1 {
		t.Error("Clone() shares the datapoint id slice")
	}
}
