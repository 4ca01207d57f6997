package discovery

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestSubnetHostsEnumeration(t *testing.T) {
	tests := []struct {
		cidr string
		want []string
	}{
		{"192.168.1.0/30", []string{"192.168.1.1", "192.168.1.2"}},
		{"192.168.1.0/31", []string{"192.168.1.0", "192.168.1.1"}},
		{"10.0.0.7/32", []string{"10.0.0.7"}},
		{"bogus", nil},
		{"192.168.1.0", nil},
	}

	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			got := subnetHosts(tt.cidr, nil)
			if len(got) != len(tt.want) {
				t.Fatalf("subnetHosts(%q) = %v, want %v", tt.cidr, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("host[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSubnetHostsExcludesNetworkAndBroadcast(t *testing.T) {
	hosts := subnetHosts("192.168.1.0/29", nil)
	if len(hosts) != 6 {
		t.Fatalf("host count = %d, want 6", len(hosts))
	}
	for _, h := range hosts {
		if h == "192.168.1.0" || h == "192.168.1.7" {
			t.Errorf("host list contains %s", h)
		}
	}
}

func TestScanSubnetsFindsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Keep accepted probes from piling up.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	found := ScanSubnets(context.Background(), []string{"127.0.0.1/32"}, port, 500*time.Millisecond, nil)
	if len(found) != 1 || found[0] != "127.0.0.1" {
		t.Errorf("found = %v, want [127.0.0.1]", found)
	}
}

func TestScanSubnetsNothingListening(t *testing.T) {
	// Grab a free port and release it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	found := ScanSubnets(context.Background(), []string{"127.0.0.1/32"}, port, 200*time.Millisecond, nil)
	if len(found) != 0 {
		t.Errorf("found = %v, want none", found)
	}
}

func TestScanSubnetsMalformedCIDRDoesNotPoisonSiblings(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	found := ScanSubnets(context.Background(),
		[]string{"garbage/99", "127.0.0.1/32"}, port, 500*time.Millisecond, nil)
	if len(found) != 1 || found[0] != "127.0.0.1" {
		t.Errorf("found = %v, want sibling subnet still scanned", found)
	}
}

func TestEngineMergesStaticHosts(t *testing.T) {
	engine := NewEngine(Config{
		StaticHosts: []string{"192.168.1.50", "192.168.1.20", "192.168.1.50"},
	}, nil)

	hosts := engine.Discover(context.Background())
	want := []string{"192.168.1.20", "192.168.1.50"}
	if len(hosts) != len(want) {
		t.Fatalf("Discover() = %v, want %v", hosts, want)
	}
	for i := range want {
		if hosts[i] != want[i] {
			t.Errorf("hosts[%d] = %q, want %q", i, hosts[i], want[i])
		}
	}
}
