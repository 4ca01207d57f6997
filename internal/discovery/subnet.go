package discovery

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Subnet probe defaults.
const (
	DefaultSubnetPort    = 5555
	DefaultSubnetTimeout = time.Second

	// maxConcurrentProbes bounds the dial fan-out so a /16 scan cannot
	// exhaust file descriptors.
	maxConcurrentProbes = 128
)

// ScanSubnets probes every host address of the given CIDR ranges with a TCP
// connect on port and returns the hosts that accepted.
//
// A malformed CIDR is logged and yields nothing; the remaining ranges still
// scan. Network and broadcast addresses are skipped except in /31 and /32
// ranges, where every address is a host.
func ScanSubnets(ctx context.Context, cidrs []string, port int, timeout time.Duration, logger Logger) []string {
	if port == 0 {
		port = DefaultSubnetPort
	}
	if timeout == 0 {
		timeout = DefaultSubnetTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}

	var hosts []string
	for _, cidr := range cidrs {
		hosts = append(hosts, subnetHosts(cidr, logger)...)
	}
	if len(hosts) == 0 {
		return nil
	}

	found := probeHosts(ctx, hosts, port, timeout)
	sort.Strings(found)
	return found
}

// subnetHosts enumerates the probeable addresses of one CIDR range.
func subnetHosts(cidr string, logger Logger) []string {
	if logger == nil {
		logger = noopLogger{}
	}
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		logger.Warn("skipping malformed subnet", "cidr", cidr, "error", err)
		return nil
	}

	ones, bits := ipNet.Mask.Size()
	small := bits-ones <= 1 // /31 and /32 have no network or broadcast address

	var hosts []string
	for addr := ip.Mask(ipNet.Mask); ipNet.Contains(addr); incIP(addr) {
		if !small && (addr.Equal(networkAddr(ipNet)) || addr.Equal(broadcastAddr(ipNet))) {
			continue
		}
		hosts = append(hosts, addr.String())
	}
	return hosts
}

// probeHosts dials every host concurrently and returns those that accept.
func probeHosts(ctx context.Context, hosts []string, port int, timeout time.Duration) []string {
	var (
		mu    sync.Mutex
		found []string
		wg    sync.WaitGroup
		sem   = make(chan struct{}, maxConcurrentProbes)
	)

	dialer := net.Dialer{Timeout: timeout}
	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()

			conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err != nil {
				return
			}
			conn.Close()

			mu.Lock()
			found = append(found, host)
			mu.Unlock()
		}(host)
	}
	wg.Wait()
	return found
}

// incIP advances an IPv4/IPv6 address in place.
func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}

func networkAddr(ipNet *net.IPNet) net.IP {
	return ipNet.IP
}

func broadcastAddr(ipNet *net.IPNet) net.IP {
	ip := ipNet.IP.To4()
	if ip == nil {
		ip = ipNet.IP
	}
	out := make(net.IP, len(ip))
	copy(out, ip)
	for i := range out {
		out[i] |= ^ipNet.Mask[i]
	}
	return out
}

// isTimeout reports whether err is a deadline expiry.
func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
