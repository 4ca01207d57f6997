package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nerrad567/cozylink/internal/protocol"
)

// Broadcast probe defaults, overridable via BroadcastConfig.
const (
	DefaultBroadcastAddress   = "255.255.255.255"
	DefaultBroadcastPort      = 6095
	DefaultSendCount          = 3
	DefaultSendInterval       = 30 * time.Millisecond
	DefaultFirstReplyAttempts = 5
	DefaultReplyTimeout       = 100 * time.Millisecond
	DefaultMaxReplies         = 255
)

// BroadcastConfig tunes the UDP discovery probe.
type BroadcastConfig struct {
	// Address is the broadcast target. Tests point this at loopback.
	Address string

	// Port is the device discovery port.
	Port int

	// SendCount probes are sent SendInterval apart before listening.
	// Devices answer the first probe they hear; the repeats cover
	// datagram loss.
	SendCount    int
	SendInterval time.Duration

	// FirstReplyAttempts bounds the wait for the first reply, each
	// attempt lasting ReplyTimeout. No reply at all means an empty
	// network, not an error.
	FirstReplyAttempts int
	ReplyTimeout       time.Duration

	// MaxReplies caps the number of distinct device addresses collected.
	MaxReplies int
}

func (c *BroadcastConfig) applyDefaults() {
	if c.Address == "" {
		c.Address = DefaultBroadcastAddress
	}
	if c.Port == 0 {
		c.Port = DefaultBroadcastPort
	}
	if c.SendCount == 0 {
		c.SendCount = DefaultSendCount
	}
	if c.SendInterval == 0 {
		c.SendInterval = DefaultSendInterval
	}
	if c.FirstReplyAttempts == 0 {
		c.FirstReplyAttempts = DefaultFirstReplyAttempts
	}
	if c.ReplyTimeout == 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.MaxReplies == 0 {
		c.MaxReplies = DefaultMaxReplies
	}
}

// Broadcast sends identity probes to the broadcast address and collects the
// hosts that answer.
//
// The probe runs in three phases: send SendCount datagrams, wait up to
// FirstReplyAttempts read windows for the first answer, then drain further
// answers until a window passes silent or MaxReplies distinct hosts have
// been seen. Replies that fail to decode are ignored.
func Broadcast(ctx context.Context, cfg BroadcastConfig, logger Logger) ([]string, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = noopLogger{}
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	probe, err := protocol.EncodeDatagram(protocol.Request{
		Cmd: protocol.CmdInfo,
		SN:  protocol.NextSN(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding discovery probe: %w", err)
	}

	dst := &net.UDPAddr{IP: net.ParseIP(cfg.Address), Port: cfg.Port}
	if dst.IP == nil {
		return nil, fmt.Errorf("invalid broadcast address %q", cfg.Address)
	}

	for i := 0; i < cfg.SendCount; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, cfg.SendInterval); err != nil {
				return nil, err
			}
		}
		if _, err := conn.WriteTo(probe, dst); err != nil {
			return nil, fmt.Errorf("sending discovery probe: %w", err)
		}
	}

	buf := make([]byte, 4096)
	seen := make(map[string]bool)
	var hosts []string

	record := func(addr net.Addr, n int) {
		if _, err := protocol.Decode(buf[:n]); err != nil {
			logger.Debug("ignoring malformed discovery reply", "from", addr.String())
			return
		}
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil || seen[host] {
			return
		}
		seen[host] = true
		hosts = append(hosts, host)
	}

	// First-reply phase. Devices already answered the probe burst above;
	// the reply we read here seeds the result set directly rather than
	// being peeked and re-read.
	got := false
	for attempt := 0; attempt < cfg.FirstReplyAttempts && !got; attempt++ {
		if err := ctx.Err(); err != nil {
			return hosts, nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(cfg.ReplyTimeout))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, fmt.Errorf("reading discovery reply: %w", err)
		}
		record(addr, n)
		got = true
	}
	if !got {
		return nil, nil
	}

	// Collection phase: drain until a quiet window or the reply cap.
	for len(hosts) < cfg.MaxReplies {
		if err := ctx.Err(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(cfg.ReplyTimeout))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				break
			}
			return nil, fmt.Errorf("reading discovery reply: %w", err)
		}
		record(addr, n)
	}

	logger.Debug("broadcast discovery finished", "hosts", len(hosts))
	return hosts, nil
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
