package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/cozylink/internal/catalog"
	"github.com/nerrad567/cozylink/internal/device"
	"github.com/nerrad567/cozylink/internal/protocol"
)

// Default timing parameters, overridable via Config.
const (
	DefaultPort           = 5555
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultRequestRetries = 3
)

// State is the connection lifecycle state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config holds the per-device connection parameters.
type Config struct {
	// Host is the device's IP address.
	Host string

	// Port is the device's TCP control port. Defaults to DefaultPort.
	Port int

	// ConnectTimeout bounds the TCP dial. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// RequestTimeout is the per-attempt reply deadline. Stale replies with
	// a mismatched token consume the remaining window of the attempt, not
	// a fresh one. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RequestRetries is the number of send attempts per request.
	// Defaults to DefaultRequestRetries.
	RequestRetries int
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestRetries == 0 {
		c.RequestRetries = DefaultRequestRetries
	}
}

// Logger defines the logging interface used by the session.
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

// Session owns one TCP connection to one device.
//
// Requests are serialised: the protocol has no multiplexing, so only one
// request may be in flight per connection. Replies are correlated by the
// per-request token; replies carrying a stale token are dropped silently.
// Any I/O failure mid-exchange tears the connection down immediately so
// that a half-dead socket can never be mistaken for a healthy device.
type Session struct {
	cfg     Config
	catalog catalog.Catalog
	logger  Logger

	// reqMu serialises wire exchanges. Held across the full
	// send-and-await-reply cycle, never while dialling.
	reqMu sync.Mutex

	// mu guards the fields below.
	mu     sync.Mutex
	state  State
	conn   net.Conn
	reader *bufio.Reader
	dev    device.Device
}

// New creates a session for the device at cfg.Host. No I/O happens until
// Connect.
func New(cfg Config, cat catalog.Catalog, logger Logger) *Session {
	cfg.applyDefaults()
	if cat == nil {
		cat = catalog.Empty()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Session{
		cfg:     cfg,
		catalog: cat,
		logger:  logger,
		dev: device.Device{
			Host:            cfg.Host,
			Port:            cfg.Port,
			SoftwareVersion: device.UnknownSoftwareVersion,
		},
	}
}

// Device returns a snapshot of the device's identity and capabilities.
func (s *Session) Device() device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Clone()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Available reports whether a live, healthy connection exists.
func (s *Session) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.dev.Available
}

// Connect dials the device and performs the identification exchange.
// Connecting an already-connected session is a no-op.
//
// A device that answers the dial but omits its identity fields stays
// connected as unidentified; the registry rejects it later, but callers
// can still query it directly.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.mu.Unlock()

	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return classifyNetErr(fmt.Errorf("dialling %s: %w", addr, err))
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.state = StateConnected
	s.mu.Unlock()

	if err := s.identify(ctx); err != nil {
		s.teardown()
		return fmt.Errorf("identifying %s: %w", addr, err)
	}

	s.mu.Lock()
	s.dev.Available = true
	s.dev.LastSeen = time.Now()
	dev := s.dev.Clone()
	s.mu.Unlock()

	s.logger.Info("device connected",
		"id", dev.ID, "model", dev.ModelName, "address", addr)
	return nil
}

// identify runs the INFO exchange and resolves catalog metadata.
func (s *Session) identify(ctx context.Context) error {
	msg, err := s.exchange(ctx, protocol.CmdInfo, nil)
	if err != nil {
		return err
	}

	info, err := protocol.ParseInfo(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dev.ID = info.DeviceID
	s.dev.ProductID = info.ProductID
	s.dev.RSSI = info.RSSI
	if info.SoftwareVersion != "" {
		s.dev.SoftwareVersion = info.SoftwareVersion
	}

	if info.DeviceID == "" {
		s.logger.Warn("device reply carried no identity", "address", s.cfg.Host)
		return nil
	}

	model, err := s.catalog.Lookup(info.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("product id not in catalog",
				"id", info.DeviceID, "pid", info.ProductID)
			return nil
		}
		return err
	}

	s.dev.TypeCode = model.TypeCode
	s.dev.ModelName = model.ModelName
	s.dev.Icon = model.Icon
	s.dev.DatapointIDs = model.DatapointIDs
	return nil
}

// Query reads the device's current datapoint values.
func (s *Session) Query(ctx context.Context) (protocol.Values, error) {
	msg, err := s.exchange(ctx, protocol.CmdQuery, nil)
	if err != nil {
		return nil, err
	}

	values, err := protocol.ParseQueryData(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	s.mu.Lock()
	s.dev.LastSeen = time.Now()
	s.mu.Unlock()
	return values, nil
}

// Control writes datapoint values. Fire-and-forget: the device sends no
// reply to a state change, so success means the write left the socket.
func (s *Session) Control(ctx context.Context, values protocol.Values) error {
	if len(values) == 0 {
		return nil
	}
	if err := values.Validate(); err != nil {
		return err
	}

	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	conn, err := s.liveConn()
	if err != nil {
		return err
	}

	frame, err := protocol.Encode(protocol.Request{
		Cmd:    protocol.CmdSet,
		SN:     protocol.NextSN(),
		Values: values,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.RequestTimeout))
	}
	if _, err := conn.Write(frame); err != nil {
		s.teardown()
		return classifyNetErr(fmt.Errorf("writing control frame: %w", err))
	}

	s.mu.Lock()
	s.dev.LastSeen = time.Now()
	s.mu.Unlock()

	s.logger.Debug("control sent", "id", s.Device().ID, "datapoints", values.IDs())
	return nil
}

// Disconnect closes the connection. Idempotent.
func (s *Session) Disconnect() error {
	s.teardown()
	return nil
}

// exchange sends one request and awaits the matching reply, retrying up to
// RequestRetries times. Each attempt gets a fresh token and an absolute
// deadline; replies with a stale token are discarded without extending it.
func (s *Session) exchange(ctx context.Context, cmd protocol.Command, values protocol.Values) (*protocol.Message, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < s.cfg.RequestRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		msg, err := s.attempt(ctx, cmd, values)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug("request attempt timed out",
			"cmd", int(cmd), "attempt", attempt+1, "address", s.cfg.Host)
	}
	return nil, lastErr
}

// attempt performs a single send-and-await cycle under one deadline.
func (s *Session) attempt(ctx context.Context, cmd protocol.Command, values protocol.Values) (*protocol.Message, error) {
	conn, err := s.liveConn()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	sn := protocol.NextSN()
	frame, err := protocol.Encode(protocol.Request{Cmd: cmd, SN: sn, Values: values})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	deadline := time.Now().Add(s.cfg.RequestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetWriteDeadline(deadline)
	if _, err := conn.Write(frame); err != nil {
		s.teardown()
		return nil, classifyNetErr(fmt.Errorf("writing request: %w", err))
	}

	// One absolute deadline covers every read in this attempt, so a
	// stream of stale replies cannot stretch it.
	_ = conn.SetReadDeadline(deadline)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if isTimeout(err) {
				return nil, ErrTimeout
			}
			s.teardown()
			return nil, classifyNetErr(fmt.Errorf("reading reply: %w", err))
		}

		msg, err := protocol.Decode(line)
		if err != nil {
			s.teardown()
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}

		if msg.SN != sn {
			s.logger.Debug("dropping stale reply",
				"address", s.cfg.Host, "got", msg.SN, "want", sn)
			continue
		}
		return msg, nil
	}
}

// liveConn returns the current connection or ErrNotConnected. Callers that
// hit ErrNotConnected have performed no I/O.
func (s *Session) liveConn() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// teardown closes the connection and marks the device unavailable. Safe to
// call repeatedly and from any state.
func (s *Session) teardown() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.reader = nil
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	s.dev.Available = false
	id := s.dev.ID
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wasConnected {
		s.logger.Info("device disconnected", "id", id, "address", s.cfg.Host)
	}
}

// isTimeout reports whether err is a network deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyNetErr maps a raw network error onto the session error kinds.
func classifyNetErr(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
