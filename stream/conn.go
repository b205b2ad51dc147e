// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gantry-systems/gantry/lib/clock"
)

// State is the connection manager's lifecycle state.
type State int

const (
	// StateConnecting: a dial is in flight.
	StateConnecting State = iota
	// StateOpen: the stream is up and delivering frames.
	StateOpen
	// StateClosed: the transport dropped; reconnect not yet scheduled.
	StateClosed
	// StateReconnecting: a reconnect timer is pending.
	StateReconnecting
	// StateDisconnected: explicit teardown by the caller. Terminal.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind discriminates connection manager events.
type EventKind int

const (
	// KindConnected: the stream opened (or reopened).
	KindConnected EventKind = iota
	// KindDisconnected: the stream dropped; a reconnect is scheduled.
	KindDisconnected
	// KindFrame: one raw frame arrived. Data holds the frame bytes.
	KindFrame
)

// Event is one discrete connection event. The manager delivers events
// on a single-consumer channel in occurrence order; frame bytes are
// not decoded here so consumers stay pure reducers over the channel.
type Event struct {
	Kind EventKind
	Data []byte
}

// Conn is one established stream connection.
type Conn interface {
	// Read blocks until the next frame arrives. Any error means the
	// connection is dead.
	Read() ([]byte, error)
	Close() error
}

// Dialer establishes stream connections. Production code uses
// WebSocketDialer; tests inject a fake.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// ErrClosed is returned by Connect after the manager has been torn
// down.
var ErrClosed = errors.New("stream: manager closed")

// Reconnect backoff: min(reconnectBase << retries, reconnectMax),
// giving 2s, 4s, 8s, 16s, 30s, 30s, ...
const (
	reconnectBase = 2 * time.Second
	reconnectMax  = 30 * time.Second
)

func backoffDelay(retries int) time.Duration {
	if retries > 3 {
		return reconnectMax
	}
	delay := reconnectBase << retries
	if delay > reconnectMax {
		return reconnectMax
	}
	return delay
}

// StreamURL derives the stream endpoint for a unit from the backend
// base URL: the scheme follows the base URL's transport security
// (https → wss, http → ws) and the unit ID is percent-encoded.
func StreamURL(baseURL, unitID string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("stream: invalid base URL %q: %w", baseURL, err)
	}
	switch parsed.Scheme {
	case "https", "wss":
		parsed.Scheme = "wss"
	case "http", "ws":
		parsed.Scheme = "ws"
	default:
		return "", fmt.Errorf("stream: unsupported scheme %q in base URL", parsed.Scheme)
	}
	// Path holds the decoded form and RawPath the encoded one, so
	// String() escapes the unit ID exactly once.
	parsed.Path = "/ws/telemetry/" + unitID
	parsed.RawPath = "/ws/telemetry/" + url.PathEscape(unitID)
	parsed.RawQuery = ""
	return parsed.String(), nil
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// BaseURL is the backend base URL (http or https); the stream URL
	// is derived per StreamURL. Required.
	BaseURL string

	// Dialer establishes connections. Defaults to WebSocketDialer().
	Dialer Dialer

	// Clock schedules reconnect timers. Defaults to clock.Real().
	Clock clock.Clock

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager owns one persistent stream connection for a monitored unit.
// It dials, detects loss, and reconnects with bounded exponential
// backoff, emitting Connected/Disconnected/Frame events on the channel
// returned by Events.
//
// Connect switches units: it tears down any existing connection and
// restarts the state machine from a zero retry count, so no state
// leaks across units. Close is terminal and releases every timer and
// socket handle; no event is emitted and no timer fires after Close
// returns.
type Manager struct {
	dialer  Dialer
	clock   clock.Clock
	logger  *slog.Logger
	baseURL string

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	unitID     string
	retryCount int
	generation int
	conn       Conn
	timer      *clock.Timer
	closed     bool
}

// NewManager creates a Manager. No connection is attempted until
// Connect is called.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("stream: BaseURL is required")
	}
	if _, err := StreamURL(config.BaseURL, "probe"); err != nil {
		return nil, err
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = WebSocketDialer()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dialer:  dialer,
		clock:   clk,
		logger:  logger,
		baseURL: config.BaseURL,
		events:  make(chan Event, 256),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Events returns the single-consumer event channel. The channel is
// never closed; consumers stop reading after Close.
func (m *Manager) Events() <-chan Event { return m.events }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UnitID returns the unit this manager is connected (or connecting)
// to.
func (m *Manager) UnitID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unitID
}

// Connect starts (or restarts) the connection state machine for the
// given unit. Any existing connection or pending reconnect is torn
// down first and the retry counter resets to zero.
func (m *Manager) Connect(unitID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.teardownLocked()
	m.unitID = unitID
	m.retryCount = 0
	m.state = StateConnecting
	generation := m.generation
	m.mu.Unlock()

	go m.dial(generation)
	return nil
}

// Close tears the manager down: the terminal DISCONNECTED state. Any
// live connection is closed and any pending reconnect timer released.
// Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.teardownLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.cancel()
	return nil
}

// teardownLocked releases the current connection and reconnect timer
// and invalidates in-flight dials and read loops by bumping the
// generation. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// dial attempts one connection for the given generation. A dial
// failure is treated exactly like a close: the reconnect path is the
// only retry path, so a transport error can never double-schedule.
func (m *Manager) dial(generation int) {
	m.mu.Lock()
	if m.closed || generation != m.generation {
		m.mu.Unlock()
		return
	}
	unitID := m.unitID
	m.state = StateConnecting
	m.timer = nil
	m.mu.Unlock()

	target, err := StreamURL(m.baseURL, unitID)
	if err != nil {
		// Unreachable after the NewManager validation, but guard
		// anyway: a bad URL will never succeed, so do not retry.
		m.logger.Error("stream URL derivation failed", "unit_id", unitID, "error", err)
		return
	}

	conn, err := m.dialer.Dial(m.ctx, target)
	if err != nil {
		m.mu.Lock()
		if m.closed || generation != m.generation {
			m.mu.Unlock()
			return
		}
		m.state = StateClosed
		m.scheduleReconnectLocked(generation, err)
		m.mu.Unlock()
		m.emit(Event{Kind: KindDisconnected})
		return
	}

	m.mu.Lock()
	if m.closed || generation != m.generation {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.retryCount = 0
	m.mu.Unlock()

	m.logger.Info("stream connected", "unit_id", unitID)
	m.emit(Event{Kind: KindConnected})
	go m.readLoop(generation, conn)
}

// readLoop delivers frames until the connection dies, then schedules
// the reconnect.
func (m *Manager) readLoop(generation int, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			m.mu.Lock()
			if m.closed || generation != m.generation {
				m.mu.Unlock()
				return
			}
			m.conn = nil
			m.state = StateClosed
			m.scheduleReconnectLocked(generation, err)
			m.mu.Unlock()
			m.emit(Event{Kind: KindDisconnected})
			return
		}
		m.emit(Event{Kind: KindFrame, Data: data})
	}
}

// scheduleReconnectLocked arms the backoff timer for the next dial.
// Caller holds m.mu and has verified the generation is current.
func (m *Manager) scheduleReconnectLocked(generation int, cause error) {
	delay := backoffDelay(m.retryCount)
	m.retryCount++
	m.state = StateReconnecting
	m.logger.Info("stream closed, reconnect scheduled",
		"unit_id", m.unitID,
		"delay", delay,
		"attempt", m.retryCount,
		"error", cause,
	)
	m.timer = m.clock.AfterFunc(delay, func() {
		m.dial(generation)
	})
}

// emit delivers an event to the consumer, giving up on teardown. The
// channel is buffered so frame delivery keeps pace with a slow
// consumer for bursts; a consumer that stops reading entirely only
// stalls this manager's own goroutine, never the transport peer.
func (m *Manager) emit(event Event) {
	select {
	case m.events <- event:
	case <-m.ctx.Done():
	}
}
