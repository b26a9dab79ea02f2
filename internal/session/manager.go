package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanmirror/lanmirror/internal/clock"
	"github.com/lanmirror/lanmirror/internal/logx"
)

var (
	// ErrNotFound means no session exists with the given id.
	ErrNotFound = errors.New("session not found")

	// ErrTerminalState means the session is Error or Ended and accepts
	// no further transitions. Hitting it indicates a caller bug.
	ErrTerminalState = errors.New("session is in a terminal state")
)

// Events are the Manager's observable side effects. Callbacks run on
// the goroutine that drove the transition, after the Manager's lock is
// released.
type Events struct {
	SessionCreated      func(Session)
	SessionConnected    func(Session)
	SessionDisconnected func(Session)
	SessionEnded        func(Session)
	ReconnectFailed     func(Session)
}

// Manager orchestrates session lifecycles. All mutations are serialized
// by one mutex; the channel's connection-event handler and external
// callers may race freely against it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*record

	maxReconnect int
	clk          clock.Clock
	store        Store // optional; best-effort history persistence
	events       Events
}

// Option adjusts Manager construction.
type Option func(*Manager)

// WithClock injects a time source for duration accounting.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clk = c }
}

// WithMaxReconnectAttempts overrides the per-session reconnect bound.
func WithMaxReconnectAttempts(n int) Option {
	return func(m *Manager) { m.maxReconnect = n }
}

// WithStore enables session-history persistence.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithEvents registers lifecycle callbacks.
func WithEvents(ev Events) Option {
	return func(m *Manager) { m.events = ev }
}

// NewManager creates a Manager with the system clock and default
// reconnect bound unless overridden.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:     make(map[string]*record),
		maxReconnect: DefaultMaxReconnectAttempts,
		clk:          clock.Real(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession allocates a new session in Pending with a fresh id.
func (m *Manager) CreateSession(hostID, hostName, clientID, clientName string) Session {
	m.mu.Lock()
	r := &record{
		id:           uuid.NewString(),
		hostID:       hostID,
		hostName:     hostName,
		clientID:     clientID,
		clientName:   clientName,
		status:       Pending,
		createdAt:    m.clk.Now(),
		maxReconnect: m.maxReconnect,
	}
	m.sessions[r.id] = r
	snap := r.snapshot(m.clk.Now())
	m.mu.Unlock()

	m.persist(snap)
	if m.events.SessionCreated != nil {
		m.events.SessionCreated(snap)
	}
	return snap
}

// OnConnected moves a Pending session to Connected: records
// last-connected-at, resets the reconnect counter, starts the
// in-progress duration interval.
func (m *Manager) OnConnected(sessionID string) error {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", sessionID, ErrNotFound)
	}
	if r.status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", sessionID, ErrTerminalState)
	}
	if r.status != Pending {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: session is %s, not pending", sessionID, r.status)
	}

	now := m.clk.Now()
	r.status = Connected
	r.lastConnectedAt = &now
	r.connectedSince = now
	r.reconnectAttempts = 0
	snap := r.snapshot(now)
	m.mu.Unlock()

	m.persist(snap)
	if m.events.SessionConnected != nil {
		m.events.SessionConnected(snap)
	}
	return nil
}

// OnDisconnected moves a Connected or Pending session to Disconnected,
// recording the reason. From Connected the just-completed interval is
// folded into the total connected duration; from Pending (a reconnect
// attempt that never got a link up) there is nothing to fold.
func (m *Manager) OnDisconnected(sessionID, reason string) error {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("disconnect %s: %w", sessionID, ErrNotFound)
	}
	if r.status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("disconnect %s: %w", sessionID, ErrTerminalState)
	}
	if r.status != Connected && r.status != Pending {
		m.mu.Unlock()
		return fmt.Errorf("disconnect %s: session is %s, not connected", sessionID, r.status)
	}

	now := m.clk.Now()
	if r.status == Connected {
		r.connectedTotal += now.Sub(r.connectedSince)
		r.connectedSince = time.Time{}
	}
	r.status = Disconnected
	r.disconnectedAt = &now
	r.disconnectReason = reason
	snap := r.snapshot(now)
	m.mu.Unlock()

	m.persist(snap)
	if m.events.SessionDisconnected != nil {
		m.events.SessionDisconnected(snap)
	}
	return nil
}

// TryReconnect spends one reconnect attempt on a Disconnected session.
// Within the bound it returns true and parks the session back in
// Pending for the caller to redrive the pairing/connect flow; past the
// bound the session goes to Error and ReconnectFailed fires.
func (m *Manager) TryReconnect(sessionID string) (bool, error) {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("reconnect %s: %w", sessionID, ErrNotFound)
	}
	if r.status.Terminal() {
		m.mu.Unlock()
		return false, fmt.Errorf("reconnect %s: %w", sessionID, ErrTerminalState)
	}
	if r.status != Disconnected {
		m.mu.Unlock()
		return false, fmt.Errorf("reconnect %s: session is %s, not disconnected", sessionID, r.status)
	}

	now := m.clk.Now()
	r.reconnectAttempts++
	allowed := r.reconnectAttempts <= r.maxReconnect
	if allowed {
		r.status = Pending
	} else {
		r.status = Error
	}
	snap := r.snapshot(now)
	m.mu.Unlock()

	m.persist(snap)
	if !allowed {
		if m.events.ReconnectFailed != nil {
			m.events.ReconnectFailed(snap)
		}
		return false, nil
	}
	return true, nil
}

// EndSession gracefully terminates a session from any non-terminal
// state. Ended is terminal.
func (m *Manager) EndSession(sessionID string) error {
	m.mu.Lock()
	r, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("end %s: %w", sessionID, ErrNotFound)
	}
	if r.status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("end %s: %w", sessionID, ErrTerminalState)
	}

	now := m.clk.Now()
	if r.status == Connected {
		r.connectedTotal += now.Sub(r.connectedSince)
		r.connectedSince = time.Time{}
	}
	r.status = Ended
	snap := r.snapshot(now)
	m.mu.Unlock()

	m.persist(snap)
	if m.events.SessionEnded != nil {
		m.events.SessionEnded(snap)
	}
	return nil
}

// GetSession returns a snapshot of the session with the given id.
func (m *Manager) GetSession(sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, fmt.Errorf("get %s: %w", sessionID, ErrNotFound)
	}
	return r.snapshot(m.clk.Now()), nil
}

// ActiveSession returns the session currently Connected, if any. By
// construction a host carries at most one.
func (m *Manager) ActiveSession() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.sessions {
		if r.status == Connected {
			return r.snapshot(m.clk.Now()), true
		}
	}
	return Session{}, false
}

// persist writes the session's current state to the history store,
// best-effort. Persistence failures never affect the state machine.
func (m *Manager) persist(s Session) {
	if m.store == nil {
		return
	}
	if err := m.store.UpsertSession(context.Background(), recordFromSnapshot(s)); err != nil {
		logx.Warnf("session history write failed for %s: %v", s.ID, err)
	}
}
