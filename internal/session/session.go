// Package session owns the lifecycle of remote sessions: one record
// per pairing handshake, a five-state machine driven by channel
// connect/disconnect events, bounded reconnection, and connected-time
// accounting against an injectable clock.
package session

import "time"

// Status is the lifecycle state of a RemoteSession.
type Status uint8

const (
	Pending Status = iota
	Connected
	Disconnected
	Error
	Ended
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Error:
		return "error"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool { return s == Error || s == Ended }

// DefaultMaxReconnectAttempts bounds reconnection per session.
const DefaultMaxReconnectAttempts = 3

// Session is a point-in-time snapshot of one remote session. The
// Manager hands out snapshots, never its internal records, so callers
// can read them without holding any lock.
type Session struct {
	ID         string
	HostID     string
	HostName   string
	ClientID   string
	ClientName string

	Status               Status
	CreatedAt            time.Time
	LastConnectedAt      *time.Time
	DisconnectedAt       *time.Time
	DisconnectReason     string
	ReconnectAttempts    int
	MaxReconnectAttempts int

	// ConnectedDuration is the sum of completed connect→disconnect
	// intervals plus, while Connected, the in-progress interval.
	ConnectedDuration time.Duration
}

// record is the Manager's mutable state for one session.
type record struct {
	id         string
	hostID     string
	hostName   string
	clientID   string
	clientName string

	status            Status
	createdAt         time.Time
	lastConnectedAt   *time.Time
	disconnectedAt    *time.Time
	disconnectReason  string
	reconnectAttempts int
	maxReconnect      int

	connectedTotal time.Duration
	connectedSince time.Time // non-zero only while Connected
}

func (r *record) snapshot(now time.Time) Session {
	s := Session{
		ID:                   r.id,
		HostID:               r.hostID,
		HostName:             r.hostName,
		ClientID:             r.clientID,
		ClientName:           r.clientName,
		Status:               r.status,
		CreatedAt:            r.createdAt,
		DisconnectReason:     r.disconnectReason,
		ReconnectAttempts:    r.reconnectAttempts,
		MaxReconnectAttempts: r.maxReconnect,
		ConnectedDuration:    r.connectedTotal,
	}
	if r.lastConnectedAt != nil {
		t := *r.lastConnectedAt
		s.LastConnectedAt = &t
	}
	if r.disconnectedAt != nil {
		t := *r.disconnectedAt
		s.DisconnectedAt = &t
	}
	if r.status == Connected && !r.connectedSince.IsZero() {
		s.ConnectedDuration += now.Sub(r.connectedSince)
	}
	return s
}
