package session

import (
	"context"
	"time"
)

// Store is the persistence interface for session history. All
// implementations must be safe for concurrent use. Persistence is
// best-effort from the Manager's point of view: live state never
// depends on it.
type Store interface {
	// UpsertSession writes the session's latest state, replacing any
	// prior row with the same id.
	UpsertSession(ctx context.Context, rec *Record) error

	// ListSessions returns history ordered by creation time, newest
	// first.
	ListSessions(ctx context.Context) ([]*Record, error)

	// Close releases database resources.
	Close() error
}

// Record is the persisted form of a session.
type Record struct {
	ID               string        `json:"id"`
	HostID           string        `json:"host_id"`
	HostName         string        `json:"host_name"`
	ClientID         string        `json:"client_id"`
	ClientName       string        `json:"client_name"`
	Status           string        `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	LastConnectedAt  *time.Time    `json:"last_connected_at,omitempty"`
	DisconnectedAt   *time.Time    `json:"disconnected_at,omitempty"`
	DisconnectReason string        `json:"disconnect_reason,omitempty"`
	ConnectedFor     time.Duration `json:"connected_for"`
}

func recordFromSnapshot(s Session) *Record {
	return &Record{
		ID:               s.ID,
		HostID:           s.HostID,
		HostName:         s.HostName,
		ClientID:         s.ClientID,
		ClientName:       s.ClientName,
		Status:           s.Status.String(),
		CreatedAt:        s.CreatedAt,
		LastConnectedAt:  s.LastConnectedAt,
		DisconnectedAt:   s.DisconnectedAt,
		DisconnectReason: s.DisconnectReason,
		ConnectedFor:     s.ConnectedDuration,
	}
}
