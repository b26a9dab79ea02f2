package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanmirror/lanmirror/internal/clock"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateSessionStartsPending(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake(testEpoch)))
	s := m.CreateSession("h-1", "desk", "c-1", "laptop")

	if s.Status != Pending {
		t.Errorf("status: got %v, want %v", s.Status, Pending)
	}
	if s.ID == "" {
		t.Error("session ID not assigned")
	}
	if s.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("max reconnects: got %d, want %d", s.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if !s.CreatedAt.Equal(testEpoch) {
		t.Errorf("created at: got %v, want %v", s.CreatedAt, testEpoch)
	}
}

func TestFullLifecycle(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	m := NewManager(WithClock(clk))
	s := m.CreateSession("h-1", "desk", "c-1", "laptop")

	if err := m.OnConnected(s.ID); err != nil {
		t.Fatalf("OnConnected: %v", err)
	}
	got, _ := m.GetSession(s.ID)
	if got.Status != Connected {
		t.Fatalf("status: got %v, want %v", got.Status, Connected)
	}
	if got.LastConnectedAt == nil || !got.LastConnectedAt.Equal(testEpoch) {
		t.Errorf("last connected at: got %v, want %v", got.LastConnectedAt, testEpoch)
	}

	clk.Advance(10 * time.Minute)
	if err := m.OnDisconnected(s.ID, "peer closed"); err != nil {
		t.Fatalf("OnDisconnected: %v", err)
	}
	got, _ = m.GetSession(s.ID)
	if got.Status != Disconnected {
		t.Fatalf("status: got %v, want %v", got.Status, Disconnected)
	}
	if got.DisconnectReason != "peer closed" {
		t.Errorf("reason: got %q, want %q", got.DisconnectReason, "peer closed")
	}
	if got.ConnectedDuration != 10*time.Minute {
		t.Errorf("connected duration: got %v, want %v", got.ConnectedDuration, 10*time.Minute)
	}

	if err := m.EndSession(s.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	got, _ = m.GetSession(s.ID)
	if got.Status != Ended {
		t.Fatalf("status: got %v, want %v", got.Status, Ended)
	}
}

func TestConnectedDurationAccumulatesAcrossReconnects(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	m := NewManager(WithClock(clk))
	s := m.CreateSession("h-1", "desk", "c-1", "laptop")

	m.OnConnected(s.ID)                //nolint:errcheck
	clk.Advance(5 * time.Minute)       // first interval
	m.OnDisconnected(s.ID, "dropped")  //nolint:errcheck
	clk.Advance(30 * time.Second)      // gap does not count
	m.TryReconnect(s.ID)               //nolint:errcheck
	m.OnConnected(s.ID)                //nolint:errcheck
	clk.Advance(3 * time.Minute)       // second interval, still open
	got, _ := m.GetSession(s.ID)

	if want := 8 * time.Minute; got.ConnectedDuration != want {
		t.Errorf("connected duration: got %v, want %v", got.ConnectedDuration, want)
	}
}

func TestReconnectBudget(t *testing.T) {
	clk := clock.NewFake(testEpoch)

	var reconnectFailed bool
	m := NewManager(
		WithClock(clk),
		WithEvents(Events{
			ReconnectFailed: func(Session) { reconnectFailed = true },
		}),
	)
	s := m.CreateSession("h-1", "desk", "c-1", "laptop")
	m.OnConnected(s.ID) //nolint:errcheck

	// Three drop/reconnect cycles succeed.
	for i := 1; i <= DefaultMaxReconnectAttempts; i++ {
		m.OnDisconnected(s.ID, "dropped") //nolint:errcheck
		ok, err := m.TryReconnect(s.ID)
		if err != nil || !ok {
			t.Fatalf("attempt %d: got ok=%v err=%v, want allowed", i, ok, err)
		}
		m.OnConnected(s.ID) //nolint:errcheck
	}

	// The fourth exhausts the budget. OnConnected reset the counter
	// each time, so force consecutive failures without reconnecting.
	m.OnDisconnected(s.ID, "dropped") //nolint:errcheck
	for i := 1; i <= DefaultMaxReconnectAttempts; i++ {
		ok, err := m.TryReconnect(s.ID)
		if err != nil || !ok {
			t.Fatalf("attempt %d without success: got ok=%v err=%v", i, ok, err)
		}
		if err := m.OnDisconnected(s.ID, "still down"); err != nil {
			t.Fatalf("re-disconnect %d: %v", i, err)
		}
	}
	ok, err := m.TryReconnect(s.ID)
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if ok {
		t.Fatal("reconnect allowed past the budget")
	}
	if !reconnectFailed {
		t.Error("ReconnectFailed event not fired")
	}

	got, _ := m.GetSession(s.ID)
	if got.Status != Error {
		t.Errorf("status: got %v, want %v", got.Status, Error)
	}
}

func TestSuccessfulConnectResetsAttempts(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake(testEpoch)))
	s := m.CreateSession("h-1", "desk", "c-1", "laptop")
	m.OnConnected(s.ID)               //nolint:errcheck
	m.OnDisconnected(s.ID, "dropped") //nolint:errcheck
	m.TryReconnect(s.ID)              //nolint:errcheck
	m.OnConnected(s.ID)               //nolint:errcheck

	got, _ := m.GetSession(s.ID)
	if got.ReconnectAttempts != 0 {
		t.Errorf("attempts after successful connect: got %d, want 0", got.ReconnectAttempts)
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake(testEpoch)))
	s := m.CreateSession("h-1", "desk", "c-1", "laptop")
	m.EndSession(s.ID) //nolint:errcheck

	if err := m.OnConnected(s.ID); !errors.Is(err, ErrTerminalState) {
		t.Errorf("OnConnected on ended session: got %v, want ErrTerminalState", err)
	}
	if err := m.OnDisconnected(s.ID, "x"); !errors.Is(err, ErrTerminalState) {
		t.Errorf("OnDisconnected on ended session: got %v, want ErrTerminalState", err)
	}
	if _, err := m.TryReconnect(s.ID); !errors.Is(err, ErrTerminalState) {
		t.Errorf("TryReconnect on ended session: got %v, want ErrTerminalState", err)
	}
	if err := m.EndSession(s.ID); !errors.Is(err, ErrTerminalState) {
		t.Errorf("EndSession twice: got %v, want ErrTerminalState", err)
	}
}

func TestUnknownSession(t *testing.T) {
	m := NewManager()
	if err := m.OnConnected("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := m.GetSession("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestActiveSession(t *testing.T) {
	m := NewManager(WithClock(clock.NewFake(testEpoch)))
	if _, ok := m.ActiveSession(); ok {
		t.Fatal("active session reported on empty manager")
	}

	s := m.CreateSession("h-1", "desk", "c-1", "laptop")
	m.OnConnected(s.ID) //nolint:errcheck

	got, ok := m.ActiveSession()
	if !ok || got.ID != s.ID {
		t.Fatalf("active session: got %v/%v, want %s", got.ID, ok, s.ID)
	}

	m.OnDisconnected(s.ID, "dropped") //nolint:errcheck
	if _, ok := m.ActiveSession(); ok {
		t.Fatal("disconnected session reported active")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close() //nolint:errcheck

	clk := clock.NewFake(testEpoch)
	m := NewManager(WithClock(clk), WithStore(store))
	s := m.CreateSession("h-1", "desk", "c-1", "laptop")
	m.OnConnected(s.ID) //nolint:errcheck
	clk.Advance(90 * time.Second)
	m.OnDisconnected(s.ID, "peer closed") //nolint:errcheck
	m.EndSession(s.ID)                    //nolint:errcheck

	records, err := store.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
	r := records[0]
	if r.ID != s.ID {
		t.Errorf("id: got %q, want %q", r.ID, s.ID)
	}
	if r.Status != "ended" {
		t.Errorf("status: got %q, want %q", r.Status, "ended")
	}
	if r.DisconnectReason != "peer closed" {
		t.Errorf("reason: got %q, want %q", r.DisconnectReason, "peer closed")
	}
	if r.ConnectedFor != 90*time.Second {
		t.Errorf("connected for: got %v, want %v", r.ConnectedFor, 90*time.Second)
	}
	if !r.CreatedAt.Equal(testEpoch) {
		t.Errorf("created at: got %v, want %v", r.CreatedAt, testEpoch)
	}
}
