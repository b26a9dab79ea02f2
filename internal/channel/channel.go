// Package channel owns one encrypted bidirectional byte stream to
// exactly one peer. It frames and dispatches typed protocol messages
// and reports connection state transitions; it knows nothing about
// session semantics.
//
// Concurrency model: each live connection has exactly one read loop
// and one write loop. Send enqueues onto the write loop's inbox, so
// concurrent senders (screen, input, control) never interleave bytes
// mid-frame. Operational failures (dial refused, peer disconnect,
// malformed frames) surface as error returns and a single
// connection-state-changed(false) event, never as panics.
package channel

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/lanmirror/lanmirror/internal/logx"
	"github.com/lanmirror/lanmirror/internal/protocol"
)

var (
	// ErrNotStarted means Send was called before Start or Connect.
	// This is a caller bug, not an operational condition.
	ErrNotStarted = errors.New("channel not started")

	// ErrNotConnected means no peer is attached right now.
	ErrNotConnected = errors.New("channel not connected")

	// ErrWriteTimeout means the send queue stayed full past the write
	// timeout.
	ErrWriteTimeout = errors.New("channel write timed out")
)

// Config tunes a Channel. Zero values fall back to defaults.
type Config struct {
	// WriteTimeout bounds both Send enqueueing and socket writes.
	WriteTimeout time.Duration

	// DialTimeout bounds outbound connection attempts.
	DialTimeout time.Duration

	// SendQueueSize is the write loop's inbox capacity.
	SendQueueSize int

	// TLS enables transport encryption when non-nil. The listening
	// side needs Certificates; the dialing side controls verification
	// (see security.ClientTLSConfig).
	TLS *tls.Config
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	return c
}

// Channel multiplexes all protocol message kinds over one connection.
// Safe for concurrent use.
type Channel struct {
	cfg Config

	mu        sync.Mutex
	started   bool
	connected bool
	listener  net.Listener
	link      *link // current connection, nil when disconnected

	handlersMu    sync.RWMutex
	handlers      map[protocol.Type][]func(protocol.Message)
	stateHandlers []func(bool)
}

// link is the per-connection state: the socket, the write loop's
// inbox, and the signals used to join both loops.
type link struct {
	conn       net.Conn
	inbox      chan []byte
	done       chan struct{} // closed when the link starts tearing down
	writerDone chan struct{} // closed when the write loop has exited
	wg         sync.WaitGroup
	once       sync.Once
}

// New creates a Channel with the given configuration.
func New(cfg Config) *Channel {
	return &Channel{
		cfg:      cfg.withDefaults(),
		handlers: make(map[protocol.Type][]func(protocol.Message)),
	}
}

// OnConnectionStateChanged registers a callback fired exactly once per
// connection state transition.
func (c *Channel) OnConnectionStateChanged(fn func(connected bool)) {
	c.handlersMu.Lock()
	c.stateHandlers = append(c.stateHandlers, fn)
	c.handlersMu.Unlock()
}

// OnMessage registers a handler for one message kind. Handlers run on
// the read loop; long work should be handed off to another goroutine.
func (c *Channel) OnMessage(t protocol.Type, fn func(protocol.Message)) {
	c.handlersMu.Lock()
	c.handlers[t] = append(c.handlers[t], fn)
	c.handlersMu.Unlock()
}

// Connected reports whether a peer is currently attached.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Start binds the given port and begins accepting one inbound
// connection. While a peer is attached, further inbound connections
// are refused. Ordinary bind failures are returned, not thrown.
func (c *Channel) Start(port int) error {
	c.mu.Lock()
	if c.listener != nil {
		c.mu.Unlock()
		return fmt.Errorf("channel already listening on %s", c.listener.Addr())
	}

	addr := net.JoinHostPort("", strconv.Itoa(port))
	var (
		ln  net.Listener
		err error
	)
	if c.cfg.TLS != nil {
		ln, err = tls.Listen("tcp", addr, c.cfg.TLS)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	c.listener = ln
	c.started = true
	c.mu.Unlock()

	go c.acceptLoop(ln)
	return nil
}

// Port returns the bound listening port, or 0 when not listening.
// Useful when Start was called with port 0.
func (c *Channel) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return 0
	}
	if addr, ok := c.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (c *Channel) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed
		}
		if !c.attach(conn) {
			// One peer at a time.
			_ = conn.Close()
		}
	}
}

// Connect dials the peer at address:port. Timeouts, refusals, and
// unreachable hosts come back as ordinary errors for the caller's
// reconnect logic; nothing is retried here.
func (c *Channel) Connect(address string, port int) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("channel already connected")
	}
	c.started = true
	c.mu.Unlock()

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if c.cfg.TLS != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, c.cfg.TLS)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	if !c.attach(conn) {
		_ = conn.Close()
		return fmt.Errorf("connect %s: channel already connected", addr)
	}
	return nil
}

// attach installs conn as the channel's single peer and starts its
// read and write loops. Returns false if a peer is already attached.
func (c *Channel) attach(conn net.Conn) bool {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return false
	}
	l := &link{
		conn:       conn,
		inbox:      make(chan []byte, c.cfg.SendQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.link = l
	c.connected = true
	c.mu.Unlock()

	c.fireState(true)

	l.wg.Add(2)
	go c.readLoop(l)
	go c.writeLoop(l)
	return true
}

// Send frames and enqueues a message for the write loop. It never
// blocks past the configured write timeout and is safe to call from
// any number of goroutines. Calling Send before Start/Connect returns
// ErrNotStarted (a caller bug); a missing peer returns ErrNotConnected
// (an operational condition).
func (c *Channel) Send(msg protocol.Message) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}

	frame, err := protocol.EncodeFrame(msg)
	if err != nil {
		return err
	}

	timer := time.NewTimer(c.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case l.inbox <- frame:
		return nil
	case <-l.done:
		return ErrNotConnected
	case <-timer.C:
		return ErrWriteTimeout
	}
}

// writeLoop is the single writer: it drains the inbox and performs
// deadline-bounded socket writes. Any write failure tears the link
// down.
func (c *Channel) writeLoop(l *link) {
	defer l.wg.Done()
	defer close(l.writerDone)
	for {
		select {
		case frame := <-l.inbox:
			_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if _, err := l.conn.Write(frame); err != nil {
				go c.teardown(l, fmt.Sprintf("write failed: %v", err), false)
				return
			}
		case <-l.done:
			// On graceful disconnect the socket is still open here:
			// flush whatever is already queued, best-effort.
			for {
				select {
				case frame := <-l.inbox:
					_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
					if _, err := l.conn.Write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop reads frames and dispatches them to registered handlers.
// Malformed frames and read errors are treated as connection loss.
func (c *Channel) readLoop(l *link) {
	defer l.wg.Done()
	reader := bufio.NewReader(l.conn)
	for {
		tag, payload, err := protocol.ReadFrame(reader)
		if err != nil {
			c.teardown(l, fmt.Sprintf("read failed: %v", err), false)
			return
		}
		msg, err := protocol.Decode(tag, payload)
		if err != nil {
			c.teardown(l, fmt.Sprintf("protocol error: %v", err), false)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg protocol.Message) {
	c.handlersMu.RLock()
	handlers := c.handlers[msg.Kind()]
	c.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

// teardown detaches the link and fires the disconnect event exactly
// once no matter how many loops or callers race into it. When graceful,
// the write loop gets up to the write timeout to flush queued frames
// before the socket closes.
func (c *Channel) teardown(l *link, reason string, graceful bool) {
	l.once.Do(func() {
		logx.Debugf("channel disconnect: %s", reason)
		close(l.done)
		if graceful {
			select {
			case <-l.writerDone:
			case <-time.After(c.cfg.WriteTimeout):
			}
		}
		_ = l.conn.Close()

		c.mu.Lock()
		if c.link == l {
			c.link = nil
			c.connected = false
		}
		c.mu.Unlock()

		c.fireState(false)
	})
}

// Disconnect tears down the current connection gracefully, flushing
// in-flight writes best-effort within the write timeout, and stops
// listening. Idempotent when already disconnected. The read and write
// loops are joined before it returns.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	ln := c.listener
	c.listener = nil
	l := c.link
	c.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if l != nil {
		c.teardown(l, "local disconnect", true)
		l.wg.Wait()
	}
}

// fireState notifies state handlers. Transition deduplication happens
// in attach/teardown, so every call here is a real edge.
func (c *Channel) fireState(connected bool) {
	c.handlersMu.RLock()
	handlers := append([]func(bool){}, c.stateHandlers...)
	c.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(connected)
	}
}
