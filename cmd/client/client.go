package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lanmirror/lanmirror/internal/channel"
	"github.com/lanmirror/lanmirror/internal/deltacodec"
	"github.com/lanmirror/lanmirror/internal/logx"
	"github.com/lanmirror/lanmirror/internal/protocol"
	"github.com/lanmirror/lanmirror/internal/quality"
	"github.com/lanmirror/lanmirror/internal/session"
)

const (
	pairingTimeout = 15 * time.Second
	reportInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// client is the receiving peer: it pairs, decodes the stream, acks
// frames, and reports quality back to the host.
type client struct {
	id     string
	name   string
	target protocol.DeviceInfo // host picked from discovery or flags
	pin    string

	ch       *channel.Channel
	decoder  *deltacodec.Decoder
	sessions *session.Manager

	mu sync.Mutex
	// hostSessionID is the ID the host assigned; localID keys the
	// client-side Manager mirror tracking the reconnect budget.
	hostSessionID string
	localID       string
	pairResp      chan *protocol.PairingResponse
	dropCh        chan struct{} // signaled on connection loss
	closing       bool

	// receive-side counters for the periodic quality report
	frames    int
	bytes     int64
	latencyMs float64
	statsFrom time.Time
}

// run connects and streams until the session ends or reconnection is
// exhausted.
func (c *client) run() error {
	c.ch.OnMessage(protocol.TypePairingResponse, c.onPairingResponse)
	c.ch.OnMessage(protocol.TypeScreenFrame, c.onScreenFrame)
	c.ch.OnMessage(protocol.TypeChatMessage, c.onChat)
	c.ch.OnMessage(protocol.TypeClipboardData, c.onClipboard)
	c.ch.OnMessage(protocol.TypeAudioChunk, c.onAudioChunk)
	c.ch.OnConnectionStateChanged(c.onConnectionState)

	if err := c.connectAndPair(); err != nil {
		return err
	}

	stopReports := make(chan struct{})
	defer close(stopReports)
	go c.reportLoop(stopReports)

	for {
		<-c.dropSignal()

		c.mu.Lock()
		closing := c.closing
		id := c.localID
		c.mu.Unlock()
		if closing || id == "" {
			return nil
		}

		s, err := c.sessions.GetSession(id)
		if err != nil || s.Status.Terminal() {
			return nil
		}

		ok, err := c.sessions.TryReconnect(id)
		if err != nil || !ok {
			return errors.New("reconnect attempts exhausted")
		}
		logx.Warnf("Connection lost; reconnecting (attempt %d of %d)",
			s.ReconnectAttempts+1, s.MaxReconnectAttempts)
		time.Sleep(reconnectDelay)

		if err := c.connectAndPair(); err != nil {
			logx.Errorf("reconnect: %v", err)
			if err := c.sessions.OnDisconnected(id, "reconnect failed"); err != nil {
				logx.Debugf("disconnect bookkeeping: %v", err)
			}
			c.signalDrop()
		}
	}
}

// connectAndPair dials the host and completes the PIN handshake.
func (c *client) connectAndPair() error {
	c.mu.Lock()
	c.pairResp = make(chan *protocol.PairingResponse, 1)
	c.dropCh = make(chan struct{})
	c.mu.Unlock()

	if err := c.ch.Connect(c.target.Address, c.target.Port); err != nil {
		return fmt.Errorf("connect to %s:%d: %w", c.target.Address, c.target.Port, err)
	}
	logx.Infof("Connected to %s (%s:%d), pairing", c.target.Name, c.target.Address, c.target.Port)

	if err := c.ch.Send(&protocol.PairingRequest{
		ClientID:   c.id,
		ClientName: c.name,
		Pin:        c.pin,
	}); err != nil {
		c.ch.Disconnect()
		return fmt.Errorf("send pairing request: %w", err)
	}

	var resp *protocol.PairingResponse
	select {
	case resp = <-c.pairResp:
	case <-time.After(pairingTimeout):
		c.ch.Disconnect()
		return errors.New("pairing timed out")
	}

	if !resp.Accepted {
		c.ch.Disconnect()
		return fmt.Errorf("pairing rejected: %s", resp.Reason)
	}

	c.adoptSession(resp)
	c.decoder.Reset()
	c.resetStats()
	logx.Infof("Paired with %s (session %s)", resp.HostName, resp.SessionID)
	return nil
}

// adoptSession mirrors the host-assigned session locally so the
// reconnect budget is tracked on this side too.
func (c *client) adoptSession(resp *protocol.PairingResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hostSessionID != resp.SessionID || c.localID == "" {
		s := c.sessions.CreateSession(resp.HostID, resp.HostName, c.id, c.name)
		c.hostSessionID = resp.SessionID
		c.localID = s.ID
	}
	if err := c.sessions.OnConnected(c.localID); err != nil {
		logx.Debugf("session bookkeeping: %v", err)
	}
}

func (c *client) onPairingResponse(msg protocol.Message) {
	c.mu.Lock()
	ch := c.pairResp
	c.mu.Unlock()
	if ch != nil {
		select {
		case ch <- msg.(*protocol.PairingResponse):
		default:
		}
	}
}

func (c *client) onScreenFrame(msg protocol.Message) {
	frame := msg.(*protocol.ScreenFrame)

	pixels, err := c.decoder.Apply(frame)
	if err != nil {
		logx.Warnf("frame %d: %v", frame.ID, err)
		return
	}
	c.present(frame, pixels)

	if err := c.ch.Send(&protocol.FrameAck{
		FrameID:    frame.ID,
		ReceivedAt: time.Now(),
	}); err != nil {
		logx.Debugf("ack frame %d: %v", frame.ID, err)
	}

	c.mu.Lock()
	c.frames++
	c.bytes += int64(len(frame.Data))
	c.latencyMs = float64(time.Since(frame.Timestamp).Milliseconds())
	c.mu.Unlock()
}

// present hands the reconstructed frame to the display layer. The
// headless build logs it; a UI frontend replaces this hook.
func (c *client) present(frame *protocol.ScreenFrame, pixels []byte) {
	kind := "full"
	if frame.IsDelta {
		kind = fmt.Sprintf("delta (%d regions)", len(frame.Regions))
	}
	logx.Debugf("Frame %d: %dx%d %s, %d bytes decoded", frame.ID, frame.Width, frame.Height, kind, len(pixels))
}

func (c *client) onChat(msg protocol.Message) {
	m := msg.(*protocol.ChatMessage)
	logx.Infof("[%s] %s", m.From, m.Text)
}

// Clipboard and audio go to collaborator backends once one exists;
// headless builds surface them at debug level.
func (c *client) onClipboard(msg protocol.Message) {
	cb := msg.(*protocol.ClipboardData)
	logx.Debugf("Clipboard received: %s, %d bytes", cb.Format, len(cb.Data))
}

func (c *client) onAudioChunk(msg protocol.Message) {
	a := msg.(*protocol.AudioChunk)
	logx.Debugf("Audio chunk %d: %d bytes at %d Hz", a.Sequence, len(a.Data), a.SampleRate)
}

// reportLoop sends a quality report every reportInterval while the
// channel is up.
func (c *client) reportLoop(stop chan struct{}) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !c.ch.Connected() {
				continue
			}
			report := c.takeReport()
			if report == nil {
				continue
			}
			logx.Debugf("Quality: %.1f fps, %.0f ms (%s)",
				report.FPS, report.LatencyMs, quality.Rate(report.FPS, report.LatencyMs))
			if err := c.ch.Send(report); err != nil {
				logx.Debugf("send quality report: %v", err)
			}
		case <-stop:
			return
		}
	}
}

// takeReport snapshots and resets the receive counters. Returns nil
// when no frames arrived in the window.
func (c *client) takeReport() *protocol.QualityReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.statsFrom).Seconds()
	if c.frames == 0 || elapsed <= 0 {
		return nil
	}
	report := &protocol.QualityReport{
		FPS:          float64(c.frames) / elapsed,
		BandwidthBps: float64(c.bytes) / elapsed,
		LatencyMs:    c.latencyMs,
		Timestamp:    time.Now(),
	}
	c.frames = 0
	c.bytes = 0
	c.statsFrom = time.Now()
	return report
}

func (c *client) resetStats() {
	c.mu.Lock()
	c.frames = 0
	c.bytes = 0
	c.latencyMs = 0
	c.statsFrom = time.Now()
	c.mu.Unlock()
}

func (c *client) onConnectionState(connected bool) {
	if connected {
		return
	}
	c.mu.Lock()
	id := c.localID
	c.mu.Unlock()
	if id != "" {
		if err := c.sessions.OnDisconnected(id, "connection lost"); err != nil {
			logx.Debugf("disconnect bookkeeping: %v", err)
		}
	}
	c.signalDrop()
}

func (c *client) dropSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropCh
}

func (c *client) signalDrop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.dropCh:
	default:
		close(c.dropCh)
	}
}

func (c *client) shutdown() {
	c.mu.Lock()
	c.closing = true
	id := c.localID
	c.mu.Unlock()
	if id != "" {
		if err := c.sessions.EndSession(id); err != nil {
			logx.Debugf("end session: %v", err)
		}
	}
	c.ch.Disconnect()
}
