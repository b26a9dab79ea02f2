// Package stream runs the host's capture → encode → send pipeline.
// Capture cadence follows the quality controller's current frame rate;
// encoding happens on the pipeline goroutine, never on the channel's
// read loop.
package stream

import (
	"sync"
	"time"

	"github.com/lanmirror/lanmirror/internal/capture"
	"github.com/lanmirror/lanmirror/internal/deltacodec"
	"github.com/lanmirror/lanmirror/internal/logx"
	"github.com/lanmirror/lanmirror/internal/protocol"
	"github.com/lanmirror/lanmirror/internal/quality"
)

// Sender is the outbound half of the transport channel.
type Sender interface {
	Send(protocol.Message) error
}

// maxInflight caps the send-time table used for ack latency; frames
// whose acks never arrive age out by eviction.
const maxInflight = 256

// Pipeline drives one screen stream. Create one per connected session;
// Stop it on disconnect.
type Pipeline struct {
	source     capture.Source
	encoder    *deltacodec.Encoder
	controller *quality.Controller
	sender     Sender

	mu       sync.Mutex
	sentAt   map[uint64]time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  bool
}

// New assembles a Pipeline. The controller is shared with whoever
// feeds it receive-path samples.
func New(source capture.Source, encoder *deltacodec.Encoder, controller *quality.Controller, sender Sender) *Pipeline {
	return &Pipeline{
		source:     source,
		encoder:    encoder,
		controller: controller,
		sender:     sender,
		sentAt:     make(map[uint64]time.Time),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the capture loop. Calling Start twice is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop()
}

// Stop signals the capture loop to exit and joins it. Idempotent.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pipeline) loop() {
	defer p.wg.Done()

	timer := time.NewTimer(p.interval())
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
		}

		p.captureOne()
		p.controller.UpdateSettings()
		timer.Reset(p.interval())
	}
}

func (p *Pipeline) interval() time.Duration {
	fps := p.controller.CurrentFrameRate()
	if fps <= 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

func (p *Pipeline) captureOne() {
	frame, err := p.source.Capture()
	if err != nil {
		logx.Warnf("capture failed: %v", err)
		return
	}
	frame.Quality = p.controller.CurrentQuality()

	out, _ := p.encoder.Encode(frame)
	if err := p.sender.Send(out); err != nil {
		logx.Debugf("frame %d not sent: %v", out.ID, err)
		return
	}

	p.controller.RecordFrameSent(len(out.Data))
	p.recordSent(out.ID)
}

func (p *Pipeline) recordSent(frameID uint64) {
	p.mu.Lock()
	if len(p.sentAt) >= maxInflight {
		// Evict the oldest entry; unacked frames should not pin memory.
		var oldestID uint64
		var oldest time.Time
		for id, t := range p.sentAt {
			if oldest.IsZero() || t.Before(oldest) {
				oldestID, oldest = id, t
			}
		}
		delete(p.sentAt, oldestID)
	}
	p.sentAt[frameID] = time.Now()
	p.mu.Unlock()
}

// HandleAck feeds an acknowledged frame's round-trip latency into the
// controller. Safe to call from the channel's read loop.
func (p *Pipeline) HandleAck(ack *protocol.FrameAck) {
	p.mu.Lock()
	sent, ok := p.sentAt[ack.FrameID]
	if ok {
		delete(p.sentAt, ack.FrameID)
	}
	p.mu.Unlock()
	if ok {
		p.controller.RecordFrameAck(time.Since(sent))
	}
}

// Stats exposes the encoder's diagnostic counters.
func (p *Pipeline) Stats() deltacodec.Stats {
	return p.encoder.Stats()
}
