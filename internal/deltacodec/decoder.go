package deltacodec

import (
	"fmt"
	"sync"

	"github.com/lanmirror/lanmirror/internal/protocol"
)

// Decoder reconstructs full Raw frames on the receiving side. It holds
// its own reference so deltas chain: each reconstructed frame becomes
// the reference for the next.
type Decoder struct {
	mu    sync.Mutex
	ref   []byte
	refW  int
	refH  int
	refID uint64
}

// NewDecoder returns a Decoder with no reference yet.
func NewDecoder() *Decoder { return &Decoder{} }

// Reset discards the reference; the next frame accepted must be full.
func (d *Decoder) Reset() {
	d.mu.Lock()
	d.ref = nil
	d.refW, d.refH, d.refID = 0, 0, 0
	d.mu.Unlock()
}

// Apply consumes one received frame and returns the full pixel data it
// represents. Full Raw frames replace the reference; delta frames must
// match the retained reference's identity and dimensions. Non-Raw
// frames pass through untouched (and invalidate the reference, since
// the stream left Raw mode).
func (d *Decoder) Apply(frame *protocol.ScreenFrame) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Format != protocol.FormatRaw {
		d.ref = nil
		d.refW, d.refH, d.refID = 0, 0, 0
		return frame.Data, nil
	}

	if !frame.IsDelta {
		d.adoptLocked(frame.Data, frame.Width, frame.Height, frame.ID)
		return frame.Data, nil
	}

	if d.ref == nil {
		return nil, fmt.Errorf("delta frame %d arrived before any reference", frame.ID)
	}
	if frame.ReferenceID != d.refID {
		return nil, fmt.Errorf("delta frame %d references frame %d, have %d", frame.ID, frame.ReferenceID, d.refID)
	}
	if d.refW != frame.Width || d.refH != frame.Height {
		return nil, fmt.Errorf("delta frame %d is %dx%d, reference is %dx%d", frame.ID, frame.Width, frame.Height, d.refW, d.refH)
	}

	full, err := ApplyDelta(d.ref, frame)
	if err != nil {
		return nil, err
	}
	d.adoptLocked(full, frame.Width, frame.Height, frame.ID)
	return full, nil
}

func (d *Decoder) adoptLocked(data []byte, w, h int, id uint64) {
	ref := make([]byte, len(data))
	copy(ref, data)
	d.ref = ref
	d.refW, d.refH, d.refID = w, h, id
}
