package capture

import (
	"bytes"
	"testing"

	"github.com/lanmirror/lanmirror/internal/protocol"
)

func TestTestPatternDimensions(t *testing.T) {
	src := NewTestPattern(320, 240)
	frame, err := src.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if frame.Width != 320 || frame.Height != 240 {
		t.Errorf("dimensions: got %dx%d, want 320x240", frame.Width, frame.Height)
	}
	if frame.Format != protocol.FormatRaw {
		t.Errorf("format: got %v, want raw", frame.Format)
	}
	if len(frame.Data) != 320*240*4 {
		t.Errorf("data: got %d bytes, want %d", len(frame.Data), 320*240*4)
	}
}

func TestTestPatternAdvances(t *testing.T) {
	src := NewTestPattern(320, 240)
	first, _ := src.Capture()
	second, _ := src.Capture()

	if bytes.Equal(first.Data, second.Data) {
		t.Fatal("consecutive frames identical; the pattern should animate")
	}

	// Only the moving dot changes, so most of the frame is stable.
	same := 0
	for i := range first.Data {
		if first.Data[i] == second.Data[i] {
			same++
		}
	}
	if ratio := float64(same) / float64(len(first.Data)); ratio < 0.99 {
		t.Errorf("stable fraction: got %.4f, want >= 0.99", ratio)
	}
}
