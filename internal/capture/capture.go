// Package capture defines the boundary contract with the OS screen
// capture collaborator and ships a synthetic test-pattern source for
// hosts without a platform backend and for pipeline tests.
package capture

import (
	"time"

	"github.com/lanmirror/lanmirror/internal/protocol"
)

// Source produces screen frames on demand. Implementations must report
// the true pixel dimensions; the codec and channel trust them
// unmodified.
type Source interface {
	Capture() (*protocol.ScreenFrame, error)
}

// TestPattern renders a gradient background with grid lines and a
// moving dot, as Raw 32-bit RGBA frames. The dot advances one step per
// capture so consecutive frames differ in a small region, the kind of
// workload the delta codec handles.
type TestPattern struct {
	width  int
	height int
	tick   int
}

// NewTestPattern creates a test source at the given resolution.
func NewTestPattern(width, height int) *TestPattern {
	return &TestPattern{width: width, height: height}
}

// Capture renders the next frame of the pattern, writing pixels
// directly into the RGBA buffer.
func (p *TestPattern) Capture() (*protocol.ScreenFrame, error) {
	width, height := p.width, p.height
	stride := width * 4
	pix := make([]byte, stride*height)

	// Gradient background
	for y := 0; y < height; y++ {
		g := uint8(50 + (y * 100 / height))
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i+0] = uint8(50 + (x * 100 / width)) // R
			pix[i+1] = g                             // G
			pix[i+2] = 100                           // B
			pix[i+3] = 255                           // A
		}
	}

	// Grid lines
	for x := 0; x < width; x += 50 {
		for y := 0; y < height; y++ {
			i := y*stride + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 255, 255, 100
		}
	}
	for y := 0; y < height; y += 50 {
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 255, 255, 100
		}
	}

	// Moving dot (progress indicator)
	cx := (p.tick * 7) % width
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			if dx*dx+dy*dy <= 25 {
				px, py := cx+dx, height/2+dy
				if px >= 0 && px < width && py >= 0 && py < height {
					i := py*stride + px*4
					pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 100, 100, 255
				}
			}
		}
	}
	p.tick++

	return &protocol.ScreenFrame{
		Timestamp: time.Now(),
		Data:      pix,
		Width:     width,
		Height:    height,
		Format:    protocol.FormatRaw,
	}, nil
}
