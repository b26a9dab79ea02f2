// Package quality holds the closed-loop controller that tunes
// compression quality and capture frame rate from observed frame sizes
// and ack latencies. The controller is advisory: the capture/encode
// pipeline reads CurrentQuality and CurrentFrameRate and applies them;
// nothing here touches the codec or the channel directly.
package quality

import (
	"sync"
	"time"

	"github.com/lanmirror/lanmirror/internal/clock"
)

const (
	// DefaultQuality and DefaultFrameRate are the starting settings.
	DefaultQuality   = 75
	DefaultFrameRate = 30

	// Clamp bounds. The controller never drives settings outside these
	// regardless of how extreme the samples are.
	MinQuality   = 30
	MaxQuality   = 95
	MinFrameRate = 10
	MaxFrameRate = 60

	// minSamples and minUpdateInterval rate-limit the control loop:
	// UpdateSettings is a no-op until both are satisfied.
	minSamples        = 5
	minUpdateInterval = 2 * time.Second

	// windowSize caps each recent-history window.
	windowSize = 30

	// Latency bands (milliseconds).
	highLatencyMs     = 500
	moderateLatencyMs = 200

	// largeFrameBytes forces frame-rate reduction regardless of latency;
	// smallFrameBytes permits frame-rate recovery.
	largeFrameBytes = 500 * 1024
	smallFrameBytes = 100 * 1024

	qualityStep   = 5
	frameRateStep = 5
)

// Controller accumulates per-frame samples and periodically recomputes
// the target quality and frame rate. Record calls are safe from the
// send and receive paths concurrently.
type Controller struct {
	mu sync.Mutex

	quality   int
	frameRate int

	frameSizes []int
	latencies  []float64 // milliseconds

	samplesSinceUpdate int
	lastUpdate         time.Time

	clk clock.Clock
}

// NewController returns a Controller at the default settings.
func NewController(clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.Real()
	}
	return &Controller{
		quality:   DefaultQuality,
		frameRate: DefaultFrameRate,
		clk:       clk,
	}
}

// RecordFrameSent notes the encoded size of a transmitted frame.
func (c *Controller) RecordFrameSent(sizeBytes int) {
	c.mu.Lock()
	c.frameSizes = appendCapped(c.frameSizes, sizeBytes)
	c.samplesSinceUpdate++
	c.mu.Unlock()
}

// RecordFrameAck notes the round-trip latency of an acknowledged frame.
func (c *Controller) RecordFrameAck(latency time.Duration) {
	c.mu.Lock()
	c.latencies = appendCapped(c.latencies, float64(latency.Milliseconds()))
	c.samplesSinceUpdate++
	c.mu.Unlock()
}

// UpdateSettings recomputes quality and frame rate from the recent
// windows. It is a no-op until at least minSamples have arrived since
// the previous successful update and minUpdateInterval has elapsed.
// Returns true when an update ran.
func (c *Controller) UpdateSettings() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if c.samplesSinceUpdate < minSamples {
		return false
	}
	if !c.lastUpdate.IsZero() && now.Sub(c.lastUpdate) < minUpdateInterval {
		return false
	}

	avgLatency := mean(c.latencies)
	avgSize := mean(c.frameSizes)

	switch {
	case avgLatency > highLatencyMs:
		c.quality -= 2 * qualityStep
		c.frameRate -= frameRateStep
	case avgLatency > moderateLatencyMs:
		c.quality -= qualityStep
	default:
		c.quality += qualityStep
		if avgSize < smallFrameBytes {
			c.frameRate += frameRateStep
		}
	}

	if avgSize > largeFrameBytes {
		c.frameRate -= frameRateStep
	}

	c.quality = clamp(c.quality, MinQuality, MaxQuality)
	c.frameRate = clamp(c.frameRate, MinFrameRate, MaxFrameRate)

	c.samplesSinceUpdate = 0
	c.lastUpdate = now
	return true
}

// CurrentQuality returns the target compression quality (0-100 scale,
// clamped to [MinQuality, MaxQuality]).
func (c *Controller) CurrentQuality() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// CurrentFrameRate returns the target capture rate in frames/sec.
func (c *Controller) CurrentFrameRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameRate
}

// Reset restores the defaults and clears all sample history.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.quality = DefaultQuality
	c.frameRate = DefaultFrameRate
	c.frameSizes = nil
	c.latencies = nil
	c.samplesSinceUpdate = 0
	c.lastUpdate = time.Time{}
	c.mu.Unlock()
}

func appendCapped[T any](window []T, v T) []T {
	window = append(window, v)
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	return window
}

func mean[T int | float64](vs []T) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += float64(v)
	}
	return sum / float64(len(vs))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
