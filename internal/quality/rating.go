package quality

import (
	"time"

	"github.com/lanmirror/lanmirror/internal/protocol"
)

// Rating is a coarse classification of observed connection quality,
// used for display only, never for control decisions.
type Rating uint8

const (
	Poor Rating = iota
	Fair
	Good
	Excellent
)

func (r Rating) String() string {
	switch r {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Fair:
		return "fair"
	}
	return "poor"
}

// Rating thresholds. A sample must clear every bar of a tier to earn it.
const (
	excellentLatencyMs = 50.0
	excellentFPS       = 25.0
	goodLatencyMs      = 150.0
	goodFPS            = 15.0
	fairLatencyMs      = 300.0
	fairFPS            = 8.0
)

// Rate derives the rating for one connection-quality sample.
func Rate(fps, latencyMs float64) Rating {
	switch {
	case latencyMs < excellentLatencyMs && fps >= excellentFPS:
		return Excellent
	case latencyMs < goodLatencyMs && fps >= goodFPS:
		return Good
	case latencyMs < fairLatencyMs && fps >= fairFPS:
		return Fair
	}
	return Poor
}

// Sample is one observation of connection quality with its derived
// rating.
type Sample struct {
	FPS          float64
	BandwidthBps float64
	LatencyMs    float64
	Timestamp    time.Time
	Rating       Rating
}

// SampleFromReport converts a received wire report into a rated sample.
func SampleFromReport(report *protocol.QualityReport) Sample {
	return Sample{
		FPS:          report.FPS,
		BandwidthBps: report.BandwidthBps,
		LatencyMs:    report.LatencyMs,
		Timestamp:    report.Timestamp,
		Rating:       Rate(report.FPS, report.LatencyMs),
	}
}
