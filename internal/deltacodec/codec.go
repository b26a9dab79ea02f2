// Package deltacodec turns captured screen frames into full or delta
// frames by block-wise comparison against the previously encoded
// reference. Only Raw-format frames can be diffed; pre-compressed
// JPEG/PNG input always passes through as full frames.
package deltacodec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/lanmirror/lanmirror/internal/protocol"
)

const (
	// DefaultBlockSize is the side of the square comparison blocks.
	DefaultBlockSize = 64

	// DefaultDeltaThreshold is the changed-pixel percentage above which
	// a full frame is cheaper than a delta.
	DefaultDeltaThreshold = 30.0

	// bytesPerPixel is fixed by the Raw format (32-bit RGBA).
	bytesPerPixel = 4
)

// Stats are diagnostic counters. They never feed control decisions.
type Stats struct {
	TotalFrames    uint64
	DeltaFrames    uint64
	FullFrames     uint64
	BytesSaved     uint64  // payload bytes avoided vs. naive full frames
	AvgCompression float64 // running mean of payload/full-size per frame
}

// Encoder is stateful across calls: it retains the most recent
// Raw-format frame as the diff reference. Safe for concurrent use,
// though the capture pipeline normally drives it from one goroutine.
type Encoder struct {
	mu        sync.Mutex
	blockSize int
	threshold float64 // percent of changed pixels forcing a full frame

	ref    []byte
	refW   int
	refH   int
	refID  uint64
	nextID uint64

	totalFrames uint64
	deltaFrames uint64
	fullFrames  uint64
	bytesSaved  uint64
	ratioSum    float64
}

// NewEncoder creates an Encoder with the default block size and
// full-frame threshold.
func NewEncoder() *Encoder {
	return &Encoder{
		blockSize: DefaultBlockSize,
		threshold: DefaultDeltaThreshold,
	}
}

// SetDeltaThreshold adjusts the changed-pixel percentage that forces a
// full frame, clamped to [0, 100].
func (e *Encoder) SetDeltaThreshold(percent float64) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	e.mu.Lock()
	e.threshold = percent
	e.mu.Unlock()
}

// Reset discards the reference frame; the next Encode emits a full
// frame.
func (e *Encoder) Reset() {
	e.mu.Lock()
	e.ref = nil
	e.refW, e.refH, e.refID = 0, 0, 0
	e.mu.Unlock()
}

// Stats returns a snapshot of the diagnostic counters.
func (e *Encoder) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		TotalFrames: e.totalFrames,
		DeltaFrames: e.deltaFrames,
		FullFrames:  e.fullFrames,
		BytesSaved:  e.bytesSaved,
	}
	if e.totalFrames > 0 {
		s.AvgCompression = e.ratioSum / float64(e.totalFrames)
	}
	return s
}

// Encode produces the frame to transmit for the given capture. The
// returned frame carries a fresh ID; the boolean mirrors its IsDelta
// flag. A delta is emitted only when a Raw reference with matching
// dimensions exists and the changed fraction stays at or below the
// threshold; otherwise the capture goes out as a full frame. Identical
// frames still produce a (zero-region) delta. Raw captures always
// become the new reference.
func (e *Encoder) Encode(capture *protocol.ScreenFrame) (*protocol.ScreenFrame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	out := &protocol.ScreenFrame{
		ID:        e.nextID,
		Timestamp: capture.Timestamp,
		Width:     capture.Width,
		Height:    capture.Height,
		Format:    capture.Format,
		Quality:   capture.Quality,
	}

	if capture.Format != protocol.FormatRaw {
		// Pre-compressed input cannot be diffed byte-wise; the stale Raw
		// reference is also dropped since the format changed.
		out.Data = capture.Data
		e.ref = nil
		e.refW, e.refH, e.refID = 0, 0, 0
		e.recordFullLocked(len(capture.Data), len(capture.Data))
		return out, false
	}

	fullSize := capture.Width * capture.Height * bytesPerPixel
	intact := len(capture.Data) == fullSize
	canDiff := intact && e.ref != nil && e.refW == capture.Width && e.refH == capture.Height

	if canDiff {
		regions, changedPixels := e.diffLocked(capture.Data, capture.Width, capture.Height)
		changedPct := 100 * float64(changedPixels) / float64(capture.Width*capture.Height)
		if changedPct <= e.threshold {
			out.IsDelta = true
			out.ReferenceID = e.refID
			out.Data, out.Regions = packRegions(capture.Data, capture.Width, regions)
			e.adoptReferenceLocked(capture, out.ID)
			e.recordDeltaLocked(len(out.Data), fullSize)
			return out, true
		}
	}

	out.Data = capture.Data
	if intact {
		e.adoptReferenceLocked(capture, out.ID)
	} else {
		// Data shorter or longer than the declared dimensions cannot
		// serve as a diff reference.
		e.ref = nil
		e.refW, e.refH, e.refID = 0, 0, 0
	}
	e.recordFullLocked(len(out.Data), fullSize)
	return out, false
}

// adoptReferenceLocked stores the capture as the new diff reference.
func (e *Encoder) adoptReferenceLocked(capture *protocol.ScreenFrame, id uint64) {
	ref := make([]byte, len(capture.Data))
	copy(ref, capture.Data)
	e.ref = ref
	e.refW = capture.Width
	e.refH = capture.Height
	e.refID = id
}

func (e *Encoder) recordDeltaLocked(payloadSize, fullSize int) {
	e.totalFrames++
	e.deltaFrames++
	if fullSize > payloadSize {
		e.bytesSaved += uint64(fullSize - payloadSize)
	}
	if fullSize > 0 {
		e.ratioSum += float64(payloadSize) / float64(fullSize)
	}
}

func (e *Encoder) recordFullLocked(payloadSize, fullSize int) {
	e.totalFrames++
	e.fullFrames++
	if fullSize > 0 {
		e.ratioSum += float64(payloadSize) / float64(fullSize)
	} else {
		e.ratioSum += 1
	}
}

// blockRun is a horizontal run of changed blocks within one block row.
type blockRun struct {
	x, y, w, h int // pixel rectangle
}

// diffLocked compares the capture against the reference block by block
// and returns merged changed rectangles plus the changed pixel count.
//
// Merge strategy: consecutive changed blocks in a block row coalesce
// into a run; runs with an identical horizontal span in adjacent rows
// then stack vertically. Diagonal-only adjacency never merges, which
// keeps every region an exact union of changed blocks.
func (e *Encoder) diffLocked(data []byte, width, height int) ([]blockRun, int) {
	bs := e.blockSize
	blocksX := (width + bs - 1) / bs
	blocksY := (height + bs - 1) / bs

	changedPixels := 0
	var open []blockRun // runs still extendable downward
	var done []blockRun

	for by := 0; by < blocksY; by++ {
		y := by * bs
		bh := min(bs, height-y)

		// Find changed runs in this block row.
		var runs []blockRun
		for bx := 0; bx < blocksX; bx++ {
			x := bx * bs
			bw := min(bs, width-x)
			if !e.blockChangedLocked(data, width, x, y, bw, bh) {
				continue
			}
			changedPixels += bw * bh
			if n := len(runs); n > 0 && runs[n-1].x+runs[n-1].w == x {
				runs[n-1].w += bw
			} else {
				runs = append(runs, blockRun{x: x, y: y, w: bw, h: bh})
			}
		}

		// Stack runs onto open regions with the same horizontal span.
		var next []blockRun
		for _, run := range runs {
			merged := false
			for i, o := range open {
				if o.x == run.x && o.w == run.w && o.y+o.h == run.y {
					open[i].h += run.h
					next = append(next, open[i])
					open[i].h = 0 // consumed
					merged = true
					break
				}
			}
			if !merged {
				next = append(next, run)
			}
		}
		for _, o := range open {
			if o.h > 0 {
				done = append(done, o)
			}
		}
		open = next
	}
	done = append(done, open...)

	// Restore top-to-bottom, left-to-right order after vertical merging.
	sortRuns(done)
	return done, changedPixels
}

// blockChangedLocked reports whether any byte of the block differs from
// the reference.
func (e *Encoder) blockChangedLocked(data []byte, width, x, y, bw, bh int) bool {
	rowLen := bw * bytesPerPixel
	for row := 0; row < bh; row++ {
		off := ((y+row)*width + x) * bytesPerPixel
		if !bytes.Equal(data[off:off+rowLen], e.ref[off:off+rowLen]) {
			return true
		}
	}
	return false
}

// packRegions copies each region's pixel rows contiguously into one
// payload and records per-region byte offsets into it.
func packRegions(data []byte, width int, runs []blockRun) ([]byte, []protocol.DeltaRegion) {
	total := 0
	for _, r := range runs {
		total += r.w * r.h * bytesPerPixel
	}

	payload := make([]byte, 0, total)
	regions := make([]protocol.DeltaRegion, 0, len(runs))
	for _, r := range runs {
		offset := len(payload)
		rowLen := r.w * bytesPerPixel
		for row := 0; row < r.h; row++ {
			src := ((r.y+row)*width + r.x) * bytesPerPixel
			payload = append(payload, data[src:src+rowLen]...)
		}
		regions = append(regions, protocol.DeltaRegion{
			X:      r.x,
			Y:      r.y,
			Width:  r.w,
			Height: r.h,
			Offset: offset,
			Length: r.w * r.h * bytesPerPixel,
		})
	}
	return payload, regions
}

// sortRuns orders regions by (y, x). Insertion sort: region counts are
// small after merging.
func sortRuns(runs []blockRun) {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0; j-- {
			a, b := runs[j-1], runs[j]
			if b.y < a.y || (b.y == a.y && b.x < a.x) {
				runs[j-1], runs[j] = b, a
			} else {
				break
			}
		}
	}
}

// ApplyDelta patches a delta frame's regions onto reference pixels and
// returns the reconstructed full frame. The reference must have the
// delta's dimensions.
func ApplyDelta(reference []byte, frame *protocol.ScreenFrame) ([]byte, error) {
	if !frame.IsDelta {
		return nil, fmt.Errorf("frame %d is not a delta", frame.ID)
	}
	want := frame.Width * frame.Height * bytesPerPixel
	if len(reference) != want {
		return nil, fmt.Errorf("reference is %d bytes, frame %dx%d needs %d", len(reference), frame.Width, frame.Height, want)
	}

	out := make([]byte, len(reference))
	copy(out, reference)
	for _, r := range frame.Regions {
		if r.Offset < 0 || r.Offset+r.Length > len(frame.Data) || r.Length != r.Width*r.Height*bytesPerPixel {
			return nil, fmt.Errorf("region (%d,%d %dx%d) byte range out of payload bounds", r.X, r.Y, r.Width, r.Height)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.Width > frame.Width || r.Y+r.Height > frame.Height {
			return nil, fmt.Errorf("region (%d,%d %dx%d) outside %dx%d frame", r.X, r.Y, r.Width, r.Height, frame.Width, frame.Height)
		}
		rowLen := r.Width * bytesPerPixel
		for row := 0; row < r.Height; row++ {
			dst := ((r.Y+row)*frame.Width + r.X) * bytesPerPixel
			src := r.Offset + row*rowLen
			copy(out[dst:dst+rowLen], frame.Data[src:src+rowLen])
		}
	}
	return out, nil
}
