package ui

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// durationWindow keeps the most recent samples for percentile reads.
type durationWindow struct {
	mu   sync.Mutex
	ring []time.Duration
	next int
	full bool
}

func newDurationWindow(size int) *durationWindow {
	if size <= 0 {
		size = 256
	}
	return &durationWindow{ring: make([]time.Duration, size)}
}

func (w *durationWindow) add(d time.Duration) {
	w.mu.Lock()
	w.ring[w.next] = d
	w.next++
	if w.next == len(w.ring) {
		w.next = 0
		w.full = true
	}
	w.mu.Unlock()
}

// LatencySnapshot summarizes one window.
type LatencySnapshot struct {
	P50 time.Duration
	P99 time.Duration
	Max time.Duration
	N   int
}

func (w *durationWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.ring)
	}
	sorted := slices.Clone(w.ring[:n])
	w.mu.Unlock()
	if n == 0 {
		return LatencySnapshot{}
	}
	slices.Sort(sorted)
	return LatencySnapshot{
		P50: sorted[n/2],
		P99: sorted[(n-1)*99/100],
		Max: sorted[n-1],
		N:   n,
	}
}

// Metrics tracks how long queued frames wait to be drawn and how long the
// artwork conversion takes. A frame that waits longer than the frame budget
// counts as late.
type Metrics struct {
	budget  time.Duration
	frames  *durationWindow
	artwork *durationWindow

	frameCount   atomic.Uint64
	lateFrames   atomic.Uint64
	artworkDraws atomic.Uint64
}

// NewMetrics returns metrics for a dashboard drawing at targetFPS.
func NewMetrics(targetFPS int) *Metrics {
	if targetFPS <= 0 {
		targetFPS = 30
	}
	return &Metrics{
		budget:  time.Second / time.Duration(targetFPS),
		frames:  newDurationWindow(512),
		artwork: newDurationWindow(128),
	}
}

// ObserveRender records the delay between queuing a frame and drawing it.
func (m *Metrics) ObserveRender(d time.Duration) {
	if m == nil {
		return
	}
	m.frameCount.Add(1)
	if d > m.budget {
		m.lateFrames.Add(1)
	}
	m.frames.add(d)
}

// ObserveArtwork records how long converting pixels to cells took.
func (m *Metrics) ObserveArtwork(d time.Duration) {
	if m == nil {
		return
	}
	m.artworkDraws.Add(1)
	m.artwork.add(d)
}

func (m *Metrics) RenderSnapshot() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{}
	}
	return m.frames.snapshot()
}

func (m *Metrics) ArtworkSnapshot() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{}
	}
	return m.artwork.snapshot()
}

func (m *Metrics) Frames() uint64 {
	if m == nil {
		return 0
	}
	return m.frameCount.Load()
}

func (m *Metrics) LateFrames() uint64 {
	if m == nil {
		return 0
	}
	return m.lateFrames.Load()
}

func (m *Metrics) ArtworkDraws() uint64 {
	if m == nil {
		return 0
	}
	return m.artworkDraws.Load()
}

// Line is the stats pane summary.
func (m *Metrics) Line() string {
	r := m.RenderSnapshot()
	a := m.ArtworkSnapshot()
	return fmt.Sprintf("UI: %s frames (%s late) wait p50=%s p99=%s, artwork %s draws max=%s",
		humanize.Comma(int64(m.Frames())), humanize.Comma(int64(m.LateFrames())),
		r.P50, r.P99, humanize.Comma(int64(m.ArtworkDraws())), a.Max)
}
