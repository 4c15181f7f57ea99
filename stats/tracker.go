// Package stats tracks ingestion counters by frame kind and artwork outcome
// for the dashboard status line and periodic console output.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Tracker tracks frame statistics.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-frame increments don't fight over a mutex
	kindCounts    sync.Map // string -> *atomic.Uint64
	artworkCounts sync.Map // string -> *atomic.Uint64
	start         atomic.Int64
	bytesRead     atomic.Uint64
	overflows     atomic.Uint64
	malformed     atomic.Uint64
	lastFrame     atomic.Int64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementKind increases the count for a frame kind (snapshot, artwork, ack, ignore).
func (t *Tracker) IncrementKind(kind string) {
	incrementCounter(&t.kindCounts, kind)
	t.lastFrame.Store(time.Now().UnixNano())
}

// IncrementArtwork increases the count for an artwork decode outcome.
func (t *Tracker) IncrementArtwork(outcome string) {
	incrementCounter(&t.artworkCounts, outcome)
}

func (t *Tracker) AddBytes(n int) {
	if n > 0 {
		t.bytesRead.Add(uint64(n))
	}
}

func (t *Tracker) IncrementOverflows() { t.overflows.Add(1) }
func (t *Tracker) IncrementMalformed() { t.malformed.Add(1) }

// GetKindCounts returns a copy of frame kind counts
func (t *Tracker) GetKindCounts() map[string]uint64 {
	return copyCounts(&t.kindCounts)
}

// GetArtworkCounts returns a copy of artwork outcome counts
func (t *Tracker) GetArtworkCounts() map[string]uint64 {
	return copyCounts(&t.artworkCounts)
}

// GetTotal returns the total frame count across all kinds
func (t *Tracker) GetTotal() uint64 {
	var total uint64
	t.kindCounts.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

func (t *Tracker) BytesRead() uint64 { return t.bytesRead.Load() }
func (t *Tracker) Overflows() uint64 { return t.overflows.Load() }
func (t *Tracker) Malformed() uint64 { return t.malformed.Load() }

// LastFrame reports when the last frame was classified; zero if never.
func (t *Tracker) LastFrame() time.Time {
	ns := t.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Reset resets all counters
func (t *Tracker) Reset() {
	for _, m := range []*sync.Map{&t.kindCounts, &t.artworkCounts} {
		m.Range(func(key, _ any) bool {
			m.Delete(key)
			return true
		})
	}
	t.bytesRead.Store(0)
	t.overflows.Store(0)
	t.malformed.Store(0)
	t.lastFrame.Store(0)
	t.start.Store(time.Now().UnixNano())
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	lines := make([]string, 0, 3)
	lines = append(lines, fmt.Sprintf("Ingest: %s read, %s frames, %d overflows, %d malformed, up %s",
		humanize.Bytes(t.bytesRead.Load()),
		humanize.Comma(int64(t.GetTotal())),
		t.overflows.Load(),
		t.malformed.Load(),
		t.GetUptime().Truncate(time.Second)))
	lines = append(lines, formatMapCounts("Frames by kind", &t.kindCounts))
	lines = append(lines, formatMapCounts("Artwork", &t.artworkCounts))
	return lines
}

func copyCounts(m *sync.Map) map[string]uint64 {
	counts := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

func formatMapCounts(label string, counts *sync.Map) string {
	snapshot := copyCounts(counts)
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	if len(keys) == 0 {
		builder.WriteString("(none)")
		return builder.String()
	}
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%s", k, humanize.Comma(int64(snapshot[k])))
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
