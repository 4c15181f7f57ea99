package main

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"mediadash/artcache"
	"mediadash/commands"
	"mediadash/mailbox"
	"mediadash/protocol"
	"mediadash/recorder"
	"mediadash/stats"
	"mediadash/transport"
	"mediadash/ui"
)

// statsSources gathers every counter the stats pane reports. Any field may
// be nil when the component is disabled.
type statsSources struct {
	tracker   *stats.Tracker
	mailbox   *mailbox.Mailbox[protocol.Snapshot]
	commands  *commands.Processor
	driver    *transport.Driver
	endpoint  string
	recorder  *recorder.Recorder
	artCache  *artcache.Store
	memWindow memWindow
	surface   ui.Surface
	fileOnly  func(line string, now time.Time)
	headless  bool
	lastLines atomic.Pointer[[]string]
}

// Purpose: Periodically emit stats to the UI stats pane or the log.
// Key aspects: Runs on ticker interval until stop closes; the dashboard also
// gets a file-only copy so the daily log carries the counters.
// Upstream: main startup.
// Downstream: statsSources.lines, Surface.SetStats.
func displayStats(interval time.Duration, src *statsSources, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			src.emit(time.Now().UTC())
		}
	}
}

func (s *statsSources) emit(now time.Time) {
	lines := s.lines()
	s.lastLines.Store(&lines)
	if s.surface != nil {
		s.surface.SetStats(lines)
	}
	if s.headless || s.fileOnly == nil {
		return
	}
	for _, line := range lines {
		s.fileOnly(line, now)
	}
}

// lines builds the stats block in display order: ingest, mailbox, commands,
// link, recorder and artwork cache, then memory.
func (s *statsSources) lines() []string {
	var out []string
	if s.tracker != nil {
		out = append(out, s.tracker.SnapshotLines()...)
	}
	if s.mailbox != nil {
		published, overwritten := s.mailbox.Stats()
		out = append(out, formatMailboxLine(published, overwritten))
	}
	if s.commands != nil {
		out = append(out, formatCommandsLine(s.commands.Stats(), s.commands.Pending()))
	}
	if s.driver != nil {
		out = append(out, formatLinkLine(s.endpoint, s.driver.Stats()))
	}
	if s.recorder != nil {
		written, dropped := s.recorder.Stats()
		out = append(out, fmt.Sprintf("Recorder: %s rows written, %s dropped",
			humanize.Comma(int64(written)), humanize.Comma(int64(dropped))))
	}
	if s.artCache != nil {
		hits, misses, writes, errored := s.artCache.Stats()
		out = append(out, formatArtCacheLine(hits, misses, writes, errored))
	}
	out = append(out, s.memoryLine())
	return out
}

func formatMailboxLine(published, overwritten uint64) string {
	ratio := 0.0
	if published > 0 {
		ratio = float64(overwritten) / float64(published) * 100
	}
	return fmt.Sprintf("Mailbox: %s published, %s superseded (%.1f%%)",
		humanize.Comma(int64(published)), humanize.Comma(int64(overwritten)), ratio)
}

func formatCommandsLine(st commands.Stats, pending int) string {
	return fmt.Sprintf("Commands: %s sent, %d pending, %s queued, %d debounced, %d dropped, %d rejected",
		humanize.Comma(int64(st.Sent)), pending, humanize.Comma(int64(st.Queued)),
		st.Debounced, st.Dropped, st.Rejected)
}

func formatLinkLine(endpoint string, st transport.Stats) string {
	state := "down"
	if st.Connected {
		state = "up"
	}
	return fmt.Sprintf("Link: %s %s, %d connects, %d dial failures, %d write errors, %s read",
		endpoint, state, st.Connects, st.DialFailures, st.WriteErrors, humanize.Bytes(st.BytesRead))
}

func formatArtCacheLine(hits, misses, writes, errored uint64) string {
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total) * 100
	}
	return fmt.Sprintf("Artwork cache: %d hits (%.1f%%), %d misses, %d writes, %d errors",
		hits, ratio, misses, writes, errored)
}

// memoryLine reports heap use and GC pauses since the previous stats tick.
func (s *statsSources) memoryLine() string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return formatMemoryLine(s.memWindow.observe(&mem), mem.Sys, runtime.NumGoroutine())
}

func formatMemoryLine(m memSample, sys uint64, goroutines int) string {
	growth := "+" + humanize.Bytes(uint64(m.HeapGrowth))
	if m.HeapGrowth < 0 {
		growth = "-" + humanize.Bytes(uint64(-m.HeapGrowth))
	}
	gc := "gc none"
	if m.GCs > 0 {
		gc = fmt.Sprintf("gc p99 %s over %d", m.PauseP99.Round(time.Microsecond), m.GCs)
		if m.Truncated {
			gc += "+"
		}
	}
	return fmt.Sprintf("Memory: heap %s (%s), sys %s, %d goroutines, %s",
		humanize.Bytes(m.Heap), growth, humanize.Bytes(sys), goroutines, gc)
}

// Purpose: Stamp a freshly rotated log file with the current counters.
// Key aspects: Uses the most recent stats block so rotation never blocks on
// runtime.ReadMemStats.
// Upstream: rollingFileSink rotation.
// Downstream: logFanout.WriteFileOnlyLine.
func statsRotateHook(src *statsSources, write func(line string, now time.Time)) logRotateHook {
	return func(rot logRotation) {
		if src == nil || write == nil {
			return
		}
		now := time.Now().UTC()
		write(fmt.Sprintf("Log rolled (%s) from %s", rot.Reason, rot.PrevPath), now)
		last := src.lastLines.Load()
		if last == nil {
			write("Stats: no counters collected yet for "+rot.NewPath, now)
			return
		}
		for _, line := range *last {
			write(line, now)
		}
	}
}
