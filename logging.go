package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediadash/config"
	"mediadash/internal/ratelimit"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "2006-01-02"
	logFilePrefix      = "mediadash-"
	logFileExt         = ".log"
	maxLogBufferBytes  = 16 * 1024
)

// logSink receives complete lines without their trailing newline.
type logSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

// writerSink writes to a console or a UI pane.
type writerSink struct {
	w         io.Writer
	timestamp bool
}

func (s *writerSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.timestamp {
		line = formatLogTimestamp(now) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *writerSink) Close() error { return nil }

// logRotation describes one file switch. Reason is "day" or "size".
type logRotation struct {
	Reason   string
	PrevDate time.Time
	PrevPath string
	NewPath  string
}

type logRotateHook func(logRotation)

// rollingFileSink writes one file per UTC day and rolls to a numbered
// sibling (mediadash-2026-03-01.1.log, .2, ...) when the file reaches
// maxBytes. The hook runs after the sink lock is released, so it may log.
type rollingFileSink struct {
	mu        sync.Mutex
	dir       string
	retention int
	maxBytes  int64

	file    *os.File
	date    string
	seq     int
	path    string
	written int64

	hook   logRotateHook
	errLog ratelimit.Counter
}

// Purpose: Open the log directory and prune files past retention.
// Key aspects: The first file is opened lazily on the first line.
// Upstream: setupLogging.
// Downstream: os.MkdirAll and pruneLogs.
func newRollingFileSink(dir string, retentionDays int, maxBytes int64) (*rollingFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	if err := pruneLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", dir, err)
	}
	return &rollingFileSink{
		dir:       dir,
		retention: retentionDays,
		maxBytes:  maxBytes,
		errLog:    ratelimit.NewCounter(time.Minute),
	}, nil
}

func (s *rollingFileSink) SetRotateHook(hook logRotateHook) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// Purpose: Append a timestamped line, switching files on day change or size.
// Key aspects: The line that crosses maxBytes lands in the new file; write
// errors go to stderr at most once a minute.
// Upstream: logFanout.Write and WriteFileOnlyLine.
// Downstream: os.File.WriteString and the rotate hook.
func (s *rollingFileSink) WriteLine(line string, now time.Time) {
	if s == nil {
		return
	}
	now = now.UTC()
	entry := formatLogTimestamp(now) + " " + line + "\n"

	s.mu.Lock()
	var rot *logRotation
	date := now.Format(logFileDateLayout)
	switch {
	case s.file == nil || s.date != date:
		rot = s.openLocked(date, 0, "day", now)
	case s.maxBytes > 0 && s.written+int64(len(entry)) > s.maxBytes && s.written > 0:
		rot = s.openLocked(date, s.seq+1, "size", now)
	}
	if s.file == nil {
		s.mu.Unlock()
		return
	}
	n, err := s.file.WriteString(entry)
	s.written += int64(n)
	if err != nil {
		s.reportLocked(fmt.Errorf("write failed: %w", err))
	}
	hook := s.hook
	s.mu.Unlock()

	if rot != nil && hook != nil && rot.PrevPath != "" {
		hook(*rot)
	}
}

// openLocked closes the current file and opens the one for date/seq. On a
// fresh day it continues after any numbered files left by a previous run.
func (s *rollingFileSink) openLocked(date string, seq int, reason string, now time.Time) *logRotation {
	rot := &logRotation{Reason: reason, PrevPath: s.path}
	if s.date != "" {
		rot.PrevDate, _ = time.ParseInLocation(logFileDateLayout, s.date, time.UTC)
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.reportLocked(fmt.Errorf("failed to create log directory %q: %w", s.dir, err))
		return nil
	}
	if reason == "day" {
		seq = s.lastSeqLocked(date)
	}
	path := filepath.Join(s.dir, logFileName(now, seq))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.reportLocked(fmt.Errorf("open failed for %s: %w", path, err))
		return nil
	}
	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	s.file, s.date, s.seq, s.path, s.written = file, date, seq, path, size
	rot.NewPath = path
	if reason == "day" {
		if err := pruneLogs(s.dir, now, s.retention); err != nil {
			s.reportLocked(fmt.Errorf("cleanup failed: %w", err))
		}
	}
	return rot
}

func (s *rollingFileSink) lastSeqLocked(date string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	last := 0
	for _, e := range entries {
		d, seq, ok := parseLogFileName(e.Name())
		if ok && d.Format(logFileDateLayout) == date && seq > last {
			last = seq
		}
	}
	return last
}

func (s *rollingFileSink) reportLocked(err error) {
	if total, ok := s.errLog.Inc(); ok {
		fmt.Fprintf(os.Stderr, "Logging: %v (errors=%d)\n", err, total)
	}
}

func (s *rollingFileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.date, s.path, s.written = nil, "", "", 0
	return err
}

// logFanout is the log.Logger output: it splits writes into lines, drops
// repeats through the deduper, and hands each line to the console (or
// dashboard pane) and the file.
type logFanout struct {
	mu      sync.Mutex
	pending []byte
	console logSink
	file    logSink
	dedupe  *logDeduper
}

func newLogFanout(console, file logSink) *logFanout {
	return &logFanout{console: console, file: file}
}

// Purpose: Wire logging based on config without blocking startup.
// Key aspects: Returns a usable fanout even when the file sink fails.
// Upstream: main startup.
// Downstream: newRollingFileSink.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	fanout := newLogFanout(&writerSink{w: console, timestamp: true}, nil)
	if !cfg.Enabled {
		return fanout, nil
	}
	sink, err := newRollingFileSink(cfg.Dir, cfg.RetentionDays, cfg.MaxFileBytes)
	if err != nil {
		return fanout, err
	}
	fanout.file = sink
	return fanout, nil
}

// SetConsoleSink swaps the console side, e.g. to the dashboard pane. A nil
// writer silences it.
func (f *logFanout) SetConsoleSink(w io.Writer, timestamp bool) {
	if f == nil {
		return
	}
	var sink logSink
	if w != nil {
		sink = &writerSink{w: w, timestamp: timestamp}
	}
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

// SetDeduper collapses repeated noisy lines; nil disables it.
func (f *logFanout) SetDeduper(d *logDeduper) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.dedupe = d
	f.mu.Unlock()
}

// SetRotateHook attaches hook when file logging is active.
func (f *logFanout) SetRotateHook(hook logRotateHook) {
	if f == nil {
		return
	}
	f.mu.Lock()
	sink, ok := f.file.(*rollingFileSink)
	f.mu.Unlock()
	if ok {
		sink.SetRotateHook(hook)
	}
}

func (f *logFanout) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.pending = append(f.pending, p...)
	var lines []string
	rest := f.pending
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(rest[:idx], "\r")))
		rest = rest[idx+1:]
	}
	// An unterminated line past the bound is flushed as-is.
	if len(rest) > maxLogBufferBytes {
		lines = append(lines, string(bytes.TrimRight(rest, "\r")))
		rest = rest[:0]
	}
	f.pending = append(f.pending[:0], rest...)
	console, file, dedupe := f.console, f.file, f.dedupe
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		if line == "" {
			continue
		}
		if dedupe != nil {
			var ok bool
			if line, ok = dedupe.Process(line); !ok {
				continue
			}
		}
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// WriteFileOnlyLine writes to the file sink only; used for stats lines the
// dashboard already shows on screen.
func (f *logFanout) WriteFileOnlyLine(line string, now time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		file.WriteLine(line, now)
	}
}

func (f *logFanout) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	console, file := f.console, f.file
	f.mu.Unlock()
	if console != nil {
		_ = console.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

func formatLogTimestamp(now time.Time) string {
	return now.UTC().Format(logTimestampLayout)
}

// logFileName is mediadash-YYYY-MM-DD.log for seq 0 and
// mediadash-YYYY-MM-DD.N.log after size rolls.
func logFileName(now time.Time, seq int) string {
	name := logFilePrefix + now.UTC().Format(logFileDateLayout)
	if seq > 0 {
		name += "." + strconv.Itoa(seq)
	}
	return name + logFileExt
}

// parseLogFileName only accepts files this program wrote, so pruning never
// touches unrelated logs sharing the directory.
func parseLogFileName(name string) (time.Time, int, bool) {
	if !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileExt) {
		return time.Time{}, 0, false
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), logFileExt)
	seq := 0
	if dot := strings.IndexByte(base, '.'); dot >= 0 {
		n, err := strconv.Atoi(base[dot+1:])
		if err != nil || n <= 0 {
			return time.Time{}, 0, false
		}
		seq = n
		base = base[:dot]
	}
	date, err := time.ParseInLocation(logFileDateLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, 0, false
	}
	return date, seq, true
}

// pruneLogs removes this program's files older than retentionDays, counting
// today as the first day.
func pruneLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if date, _, ok := parseLogFileName(e.Name()); ok && date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}
