package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogFileName(t *testing.T) {
	when := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if got := logFileName(when, 0); got != "mediadash-2026-01-22.log" {
		t.Fatalf("unexpected day file name %q", got)
	}
	if got := logFileName(when, 3); got != "mediadash-2026-01-22.3.log" {
		t.Fatalf("unexpected rolled file name %q", got)
	}
}

func TestParseLogFileName(t *testing.T) {
	cases := []struct {
		name string
		seq  int
		ok   bool
	}{
		{"mediadash-2026-01-22.log", 0, true},
		{"mediadash-2026-01-22.2.log", 2, true},
		{"mediadash-2026-01-22.0.log", 0, false},
		{"mediadash-2026-01-22.x.log", 0, false},
		{"2026-01-22.log", 0, false},
		{"notes.txt", 0, false},
	}
	for _, tc := range cases {
		date, seq, ok := parseLogFileName(tc.name)
		if ok != tc.ok || seq != tc.seq {
			t.Fatalf("%s: expected ok=%v seq=%d, got ok=%v seq=%d", tc.name, tc.ok, tc.seq, ok, seq)
		}
		if ok && (date.Year() != 2026 || date.Month() != time.January || date.Day() != 22) {
			t.Fatalf("%s: unexpected date %s", tc.name, date.Format(time.RFC3339))
		}
	}
}

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"mediadash-2026-01-20.log",
		"mediadash-2026-01-20.1.log",
		"mediadash-2026-01-21.log",
		"mediadash-2026-01-22.log",
		"notes.txt",
		"2026-01-01.log",
	}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if err := pruneLogs(dir, now, 2); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	for _, name := range []string{"mediadash-2026-01-20.log", "mediadash-2026-01-20.1.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed (err=%v)", name, err)
		}
	}
	for _, name := range []string{"mediadash-2026-01-21.log", "mediadash-2026-01-22.log", "notes.txt", "2026-01-01.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestRollingFileSinkDayRotation(t *testing.T) {
	dir := t.TempDir()
	sink, err := newRollingFileSink(dir, 1, 0)
	if err != nil {
		t.Fatalf("newRollingFileSink: %v", err)
	}
	defer sink.Close()

	var got []logRotation
	sink.SetRotateHook(func(rot logRotation) { got = append(got, rot) })

	day1 := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	sink.WriteLine("first", day1)
	sink.WriteLine("second", day1.Add(24*time.Hour))

	if len(got) != 1 {
		t.Fatalf("expected one rotation, got %+v", got)
	}
	rot := got[0]
	if rot.Reason != "day" || rot.PrevDate.Day() != 22 {
		t.Fatalf("unexpected rotation %+v", rot)
	}
	if filepath.Base(rot.PrevPath) != "mediadash-2026-01-22.log" || filepath.Base(rot.NewPath) != "mediadash-2026-01-23.log" {
		t.Fatalf("unexpected paths %s -> %s", rot.PrevPath, rot.NewPath)
	}
	if _, err := os.Stat(rot.PrevPath); !os.IsNotExist(err) {
		t.Fatalf("expected retention of one day to prune the previous file (err=%v)", err)
	}
}

func TestRollingFileSinkSizeRoll(t *testing.T) {
	dir := t.TempDir()
	// Each entry is a 19 byte timestamp, a space, 10 bytes of text and a newline.
	sink, err := newRollingFileSink(dir, 7, 70)
	if err != nil {
		t.Fatalf("newRollingFileSink: %v", err)
	}
	defer sink.Close()

	var reasons []string
	sink.SetRotateHook(func(rot logRotation) { reasons = append(reasons, rot.Reason) })

	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sink.WriteLine("0123456789", now)
	}

	if strings.Join(reasons, ",") != "size,size" {
		t.Fatalf("expected two size rolls, got %v", reasons)
	}
	for _, name := range []string{"mediadash-2026-03-01.log", "mediadash-2026-03-01.1.log", "mediadash-2026-03-01.2.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "mediadash-2026-03-01.2.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Fatalf("expected the last file to hold one line, got %d", n)
	}
}

func TestRollingFileSinkResumesHighestSequence(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	for _, seq := range []int{0, 4} {
		if err := os.WriteFile(filepath.Join(dir, logFileName(now, seq)), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	sink, err := newRollingFileSink(dir, 30, 1<<20)
	if err != nil {
		t.Fatalf("newRollingFileSink: %v", err)
	}
	defer sink.Close()
	sink.WriteLine("restart", now)

	data, err := os.ReadFile(filepath.Join(dir, logFileName(now, 4)))
	if err != nil || !strings.Contains(string(data), "restart") {
		t.Fatalf("expected restart line appended to .4 file, got %q (%v)", data, err)
	}
}

func TestRotateHookLoggingDoesNotDeadlock(t *testing.T) {
	dir := t.TempDir()
	sink, err := newRollingFileSink(dir, 2, 0)
	if err != nil {
		t.Fatalf("newRollingFileSink: %v", err)
	}
	defer sink.Close()

	fanout := newLogFanout(nil, sink)
	logger := log.New(fanout, "", 0)

	now := time.Now().UTC()
	sink.WriteLine("prime", now)

	// Force the next write to rotate without waiting for midnight.
	sink.mu.Lock()
	sink.date = now.Add(-24 * time.Hour).Format(logFileDateLayout)
	sink.mu.Unlock()

	hookDone := make(chan struct{})
	var hookOnce sync.Once
	sink.SetRotateHook(func(rot logRotation) {
		logger.Printf("rolled (%s) from %s", rot.Reason, rot.PrevPath)
		hookOnce.Do(func() { close(hookDone) })
	})

	done := make(chan struct{})
	go func() {
		logger.Print("trigger rotation")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("logger.Print deadlocked during rotate hook logging")
	}
	select {
	case <-hookDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("rotate hook did not complete")
	}
}

type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureSink) WriteLine(line string, now time.Time) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *captureSink) Close() error { return nil }

func TestLogFanoutSplitsLinesAndFileOnly(t *testing.T) {
	console := &captureSink{}
	file := &captureSink{}
	fanout := newLogFanout(console, file)

	if _, err := fanout.Write([]byte("Transport: connected\r\nIngest: par")); err != nil {
		t.Fatalf("write: %v", err)
	}
	fanout.Write([]byte("tial\n"))
	fanout.WriteFileOnlyLine("Stats: ingest 1 frame", time.Now())

	if len(console.lines) != 2 || console.lines[1] != "Ingest: partial" {
		t.Fatalf("unexpected console lines %v", console.lines)
	}
	if len(file.lines) != 3 || file.lines[2] != "Stats: ingest 1 frame" {
		t.Fatalf("unexpected file lines %v", file.lines)
	}
}

func TestLogFanoutFlushesOversizedPartial(t *testing.T) {
	console := &captureSink{}
	fanout := newLogFanout(console, nil)
	fanout.Write([]byte(strings.Repeat("x", maxLogBufferBytes+1)))
	if len(console.lines) != 1 || len(console.lines[0]) != maxLogBufferBytes+1 {
		t.Fatalf("expected oversized partial to be flushed as one line")
	}
	fanout.Write([]byte("next\n"))
	if len(console.lines) != 2 || console.lines[1] != "next" {
		t.Fatalf("unexpected lines after flush: %d", len(console.lines))
	}
}

func TestLogFanoutDedupesRepeatedFailures(t *testing.T) {
	console := &captureSink{}
	fanout := newLogFanout(console, nil)
	fanout.SetDeduper(newLogDeduper(time.Minute, 8))

	line := "Transport: connect to tcp://host:5555 failed: connection refused (retry in 3s)\n"
	for i := 0; i < 5; i++ {
		fanout.Write([]byte(line))
	}
	fanout.Write([]byte("Transport: connected to tcp://host:5555\n"))

	if len(console.lines) != 2 {
		t.Fatalf("expected one failure line plus connect, got %v", console.lines)
	}
}
