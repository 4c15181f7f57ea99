package ui

import (
	"fmt"
	"strings"
	"testing"
)

func TestHeadlessLogsTrackAndPlayChanges(t *testing.T) {
	var lines []string
	h := NewHeadless(nil, func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})

	st := State{HasSnapshot: true, Playing: true, Duration: 100}
	st.Snapshot.HasMedia = true
	st.Snapshot.Media.Title = "Song"
	st.Snapshot.Media.Artist = "Band"
	h.Render(st)
	h.Render(st)
	st.Playing = false
	h.Render(st)
	st.Snapshot.HasMedia = false
	h.Render(st)

	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "Media: Song - Band") {
		t.Fatalf("unexpected track line %q", lines[0])
	}
	if !strings.Contains(lines[1], "⏸") {
		t.Fatalf("expected pause line, got %q", lines[1])
	}
	if lines[2] != "Media: nothing playing" {
		t.Fatalf("unexpected final line %q", lines[2])
	}
}

func TestHeadlessLogsLinkChanges(t *testing.T) {
	var lines []string
	h := NewHeadless(nil, func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	h.Render(State{Connected: true, Link: "tcp://a:1"})
	h.Render(State{Connected: true, Link: "tcp://a:1"})
	h.Render(State{Connected: false, Link: "tcp://a:1"})
	if len(lines) != 2 || lines[0] != "Link: up (tcp://a:1)" || lines[1] != "Link: down (tcp://a:1)" {
		t.Fatalf("unexpected link lines %v", lines)
	}
}
