package main

import (
	"strings"
	"testing"
	"time"
)

func TestEvaluateIngestHealthLogsTransitionsOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var state ingestHealthState

	state, line := evaluateIngestHealth(state, "tcp://host:5555", ingestHealthSnapshot{}, now)
	if line != "tcp://host:5555 disconnected last_frame=never" {
		t.Fatalf("unexpected first line %q", line)
	}

	snap := ingestHealthSnapshot{Connected: true, Connects: 1, LastFrameAt: now.Add(-2 * time.Second)}
	state, line = evaluateIngestHealth(state, "tcp://host:5555", snap, now)
	if !strings.Contains(line, "connected active last_frame=2s connects=1") {
		t.Fatalf("unexpected connect line %q", line)
	}

	_, line = evaluateIngestHealth(state, "tcp://host:5555", snap, now.Add(time.Second))
	if line != "" {
		t.Fatalf("expected no line without a transition, got %q", line)
	}

	snap.Malformed = 3
	state, line = evaluateIngestHealth(state, "tcp://host:5555", snap, now.Add(time.Minute))
	if !strings.Contains(line, " idle ") || !strings.Contains(line, "drops=malformed=3") {
		t.Fatalf("expected idle transition with drops, got %q", line)
	}
	if !state.idle {
		t.Fatalf("expected idle state recorded")
	}
}

func TestAgeString(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := ageString(now, time.Time{}); got != "never" {
		t.Fatalf("zero time = %q", got)
	}
	if got := ageString(now, now.Add(time.Second)); got != "0s" {
		t.Fatalf("future time = %q", got)
	}
	if got := ageString(now, now.Add(-90*time.Second)); got != "1m30s" {
		t.Fatalf("90s ago = %q", got)
	}
}
