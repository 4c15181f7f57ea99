package main

import (
	"errors"
	"strings"
	"testing"

	"mediadash/protocol"
)

func TestDescribeFrameSnapshot(t *testing.T) {
	f := &protocol.Frame{Kind: protocol.KindSnapshot}
	f.Snapshot.CPU = 12.5
	f.Snapshot.ProcessCount = 2
	f.Snapshot.HasMedia = true
	f.Snapshot.Media = protocol.Media{Title: "Song", Artist: "Band", Position: 61, Duration: 200, Playing: true}
	f.Snapshot.HasQueue = true
	f.Snapshot.QueueCount = 3

	got := describeFrame(f)
	want := `snapshot cpu=12.5 mem=0.0 gpu=0.0 procs=2 media="Song" by "Band" 61/200s playing queue=3`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDescribeFrameAckAndIgnore(t *testing.T) {
	if got := describeFrame(&protocol.Frame{Kind: protocol.KindAck, Ack: "pause"}); got != "ack pause" {
		t.Fatalf("unexpected ack line %q", got)
	}
	got := describeFrame(&protocol.Frame{Kind: protocol.KindIgnore, Err: errors.New("short line")})
	if !strings.Contains(got, "short line") {
		t.Fatalf("expected error in ignore line, got %q", got)
	}
}

func TestProbeCommand(t *testing.T) {
	if cmd, ok := probeCommand(" Next "); !ok || cmd.Name != protocol.CmdNext {
		t.Fatalf("expected next, got %+v ok=%v", cmd, ok)
	}
	if _, ok := probeCommand("kill"); ok {
		t.Fatalf("expected kill to be refused")
	}
}
