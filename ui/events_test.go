package ui

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestEventRingEvictsOldest(t *testing.T) {
	r := NewEventRing(2, 0)
	base := time.Unix(100, 0)
	for i, msg := range []string{"a", "b", "c"} {
		r.Append(Event{At: base.Add(time.Duration(i) * time.Minute), Kind: EventSystem, Message: msg})
	}
	events, seq := r.Snapshot(nil)
	if len(events) != 2 || events[0].Message != "b" || events[1].Message != "c" {
		t.Fatalf("unexpected events %+v", events)
	}
	if seq != 3 {
		t.Fatalf("expected seq 3, got %d", seq)
	}
	if !strings.Contains(r.Line(), "evicted 1") {
		t.Fatalf("expected eviction in line %q", r.Line())
	}
}

func TestEventRingFoldsRepeatsInsideWindow(t *testing.T) {
	r := NewEventRing(8, 0)
	base := time.Unix(100, 0)
	r.Append(Event{At: base, Kind: EventTransport, Message: "tcp://host:5555 down"})
	r.Append(Event{At: base.Add(3 * time.Second), Kind: EventTransport, Message: "tcp://host:5555 down"})
	r.Append(Event{At: base.Add(6 * time.Second), Kind: EventTransport, Message: "tcp://host:5555 down"})
	// Same text but another kind is a new row.
	r.Append(Event{At: base.Add(7 * time.Second), Kind: EventDrop, Message: "tcp://host:5555 down"})
	// Past the window starts a new row.
	r.Append(Event{At: base.Add(time.Minute), Kind: EventDrop, Message: "tcp://host:5555 down"})

	events, seq := r.Snapshot(nil)
	if len(events) != 3 {
		t.Fatalf("expected 3 rows, got %+v", events)
	}
	if events[0].Repeat != 3 || events[0].Text() != "tcp://host:5555 down (x3)" {
		t.Fatalf("unexpected folded row %+v", events[0])
	}
	if !events[0].At.Equal(base.Add(6 * time.Second)) {
		t.Fatalf("expected folded row to carry the latest time")
	}
	if seq != 5 {
		t.Fatalf("every append bumps seq, got %d", seq)
	}
	if got := r.Line(); got != "Events: LINK 3, DROP 2 (folded 2, evicted 0, cut 0)" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestEventRingCutsLongMessages(t *testing.T) {
	r := NewEventRing(4, 10)
	r.Append(Event{Kind: EventSystem, Message: "ééééééééé"})
	events, _ := r.Snapshot(nil)
	msg := events[0].Message
	if len(msg) > 10 || !utf8.ValidString(msg) || !strings.HasSuffix(msg, "…") {
		t.Fatalf("unexpected cut message %q (%d bytes)", msg, len(msg))
	}
	if !strings.Contains(r.Line(), "cut 1") {
		t.Fatalf("expected cut count in %q", r.Line())
	}
}

func TestEventRingSnapshotReusesStorage(t *testing.T) {
	r := NewEventRing(4, 0)
	r.Append(Event{Kind: EventAck, Message: "play"})
	scratch := make([]Event, 0, 4)
	events, _ := r.Snapshot(scratch)
	if &events[:1][0] != &scratch[:1][0] {
		t.Fatalf("expected snapshot to reuse dst storage")
	}
	var nilRing *EventRing
	if events, seq := nilRing.Snapshot(nil); len(events) != 0 || seq != 0 || nilRing.Line() != "" {
		t.Fatalf("nil ring should be empty")
	}
}

func TestEventKindLabels(t *testing.T) {
	cases := map[EventKind]string{
		EventSystem:    "SYS",
		EventTransport: "LINK",
		EventCommand:   "CMD",
		EventAck:       "ACK",
		EventTrack:     "TRACK",
		EventDrop:      "DROP",
		EventKind(99):  "UNK",
		EventKind(-1):  "UNK",
	}
	for kind, want := range cases {
		if got := kind.Label(); got != want {
			t.Fatalf("label(%d) = %q, want %q", kind, got, want)
		}
	}
}
