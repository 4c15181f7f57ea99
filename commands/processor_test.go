package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"mediadash/protocol"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestDebouncer(clock *fakeClock) *Debouncer {
	d := NewDebouncer(DefaultWindows())
	d.now = clock.now
	return d
}

func TestDebounceSameClassWithinWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	p := NewProcessor(4, 0, newTestDebouncer(clock))

	if got := p.Submit(protocol.Play()); got != Queued {
		t.Fatalf("first play: %v", got)
	}
	clock.t = clock.t.Add(100 * time.Millisecond)
	if got := p.Submit(protocol.Pause()); got != Debounced {
		t.Fatalf("pause inside window should be debounced, got %v", got)
	}
	if p.Pending() != 1 {
		t.Fatalf("expected exactly one queued command, got %d", p.Pending())
	}

	// A different class is independent.
	if got := p.Submit(protocol.Next()); got != Queued {
		t.Fatalf("next should not share the playback window, got %v", got)
	}

	clock.t = clock.t.Add(time.Second)
	if got := p.Submit(protocol.Pause()); got != Queued {
		t.Fatalf("pause after window should queue, got %v", got)
	}
	if s := p.Stats(); s.Debounced != 1 || s.Queued != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestSuppressedTriggerDoesNotExtendWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	d := NewDebouncer(map[Class]time.Duration{ClassSkip: 300 * time.Millisecond})
	d.now = clock.now
	if !d.Allow(ClassSkip) {
		t.Fatalf("first trigger must pass")
	}
	clock.t = clock.t.Add(200 * time.Millisecond)
	if d.Allow(ClassSkip) {
		t.Fatalf("second trigger inside window must be suppressed")
	}
	clock.t = clock.t.Add(150 * time.Millisecond)
	if !d.Allow(ClassSkip) {
		t.Fatalf("trigger 350ms after the first must pass")
	}
	if !d.Allow(ClassLike) {
		t.Fatalf("unconfigured class must not be debounced")
	}
}

func TestFullQueueDropsNewCommands(t *testing.T) {
	p := NewProcessor(2, 0, nil)
	for i := 0; i < 2; i++ {
		if got := p.Submit(protocol.Kill(i + 1)); got != Queued {
			t.Fatalf("kill %d: %v", i, got)
		}
	}
	if got := p.Submit(protocol.Kill(3)); got != Dropped {
		t.Fatalf("expected drop on full queue, got %v", got)
	}
	var out bytes.Buffer
	n, err := p.Drain(&out)
	if err != nil || n != 2 {
		t.Fatalf("drain: n=%d err=%v", n, err)
	}
	want := `{"cmd":"kill","pid":1}` + "\n" + `{"cmd":"kill","pid":2}` + "\n"
	if out.String() != want {
		t.Fatalf("unexpected drain output %q", out.String())
	}
	if s := p.Stats(); s.Dropped != 1 || s.Sent != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestDrainTerminatesLines(t *testing.T) {
	p := NewProcessor(4, 0, nil)
	p.Enqueue([]byte(`{"cmd":"play"}`))
	p.Enqueue([]byte(`{"cmd":"next"}` + "\n"))
	var out bytes.Buffer
	if _, err := p.Drain(&out); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if out.String() != `{"cmd":"play"}`+"\n"+`{"cmd":"next"}`+"\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if n, _ := p.Drain(&out); n != 0 {
		t.Fatalf("expected empty queue after drain, got %d", n)
	}
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write(b []byte) (int, error) {
	w.writes++
	return 0, errors.New("broken pipe")
}

func TestDrainStopsOnWriteError(t *testing.T) {
	p := NewProcessor(4, 0, nil)
	p.Submit(protocol.Play())
	p.Submit(protocol.Next())
	w := &failingWriter{}
	n, err := p.Drain(w)
	if err == nil || n != 0 || w.writes != 1 {
		t.Fatalf("expected first write to fail, n=%d err=%v writes=%d", n, err, w.writes)
	}
	if p.Pending() != 1 {
		t.Fatalf("expected remaining command to stay queued, got %d", p.Pending())
	}
}

func TestReadySignalsAfterEnqueue(t *testing.T) {
	p := NewProcessor(4, 0, nil)
	select {
	case <-p.Ready():
		t.Fatalf("ready must not fire on an empty queue")
	default:
	}
	p.Submit(protocol.Play())
	p.Submit(protocol.Next())
	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatalf("expected ready signal")
	}
}

func TestOversizeCommandRejected(t *testing.T) {
	p := NewProcessor(4, 32, nil)
	if got := p.Submit(protocol.QueueAction(strings.Repeat("x", 40), 1)); got != Rejected {
		t.Fatalf("expected rejection, got %v", got)
	}
	if p.Pending() != 0 {
		t.Fatalf("rejected command must not be queued")
	}
}

func TestClassOf(t *testing.T) {
	cases := map[string]Class{
		protocol.CmdPlay:        ClassPlayback,
		protocol.CmdPrevious:    ClassSkip,
		protocol.CmdRepeat:      ClassMode,
		protocol.CmdQueueAction: ClassQueue,
		protocol.CmdKill:        ClassProcess,
		"reboot":                ClassOther,
	}
	for name, want := range cases {
		if got := ClassOf(name); got != want {
			t.Fatalf("%s: got %v want %v", name, got, want)
		}
	}
	if c, ok := ParseClass("seek"); !ok || c != ClassSeek {
		t.Fatalf("ParseClass(seek) = %v %v", c, ok)
	}
}
