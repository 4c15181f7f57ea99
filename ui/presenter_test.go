package ui

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"mediadash/artwork"
	"mediadash/commands"
	"mediadash/mailbox"
	"mediadash/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu   sync.Mutex
	cmds []protocol.Command
	out  commands.Outcome
}

func (s *recordingSink) Submit(cmd protocol.Command) commands.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return s.out
}

func (s *recordingSink) lines(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	for i, c := range s.cmds {
		line, err := c.Encode()
		if err != nil {
			t.Fatalf("encode %s: %v", c.Name, err)
		}
		out[i] = strings.TrimSuffix(string(line), "\n")
	}
	return out
}

type recordingSurface struct {
	Headless
	renders []State
}

func (s *recordingSurface) Render(st State) {
	s.renders = append(s.renders, st)
}

type presenterFixture struct {
	clock   *fakeClock
	box     *mailbox.Mailbox[protocol.Snapshot]
	art     *artwork.Buffer
	sink    *recordingSink
	surface *recordingSurface
	p       *Presenter
}

func newPresenterFixture() *presenterFixture {
	f := &presenterFixture{
		clock:   &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		box:     &mailbox.Mailbox[protocol.Snapshot]{},
		art:     artwork.NewBuffer(artwork.Format{Width: 2, Height: 2}),
		sink:    &recordingSink{},
		surface: &recordingSurface{},
	}
	f.p = NewPresenter(PresenterOptions{
		Mailbox: f.box,
		Artwork: f.art,
		Sink:    f.sink,
		Surface: f.surface,
		Now:     f.clock.Now,
	})
	return f
}

func mediaSnapshot(title string, pos, dur int, playing bool) protocol.Snapshot {
	s := protocol.Snapshot{CPU: 10, HasMedia: true}
	s.Media = protocol.Media{Title: title, Artist: "Artist", Position: pos, Duration: dur, Playing: playing}
	return s
}

func TestPresenterTakesLatestSnapshot(t *testing.T) {
	f := newPresenterFixture()
	f.box.Publish(mediaSnapshot("first", 0, 100, true))
	f.box.Publish(mediaSnapshot("second", 5, 100, true))

	st := f.p.Tick()
	if !st.Fresh || st.Snapshot.Media.Title != "second" {
		t.Fatalf("expected fresh second snapshot, got fresh=%v title=%q", st.Fresh, st.Snapshot.Media.Title)
	}
	st = f.p.Tick()
	if st.Fresh {
		t.Fatalf("expected no fresh snapshot on an empty mailbox")
	}
	if st.Snapshot.Media.Title != "second" || !st.HasSnapshot {
		t.Fatalf("expected last snapshot retained, got %q", st.Snapshot.Media.Title)
	}
	if len(f.surface.renders) != 2 {
		t.Fatalf("expected a render per tick, got %d", len(f.surface.renders))
	}
}

func TestPresenterInterpolatesAndResyncs(t *testing.T) {
	f := newPresenterFixture()
	f.box.Publish(mediaSnapshot("song", 10, 200, true))
	f.p.Tick()

	for i := 0; i < 10; i++ {
		f.clock.Advance(100 * time.Millisecond)
		f.p.Tick()
	}
	if st := f.p.Tick(); st.Position != 11 {
		t.Fatalf("expected position 11 after 1s, got %d", st.Position)
	}

	f.box.Publish(mediaSnapshot("song", 50, 200, true))
	if st := f.p.Tick(); st.Position != 50 {
		t.Fatalf("expected hard resync to 50, got %d", st.Position)
	}
}

func TestPresenterPausedPositionFrozen(t *testing.T) {
	f := newPresenterFixture()
	f.box.Publish(mediaSnapshot("song", 30, 200, false))
	f.p.Tick()
	for i := 0; i < 50; i++ {
		f.clock.Advance(100 * time.Millisecond)
		if st := f.p.Tick(); st.Position != 30 {
			t.Fatalf("paused position moved to %d", st.Position)
		}
	}
}

func TestPresenterAckFlipsPlaying(t *testing.T) {
	f := newPresenterFixture()
	f.box.Publish(mediaSnapshot("song", 10, 200, false))
	f.p.Tick()

	f.p.OnAck("play")
	st := f.p.Tick()
	if !st.Playing || !st.Snapshot.Media.Playing || st.LastAck != "play" {
		t.Fatalf("expected ack to resume playback, got %+v", st)
	}
	f.clock.Advance(2 * time.Second)
	if st := f.p.Tick(); st.Position != 12 {
		t.Fatalf("expected position 12 after resume, got %d", st.Position)
	}

	f.p.OnAck("pause")
	f.p.Tick()
	f.clock.Advance(3 * time.Second)
	if st := f.p.Tick(); st.Playing || st.Position != 12 {
		t.Fatalf("expected pause to freeze at 12, got playing=%v pos=%d", st.Playing, st.Position)
	}

	f.p.OnAck("next")
	if st := f.p.Tick(); st.Playing {
		t.Fatalf("non play/pause ack should not change playing")
	}
}

func TestPresenterAckAfterSnapshotInSameTickWins(t *testing.T) {
	f := newPresenterFixture()
	f.box.Publish(mediaSnapshot("song", 12, 200, false))
	f.p.OnAck("play")

	st := f.p.Tick()
	if !st.Playing || !st.Snapshot.Media.Playing || st.LastAck != "play" {
		t.Fatalf("expected the later ack to win, got playing=%v media=%v ack=%q",
			st.Playing, st.Snapshot.Media.Playing, st.LastAck)
	}
	if st.Snapshot.Media.Title != "song" || st.Position != 12 {
		t.Fatalf("expected snapshot fields kept, got %q at %d", st.Snapshot.Media.Title, st.Position)
	}
	f.clock.Advance(2 * time.Second)
	if st := f.p.Tick(); !st.Playing || st.Position != 14 {
		t.Fatalf("expected playback to advance to 14, got playing=%v pos=%d", st.Playing, st.Position)
	}
}

func TestPresenterSnapshotAfterAckInSameTickWins(t *testing.T) {
	f := newPresenterFixture()
	f.p.OnAck("play")
	f.box.Publish(mediaSnapshot("song", 12, 200, false))

	st := f.p.Tick()
	if st.Playing || st.Snapshot.Media.Playing {
		t.Fatalf("expected the later snapshot to win, got playing=%v", st.Playing)
	}
	if st.LastAck != "play" {
		t.Fatalf("expected ack still recorded, got %q", st.LastAck)
	}
}

func TestPresenterTakesArtworkOnce(t *testing.T) {
	f := newPresenterFixture()
	dec := artwork.NewDecoder(f.art, 0, nil)
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if _, err := dec.DecodeBase64([]byte(base64.StdEncoding.EncodeToString(pixels))); err != nil {
		t.Fatalf("decode: %v", err)
	}

	st := f.p.Tick()
	if !st.ArtworkChanged || string(st.Pixels) != string(pixels) {
		t.Fatalf("expected new artwork, got changed=%v pixels=%v", st.ArtworkChanged, st.Pixels)
	}
	kept := st.Pixels
	st = f.p.Tick()
	if st.ArtworkChanged {
		t.Fatalf("artwork should only be reported once")
	}
	if &st.Pixels[0] != &kept[0] {
		t.Fatalf("expected the same pixel slice to be carried forward")
	}
}

func TestPresenterRowActions(t *testing.T) {
	f := newPresenterFixture()
	s := mediaSnapshot("song", 0, 100, true)
	s.Processes[0] = protocol.Process{Label: "12.0% chrome", Name: "chrome", PID: 42}
	s.Processes[1] = protocol.Process{Label: "legacy row"}
	s.ProcessCount = 2
	s.HasQueue = true
	s.Queue[0] = protocol.QueueEntry{Name: "Next", Artist: "A"}
	s.Queue[1] = protocol.QueueEntry{Name: "Later"}
	s.QueueCount = 2
	f.box.Publish(s)
	f.p.Tick()

	if v, ok := f.p.Rows().Lookup(RowID{List: ListQueue, Index: 0}); !ok || v.Label != "Next - A" {
		t.Fatalf("unexpected queue row: %+v ok=%v", v, ok)
	}
	if out := f.p.ActivateRow(RowID{List: ListProcesses, Index: 0}); out != commands.Queued {
		t.Fatalf("kill outcome = %v", out)
	}
	if out := f.p.ActivateRow(RowID{List: ListProcesses, Index: 1}); out != commands.Rejected {
		t.Fatalf("expected legacy row without pid to be rejected, got %v", out)
	}
	if out := f.p.ActivateRow(RowID{List: ListProcesses, Index: 4}); out != commands.Rejected {
		t.Fatalf("expected unbound row to be rejected, got %v", out)
	}
	f.p.ActivateRow(RowID{List: ListQueue, Index: 1})
	f.p.RemoveRow(RowID{List: ListQueue, Index: 0})
	if out := f.p.RemoveRow(RowID{List: ListProcesses, Index: 0}); out != commands.Rejected {
		t.Fatalf("remove on a process row should be rejected, got %v", out)
	}

	want := []string{
		`{"cmd":"kill","pid":42}`,
		`{"cmd":"queue_action","action":"play_now","index":1}`,
		`{"cmd":"queue_action","action":"remove","index":0}`,
	}
	got := f.sink.lines(t)
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPresenterToggleActionsFollowState(t *testing.T) {
	f := newPresenterFixture()
	s := mediaSnapshot("song", 95, 100, true)
	s.Media.Shuffle = true
	s.Media.Repeat = protocol.RepeatContext
	f.box.Publish(s)
	f.p.Tick()

	f.p.TogglePlay()
	f.p.ToggleShuffle()
	f.p.CycleRepeat()
	f.p.ToggleLike()
	f.p.SeekBy(10)
	f.p.SeekBy(-200)

	want := []string{
		`{"cmd":"pause"}`,
		`{"cmd":"shuffle","state":false}`,
		`{"cmd":"repeat","state":"track"}`,
		`{"cmd":"like","state":true}`,
		`{"cmd":"seek","position":100}`,
		`{"cmd":"seek","position":0}`,
	}
	got := f.sink.lines(t)
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPresenterSeekWithoutTrackRejected(t *testing.T) {
	f := newPresenterFixture()
	f.p.Tick()
	if out := f.p.SeekBy(10); out != commands.Rejected {
		t.Fatalf("expected seek without duration to be rejected, got %v", out)
	}
}

func TestPresenterLinkState(t *testing.T) {
	f := newPresenterFixture()
	f.p.SetLink(true, "tcp://host:5555")
	st := f.p.Tick()
	if !st.Connected || st.Link != "tcp://host:5555" {
		t.Fatalf("unexpected link state: %v %q", st.Connected, st.Link)
	}
}
