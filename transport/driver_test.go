package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	data   bytes.Buffer
	resets int
}

func (s *recordingSink) Feed(chunk []byte) {
	s.mu.Lock()
	s.data.Write(chunk)
	s.mu.Unlock()
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.String(), s.resets
}

// pipeDialer hands out the client end of a fresh net.Pipe per dial after
// failing the first failFirst attempts.
type pipeDialer struct {
	mu        sync.Mutex
	failFirst int
	dials     int
	servers   chan net.Conn
}

func newPipeDialer(failFirst int) *pipeDialer {
	return &pipeDialer{failFirst: failFirst, servers: make(chan net.Conn, 4)}
}

func (d *pipeDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	d.dials++
	fail := d.dials <= d.failFirst
	d.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func (d *pipeDialer) String() string { return "pipe" }

func (d *pipeDialer) nextServer(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-d.servers:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

type fakeOutbox struct {
	ready chan struct{}
	mu    sync.Mutex
	lines [][]byte
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{ready: make(chan struct{}, 1)}
}

func (o *fakeOutbox) push(line string) {
	o.mu.Lock()
	o.lines = append(o.lines, []byte(line))
	o.mu.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

func (o *fakeOutbox) Ready() <-chan struct{} { return o.ready }

func (o *fakeOutbox) Drain(w io.Writer) (int, error) {
	o.mu.Lock()
	lines := o.lines
	o.lines = nil
	o.mu.Unlock()
	for i, l := range lines {
		if _, err := w.Write(l); err != nil {
			return i, err
		}
	}
	return len(lines), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDriverFeedsBytesAndStopsOnCancel(t *testing.T) {
	dialer := newPipeDialer(0)
	sink := &recordingSink{}
	d := NewDriver(dialer, sink, nil, 10*time.Millisecond, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	server := dialer.nextServer(t)
	if _, err := server.Write([]byte("{\"cpu_percent\":1}\n")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitFor(t, "bytes fed", func() bool {
		got, _ := sink.snapshot()
		return got == "{\"cpu_percent\":1}\n"
	})
	if !d.Connected() {
		t.Fatalf("expected connected")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDriverRetriesFailedDials(t *testing.T) {
	dialer := newPipeDialer(2)
	d := NewDriver(dialer, &recordingSink{}, nil, 5*time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	dialer.nextServer(t)
	waitFor(t, "connected", d.Connected)
	if s := d.Stats(); s.DialFailures != 2 || s.Connects != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestDriverResetsSinkAndReconnects(t *testing.T) {
	dialer := newPipeDialer(0)
	sink := &recordingSink{}
	d := NewDriver(dialer, sink, nil, 5*time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	first := dialer.nextServer(t)
	first.Write([]byte("partial"))
	first.Close()

	second := dialer.nextServer(t)
	defer second.Close()
	_, resets := sink.snapshot()
	if resets != 1 {
		t.Fatalf("expected one reset before reconnect, got %d", resets)
	}
	waitFor(t, "second connect", func() bool { return d.Stats().Connects == 2 })
}

func TestDriverWritesQueuedCommands(t *testing.T) {
	dialer := newPipeDialer(0)
	outbox := newFakeOutbox()
	outbox.push("{\"cmd\":\"play\"}\n")
	d := NewDriver(dialer, &recordingSink{}, outbox, 5*time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	server := dialer.nextServer(t)
	defer server.Close()
	r := bufio.NewReader(server)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil || line != "{\"cmd\":\"play\"}\n" {
		t.Fatalf("expected queued play command, got %q (%v)", line, err)
	}

	outbox.push("{\"cmd\":\"next\"}\n")
	line, err = r.ReadString('\n')
	if err != nil || line != "{\"cmd\":\"next\"}\n" {
		t.Fatalf("expected next command, got %q (%v)", line, err)
	}
}

func TestRetrySchedule(t *testing.T) {
	fixed := newRetrySchedule(time.Second, time.Second)
	for i := 1; i <= 3; i++ {
		if n, got := fixed.Failed(); n != i || got != time.Second {
			t.Fatalf("attempt %d: expected fixed 1s, got #%d %s", i, n, got)
		}
	}

	r := newRetrySchedule(time.Second, 4*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if _, got := r.Failed(); got != w {
			t.Fatalf("step %d: got %s want %s", i, got, w)
		}
	}
	r.Connected()
	if n, d := r.Failed(); n != 1 || d != time.Second {
		t.Fatalf("expected restart at attempt 1 with 1s, got #%d %s", n, d)
	}

	if _, d := newRetrySchedule(0, 0).Failed(); d != DefaultReconnectDelay {
		t.Fatalf("expected default delay, got %s", d)
	}
}
