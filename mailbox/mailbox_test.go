package mailbox

import (
	"sync"
	"testing"
)

type sample struct {
	seq  int
	name [8]byte
}

func TestTryTakeEmptyIsRepeatable(t *testing.T) {
	var m Mailbox[sample]
	for i := 0; i < 3; i++ {
		if _, ok := m.TryTake(); ok {
			t.Fatalf("expected empty mailbox on attempt %d", i)
		}
	}
	if m.Pending() {
		t.Fatalf("expected nothing pending")
	}
}

func TestLatestPublishWins(t *testing.T) {
	var m Mailbox[sample]
	m.Publish(sample{seq: 1})
	m.Publish(sample{seq: 2})

	got, ok := m.TryTake()
	if !ok {
		t.Fatalf("expected a pending value")
	}
	if got.seq != 2 {
		t.Fatalf("expected second publish to win, got seq=%d", got.seq)
	}
	if _, ok := m.TryTake(); ok {
		t.Fatalf("expected take to be destructive")
	}
	published, overwritten := m.Stats()
	if published != 2 || overwritten != 1 {
		t.Fatalf("unexpected stats published=%d overwritten=%d", published, overwritten)
	}
}

func TestPublishCopiesValue(t *testing.T) {
	var m Mailbox[sample]
	v := sample{seq: 7}
	copy(v.name[:], "before")
	m.Publish(v)
	copy(v.name[:], "after!")

	got, _ := m.TryTake()
	if string(got.name[:6]) != "before" {
		t.Fatalf("expected published copy to be isolated, got %q", got.name)
	}
}

func TestConcurrentProducerConsumerSeesMonotonicValues(t *testing.T) {
	var m Mailbox[sample]
	const total = 10000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			m.Publish(sample{seq: i})
		}
	}()

	last := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		if v, ok := m.TryTake(); ok {
			if v.seq <= last {
				t.Fatalf("observed stale value %d after %d", v.seq, last)
			}
			last = v.seq
		}
		select {
		case <-done:
			if v, ok := m.TryTake(); ok {
				last = v.seq
			}
			if last != total {
				t.Fatalf("expected to end on %d, got %d", total, last)
			}
			return
		default:
		}
	}
}

func TestNilMailboxIsInert(t *testing.T) {
	var m *Mailbox[int]
	m.Publish(1)
	if _, ok := m.TryTake(); ok {
		t.Fatalf("expected nil mailbox to be empty")
	}
}

func TestTakeSeqReportsPublicationOrder(t *testing.T) {
	var m Mailbox[int]
	if m.Seq() != 0 {
		t.Fatalf("expected seq 0 before any publish, got %d", m.Seq())
	}
	m.Publish(10)
	m.Publish(20)
	if m.Seq() != 2 {
		t.Fatalf("expected seq 2, got %d", m.Seq())
	}
	v, seq, ok := m.TakeSeq()
	if !ok || v != 20 || seq != 2 {
		t.Fatalf("expected value 20 at seq 2, got %d at %d (ok=%v)", v, seq, ok)
	}
	if _, seq, ok := m.TakeSeq(); ok || seq != 0 {
		t.Fatalf("expected empty take, got seq %d ok=%v", seq, ok)
	}
	m.Publish(30)
	if _, seq, _ := m.TakeSeq(); seq != 3 {
		t.Fatalf("expected seq 3, got %d", seq)
	}
}
