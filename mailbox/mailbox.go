// Package mailbox implements a single-slot, latest-wins handoff between one
// producer and one consumer.
//
// Publish never blocks and always replaces whatever is pending; TryTake never
// blocks and empties the slot. There is no queue and no history: a consumer
// that falls behind simply sees the newest value when it next looks.
package mailbox

import "sync/atomic"

// Mailbox holds at most one pending value. The zero value is ready to use.
// Values are copied in on Publish and copied out on TryTake, so neither side
// ever shares memory with the other.
type Mailbox[T any] struct {
	slot       atomic.Pointer[entry[T]]
	published  atomic.Uint64
	overwrites atomic.Uint64
}

// entry pairs a value with its publication sequence, starting at 1.
type entry[T any] struct {
	v   T
	seq uint64
}

// Publish stores v, discarding any value the consumer has not taken yet.
func (m *Mailbox[T]) Publish(v T) {
	if m == nil {
		return
	}
	boxed := &entry[T]{v: v, seq: m.published.Add(1)}
	if prev := m.slot.Swap(boxed); prev != nil {
		m.overwrites.Add(1)
	}
}

// TryTake returns the pending value and clears the slot. ok is false when
// nothing was pending.
func (m *Mailbox[T]) TryTake() (v T, ok bool) {
	v, _, ok = m.TakeSeq()
	return v, ok
}

// TakeSeq is TryTake that also returns the publication sequence of the
// value taken.
func (m *Mailbox[T]) TakeSeq() (v T, seq uint64, ok bool) {
	if m == nil {
		return v, 0, false
	}
	boxed := m.slot.Swap(nil)
	if boxed == nil {
		return v, 0, false
	}
	return boxed.v, boxed.seq, true
}

// Seq returns the sequence of the most recent publication, 0 before the
// first. A producer-side event stamped with Seq orders after every value
// published before it.
func (m *Mailbox[T]) Seq() uint64 {
	if m == nil {
		return 0
	}
	return m.published.Load()
}

// Pending reports whether a value is waiting. Informational only; the answer
// may be stale by the time the caller acts on it.
func (m *Mailbox[T]) Pending() bool {
	return m != nil && m.slot.Load() != nil
}

// Stats returns how many values were published and how many of those were
// overwritten before the consumer saw them.
func (m *Mailbox[T]) Stats() (published, overwritten uint64) {
	if m == nil {
		return 0, 0
	}
	return m.published.Load(), m.overwrites.Load()
}
