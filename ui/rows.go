package ui

import (
	"fmt"
	"sync"
)

// RowList names a widget list whose rows carry domain values.
type RowList uint8

const (
	ListProcesses RowList = iota
	ListQueue
)

func (l RowList) String() string {
	switch l {
	case ListProcesses:
		return "processes"
	case ListQueue:
		return "queue"
	default:
		return fmt.Sprintf("list(%d)", uint8(l))
	}
}

// RowID identifies one row of one list.
type RowID struct {
	List  RowList
	Index int
}

// RowValue is the domain value bound to a row. PID is set for process rows,
// QueueIndex for queue rows.
type RowValue struct {
	PID        int
	QueueIndex int
	Label      string
}

// RowTable maps widget rows to the values their activation acts on. Rows are
// rebound wholesale whenever a list is redrawn, so a stale id never resolves
// to a value from an older snapshot.
type RowTable struct {
	mu   sync.RWMutex
	rows map[RowID]RowValue
	gen  map[RowList]uint64
}

func NewRowTable() *RowTable {
	return &RowTable{
		rows: make(map[RowID]RowValue),
		gen:  make(map[RowList]uint64),
	}
}

// Bind replaces every row of list with values, indexed from zero.
func (t *RowTable) Bind(list RowList, values []RowValue) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.rows {
		if id.List == list {
			delete(t.rows, id)
		}
	}
	for i, v := range values {
		t.rows[RowID{List: list, Index: i}] = v
	}
	t.gen[list]++
}

// Lookup returns the value bound to id.
func (t *RowTable) Lookup(id RowID) (RowValue, bool) {
	if t == nil {
		return RowValue{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[id]
	return v, ok
}

// Len reports how many rows list currently has bound.
func (t *RowTable) Len(list RowList) int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for id := range t.rows {
		if id.List == list {
			n++
		}
	}
	return n
}

// Generation increments on every Bind of list.
func (t *RowTable) Generation(list RowList) uint64 {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gen[list]
}
