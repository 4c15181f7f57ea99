package ui

import "testing"

func TestRowTableRebindReplacesList(t *testing.T) {
	rows := NewRowTable()
	rows.Bind(ListProcesses, []RowValue{{PID: 1}, {PID: 2}, {PID: 3}})
	rows.Bind(ListQueue, []RowValue{{QueueIndex: 0}})

	rows.Bind(ListProcesses, []RowValue{{PID: 9}})
	if n := rows.Len(ListProcesses); n != 1 {
		t.Fatalf("expected 1 process row after rebind, got %d", n)
	}
	if _, ok := rows.Lookup(RowID{List: ListProcesses, Index: 2}); ok {
		t.Fatalf("stale row should not resolve after rebind")
	}
	if v, ok := rows.Lookup(RowID{List: ListProcesses, Index: 0}); !ok || v.PID != 9 {
		t.Fatalf("unexpected row 0: %+v ok=%v", v, ok)
	}
	if n := rows.Len(ListQueue); n != 1 {
		t.Fatalf("queue rows should be untouched, got %d", n)
	}
	if g := rows.Generation(ListProcesses); g != 2 {
		t.Fatalf("expected generation 2, got %d", g)
	}
}

func TestRowTableNil(t *testing.T) {
	var rows *RowTable
	rows.Bind(ListQueue, []RowValue{{QueueIndex: 1}})
	if _, ok := rows.Lookup(RowID{List: ListQueue}); ok {
		t.Fatalf("nil table should resolve nothing")
	}
	if ListQueue.String() != "queue" || RowList(7).String() != "list(7)" {
		t.Fatalf("unexpected list names")
	}
}
