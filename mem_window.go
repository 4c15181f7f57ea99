package main

import (
	"runtime"
	"slices"
	"time"
)

// memSample is what one stats tick reports about the runtime.
type memSample struct {
	Heap       uint64
	HeapGrowth int64
	GCs        int
	PauseP99   time.Duration
	// Truncated is set when more collections ran than the pause ring holds.
	Truncated bool
}

// memWindow diffs successive runtime.MemStats readings. Only the stats
// goroutine calls observe.
type memWindow struct {
	numGC  uint32
	heap   uint64
	primed bool
}

func (w *memWindow) observe(mem *runtime.MemStats) memSample {
	if mem == nil {
		return memSample{}
	}
	s := memSample{Heap: mem.HeapAlloc}
	if !w.primed {
		w.primed = true
		w.numGC = mem.NumGC
		w.heap = mem.HeapAlloc
		return s
	}
	s.HeapGrowth = int64(mem.HeapAlloc) - int64(w.heap)
	w.heap = mem.HeapAlloc

	if mem.NumGC <= w.numGC {
		return s
	}
	n := int(mem.NumGC - w.numGC)
	w.numGC = mem.NumGC
	ring := len(mem.PauseNs)
	if n > ring {
		n = ring
		s.Truncated = true
	}
	pauses := make([]uint64, 0, n)
	// PauseNs[(NumGC+255)%256] is the most recent pause.
	for i := 0; i < n; i++ {
		idx := (int(mem.NumGC) - 1 - i + ring*2) % ring
		if v := mem.PauseNs[idx]; v > 0 {
			pauses = append(pauses, v)
		}
	}
	s.GCs = len(pauses)
	s.PauseP99 = time.Duration(percentile99(pauses))
	return s
}

func percentile99(v []uint64) uint64 {
	if len(v) == 0 {
		return 0
	}
	slices.Sort(v)
	return v[int(float64(len(v)-1)*0.99)]
}
