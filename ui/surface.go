package ui

import "io"

// Surface renders presenter state. The tview dashboard and the headless
// logger both implement it. Implementations must be safe for concurrent
// calls from the presenter, stats and logging goroutines.
type Surface interface {
	WaitReady()
	Stop()
	Render(state State)
	SetStats(lines []string)
	AppendSystem(line string)
	AppendEvent(kind EventKind, line string)
	SystemWriter() io.Writer
}
