package ui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"mediadash/commands"
	"mediadash/internal/ratelimit"
)

const (
	paneWriterMaxBytes = 64 * 1024
	defaultMaxEvents   = 500
	maxEventBytes      = 1024
	seekStep           = 10
	artworkPaneWidth   = 34
)

const (
	accentTag   = "[#ff69b4]"
	accentReset = "[-]"
)

var (
	uiBorderColor = tcell.ColorGray
	uiTitleColor  = tcell.ColorHotPink
)

// Controls are the user actions the dashboard dispatches. *Presenter
// implements it.
type Controls interface {
	TogglePlay() commands.Outcome
	Next() commands.Outcome
	Previous() commands.Outcome
	ToggleShuffle() commands.Outcome
	CycleRepeat() commands.Outcome
	ToggleLike() commands.Outcome
	SeekBy(delta int) commands.Outcome
	ActivateRow(id RowID) commands.Outcome
	RemoveRow(id RowID) commands.Outcome
}

// DashboardOptions configures the tview dashboard.
type DashboardOptions struct {
	TargetFPS   int
	EnableMouse bool
	MaxEvents   int
	// Screen replaces the terminal; tests pass a simulation screen.
	Screen tcell.Screen
	OnQuit func()
}

// Dashboard is the full-screen tview surface: artwork, now playing, system
// metrics, the process and queue lists, an event log and a stats pane.
type Dashboard struct {
	app       *tview.Application
	scheduler *frameScheduler
	metrics   *Metrics
	onQuit    func()

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	controlsMu sync.RWMutex
	controls   Controls

	stateMu   sync.Mutex
	state     State
	lastTrack string

	statsMu    sync.Mutex
	statsLines []string

	events       *EventRing
	eventScratch []Event
	eventShown   []Event

	artwork   *ArtworkView
	media     *tview.TextView
	system    *tview.TextView
	processes *tview.List
	queue     *tview.List
	eventLog  *EventLog
	stats     *tview.TextView
	footer    *tview.TextView

	focusOrder []tview.Primitive
	focusIndex int
}

// NewDashboard builds the layout and starts the tview event loop.
func NewDashboard(opts DashboardOptions) *Dashboard {
	d := buildDashboard(opts)
	d.scheduler.Start()
	go func() {
		defer close(d.done)
		if err := d.app.Run(); err != nil {
			log.Printf("UI: tview error: %v", err)
		}
	}()
	return d
}

func buildDashboard(opts DashboardOptions) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	app := tview.NewApplication().EnableMouse(opts.EnableMouse)
	if opts.Screen != nil {
		app.SetScreen(opts.Screen)
	}
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})

	maxEvents := opts.MaxEvents
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	metrics := NewMetrics(opts.TargetFPS)
	d := &Dashboard{
		app:     app,
		metrics: metrics,
		onQuit:  opts.OnQuit,
		ctx:     ctx,
		cancel:  cancel,
		ready:   ready,
		done:    make(chan struct{}),
		events:  NewEventRing(maxEvents, maxEventBytes),
	}

	d.artwork = NewArtworkView(metrics)
	d.artwork.SetBorder(true).SetTitle(accentText("Artwork")).SetTitleAlign(tview.AlignLeft)
	d.artwork.SetBorderColor(uiBorderColor)
	d.media = newBoxedTextView("Now Playing")
	d.system = newBoxedTextView("System")
	d.processes = newBoxedList("Processes (Enter: kill)")
	d.queue = newBoxedList("Queue (Enter: play, d: remove)")
	d.eventLog = NewEventLog()
	d.eventLog.SetBorder(true).SetTitle(accentText("Events")).SetTitleAlign(tview.AlignLeft)
	d.eventLog.SetBorderColor(uiBorderColor)
	d.stats = newBoxedTextView("Stats")
	d.footer = buildFooter()

	d.processes.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		d.dispatch("kill", func(c Controls) commands.Outcome {
			return c.ActivateRow(RowID{List: ListProcesses, Index: index})
		})
	})
	d.queue.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		d.dispatch("play now", func(c Controls) commands.Outcome {
			return c.ActivateRow(RowID{List: ListQueue, Index: index})
		})
	})

	d.media.SetText("[gray]waiting for host...")
	d.stats.SetText("[gray]no stats yet")

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.media, 7, 0, false).
		AddItem(d.system, 5, 0, false)
	top := tview.NewFlex().
		AddItem(d.artwork, artworkPaneWidth, 0, false).
		AddItem(right, 0, 1, false)
	lists := tview.NewFlex().
		AddItem(d.processes, 0, 1, true).
		AddItem(d.queue, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 18, 0, false).
		AddItem(lists, 7, 0, true).
		AddItem(d.eventLog, 0, 1, false).
		AddItem(d.stats, 5, 0, false).
		AddItem(d.footer, 1, 0, false)

	d.focusOrder = []tview.Primitive{d.processes, d.queue, d.eventLog}
	d.installKeybindings()
	app.SetRoot(root, true).SetFocus(d.processes)

	d.scheduler = newFrameScheduler(app, opts.TargetFPS, 100*time.Millisecond, metrics.ObserveRender)
	return d
}

// SetControls attaches the action handler. Keys pressed before it is set
// are ignored.
func (d *Dashboard) SetControls(c Controls) {
	if d == nil {
		return
	}
	d.controlsMu.Lock()
	d.controls = c
	d.controlsMu.Unlock()
}

// Metrics exposes draw latency counters.
func (d *Dashboard) Metrics() *Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

// Done is closed when the tview loop exits.
func (d *Dashboard) Done() <-chan struct{} {
	return d.done
}

func (d *Dashboard) installKeybindings() {
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyTab:
			d.cycleFocus(1)
			return nil
		case tcell.KeyBacktab:
			d.cycleFocus(-1)
			return nil
		case tcell.KeyLeft:
			d.dispatch("seek", func(c Controls) commands.Outcome { return c.SeekBy(-seekStep) })
			return nil
		case tcell.KeyRight:
			d.dispatch("seek", func(c Controls) commands.Outcome { return c.SeekBy(seekStep) })
			return nil
		case tcell.KeyCtrlC:
			d.quit()
			return nil
		case tcell.KeyRune:
		default:
			return event
		}
		switch event.Rune() {
		case ' ':
			d.dispatch("play/pause", Controls.TogglePlay)
		case 'n':
			d.dispatch("next", Controls.Next)
		case 'p':
			d.dispatch("previous", Controls.Previous)
		case 's':
			d.dispatch("shuffle", Controls.ToggleShuffle)
		case 'r':
			d.dispatch("repeat", Controls.CycleRepeat)
		case 'l':
			d.dispatch("like", Controls.ToggleLike)
		case 'd':
			if d.app.GetFocus() != d.queue {
				return event
			}
			index := d.queue.GetCurrentItem()
			d.dispatch("remove", func(c Controls) commands.Outcome {
				return c.RemoveRow(RowID{List: ListQueue, Index: index})
			})
		case 'f':
			d.cycleEventFilter()
		case 'q':
			d.quit()
		default:
			return event
		}
		return nil
	})
}

func (d *Dashboard) cycleFocus(step int) {
	n := len(d.focusOrder)
	d.focusIndex = ((d.focusIndex+step)%n + n) % n
	d.app.SetFocus(d.focusOrder[d.focusIndex])
}

func (d *Dashboard) cycleEventFilter() {
	title := "Events"
	if f := d.eventLog.CycleFilter(); f != filterAll {
		title += " (" + f.String() + ")"
	}
	d.eventLog.SetTitle(accentText(title))
}

func (d *Dashboard) quit() {
	if d.onQuit != nil {
		d.onQuit()
		return
	}
	d.app.Stop()
}

// dispatch runs an action and notes its outcome in the event log. Debounced
// repeats are silent.
func (d *Dashboard) dispatch(label string, action func(Controls) commands.Outcome) {
	d.controlsMu.RLock()
	c := d.controls
	d.controlsMu.RUnlock()
	if c == nil {
		return
	}
	switch out := action(c); out {
	case commands.Queued:
		d.AppendEvent(EventCommand, label)
	case commands.Dropped:
		d.AppendEvent(EventDrop, label+": command queue full")
	case commands.Rejected:
		d.AppendEvent(EventDrop, label+": not available")
	}
}

func (d *Dashboard) WaitReady() {
	if d == nil || d.ready == nil {
		return
	}
	select {
	case <-d.ready:
	case <-d.done:
	}
}

func (d *Dashboard) Stop() {
	if d == nil {
		return
	}
	d.cancel()
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	d.app.Stop()
	select {
	case <-d.done:
	case <-time.After(200 * time.Millisecond):
		log.Printf("UI: dashboard stop timeout")
	}
}

// Render stores st and schedules the panes it touches.
func (d *Dashboard) Render(st State) {
	if d == nil {
		return
	}
	d.stateMu.Lock()
	d.state = st
	track := ""
	if st.HasSnapshot && st.Snapshot.HasMedia {
		track = trackLine(st.Snapshot.Media)
	}
	trackChanged := track != d.lastTrack
	d.lastTrack = track
	d.stateMu.Unlock()

	if trackChanged && track != "" {
		d.AppendEvent(EventTrack, track)
	}
	d.scheduler.Schedule(paneMedia, d.renderMedia)
	d.scheduler.Schedule(paneFooter, d.renderFooter)
	if st.Fresh {
		d.scheduler.Schedule(paneSystem, d.renderSystem)
		d.scheduler.Schedule(paneLists, d.renderLists)
	}
	if st.ArtworkChanged {
		d.scheduler.Schedule(paneArtwork, d.renderArtwork)
	}
}

func (d *Dashboard) current() State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

func (d *Dashboard) renderMedia() {
	st := d.current()
	if !st.HasSnapshot {
		return
	}
	if !st.Snapshot.HasMedia {
		d.media.SetText("[gray]nothing playing")
		return
	}
	m := st.Snapshot.Media
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s\n", accentTag, tview.Escape(m.Title), accentReset)
	fmt.Fprintf(&b, "%s\n", tview.Escape(m.Artist))
	fmt.Fprintf(&b, "[gray]%s[-]\n", tview.Escape(m.Album))
	_, _, width, _ := d.media.GetInnerRect()
	barWidth := width - 2
	if barWidth < 10 {
		barWidth = 30
	}
	fmt.Fprintf(&b, "%s\n", progressBar(st.Position, st.Duration, barWidth))
	b.WriteString(tview.Escape(statusLine(st)))
	d.media.SetText(b.String())
}

func (d *Dashboard) renderSystem() {
	st := d.current()
	s := st.Snapshot
	d.system.SetText(strings.Join([]string{
		percentBar("CPU", s.CPU, 20),
		percentBar("MEM", s.Mem, 20),
		percentBar("GPU", s.GPU, 20),
	}, "\n"))
}

func (d *Dashboard) renderLists() {
	st := d.current()
	fillList(d.processes, processLabels(st))
	fillList(d.queue, queueLabels(st))
}

func processLabels(st State) []string {
	procs := st.Snapshot.ProcessList()
	out := make([]string, len(procs))
	for i, p := range procs {
		out[i] = p.Label
	}
	return out
}

func queueLabels(st State) []string {
	queue := st.Snapshot.QueueList()
	out := make([]string, len(queue))
	for i, q := range queue {
		label := q.Name
		if q.Artist != "" {
			label += " - " + q.Artist
		}
		if q.Duration > 0 {
			label += " (" + formatClock(q.Duration) + ")"
		}
		out[i] = label
	}
	return out
}

// fillList replaces the list items while keeping the cursor row.
func fillList(list *tview.List, labels []string) {
	cur := list.GetCurrentItem()
	list.Clear()
	for _, label := range labels {
		list.AddItem(tview.Escape(label), "", 0, nil)
	}
	if cur >= 0 && cur < len(labels) {
		list.SetCurrentItem(cur)
	}
}

func (d *Dashboard) renderArtwork() {
	st := d.current()
	d.artwork.SetPixels(st.Format, st.Pixels)
}

func (d *Dashboard) renderFooter() {
	st := d.current()
	link := "[red]○ disconnected[-]"
	if st.Connected {
		link = "[green]● " + tview.Escape(st.Link) + "[-]"
	} else if st.Link != "" {
		link = "[yellow]○ " + tview.Escape(st.Link) + "[-]"
	}
	d.footer.SetText(link + "  " + footerKeys)
}

func (d *Dashboard) SetStats(lines []string) {
	if d == nil {
		return
	}
	d.statsMu.Lock()
	d.statsLines = append(d.statsLines[:0], lines...)
	d.statsMu.Unlock()
	d.scheduler.Schedule(paneStats, func() {
		d.statsMu.Lock()
		text := strings.Join(d.statsLines, "\n")
		d.statsMu.Unlock()
		d.stats.SetText(tview.Escape(text + "\n" + d.events.Line() + "\n" + d.metrics.Line() +
			fmt.Sprintf(", %d redraws superseded", d.scheduler.Superseded())))
	})
}

func (d *Dashboard) AppendSystem(line string) {
	d.AppendEvent(EventSystem, line)
}

func (d *Dashboard) AppendEvent(kind EventKind, line string) {
	if d == nil {
		return
	}
	d.events.Append(Event{At: time.Now().UTC(), Kind: kind, Message: stripTags(line)})
	d.scheduler.Schedule(paneEvents, func() {
		events, _ := d.events.Snapshot(d.eventScratch[:0])
		// The view keeps the slice until the next flush, so alternate buffers.
		d.eventScratch, d.eventShown = d.eventShown, events
		d.eventLog.SetEvents(events)
	})
}

func (d *Dashboard) SystemWriter() io.Writer {
	if d == nil {
		return nil
	}
	return &paneWriter{sink: d, dropLog: ratelimit.NewCounter(30 * time.Second)}
}

// paneWriter splits log output into lines for the event log.
type paneWriter struct {
	sink Surface
	// buf holds a partial line, bounded when no newline arrives.
	buf     []byte
	mu      sync.Mutex
	dropLog ratelimit.Counter
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.sink == nil {
		return len(p), nil
	}
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	excess := len(w.buf) - paneWriterMaxBytes
	if excess > 0 {
		w.buf = w.buf[excess:]
	}
	var lines []string
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(w.buf[:idx], "\r")))
		w.buf = w.buf[idx+1:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	w.mu.Unlock()

	if excess > 0 {
		if total, ok := w.dropLog.Inc(); ok {
			w.sink.AppendSystem(fmt.Sprintf("UI: dropped %d bytes of unterminated log output (drops=%d)", excess, total))
		}
	}
	for _, line := range lines {
		w.sink.AppendSystem(line)
	}
	return len(p), nil
}

var tagPattern = regexp.MustCompile(`\[[a-zA-Z#0-9:\-]*\]`)

// stripTags removes tview color tags so log text renders verbatim.
func stripTags(s string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	return tagPattern.ReplaceAllString(s, "")
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	tv.SetBorder(true)
	if title != "" {
		tv.SetTitle(accentText(title)).SetTitleAlign(tview.AlignLeft)
	}
	tv.SetBorderColor(uiBorderColor)
	tv.SetTitleColor(uiTitleColor)
	return tv
}

func newBoxedList(title string) *tview.List {
	list := tview.NewList().ShowSecondaryText(false).SetHighlightFullLine(true)
	list.SetBorder(true)
	list.SetTitle(accentText(title)).SetTitleAlign(tview.AlignLeft)
	list.SetBorderColor(uiBorderColor)
	list.SetTitleColor(uiTitleColor)
	return list
}

const footerKeys = "[#ff69b4]Space[-]Play/Pause  [#ff69b4]N/P[-]Next/Prev  [#ff69b4]←/→[-]Seek  " +
	"[#ff69b4]S[-]Shuffle  [#ff69b4]R[-]Repeat  [#ff69b4]L[-]Like  [#ff69b4]Tab[-]Focus  [#ff69b4]F[-]Filter  [Q]Quit"

func buildFooter() *tview.TextView {
	return tview.NewTextView().SetDynamicColors(true).SetText("[red]○ disconnected[-]  " + footerKeys)
}

func accentText(text string) string {
	if text == "" {
		return ""
	}
	return accentTag + text + accentReset
}
