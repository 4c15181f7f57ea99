package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// eventFilter selects which kinds the event pane shows.
type eventFilter uint8

const (
	filterAll eventFilter = iota
	filterProblems
	filterControl
	numEventFilters
)

func (f eventFilter) String() string {
	switch f {
	case filterProblems:
		return "problems"
	case filterControl:
		return "commands"
	default:
		return "all"
	}
}

func (f eventFilter) keep(kind EventKind) bool {
	switch f {
	case filterProblems:
		return kind == EventDrop || kind == EventTransport
	case filterControl:
		return kind == EventCommand || kind == EventAck
	default:
		return true
	}
}

// EventLog draws the newest events that pass its filter. It sticks to the
// bottom until the user scrolls up and sticks again once back at the end.
type EventLog struct {
	*tview.Box
	all     []Event
	shown   []int
	filter  eventFilter
	top     int
	rows    int
	pinned  bool
	timeFmt string
}

func NewEventLog() *EventLog {
	return &EventLog{Box: tview.NewBox(), pinned: true, timeFmt: "15:04:05"}
}

// SetEvents replaces the events. The view keeps the slice until the next
// call.
func (v *EventLog) SetEvents(events []Event) {
	v.all = events
	v.refilter()
}

// CycleFilter moves to the next filter and returns it.
func (v *EventLog) CycleFilter() eventFilter {
	v.filter = (v.filter + 1) % numEventFilters
	v.pinned = true
	v.refilter()
	return v.filter
}

func (v *EventLog) refilter() {
	v.shown = v.shown[:0]
	for i := range v.all {
		if v.filter.keep(v.all[i].Kind) {
			v.shown = append(v.shown, i)
		}
	}
	v.settle()
}

func (v *EventLog) bottom() int {
	if n := len(v.shown) - v.rows; n > 0 {
		return n
	}
	return 0
}

func (v *EventLog) settle() {
	switch {
	case v.pinned, v.top > v.bottom():
		v.top = v.bottom()
	case v.top < 0:
		v.top = 0
	}
}

func (v *EventLog) Draw(screen tcell.Screen) {
	v.Box.DrawForSubclass(screen, v)
	x, y, width, height := v.GetInnerRect()
	if width <= 0 || height <= 0 {
		return
	}
	v.rows = height
	v.settle()
	if len(v.shown) == 0 && len(v.all) > 0 {
		drawText(screen, x, y, width, "no "+v.filter.String()+" events", tcell.StyleDefault.Foreground(tcell.ColorGray))
		return
	}
	for i := 0; i < height && v.top+i < len(v.shown); i++ {
		ev := v.all[v.shown[v.top+i]]
		drawText(screen, x, y+i, width, v.row(ev, width), kindStyle(ev.Kind))
	}
}

func (v *EventLog) row(ev Event, width int) string {
	stamp := ev.At.Format(v.timeFmt)
	label := "[" + ev.Kind.Label() + "] "
	return stamp + " " + label + truncateRunes(ev.Text(), width-len(stamp)-len(label)-1)
}

// InputHandler scrolls with the arrow, page and home/end keys.
func (v *EventLog) InputHandler() func(event *tcell.EventKey, setFocus func(p tview.Primitive)) {
	return v.WrapInputHandler(func(event *tcell.EventKey, setFocus func(p tview.Primitive)) {
		page := v.rows - 1
		if page < 1 {
			page = 1
		}
		switch event.Key() {
		case tcell.KeyUp:
			v.ScrollUp(1)
		case tcell.KeyDown:
			v.ScrollDown(1)
		case tcell.KeyPgUp:
			v.ScrollUp(page)
		case tcell.KeyPgDn:
			v.ScrollDown(page)
		case tcell.KeyHome:
			v.pinned = false
			v.top = 0
		case tcell.KeyEnd:
			v.pinned = true
			v.settle()
		}
	})
}

func (v *EventLog) ScrollUp(n int) {
	if n <= 0 {
		return
	}
	v.pinned = false
	v.top -= n
	v.settle()
}

func (v *EventLog) ScrollDown(n int) {
	if n <= 0 {
		return
	}
	v.top += n
	if v.top >= v.bottom() {
		v.pinned = true
	}
	v.settle()
}

// Following reports whether the view sticks to the newest event.
func (v *EventLog) Following() bool {
	return v.pinned
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var b strings.Builder
	for i, r := range []rune(s) {
		if i == max {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// drawText fills width cells of row y, padding with spaces.
func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	runes := []rune(text)
	for i := 0; i < width; i++ {
		ch := ' '
		if i < len(runes) {
			ch = runes[i]
		}
		screen.SetContent(x+i, y, ch, nil, style)
	}
}

var kindColors = [numEventKinds]tcell.Color{
	EventSystem:    tcell.ColorWhite,
	EventTransport: tcell.ColorYellow,
	EventCommand:   tcell.ColorDarkCyan,
	EventAck:       tcell.ColorGreen,
	EventTrack:     tcell.ColorHotPink,
	EventDrop:      tcell.ColorRed,
}

func kindStyle(kind EventKind) tcell.Style {
	if kind < 0 || kind >= numEventKinds {
		return tcell.StyleDefault
	}
	return tcell.StyleDefault.Foreground(kindColors[kind])
}
