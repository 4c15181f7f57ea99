package protocol

import (
	"errors"
	"fmt"
)

// MaxCommandBytes bounds an encoded outbound command, newline included.
const MaxCommandBytes = 128

// ErrCommandTooLong is returned when an encoded command exceeds MaxCommandBytes.
var ErrCommandTooLong = errors.New("protocol: command too long")

// Command names understood by the host.
const (
	CmdPlay        = "play"
	CmdPause       = "pause"
	CmdNext        = "next"
	CmdPrevious    = "previous"
	CmdSeek        = "seek"
	CmdShuffle     = "shuffle"
	CmdRepeat      = "repeat"
	CmdLike        = "like"
	CmdKill        = "kill"
	CmdQueueAction = "queue_action"
)

// Queue actions carried by CmdQueueAction.
const (
	QueuePlayNow = "play_now"
	QueueRemove  = "remove"
)

// Command is one outbound control request, {"cmd": Name, ...params}.
type Command struct {
	Name     string
	PID      *int
	State    any
	Action   string
	Index    *int
	Position *int
}

type wireCommand struct {
	Cmd      string `json:"cmd"`
	PID      *int   `json:"pid,omitempty"`
	State    any    `json:"state,omitempty"`
	Action   string `json:"action,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Position *int   `json:"position,omitempty"`
}

func Play() Command     { return Command{Name: CmdPlay} }
func Pause() Command    { return Command{Name: CmdPause} }
func Next() Command     { return Command{Name: CmdNext} }
func Previous() Command { return Command{Name: CmdPrevious} }

func Seek(seconds int) Command {
	return Command{Name: CmdSeek, Position: &seconds}
}

func Shuffle(on bool) Command {
	return Command{Name: CmdShuffle, State: on}
}

func Repeat(mode RepeatMode) Command {
	return Command{Name: CmdRepeat, State: mode.String()}
}

func Like(on bool) Command {
	return Command{Name: CmdLike, State: on}
}

func Kill(pid int) Command {
	return Command{Name: CmdKill, PID: &pid}
}

func QueueAction(action string, index int) Command {
	return Command{Name: CmdQueueAction, Action: action, Index: &index}
}

// Encode renders the command as one newline-terminated line.
func (c Command) Encode() ([]byte, error) {
	if c.Name == "" {
		return nil, errors.New("protocol: command has no name")
	}
	line, err := json.Marshal(wireCommand{
		Cmd:      c.Name,
		PID:      c.PID,
		State:    c.State,
		Action:   c.Action,
		Index:    c.Index,
		Position: c.Position,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name, err)
	}
	line = append(line, '\n')
	if len(line) > MaxCommandBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrCommandTooLong, c.Name, len(line))
	}
	return line, nil
}

// DecodeCommand parses an inbound command line, as the host side does.
func DecodeCommand(line []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(line, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Cmd == "" {
		return Command{}, fmt.Errorf("%w: missing cmd", ErrMalformed)
	}
	return Command{
		Name:     w.Cmd,
		PID:      w.PID,
		State:    w.State,
		Action:   w.Action,
		Index:    w.Index,
		Position: w.Position,
	}, nil
}
