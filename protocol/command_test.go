package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestCommandEncoding(t *testing.T) {
	cases := []struct {
		cmd  Command
		want string
	}{
		{Play(), `{"cmd":"play"}` + "\n"},
		{Kill(1234), `{"cmd":"kill","pid":1234}` + "\n"},
		{Shuffle(true), `{"cmd":"shuffle","state":true}` + "\n"},
		{Shuffle(false), `{"cmd":"shuffle","state":false}` + "\n"},
		{Repeat(RepeatTrack), `{"cmd":"repeat","state":"track"}` + "\n"},
		{QueueAction(QueuePlayNow, 2), `{"cmd":"queue_action","action":"play_now","index":2}` + "\n"},
		{Seek(0), `{"cmd":"seek","position":0}` + "\n"},
	}
	for _, tc := range cases {
		got, err := tc.cmd.Encode()
		if err != nil {
			t.Fatalf("%s: encode: %v", tc.cmd.Name, err)
		}
		if string(got) != tc.want {
			t.Fatalf("%s: got %q want %q", tc.cmd.Name, got, tc.want)
		}
	}
}

func TestCommandTooLong(t *testing.T) {
	_, err := QueueAction(strings.Repeat("x", MaxCommandBytes), 1).Encode()
	if !errors.Is(err, ErrCommandTooLong) {
		t.Fatalf("expected ErrCommandTooLong, got %v", err)
	}
	if _, err := (Command{}).Encode(); err == nil {
		t.Fatalf("expected error for unnamed command")
	}
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"cmd":"queue_action","action":"remove","index":3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Name != CmdQueueAction || cmd.Action != QueueRemove || cmd.Index == nil || *cmd.Index != 3 {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if _, err := DecodeCommand([]byte(`{"action":"x"}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for missing cmd, got %v", err)
	}
}

func TestRepeatModeCycle(t *testing.T) {
	m := RepeatOff
	seen := []string{}
	for i := 0; i < 3; i++ {
		m = m.Next()
		seen = append(seen, m.String())
	}
	if strings.Join(seen, ",") != "context,track,off" {
		t.Fatalf("unexpected cycle %v", seen)
	}
	if ParseRepeatMode("TRACK") != RepeatTrack || ParseRepeatMode("bogus") != RepeatOff {
		t.Fatalf("unexpected parse results")
	}
}
