package session

import (
	"errors"
	"testing"

	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/store"
)

func serialize(t *testing.T, msgs ...protocol.Message) []byte {
	t.Helper()
	var out []byte
	for _, m := range msgs {
		data, err := protocol.Serialize(m)
		if err != nil {
			t.Fatalf("Serialize(%v) error = %v", m.Type(), err)
		}
		out = append(out, data...)
	}
	return out
}

func TestFeedSplitAtEveryByte(t *testing.T) {
	stream := serialize(t,
		&protocol.EntryAssignment{Name: "robot/speed", ID: 4, Value: protocol.DoubleValue(1.25)},
		&protocol.EntryUpdate{ID: 4, Seq: 1, Value: protocol.DoubleValue(2.5)},
		&protocol.KeepAlive{},
	)

	for cut := 0; cut <= len(stream); cut++ {
		s := New("peer", RoleClient)

		first, err := s.Feed(stream[:cut])
		if err != nil {
			t.Fatalf("cut %d: Feed() error = %v", cut, err)
		}
		second, err := s.Feed(stream[cut:])
		if err != nil {
			t.Fatalf("cut %d: Feed() error = %v", cut, err)
		}

		all := append(first, second...)
		if len(all) != 3 {
			t.Fatalf("cut %d: got %d messages, want 3", cut, len(all))
		}
		if all[0].Type() != protocol.MsgEntryAssignment ||
			all[1].Type() != protocol.MsgEntryUpdate ||
			all[2].Type() != protocol.MsgKeepAlive {
			t.Errorf("cut %d: order = %v, %v, %v", cut, all[0].Type(), all[1].Type(), all[2].Type())
		}
		if s.Buffered() != 0 {
			t.Errorf("cut %d: %d bytes left buffered", cut, s.Buffered())
		}
	}
}

func TestFeedByteAtATime(t *testing.T) {
	stream := serialize(t,
		&protocol.ServerHello{ServerID: "srv", ClientID: "c1"},
		&protocol.ServerHelloComplete{},
	)

	s := New("peer", RoleClient)
	var got []protocol.Message
	for i := range stream {
		msgs, err := s.Feed(stream[i : i+1])
		if err != nil {
			t.Fatalf("Feed() error = %v", err)
		}
		got = append(got, msgs...)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
}

func TestFeedSkipsBadFrame(t *testing.T) {
	stream := serialize(t, &protocol.EntryDelete{ID: 1})
	// Unknown message type, then an update with an unknown value tag.
	stream = append(stream, 0x7F, 0x00, 0x01, 0xAA)
	stream = append(stream, 0x11, 0x00, 0x06, 0x00, 0x01, 0x00, 0x01, 0x09, 0x00)
	stream = append(stream, serialize(t, &protocol.EntryDelete{ID: 2})...)

	s := New("peer", RoleServer)
	msgs, err := s.Feed(stream)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !errors.Is(err, protocol.ErrUnknownMessageType) || !errors.Is(err, protocol.ErrUnknownValueType) {
		t.Errorf("Feed() error = %v, want both decode errors", err)
	}
	if got := msgs[1].(*protocol.EntryDelete).ID; got != 2 {
		t.Errorf("second message ID = %d, want 2", got)
	}
}

func TestFeedAfterClose(t *testing.T) {
	s := New("peer", RoleClient)
	s.Close()
	if _, err := s.Feed([]byte{0x00, 0x00, 0x00}); !errors.Is(err, ErrClosed) {
		t.Errorf("Feed() error = %v, want ErrClosed", err)
	}
}

func TestNewer(t *testing.T) {
	tests := []struct {
		seq, last uint16
		want      bool
	}{
		{1, 0, true},
		{0, 0, false},
		{0, 1, false},
		{2, 1, true},
		{0, 65535, true},
		{65535, 0, false},
		{100, 65500, true},
	}
	for _, tc := range tests {
		if got := newer(tc.seq, tc.last); got != tc.want {
			t.Errorf("newer(%d, %d) = %v, want %v", tc.seq, tc.last, got, tc.want)
		}
	}
}

func TestPhaseAndRoleString(t *testing.T) {
	if Ready.String() != "Ready" || Phase(9).String() != "Unknown" {
		t.Errorf("Phase.String() mismatch")
	}
	if RoleServer.String() != "server" || RoleClient.String() != "client" {
		t.Errorf("Role.String() mismatch")
	}
	if got := New("x", RoleServer).Origin(); got != store.Remote("x") {
		t.Errorf("Origin() = %v", got)
	}
}
