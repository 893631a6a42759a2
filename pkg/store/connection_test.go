package store

import (
	"testing"
)

func TestConnectionListener(t *testing.T) {
	s := New()
	var got []ConnectionNotification
	s.AddConnectionListener(func(n ConnectionNotification) {
		got = append(got, n)
	}, false)

	s.UpdateConnection("srv", ConnectionInfo{State: Connecting, Address: "127.0.0.1:1735"})
	s.UpdateConnection("srv", ConnectionInfo{State: Connecting, Address: "127.0.0.1:1735"})
	s.UpdateConnection("srv", ConnectionInfo{State: Connected, Address: "127.0.0.1:1735", RemoteID: "server", ProtocolVersion: 0x0300})
	s.UpdateConnection("srv", ConnectionInfo{State: Disconnected, Address: "127.0.0.1:1735"})

	if len(got) != 3 {
		t.Fatalf("notifications = %d, want 3", len(got))
	}
	if got[0].Old.State != Disconnected || got[0].New.State != Connecting {
		t.Errorf("first transition = %v -> %v", got[0].Old.State, got[0].New.State)
	}
	if got[1].Old.State != Connecting || got[1].New.State != Connected || got[1].New.RemoteID != "server" {
		t.Errorf("second transition = %+v", got[1])
	}
	if got[2].Old.State != Connected || got[2].New.State != Disconnected {
		t.Errorf("third transition = %v -> %v", got[2].Old.State, got[2].New.State)
	}
	if got[1].New.LastChange.IsZero() {
		t.Errorf("LastChange not stamped")
	}
	if len(s.Connections()) != 0 {
		t.Errorf("Connections() = %v, want empty after disconnect", s.Connections())
	}
}

func TestConnectionListenerImmediate(t *testing.T) {
	s := New()
	s.UpdateConnection("b", ConnectionInfo{State: Connected, RemoteID: "b"})
	s.UpdateConnection("a", ConnectionInfo{State: Connecting})

	var keys []string
	id := s.AddConnectionListener(func(n ConnectionNotification) {
		if !n.Immediate {
			t.Errorf("notification not marked immediate: %+v", n)
		}
		keys = append(keys, n.Key)
	}, true)

	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("immediate keys = %v, want [a b]", keys)
	}

	s.RemoveConnectionListener(id)
	s.UpdateConnection("c", ConnectionInfo{State: Connected})
	if len(keys) != 2 {
		t.Errorf("removed listener still called")
	}
}

func TestConnectionStateString(t *testing.T) {
	tests := map[ConnectionState]string{
		Disconnected:        "Disconnected",
		Connecting:          "Connecting",
		Connected:           "Connected",
		ConnectionState(42): "Unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
