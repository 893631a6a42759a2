package session

import (
	"errors"
	"testing"

	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/store"
)

// readyServerSession returns a server-role session that has completed
// the handshake.
func readyServerSession(t *testing.T, st *store.Store) *Session {
	t.Helper()
	s := New("c1", RoleServer)
	s.Hello("srv")
	if _, err := s.Apply(st, &protocol.ClientHello{Version: protocol.ProtocolVersion, Name: "dash"}); err != nil {
		t.Fatalf("Apply(ClientHello) error = %v", err)
	}
	res, err := s.Apply(st, &protocol.ClientHelloComplete{})
	if err != nil {
		t.Fatalf("Apply(ClientHelloComplete) error = %v", err)
	}
	if !res.Ready {
		t.Fatalf("Apply(ClientHelloComplete) did not report Ready")
	}
	return s
}

func TestClientHandshake(t *testing.T) {
	st := store.New()
	s := New("srv-addr", RoleClient)

	hello, ok := s.Hello("robot").(*protocol.ClientHello)
	if !ok || hello.Version != protocol.ProtocolVersion || hello.Name != "robot" {
		t.Fatalf("Hello() = %#v", hello)
	}
	if !s.CanSend() {
		t.Errorf("CanSend() = false after Hello")
	}

	res, err := s.Apply(st, &protocol.ServerHello{ServerID: "srv", ClientID: "c1"})
	if err != nil {
		t.Fatalf("Apply(ServerHello) error = %v", err)
	}
	if len(res.Replies) != 1 || res.Replies[0].Type() != protocol.MsgClientHelloComplete {
		t.Fatalf("replies = %v, want ClientHelloComplete", res.Replies)
	}
	if s.Phase() != AwaitingHelloComplete || s.RemoteID() != "srv" {
		t.Errorf("phase = %v, remote = %q", s.Phase(), s.RemoteID())
	}

	res, err = s.Apply(st, &protocol.ServerHelloComplete{})
	if err != nil || !res.Ready || !s.Ready() {
		t.Fatalf("Apply(ServerHelloComplete) = %+v, %v; ready %v", res, err, s.Ready())
	}
}

func TestServerHandshake(t *testing.T) {
	st := store.New()
	s := New("c1", RoleServer)

	hello, ok := s.Hello("srv").(*protocol.ServerHello)
	if !ok || hello.ServerID != "srv" || hello.ClientID != "c1" {
		t.Fatalf("Hello() = %#v", hello)
	}

	if _, err := s.Apply(st, &protocol.ClientHelloComplete{}); !errors.Is(err, ErrUnexpectedMessage) {
		t.Errorf("early ClientHelloComplete error = %v, want ErrUnexpectedMessage", err)
	}

	s = readyServerSession(t, st)
	if s.RemoteID() != "dash" || s.ProtocolVersion() != protocol.ProtocolVersion {
		t.Errorf("remote = %q version = %#x", s.RemoteID(), s.ProtocolVersion())
	}
}

func TestServerRejectsVersion(t *testing.T) {
	s := New("c1", RoleServer)
	res, err := s.Apply(store.New(), &protocol.ClientHello{Version: 0x0200})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("error = %v, want ErrVersionMismatch", err)
	}
	if len(res.Replies) != 1 {
		t.Fatalf("replies = %v, want ProtoUnsupported", res.Replies)
	}
	pu, ok := res.Replies[0].(*protocol.ProtoUnsupported)
	if !ok || pu.ServerVersion != protocol.ProtocolVersion {
		t.Errorf("reply = %#v", res.Replies[0])
	}
	if s.Phase() != Closed {
		t.Errorf("phase = %v, want Closed", s.Phase())
	}
}

func TestClientProtoUnsupported(t *testing.T) {
	s := New("srv", RoleClient)
	s.Hello("")
	_, err := s.Apply(store.New(), &protocol.ProtoUnsupported{ServerVersion: 0x0200})
	if !errors.Is(err, ErrProtoUnsupported) {
		t.Fatalf("error = %v, want ErrProtoUnsupported", err)
	}
}

func TestEntryBeforeReadyRejected(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Session, st *store.Store)
		want  Phase
	}{
		{
			name:  "awaiting hello",
			setup: func(*Session, *store.Store) {},
			want:  AwaitingHello,
		},
		{
			name: "awaiting hello complete",
			setup: func(s *Session, st *store.Store) {
				s.Hello("srv")
				if _, err := s.Apply(st, &protocol.ClientHello{Version: protocol.ProtocolVersion, Name: "dash"}); err != nil {
					t.Fatalf("Apply(ClientHello) error = %v", err)
				}
			},
			want: AwaitingHelloComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.New()
			s := New("c1", RoleServer)
			tt.setup(s, st)
			if s.Phase() != tt.want {
				t.Fatalf("Phase() = %v, want %v", s.Phase(), tt.want)
			}

			msgs := []protocol.Message{
				&protocol.EntryAssignment{Name: "x", Value: protocol.BooleanValue(true)},
				&protocol.EntryUpdate{ID: 0, Seq: 1, Value: protocol.BooleanValue(false)},
				&protocol.ClearEntries{},
			}
			for _, m := range msgs {
				if _, err := s.Apply(st, m); !errors.Is(err, ErrUnexpectedMessage) {
					t.Errorf("Apply(%v) error = %v, want ErrUnexpectedMessage", m.Type(), err)
				}
			}
			if st.Len() != 0 {
				t.Errorf("store modified before handshake: Len() = %d", st.Len())
			}
			if _, ok := s.InboundName(0); ok {
				t.Error("inbound id bound before handshake")
			}
			if s.Phase() != tt.want {
				t.Errorf("Phase() after rejects = %v, want %v", s.Phase(), tt.want)
			}
		})
	}
}

func TestSequenceOrdering(t *testing.T) {
	st := store.New()
	s := readyServerSession(t, st)

	// Establish sequence 0 as the baseline.
	if _, err := s.Apply(st, &protocol.EntryAssignment{Name: "v", ID: 7, Seq: 0, Value: protocol.DoubleValue(0)}); err != nil {
		t.Fatalf("Apply(assignment) error = %v", err)
	}

	// Updates 2, 0, 1 arrive in that order; only 2 is newer than what came before.
	steps := []struct {
		seq       uint16
		value     float64
		wantStale bool
	}{
		{2, 2, false},
		{0, 0, true},
		{1, 1, true},
		{2, 22, true},
	}
	for _, step := range steps {
		res, err := s.Apply(st, &protocol.EntryUpdate{ID: 7, Seq: step.seq, Value: protocol.DoubleValue(step.value)})
		if err != nil {
			t.Fatalf("Apply(seq %d) error = %v", step.seq, err)
		}
		if res.Stale != step.wantStale {
			t.Errorf("Apply(seq %d) stale = %v, want %v", step.seq, res.Stale, step.wantStale)
		}
	}

	e, _ := st.Get("v")
	if e.Value.Double != 2 {
		t.Errorf("value = %v, want 2", e.Value.Double)
	}
}

func TestApplyUsesRemoteOrigin(t *testing.T) {
	st := store.New()
	var origins []store.Origin
	st.AddListener(func(n store.Notification) {
		origins = append(origins, n.Origin)
	}, store.ListenerOptions{})

	s := readyServerSession(t, st)
	s.Apply(st, &protocol.EntryAssignment{Name: "a", ID: 0, Value: protocol.StringValue("x")})
	s.Apply(st, &protocol.EntryUpdate{ID: 0, Seq: 1, Value: protocol.StringValue("y")})
	s.Apply(st, &protocol.FlagsUpdate{ID: 0, Flags: protocol.FlagPersistent})

	if len(origins) != 3 {
		t.Fatalf("notifications = %d, want 3", len(origins))
	}
	for i, o := range origins {
		if o != store.Remote("c1") {
			t.Errorf("notification %d origin = %v, want remote:c1", i, o)
		}
	}
	e, _ := st.Get("a")
	if e.Value.Str != "y" || !e.Persistent() {
		t.Errorf("entry = %+v", e)
	}
}

func TestApplyUnknownID(t *testing.T) {
	st := store.New()
	s := readyServerSession(t, st)

	for _, m := range []protocol.Message{
		&protocol.EntryUpdate{ID: 9, Seq: 1, Value: protocol.BooleanValue(true)},
		&protocol.FlagsUpdate{ID: 9},
		&protocol.EntryDelete{ID: 9},
	} {
		if _, err := s.Apply(st, m); !errors.Is(err, ErrUnknownEntryID) {
			t.Errorf("Apply(%v) error = %v, want ErrUnknownEntryID", m.Type(), err)
		}
	}
}

func TestApplyTypeMismatch(t *testing.T) {
	st := store.New()
	st.Set("x", true)
	s := readyServerSession(t, st)

	_, err := s.Apply(st, &protocol.EntryAssignment{Name: "x", ID: 0, Value: protocol.DoubleValue(1)})
	if !errors.Is(err, store.ErrTypeMismatch) {
		t.Fatalf("error = %v, want ErrTypeMismatch", err)
	}
	e, _ := st.Get("x")
	if e.Type() != protocol.TypeBoolean || !e.Value.Bool {
		t.Errorf("entry changed to %+v", e)
	}
}

func TestApplyDeleteAndClear(t *testing.T) {
	st := store.New()
	s := readyServerSession(t, st)

	s.Apply(st, &protocol.EntryAssignment{Name: "a", ID: 0, Value: protocol.BooleanValue(true)})
	s.Apply(st, &protocol.EntryAssignment{Name: "b", ID: 1, Value: protocol.BooleanValue(true)})
	s.Encode(store.Notification{Event: store.EventUpdate, Entry: mustGet(t, st, "a")})

	if _, err := s.Apply(st, &protocol.EntryDelete{ID: 0}); err != nil {
		t.Fatalf("Apply(delete) error = %v", err)
	}
	if _, ok := st.Get("a"); ok {
		t.Errorf("entry a still present")
	}
	if _, ok := s.OutboundID("a"); ok {
		t.Errorf("outbound id for a kept after remote delete")
	}
	if _, ok := s.InboundName(0); ok {
		t.Errorf("inbound id 0 kept after delete")
	}

	if _, err := s.Apply(st, &protocol.ClearEntries{}); err != nil {
		t.Fatalf("Apply(clear) error = %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("Len() = %d after clear", st.Len())
	}
}

func mustGet(t *testing.T, st *store.Store, name string) store.Entry {
	t.Helper()
	e, ok := st.Get(name)
	if !ok {
		t.Fatalf("entry %q missing", name)
	}
	return e
}

func TestEncode(t *testing.T) {
	st := store.New()
	s := readyServerSession(t, st)

	a, _ := st.Set("a", 1.0)
	b, _ := st.Set("b", "x")

	msgs, err := s.Encode(store.Notification{Event: store.EventCreate, Entry: a})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	asg, ok := msgs[0].(*protocol.EntryAssignment)
	if !ok || asg.ID != 0 || asg.Seq != 0 || asg.Name != "a" {
		t.Fatalf("first Encode() = %#v, want assignment id 0 seq 0", msgs[0])
	}

	msgs, _ = s.Encode(store.Notification{Event: store.EventUpdate, Entry: b})
	if asg, ok := msgs[0].(*protocol.EntryAssignment); !ok || asg.ID != 1 {
		t.Fatalf("Encode(b) = %#v, want assignment id 1", msgs[0])
	}

	for want := uint16(1); want <= 3; want++ {
		a.Value = protocol.DoubleValue(float64(want))
		msgs, _ = s.Encode(store.Notification{Event: store.EventUpdate, Entry: a})
		upd, ok := msgs[0].(*protocol.EntryUpdate)
		if !ok || upd.ID != 0 || upd.Seq != want {
			t.Fatalf("Encode(update) = %#v, want id 0 seq %d", msgs[0], want)
		}
	}

	a.Flags = protocol.FlagPersistent
	msgs, _ = s.Encode(store.Notification{Event: store.EventFlags, Entry: a})
	if fu, ok := msgs[0].(*protocol.FlagsUpdate); !ok || fu.ID != 0 || fu.Flags != protocol.FlagPersistent {
		t.Errorf("Encode(flags) = %#v", msgs[0])
	}

	msgs, _ = s.Encode(store.Notification{Event: store.EventDelete, Entry: a})
	if del, ok := msgs[0].(*protocol.EntryDelete); !ok || del.ID != 0 {
		t.Errorf("Encode(delete) = %#v", msgs[0])
	}

	// Recreating after delete assigns a fresh ID.
	msgs, _ = s.Encode(store.Notification{Event: store.EventCreate, Entry: a})
	if asg, ok := msgs[0].(*protocol.EntryAssignment); !ok || asg.ID != 2 || asg.Seq != 0 {
		t.Errorf("Encode(recreate) = %#v, want assignment id 2", msgs[0])
	}

	msgs, _ = s.Encode(store.Notification{Event: store.EventDelete, Entry: b, Cleared: true})
	if len(msgs) != 0 {
		t.Errorf("Encode(cleared delete) = %v, want nothing", msgs)
	}
	msgs, _ = s.Encode(store.Notification{Event: store.EventClear})
	if len(msgs) != 1 || msgs[0].Type() != protocol.MsgClearEntries {
		t.Errorf("Encode(clear) = %v", msgs)
	}
	if _, ok := s.OutboundID("a"); ok {
		t.Errorf("outbound table survived clear")
	}
}

func TestEncodeDeleteUnsent(t *testing.T) {
	s := New("c1", RoleServer)
	msgs, err := s.Encode(store.Notification{Event: store.EventDelete, Entry: store.Entry{Name: "never"}})
	if err != nil || len(msgs) != 0 {
		t.Errorf("Encode() = %v, %v; want nothing", msgs, err)
	}
}

func TestEncodeIDsExhausted(t *testing.T) {
	s := New("c1", RoleServer)
	s.nextID = maxEntryIDs - 1

	e := store.Entry{Name: "last", Value: protocol.BooleanValue(true)}
	if _, err := s.Assign(e); err != nil {
		t.Fatalf("Assign(last) error = %v", err)
	}
	e.Name = "overflow"
	if _, err := s.Assign(e); !errors.Is(err, ErrIDsExhausted) {
		t.Errorf("Assign(overflow) error = %v, want ErrIDsExhausted", err)
	}
}

func TestEncodeAfterClose(t *testing.T) {
	s := New("c1", RoleServer)
	s.Close()
	if _, err := s.Assign(store.Entry{Name: "x", Value: protocol.BooleanValue(true)}); !errors.Is(err, ErrClosed) {
		t.Errorf("Assign() error = %v, want ErrClosed", err)
	}
}
