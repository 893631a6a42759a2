package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/nettables/pkg/protocol"
)

type recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *recorder) listen(n Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

func (r *recorder) events() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func TestCreateOrUpdate(t *testing.T) {
	s := New()

	e, err := s.CreateOrUpdate("x", protocol.TypeBoolean, protocol.BooleanValue(true), 0, Local)
	if err != nil {
		t.Fatalf("CreateOrUpdate() error = %v", err)
	}
	if e.Name != "x" || e.Type() != protocol.TypeBoolean || !e.Value.Bool {
		t.Errorf("CreateOrUpdate() = %+v", e)
	}

	_, err = s.CreateOrUpdate("x", protocol.TypeDouble, protocol.DoubleValue(1.0), 0, Local)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("CreateOrUpdate() type change error = %v, want ErrTypeMismatch", err)
	}

	got, ok := s.Get("x")
	if !ok || got.Type() != protocol.TypeBoolean || got.Value.Bool != true {
		t.Errorf("Get() after mismatch = %+v, %v; want Boolean true", got, ok)
	}
}

func TestCreateOrUpdateValidation(t *testing.T) {
	s := New()

	tests := []struct {
		name    string
		entry   string
		typ     protocol.ValueType
		value   protocol.Value
		wantErr error
	}{
		{"empty_name", "", protocol.TypeDouble, protocol.DoubleValue(1), ErrEmptyName},
		{"invalid_type", "a", protocol.ValueType(0x09), protocol.Value{Type: 0x09}, ErrInvalidType},
		{"value_disagrees", "a", protocol.TypeString, protocol.DoubleValue(1), ErrTypeMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateOrUpdate(tc.entry, tc.typ, tc.value, 0, Local)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestSetValueImplicitCreate(t *testing.T) {
	s := New()
	r := &recorder{}
	s.AddListener(r.listen, ListenerOptions{})

	if _, err := s.SetValue("a/b", protocol.StringValue("hi"), Local); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if _, err := s.SetValue("a/b", protocol.StringValue("there"), Remote("peer")); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if _, err := s.SetValue("a/b", protocol.DoubleValue(2), Local); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("SetValue() error = %v, want ErrTypeMismatch", err)
	}

	got := r.events()
	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(got))
	}
	if got[0].Event != EventCreate || !got[0].Origin.IsLocal() {
		t.Errorf("first = %v from %v, want create from local", got[0].Event, got[0].Origin)
	}
	if got[1].Event != EventUpdate || got[1].Origin != Remote("peer") || got[1].Entry.Value.Str != "there" {
		t.Errorf("second = %+v, want update from remote:peer", got[1])
	}
}

func TestSetEmptyArrayInfersBooleanArray(t *testing.T) {
	s := New()
	e, err := s.Set("arr", []any{})
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if e.Type() != protocol.TypeBooleanArray {
		t.Errorf("Type() = %v, want BooleanArray", e.Type())
	}
}

func TestEqualValueIsNoop(t *testing.T) {
	s := New()
	r := &recorder{}
	s.AddListener(r.listen, ListenerOptions{})

	first, _ := s.Set("n", 1.5)
	second, _ := s.Set("n", 1.5)

	if len(r.events()) != 1 {
		t.Errorf("got %d notifications, want 1", len(r.events()))
	}
	if second.LastChange != first.LastChange {
		t.Errorf("LastChange moved on no-op write")
	}
}

func TestLastChangeStrictlyIncreasing(t *testing.T) {
	fixed := time.Unix(100, 0)
	s := New(WithClock(func() time.Time { return fixed }))

	a, _ := s.Set("a", 1.0)
	b, _ := s.Set("b", 1.0)
	a2, _ := s.Set("a", 2.0)

	if !(a.LastChange < b.LastChange && b.LastChange < a2.LastChange) {
		t.Errorf("LastChange not increasing: %d, %d, %d", a.LastChange, b.LastChange, a2.LastChange)
	}
	if a.LastChange != fixed.UnixMicro() {
		t.Errorf("first LastChange = %d, want %d", a.LastChange, fixed.UnixMicro())
	}
}

func TestSetFlags(t *testing.T) {
	s := New()
	r := &recorder{}
	s.AddListener(r.listen, ListenerOptions{Events: EventFlags})

	if err := s.SetFlags("missing", protocol.FlagPersistent, Local); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetFlags() error = %v, want ErrNotFound", err)
	}

	s.Set("p", "v")
	if err := s.SetFlags("p", protocol.FlagPersistent, Local); err != nil {
		t.Fatalf("SetFlags() error = %v", err)
	}
	if err := s.SetFlags("p", protocol.FlagPersistent, Local); err != nil {
		t.Fatalf("SetFlags() error = %v", err)
	}

	e, _ := s.Get("p")
	if !e.Persistent() {
		t.Errorf("Persistent() = false")
	}
	if got := r.events(); len(got) != 1 || got[0].Event != EventFlags {
		t.Errorf("notifications = %+v, want one flags event", got)
	}
}

func TestDeleteAndList(t *testing.T) {
	s := New()
	s.Set("b", 1.0)
	s.Set("a", "x")
	s.Set("c", true)

	if !s.Delete("b", Local) {
		t.Errorf("Delete(b) = false")
	}
	if s.Delete("b", Local) {
		t.Errorf("Delete(b) twice = true")
	}

	list := s.List()
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "c" {
		t.Errorf("List() = %+v", list)
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Set("a", 1.0)
	s.Set("b", 2.0)

	r := &recorder{}
	s.AddListener(r.listen, ListenerOptions{Events: EventDelete | EventClear})
	s.Clear(Remote("srv"))

	got := r.events()
	if len(got) != 3 {
		t.Fatalf("got %d notifications, want 3", len(got))
	}
	for i, name := range []string{"a", "b"} {
		if got[i].Event != EventDelete || !got[i].Cleared || got[i].Entry.Name != name {
			t.Errorf("notification %d = %+v, want cleared delete of %s", i, got[i], name)
		}
	}
	if got[2].Event != EventClear || got[2].Origin != Remote("srv") {
		t.Errorf("last = %+v, want clear from remote:srv", got[2])
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Clear", s.Len())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	s.Set("arr", []float64{1, 2})

	e, _ := s.Get("arr")
	e.Value.Doubles[0] = 99

	again, _ := s.Get("arr")
	if again.Value.Doubles[0] != 1 {
		t.Errorf("mutating a Get() result changed the store")
	}
}

func TestConcurrentMutation(t *testing.T) {
	s := New()
	var count int
	var mu sync.Mutex
	s.AddListener(func(Notification) {
		mu.Lock()
		count++
		mu.Unlock()
	}, ListenerOptions{Events: EventCreate})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Set(string(rune('a'+i))+"/"+string(rune('a'+j%26))+string(rune('a'+j/26)), float64(j))
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 400 {
		t.Fatalf("Len() = %d, want 400", s.Len())
	}
	s.Set("flush", true)
	mu.Lock()
	defer mu.Unlock()
	if count != 401 {
		t.Errorf("create notifications = %d, want 401", count)
	}
}
