package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/nettables/pkg/protocol"
)

// Store is an in-memory table of named entries shared by the local
// process and every connected peer.
//
// Mutations are serialized by a mutex. Notifications are queued in
// mutation order and delivered outside the lock by whichever caller
// finds the queue idle, so listeners may call back into the store.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	lastChange int64
	now        func() time.Time
	logger     *slog.Logger

	listeners     []*listener
	connListeners []*connListener
	nextListener  ListenerID
	connections   map[string]ConnectionInfo

	queue    []delivery
	draining bool
}

// Option configures Store behavior.
type Option func(*Store)

// WithClock sets the time source used for LastChange. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:     make(map[string]*Entry),
		connections: make(map[string]ConnectionInfo),
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// stamp returns a LastChange value greater than every earlier one.
// Caller must hold s.mu.
func (s *Store) stamp() int64 {
	t := s.now().UnixMicro()
	if t <= s.lastChange {
		t = s.lastChange + 1
	}
	s.lastChange = t
	return t
}

// Get returns a copy of the named entry.
func (s *Store) Get(name string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// List returns copies of all entries sorted by name.
func (s *Store) List() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyEntry(e))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateOrUpdate creates the named entry or updates its value and flags.
// It fails with ErrTypeMismatch if value does not carry typ, or if the
// entry exists with a different type; the store is left unchanged.
func (s *Store) CreateOrUpdate(name string, typ protocol.ValueType, value protocol.Value, flags protocol.EntryFlags, origin Origin) (Entry, error) {
	if name == "" {
		return Entry{}, ErrEmptyName
	}
	if !typ.Valid() {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidType, typ)
	}
	if value.Type != typ {
		return Entry{}, fmt.Errorf("%w: value is %v, requested %v", ErrTypeMismatch, value.Type, typ)
	}

	s.mu.Lock()
	e, err := s.write(name, value, &flags, origin)
	s.mu.Unlock()
	s.drain()
	return e, err
}

// SetValue sets the value of the named entry, creating it with no flags
// if it does not exist.
func (s *Store) SetValue(name string, value protocol.Value, origin Origin) (Entry, error) {
	if name == "" {
		return Entry{}, ErrEmptyName
	}
	if !value.Type.Valid() {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidType, value.Type)
	}

	s.mu.Lock()
	e, err := s.write(name, value, nil, origin)
	s.mu.Unlock()
	s.drain()
	return e, err
}

// Set infers a value from x with protocol.ValueOf and sets it as a
// local mutation.
func (s *Store) Set(name string, x any) (Entry, error) {
	v, err := protocol.ValueOf(x)
	if err != nil {
		return Entry{}, err
	}
	return s.SetValue(name, v, Local)
}

// write applies a value and optional flags. Caller must hold s.mu.
func (s *Store) write(name string, value protocol.Value, flags *protocol.EntryFlags, origin Origin) (Entry, error) {
	cur, ok := s.entries[name]
	if !ok {
		e := &Entry{Name: name, Value: value.Clone(), LastChange: s.stamp()}
		if flags != nil {
			e.Flags = *flags
		}
		s.entries[name] = e
		s.enqueue(Notification{Event: EventCreate, Entry: copyEntry(e), Origin: origin})
		return copyEntry(e), nil
	}

	if cur.Value.Type != value.Type {
		return copyEntry(cur), fmt.Errorf("%w: %q is %v, got %v", ErrTypeMismatch, name, cur.Value.Type, value.Type)
	}

	if !cur.Value.Equal(value) {
		cur.Value = value.Clone()
		cur.LastChange = s.stamp()
		s.enqueue(Notification{Event: EventUpdate, Entry: copyEntry(cur), Origin: origin})
	}
	if flags != nil && *flags != cur.Flags {
		cur.Flags = *flags
		cur.LastChange = s.stamp()
		s.enqueue(Notification{Event: EventFlags, Entry: copyEntry(cur), Origin: origin})
	}
	return copyEntry(cur), nil
}

// SetFlags replaces the flags of an existing entry.
func (s *Store) SetFlags(name string, flags protocol.EntryFlags, origin Origin) error {
	s.mu.Lock()
	cur, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if cur.Flags != flags {
		cur.Flags = flags
		cur.LastChange = s.stamp()
		s.enqueue(Notification{Event: EventFlags, Entry: copyEntry(cur), Origin: origin})
	}
	s.mu.Unlock()
	s.drain()
	return nil
}

// Delete removes the named entry. It reports whether the entry existed.
func (s *Store) Delete(name string, origin Origin) bool {
	s.mu.Lock()
	cur, ok := s.entries[name]
	if ok {
		delete(s.entries, name)
		s.stamp()
		s.enqueue(Notification{Event: EventDelete, Entry: *cur, Origin: origin})
	}
	s.mu.Unlock()
	s.drain()
	return ok
}

// Clear removes every entry. Listeners see one EventDelete per entry,
// marked Cleared, followed by a single EventClear.
func (s *Store) Clear(origin Origin) {
	s.mu.Lock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := s.entries[name]
		delete(s.entries, name)
		s.enqueue(Notification{Event: EventDelete, Entry: *e, Origin: origin, Cleared: true})
	}
	s.stamp()
	s.enqueue(Notification{Event: EventClear, Origin: origin})
	s.mu.Unlock()
	s.drain()
}

func copyEntry(e *Entry) Entry {
	c := *e
	c.Value = e.Value.Clone()
	return c
}
