package store

import (
	"sort"
	"strings"
)

// ListenerID identifies a registered listener.
type ListenerID uint64

// ListenerFunc receives entry notifications.
type ListenerFunc func(Notification)

// ListenerOptions selects which notifications a listener receives.
type ListenerOptions struct {
	// Events is the set of event kinds delivered. Zero means EventAll.
	Events Event

	// Immediate fires a synthetic EventCreate for every existing matching
	// entry before AddListener returns.
	Immediate bool

	// Prefix restricts delivery to entry names starting with Prefix.
	// EventClear is not tied to a name and ignores it.
	Prefix string

	// Exact makes Prefix an exact name match.
	Exact bool
}

func (o ListenerOptions) matches(n Notification) bool {
	events := o.Events
	if events == 0 {
		events = EventAll
	}
	if events&n.Event == 0 {
		return false
	}
	if n.Event == EventClear || o.Prefix == "" {
		return true
	}
	if o.Exact {
		return n.Entry.Name == o.Prefix
	}
	return strings.HasPrefix(n.Entry.Name, o.Prefix)
}

type listener struct {
	id   ListenerID
	fn   ListenerFunc
	opts ListenerOptions
}

// delivery is one queued notification of either kind.
type delivery struct {
	entry *Notification
	conn  *ConnectionNotification
}

// AddListener registers fn and returns its ID.
func (s *Store) AddListener(fn ListenerFunc, opts ListenerOptions) ListenerID {
	s.mu.Lock()
	s.nextListener++
	l := &listener{id: s.nextListener, fn: fn, opts: opts}
	s.listeners = append(s.listeners, l)

	var existing []Notification
	if opts.Immediate {
		for _, e := range s.entries {
			n := Notification{Event: EventCreate, Entry: copyEntry(e), Origin: Local, Immediate: true}
			if opts.matches(n) {
				existing = append(existing, n)
			}
		}
	}
	s.mu.Unlock()

	sort.Slice(existing, func(i, j int) bool { return existing[i].Entry.Name < existing[j].Entry.Name })
	for _, n := range existing {
		s.call(l, n)
	}
	return l.id
}

// RemoveListener unregisters a listener. A notification already being
// delivered when RemoveListener is called may still reach it.
func (s *Store) RemoveListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.listeners {
		if l.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// enqueue appends a notification. Caller must hold s.mu.
func (s *Store) enqueue(n Notification) {
	s.queue = append(s.queue, delivery{entry: &n})
}

// drain delivers queued notifications until the queue is empty. Only one
// caller drains at a time; others return immediately and their
// notifications are picked up by the active drainer in order.
func (s *Store) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	for len(s.queue) > 0 {
		d := s.queue[0]
		s.queue[0] = delivery{}
		s.queue = s.queue[1:]

		if d.entry != nil {
			targets := make([]*listener, 0, len(s.listeners))
			for _, l := range s.listeners {
				if l.opts.matches(*d.entry) {
					targets = append(targets, l)
				}
			}
			s.mu.Unlock()
			for _, l := range targets {
				s.call(l, *d.entry)
			}
		} else {
			targets := append([]*connListener(nil), s.connListeners...)
			s.mu.Unlock()
			for _, l := range targets {
				s.callConn(l, *d.conn)
			}
		}
		s.mu.Lock()
	}

	s.queue = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Store) call(l *listener, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panic",
				"listener", l.id,
				"event", n.Event.String(),
				"entry", n.Entry.Name,
				"panic", r)
		}
	}()
	l.fn(n)
}
