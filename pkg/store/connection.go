package store

import (
	"sort"
	"time"
)

// ConnectionState is the lifecycle state of a peer connection.
type ConnectionState uint8

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns the string representation of the state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// ConnectionInfo describes one peer connection.
type ConnectionInfo struct {
	State           ConnectionState
	RemoteID        string // Identity reported by the peer
	Address         string // Transport address of the peer
	ProtocolVersion uint16
	LastChange      time.Time
}

// ConnectionNotification carries the state of a connection before and
// after a transition.
type ConnectionNotification struct {
	Key string
	Old ConnectionInfo
	New ConnectionInfo

	// Immediate marks synthetic notifications fired by AddConnectionListener.
	Immediate bool
}

// ConnectionListenerFunc receives connection notifications.
type ConnectionListenerFunc func(ConnectionNotification)

type connListener struct {
	id ListenerID
	fn ConnectionListenerFunc
}

// AddConnectionListener registers fn. With immediate set, fn is called
// for every currently known connection before this returns.
func (s *Store) AddConnectionListener(fn ConnectionListenerFunc, immediate bool) ListenerID {
	s.mu.Lock()
	s.nextListener++
	l := &connListener{id: s.nextListener, fn: fn}
	s.connListeners = append(s.connListeners, l)

	var existing []ConnectionNotification
	if immediate {
		for key, info := range s.connections {
			existing = append(existing, ConnectionNotification{
				Key:       key,
				Old:       ConnectionInfo{Address: info.Address},
				New:       info,
				Immediate: true,
			})
		}
	}
	s.mu.Unlock()

	sort.Slice(existing, func(i, j int) bool { return existing[i].Key < existing[j].Key })
	for _, n := range existing {
		s.callConn(l, n)
	}
	return l.id
}

// RemoveConnectionListener unregisters a connection listener.
func (s *Store) RemoveConnectionListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.connListeners {
		if l.id == id {
			s.connListeners = append(s.connListeners[:i:i], s.connListeners[i+1:]...)
			return
		}
	}
}

// UpdateConnection records a state transition for the connection named
// key and notifies connection listeners. A Disconnected connection is
// forgotten after its notification is queued. Repeating the current
// state and identity is a no-op.
func (s *Store) UpdateConnection(key string, info ConnectionInfo) {
	s.mu.Lock()
	old := s.connections[key]
	if old.State == info.State && old.RemoteID == info.RemoteID &&
		old.ProtocolVersion == info.ProtocolVersion && old.Address == info.Address {
		s.mu.Unlock()
		return
	}
	if info.LastChange.IsZero() {
		info.LastChange = s.now()
	}
	if info.State == Disconnected {
		delete(s.connections, key)
	} else {
		s.connections[key] = info
	}
	n := ConnectionNotification{Key: key, Old: old, New: info}
	s.queue = append(s.queue, delivery{conn: &n})
	s.mu.Unlock()
	s.drain()
}

// Connections returns a copy of the known connections by key.
func (s *Store) Connections() map[string]ConnectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ConnectionInfo, len(s.connections))
	for k, v := range s.connections {
		out[k] = v
	}
	return out
}

func (s *Store) callConn(l *connListener, n ConnectionNotification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection listener panic",
				"listener", l.id,
				"key", n.Key,
				"panic", r)
		}
	}()
	l.fn(n)
}
