package session

import (
	"fmt"

	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/store"
)

// Result describes what Apply did with one message.
type Result struct {
	// Replies must be sent back to the peer in order.
	Replies []protocol.Message

	// Ready is set when this message completed the handshake.
	Ready bool

	// Stale is set when an update was dropped because its sequence
	// number was not newer than the last one seen for its entry.
	Stale bool
}

// Apply processes one inbound message. Handshake messages advance the
// phase; entry messages are translated through the inbound ID table and
// applied to st with this session's Remote origin.
//
// The sequence check and table update happen under the session lock; the
// store mutation happens after it is released so store listeners may
// call Encode on this session.
func (s *Session) Apply(st *store.Store, m protocol.Message) (Result, error) {
	s.mu.Lock()
	if s.phase == Closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}

	switch m.(type) {
	case *protocol.KeepAlive:
		s.mu.Unlock()
		return Result{}, nil
	case *protocol.ClientHello, *protocol.ServerHello, *protocol.ProtoUnsupported,
		*protocol.ClientHelloComplete, *protocol.ServerHelloComplete:
		res, err := s.handshake(m)
		s.mu.Unlock()
		return res, err
	}

	// Entry messages count only once the handshake is complete.
	if s.phase != Ready {
		err := s.unexpected(m)
		s.mu.Unlock()
		return Result{}, err
	}

	origin := store.Remote(s.id)

	switch msg := m.(type) {
	case *protocol.EntryAssignment:
		if name, ok := s.inNames[msg.ID]; ok && name == msg.Name && !newer(msg.Seq, s.inSeq[msg.ID]) {
			s.mu.Unlock()
			return Result{Stale: true}, nil
		}
		s.inNames[msg.ID] = msg.Name
		s.inSeq[msg.ID] = msg.Seq
		s.mu.Unlock()

		_, err := st.CreateOrUpdate(msg.Name, msg.Value.Type, msg.Value, msg.Flags, origin)
		return Result{}, err

	case *protocol.EntryUpdate:
		name, ok := s.inNames[msg.ID]
		if !ok {
			s.mu.Unlock()
			return Result{}, fmt.Errorf("%w: update for %d", ErrUnknownEntryID, msg.ID)
		}
		if !newer(msg.Seq, s.inSeq[msg.ID]) {
			s.mu.Unlock()
			return Result{Stale: true}, nil
		}
		s.inSeq[msg.ID] = msg.Seq
		s.mu.Unlock()

		_, err := st.SetValue(name, msg.Value, origin)
		return Result{}, err

	case *protocol.FlagsUpdate:
		name, ok := s.inNames[msg.ID]
		s.mu.Unlock()
		if !ok {
			return Result{}, fmt.Errorf("%w: flags for %d", ErrUnknownEntryID, msg.ID)
		}
		return Result{}, st.SetFlags(name, msg.Flags, origin)

	case *protocol.EntryDelete:
		name, ok := s.inNames[msg.ID]
		if !ok {
			s.mu.Unlock()
			return Result{}, fmt.Errorf("%w: delete of %d", ErrUnknownEntryID, msg.ID)
		}
		delete(s.inNames, msg.ID)
		delete(s.inSeq, msg.ID)
		s.forgetOutbound(name)
		s.mu.Unlock()

		st.Delete(name, origin)
		return Result{}, nil

	case *protocol.ClearEntries:
		s.resetInbound()
		s.resetOutbound()
		s.mu.Unlock()

		st.Clear(origin)
		return Result{}, nil
	}

	err := s.unexpected(m)
	s.mu.Unlock()
	return Result{}, err
}

// forgetOutbound drops the outbound binding for name so a later
// re-creation is sent as a fresh assignment. Caller must hold s.mu.
func (s *Session) forgetOutbound(name string) {
	if id, ok := s.outIDs[name]; ok {
		delete(s.outIDs, name)
		delete(s.outSeq, id)
	}
}

// Encode translates a store notification into the messages that carry it
// over this link. The first send of a name assigns it the next outbound
// ID with sequence 0; later value changes increment the sequence.
func (s *Session) Encode(n store.Notification) ([]protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Closed {
		return nil, ErrClosed
	}

	switch n.Event {
	case store.EventCreate, store.EventUpdate:
		return s.encodeValue(n.Entry)

	case store.EventFlags:
		id, ok := s.outIDs[n.Entry.Name]
		if !ok {
			return s.encodeValue(n.Entry)
		}
		return []protocol.Message{&protocol.FlagsUpdate{ID: id, Flags: n.Entry.Flags}}, nil

	case store.EventDelete:
		id, ok := s.outIDs[n.Entry.Name]
		if !ok {
			return nil, nil
		}
		s.forgetOutbound(n.Entry.Name)
		if n.Cleared {
			return nil, nil
		}
		return []protocol.Message{&protocol.EntryDelete{ID: id}}, nil

	case store.EventClear:
		s.resetOutbound()
		return []protocol.Message{&protocol.ClearEntries{}}, nil
	}
	return nil, nil
}

// Assign encodes e as if it had just been created, which is how the
// server sends its snapshot and how a client flushes changes it made
// while it had no synced connection.
func (s *Session) Assign(e store.Entry) ([]protocol.Message, error) {
	return s.Encode(store.Notification{Event: store.EventCreate, Entry: e, Origin: store.Local})
}

// encodeValue returns an assignment or update for e. Caller must hold s.mu.
func (s *Session) encodeValue(e store.Entry) ([]protocol.Message, error) {
	id, ok := s.outIDs[e.Name]
	if !ok {
		if s.nextID >= maxEntryIDs {
			return nil, fmt.Errorf("%w: cannot assign %q", ErrIDsExhausted, e.Name)
		}
		id = uint16(s.nextID)
		s.nextID++
		s.outIDs[e.Name] = id
		s.outSeq[id] = 0
		return []protocol.Message{&protocol.EntryAssignment{
			Name:  e.Name,
			ID:    id,
			Seq:   0,
			Flags: e.Flags,
			Value: e.Value,
		}}, nil
	}

	seq := s.outSeq[id] + 1
	s.outSeq[id] = seq
	return []protocol.Message{&protocol.EntryUpdate{ID: id, Seq: seq, Value: e.Value}}, nil
}

// OutboundID returns the ID this side assigned to name, if any.
func (s *Session) OutboundID(name string) (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.outIDs[name]
	return id, ok
}

// InboundName returns the name the peer bound to id, if any.
func (s *Session) InboundName(id uint16) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.inNames[id]
	return name, ok
}
