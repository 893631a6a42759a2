package store

import (
	"errors"
	"strings"

	"github.com/vango-dev/nettables/pkg/protocol"
)

// Store errors.
var (
	ErrEmptyName    = errors.New("store: empty entry name")
	ErrTypeMismatch = errors.New("store: value type does not match entry type")
	ErrInvalidType  = errors.New("store: invalid value type")
	ErrNotFound     = errors.New("store: entry not found")
)

// Entry is a snapshot of one named value.
type Entry struct {
	Name       string
	Value      protocol.Value
	Flags      protocol.EntryFlags
	LastChange int64 // Microseconds since the Unix epoch, strictly increasing per store
}

// Type returns the entry's value tag.
func (e Entry) Type() protocol.ValueType {
	return e.Value.Type
}

// Persistent reports whether the Persistent flag is set.
func (e Entry) Persistent() bool {
	return e.Flags.Has(protocol.FlagPersistent)
}

// Origin says who caused a mutation. The zero value is Local.
type Origin struct {
	Session string
}

// Local marks mutations made by code in this process.
var Local = Origin{}

// Remote marks a mutation applied on behalf of a peer session.
func Remote(session string) Origin {
	return Origin{Session: session}
}

// IsLocal reports whether o is Local.
func (o Origin) IsLocal() bool {
	return o.Session == ""
}

// String returns "local" or "remote:<session>".
func (o Origin) String() string {
	if o.IsLocal() {
		return "local"
	}
	return "remote:" + o.Session
}

// Event is a bitmask of notification kinds.
type Event uint8

const (
	EventCreate Event = 1 << iota
	EventUpdate
	EventDelete
	EventFlags
	EventClear

	EventAll = EventCreate | EventUpdate | EventDelete | EventFlags | EventClear
)

// String returns the event names joined by "|".
func (ev Event) String() string {
	var parts []string
	for _, p := range []struct {
		e    Event
		name string
	}{
		{EventCreate, "create"},
		{EventUpdate, "update"},
		{EventDelete, "delete"},
		{EventFlags, "flags"},
		{EventClear, "clear"},
	} {
		if ev&p.e != 0 {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Notification describes one mutation.
type Notification struct {
	Event  Event
	Entry  Entry // Zero for EventClear; the removed entry for EventDelete
	Origin Origin

	// Cleared marks an EventDelete emitted as part of Clear.
	Cleared bool

	// Immediate marks synthetic creates fired by AddListener.
	Immediate bool
}
