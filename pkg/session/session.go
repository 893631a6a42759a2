package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/store"
)

// Session errors.
var (
	ErrUnexpectedMessage = errors.New("session: unexpected message for phase")
	ErrUnknownEntryID    = errors.New("session: unknown entry id")
	ErrVersionMismatch   = errors.New("session: protocol version mismatch")
	ErrProtoUnsupported  = errors.New("session: server rejected protocol version")
	ErrIDsExhausted      = errors.New("session: entry ids exhausted")
	ErrClosed            = errors.New("session: closed")
)

// Role is the side of the connection a Session speaks for.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// String returns the string representation of the role.
func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Phase is the handshake phase of a Session.
type Phase uint8

const (
	AwaitingHello Phase = iota
	AwaitingHelloComplete
	Ready
	Closed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case AwaitingHello:
		return "AwaitingHello"
	case AwaitingHelloComplete:
		return "AwaitingHelloComplete"
	case Ready:
		return "Ready"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// maxEntryIDs is the number of distinct entry IDs a 16-bit field can carry.
const maxEntryIDs = 1 << 16

// Session is the state of one connection: handshake phase, receive
// buffer, and the per-direction entry ID and sequence tables.
//
// Entry IDs and sequence numbers are scoped to the Session. The same
// entry generally has different IDs on different connections, and the
// IDs this side assigns are unrelated to the IDs the peer assigns.
//
// Feed and Apply are meant to be called from a single read goroutine.
// Encode may be called concurrently with them; callers that write the
// encoded messages must serialize Encode and the write together so that
// wire order matches sequence order.
type Session struct {
	id   string
	role Role

	mu        sync.Mutex
	phase     Phase
	helloSent bool
	remoteID  string
	version   uint16
	buf       []byte

	// Outbound: IDs and sequence numbers this side assigns.
	outIDs map[string]uint16
	outSeq map[uint16]uint16
	nextID int

	// Inbound: IDs and sequence numbers assigned by the peer.
	inNames map[uint16]string
	inSeq   map[uint16]uint16
}

// New creates a Session in the AwaitingHello phase. The id names this
// link and is used as the Remote origin for mutations it applies.
func New(id string, role Role) *Session {
	return &Session{
		id:      id,
		role:    role,
		outIDs:  make(map[string]uint16),
		outSeq:  make(map[uint16]uint16),
		inNames: make(map[uint16]string),
		inSeq:   make(map[uint16]uint16),
	}
}

// ID returns the link identifier given to New.
func (s *Session) ID() string {
	return s.id
}

// Role returns the side this session speaks for.
func (s *Session) Role() Role {
	return s.role
}

// Origin returns the store origin used for mutations applied by this session.
func (s *Session) Origin() store.Origin {
	return store.Remote(s.id)
}

// Phase returns the current handshake phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Ready reports whether the handshake has completed.
func (s *Session) Ready() bool {
	return s.Phase() == Ready
}

// CanSend reports whether this side has sent its hello, after which
// keepalives are due regardless of phase.
func (s *Session) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.helloSent && s.phase != Closed
}

// RemoteID returns the identity reported by the peer during the handshake.
func (s *Session) RemoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// ProtocolVersion returns the version negotiated with the peer.
func (s *Session) ProtocolVersion() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Close moves the session to Closed and drops its tables.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = Closed
	s.buf = nil
	s.resetOutbound()
	s.resetInbound()
}

func (s *Session) resetOutbound() {
	s.outIDs = make(map[string]uint16)
	s.outSeq = make(map[uint16]uint16)
	s.nextID = 0
}

func (s *Session) resetInbound() {
	s.inNames = make(map[uint16]string)
	s.inSeq = make(map[uint16]uint16)
}

// Feed appends newly received bytes and returns every complete message
// in arrival order. A trailing partial frame is kept for the next call.
// Frames that fail to decode are skipped; their errors are joined into
// the returned error while the good messages are still returned.
func (s *Session) Feed(data []byte) ([]protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Closed {
		return nil, ErrClosed
	}

	s.buf = append(s.buf, data...)

	var (
		msgs []protocol.Message
		errs []error
		off  int
	)
	for off < len(s.buf) {
		m, n, err := protocol.Deserialize(s.buf[off:])
		if errors.Is(err, protocol.ErrIncompleteFrame) {
			break
		}
		off += n
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, m)
	}

	// Compact so the buffer does not grow without bound.
	rest := copy(s.buf, s.buf[off:])
	s.buf = s.buf[:rest]

	return msgs, errors.Join(errs...)
}

// Buffered returns the number of bytes held for an incomplete frame.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// newer reports whether seq follows last in 16-bit serial number order.
// Below wrap-around this is seq > last.
func newer(seq, last uint16) bool {
	return int16(seq-last) > 0
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s %s %s)", s.role, s.id, s.Phase())
}
