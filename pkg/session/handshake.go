package session

import (
	"fmt"

	"github.com/vango-dev/nettables/pkg/protocol"
)

// Hello returns the first message this side sends on a new connection
// and marks the session able to send keepalives.
//
// A client sends ClientHello carrying name as its identity. A server
// sends ServerHello carrying name as its own identity and the session ID
// as the identity assigned to the client.
func (s *Session) Hello(name string) protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.helloSent = true
	if s.role == RoleServer {
		return &protocol.ServerHello{ServerID: name, ClientID: s.id}
	}
	return &protocol.ClientHello{Version: protocol.ProtocolVersion, Name: name}
}

// handshake advances the phase for a handshake message.
// Caller must hold s.mu.
func (s *Session) handshake(m protocol.Message) (Result, error) {
	var res Result

	switch msg := m.(type) {
	case *protocol.ServerHello:
		if s.role != RoleClient || s.phase != AwaitingHello {
			return res, s.unexpected(m)
		}
		s.remoteID = msg.ServerID
		s.version = protocol.ProtocolVersion
		s.phase = AwaitingHelloComplete
		res.Replies = append(res.Replies, &protocol.ClientHelloComplete{})

	case *protocol.ServerHelloComplete:
		if s.role != RoleClient || s.phase != AwaitingHelloComplete {
			return res, s.unexpected(m)
		}
		s.phase = Ready
		res.Ready = true

	case *protocol.ProtoUnsupported:
		if s.role != RoleClient {
			return res, s.unexpected(m)
		}
		s.phase = Closed
		return res, fmt.Errorf("%w: server speaks 0x%04x", ErrProtoUnsupported, msg.ServerVersion)

	case *protocol.ClientHello:
		if s.role != RoleServer || s.phase != AwaitingHello {
			return res, s.unexpected(m)
		}
		if msg.Version != protocol.ProtocolVersion {
			s.phase = Closed
			res.Replies = append(res.Replies, &protocol.ProtoUnsupported{ServerVersion: protocol.ProtocolVersion})
			return res, fmt.Errorf("%w: client speaks 0x%04x", ErrVersionMismatch, msg.Version)
		}
		s.remoteID = msg.Name
		s.version = msg.Version
		s.phase = AwaitingHelloComplete

	case *protocol.ClientHelloComplete:
		if s.role != RoleServer || s.phase != AwaitingHelloComplete {
			return res, s.unexpected(m)
		}
		s.phase = Ready
		res.Ready = true
		res.Replies = append(res.Replies, &protocol.ServerHelloComplete{})

	default:
		return res, s.unexpected(m)
	}
	return res, nil
}

func (s *Session) unexpected(m protocol.Message) error {
	return fmt.Errorf("%w: %s as %s in %s", ErrUnexpectedMessage, m.Type(), s.role, s.phase)
}
