// Package protocol implements the binary wire codec for nettables.
//
// A nettables connection carries a stream of frames in both directions.
// The codec is stateless: it turns messages into frames and frames back
// into messages. Connection state (entry ID maps, sequence numbers,
// handshake phase) lives in package session.
//
// # Wire Format
//
// Every message is framed with a 3-byte header:
//
//	┌─────────────┬───────────────────────────────┐
//	│ Type        │ Payload Length                │
//	│ (1 byte)    │ (2 bytes, big-endian)         │
//	└─────────────┴───────────────────────────────┘
//
// Deserialize never reads past 3+length bytes. A short buffer yields
// ErrIncompleteFrame so stream readers can wait for more input; a complete
// frame that fails to decode yields a *DecodeError along with its length.
//
// # Message Types
//
//   - KeepAlive (0x00): empty
//   - ClientHello (0x01): [version u16][name str]
//   - ProtoUnsupported (0x02): [server version u16]
//   - ServerHelloComplete (0x03): empty
//   - ServerHello (0x04): [server id str][client id str]
//   - ClientHelloComplete (0x05): empty
//   - EntryAssignment (0x10): [name str][type u8][id u16][seq u16][flags u8][value]
//   - EntryUpdate (0x11): [id u16][seq u16][type u8][value]
//   - FlagsUpdate (0x12): [id u16][flags u8]
//   - EntryDelete (0x13): [id u16]
//   - ClearEntries (0x14): empty
//
// # Values
//
//   - Boolean (0x00): 1 byte
//   - Double (0x01): 8 bytes IEEE 754, little-endian
//   - String (0x02), Raw (0x03), RPC (0x20): [len u16][bytes]
//   - BooleanArray (0x10): [count u16][1 byte each]
//   - DoubleArray (0x11): [count u16][8 bytes each]
//   - StringArray (0x12): [count u16][str each]
//
// Integers are big-endian; doubles are the one little-endian exception.
// An unknown value tag is a decode error, never a default value.
//
// # Handshake
//
//	Client                          Server
//	  │                                │
//	  │<──── ServerHello ─────────────│
//	  │──── ClientHello ─────────────>│
//	  │──── ClientHelloComplete ─────>│
//	  │<──── ServerHelloComplete ─────│
//	  │<──── EntryAssignment ... ─────│  (snapshot)
//	  │                                │
//
// Both sides send ClientHello/ServerHello on connect, so their relative
// order on the wire is not fixed.
package protocol
