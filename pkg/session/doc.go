// Package session holds the per-connection state of the nettables protocol.
//
// A Session is created when a connection opens and dropped when it
// closes. It owns:
//
//   - the receive buffer, which turns arbitrary byte chunks into whole
//     messages (Feed)
//   - the handshake phase, AwaitingHello → AwaitingHelloComplete → Ready
//   - the outbound table (name → ID, ID → sequence) for IDs this side
//     assigns, and the inbound table (ID → name, ID → last sequence) for
//     IDs the peer assigns
//
// Engines drive a Session from two directions. The read loop calls Feed
// and then Apply for each message, sending any Result.Replies back. The
// store listener calls Encode for each local change and writes the
// returned messages while holding the connection's send lock.
//
// Inbound updates whose sequence number is not newer than the last one
// seen for that entry on this link are dropped and reported as
// Result.Stale. Sequence numbers compare in 16-bit serial order, so a
// counter that wraps from 65535 to 0 keeps working.
package session
