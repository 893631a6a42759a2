// Package client implements the client side of the nettables protocol.
//
// A Client connects a store.Store to one server. Local changes to the
// store are forwarded to the server; entries the server sends are
// applied to the store with the connection as their origin, so they are
// never forwarded back.
//
// # Connecting
//
// Connect dials the server and sends ClientHello, answering ServerHello
// with ClientHelloComplete. The server then sends ServerHelloComplete,
// its snapshot, and a keepalive. When that keepalive arrives the client
// sends the entries it changed locally while it had no synced
// connection: everything in the store at the first Connect, and any
// local change made while disconnected or mid-handshake. Entries it only
// received from the server are never sent back, so a reconnect cannot
// overwrite newer server state. A local change made while offline wins
// over the snapshot's copy of the same entry. The client is Connected
// once this flush is written.
//
// # Reconnecting
//
// When the connection drops the client reports Disconnected, waits
// ReconnectDelay and dials again, up to MaxReconnectAttempts consecutive
// failures. Every attempt runs the full handshake. Disconnect retires the
// current generation, so an attempt still in flight finishes as a no-op.
//
// Connection state is published through the store's connection
// listeners under the address passed to Connect.
package client
