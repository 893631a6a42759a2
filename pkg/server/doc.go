// Package server implements the server side of the nettables protocol.
//
// A Server accepts connections, runs the handshake on each, and keeps
// every connected client in sync with a shared store.Store.
//
// # Session Lifecycle
//
// For each accepted connection the server:
//  1. Creates a session with a fresh client identity and sends ServerHello
//  2. Checks the version in ClientHello, replying ProtoUnsupported and
//     closing only that session on a mismatch
//  3. On ClientHelloComplete, sends ServerHelloComplete followed by every
//     entry in the store as an EntryAssignment and a keepalive that ends
//     the snapshot
//  4. Applies inbound entry messages to the store with the session as
//     the origin; entry messages that arrive before ClientHelloComplete
//     are logged and ignored
//
// Keepalives go out every KeepAliveInterval once ServerHello is sent.
//
// # Fan-out
//
// One store listener, registered for the lifetime of the Server, encodes
// every mutation for each synced session and writes it under that
// session's send lock. A mutation that came from a session is not sent
// back to it, so a client never sees its own writes echoed.
//
// # Example Usage
//
//	st := store.New()
//	srv := server.New(st, server.DefaultConfig())
//	defer srv.Stop()
//
//	st.Set("/robot/speed", 1.5)
//	if err := srv.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
