// Package admin is the HTTP inspection surface of a nettables process.
//
// Routes:
//
//	GET    /healthz       status, identity, entry and session counts
//	GET    /metrics       Prometheus exposition of the configured registry
//	GET    /entries       entry snapshot, optionally ?prefix=/SmartDashboard/
//	GET    /entries/*     one entry
//	PUT    /entries/*     set a value: {"value": 1.5} or {"type": "raw", "value": "AAE="}
//	DELETE /entries/*     delete an entry
//	GET    /sessions      connected clients (WithServer only)
//	GET    <ws path>      the wire protocol over WebSocket (WithWebSocket)
//
// Responses are JSON unless the request's Accept header names
// application/cbor, in which case they are deterministic CBOR.
//
// Writes through PUT and DELETE are local mutations, so a server
// broadcasts them and a client forwards them like any other local write.
package admin
