// Package exchange tracks the liveness and ownership of correlation
// identifiers shared with the gateway.
//
// # Overview
//
// Every request/response conversation on the connection (a chat completion,
// an rpc call) is an exchange keyed by an opaque identifier. The Table is
// the single authority on what an identifier currently means:
//
//   - live and locally owned: this process opened it and is listening
//   - live and remote: another client opened it; we observe its stream
//   - released: the exchange ended here; late frames must be dropped
//   - unknown: never seen; the router decides whether to adopt it
//
// # Lifecycle
//
// Identifiers are allocated (or adopted via Register), optionally marked
// streaming when the first body chunk arrives, and released exactly once
// with a terminal status. Release is idempotent: releasing an identifier
// that is already gone reports false and changes nothing.
//
// # Tombstones
//
// Releasing an identifier leaves a tombstone behind for a bounded window.
// Tombstones close the race where a frame for a just-cancelled exchange is
// already in flight: without them the router could mistake it for a new
// remote exchange and resurrect an identifier the contract says is dead.
// The set is TTL- and size-bounded with a background sweep, so it cannot
// grow without limit on a long-lived connection.
package exchange
