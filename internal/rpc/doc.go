// Package rpc issues correlated method calls over the shared connection.
//
// A call is one rpc frame out (method name plus JSON-encoded arguments)
// and one or more rpc frames back carrying the JSON result, correlated by
// the same identifier scheme chat exchanges use. Identifiers come from the
// shared correlation table, so a caller abandoning a call releases its
// identifier and late responses fall into the released set like any other
// stale frame.
//
// A handful of method names are refused before anything touches the wire:
// the gateway's browser client dispatches calls through a property proxy,
// and these names belong to the object protocol there rather than to any
// remote method. Refusing them here keeps the two clients' views of the
// method namespace identical.
package rpc
