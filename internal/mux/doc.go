// Package mux multiplexes request/response exchanges over one shared
// frame connection.
//
// # Overview
//
// A chat completion is one exchange: the client emits a chat-request frame
// carrying a fresh correlation identifier, then consumes chat-response
// frames for that identifier until one arrives flagged done or error. Many
// exchanges can be in flight on the same connection; the Multiplexer owns
// the listener registry that routes each inbound frame to the right one.
//
// # Lifecycle
//
// Issue registers the identifier with the correlation table, installs the
// exchange's listener, and sends the request frame. Exactly one listener
// is added per exchange and exactly one is removed, on every exit path:
// natural completion, server-side error, local cancellation, and failure
// to send the request at all. The returned Exchange exposes the streamed
// body fragments as a finite channel; once the channel closes, Err reports
// how the exchange ended.
//
// # Cancellation
//
// Cancel is idempotent and local-first: the consumer channel closes and
// the identifier is released before the cancel frame is sent, so frames
// already in flight for that identifier fall into the released set and are
// ignored. Calling Cancel twice, or after natural completion, does
// nothing.
//
// # Frame Routing
//
// HandleFrame accepts only chat-response frames whose identifier has a
// live local listener. Everything else reports false so the connection
// router can apply its own policy (remote observation, drop).
package mux
