// Package chat is the public face of the engine: one Client per gateway
// connection, composing the transport, the request multiplexer, the
// stream assembler, and the conversation log.
//
// # Overview
//
// A Client owns the connection's read loop. Every inbound frame is routed
// exactly once: conversation pushes (chat-clear, chat-messages) go to the
// log, chat-response frames go to the multiplexer when a local exchange is
// listening, rpc frames go to the rpc caller, and everything left over
// falls to the remote-exchange policy below.
//
// # Sending
//
// SendMessage appends the user's message to the log, issues a
// chat-request carrying the full message list, and streams the reply into
// the log as it arrives. The call returns once the request is on the
// wire; Status and Subscribe expose the stream's progress. Status is
// ready when nothing is streaming, streaming while at least one exchange
// is live, and error when the most recent exchange failed. LastError
// keeps the failure for inspection; a later successful exchange returns
// Status to ready.
//
// # Remote Exchanges
//
// The gateway broadcasts every exchange's stream to all clients of the
// same agent. Frames for an identifier this client never issued are
// adopted as remote exchanges: registered in the correlation table,
// assembled per identifier, and applied to the log so another client's
// conversation renders here live. Identifiers released locally are
// tombstoned and never adopted, which keeps a cancelled exchange
// cancelled no matter what arrives afterwards.
//
// # History Bootstrap
//
// On start the Client fetches the conversation so far from the gateway's
// history endpoint, a sibling of the websocket path. Any failure is
// logged and ignored; the engine works from an empty list until the first
// snapshot push.
package chat
