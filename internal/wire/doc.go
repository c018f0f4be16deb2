// Package wire defines the JSON frame envelope spoken between chat clients
// and the gateway over a persistent bidirectional connection.
//
// # Frame Types
//
// Every frame is a single JSON object with a "type" discriminator:
//
//   - chat-request: client asks the gateway to run a chat completion
//   - chat-response: gateway streams body chunks back for a request
//   - chat-request-cancel: client abandons an in-flight request
//   - chat-messages: authoritative conversation snapshot push
//   - chat-clear: conversation reset
//   - rpc: correlated method call outside the chat surface
//
// Request/response frames are correlated by an opaque "id" chosen by the
// issuing side. A chat-response carries a raw fragment of the exchange's
// event-stream text in "body"; "done" marks the final frame and the
// "error" flag marks the body as a failure message instead. Both are
// scoped to their id only.
//
// # Conversation Model
//
// Messages are ordered, identity-carrying records: an id, a role, and a
// list of typed parts. Only text parts exist today; the part list leaves
// room for richer content without another envelope revision.
//
// Encode and Decode are the only codec entry points. Decode rejects frames
// whose type is missing or outside the known set; receivers drop those
// silently per the wire contract.
package wire
