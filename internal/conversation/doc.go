// Package conversation owns the ordered message list shared with the
// gateway and every other client connected to the same agent.
//
// # Overview
//
// The Log is the local replica of the conversation: an ordered sequence of
// messages, unique by id, mutated only through a small set of explicit
// operations. Authoritative snapshots (chat-messages frames) replace the
// whole list but are merged by message id so identity survives across
// pushes. A streamed exchange mutates exactly one message at a time
// through ApplyStart, ApplyTextDelta, and Finish.
//
// # Idempotency
//
// Every operation tolerates replays: re-applying the same snapshot leaves
// the list unchanged, a second ApplyStart for an existing id is a no-op,
// and deltas for unknown ids are dropped rather than invented. The text of
// a streamed message is always the concatenation of its deltas in arrival
// order.
//
// # Notifications
//
// Mutations publish Updates through the Notifier so renderers and other
// observers can follow along without polling. Fan-out is non-blocking with
// a bounded buffer per subscriber; a stalled subscriber loses updates
// instead of stalling the connection's read loop.
package conversation
