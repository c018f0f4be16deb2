// Package store archives conversation transcripts to SQLite.
//
// The archive mirrors how the chat engine treats history: the unit of
// persistence is the whole snapshot, not an append-only event stream.
// SaveSnapshot replaces a conversation's transcript atomically, so the
// archive always reflects the last state the engine saw, including
// clears and wholesale replacements.
//
// Message parts are stored as JSON alongside id and role, which keeps
// the schema stable as part kinds grow.
//
// The driver is modernc.org/sqlite, so the archive builds without cgo.
package store
