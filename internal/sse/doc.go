// Package sse decodes the server-sent-events-style text carried inside
// chat-response frame bodies into structured stream events.
//
// Frame bodies arrive as arbitrary fragments of one logical text stream;
// chunk boundaries fall anywhere, including mid-line. The Assembler buffers
// a partial trailing line across feeds and only ever emits events decoded
// from complete "data: <json>" lines. Recognized event tags are start,
// text-delta, and finish; unrecognized tags pass through as opaque events
// so new server-side tags do not break older clients. Lines that fail to
// parse as JSON are skipped outright.
package sse
