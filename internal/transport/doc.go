// Package transport maintains the persistent websocket connection that all
// chat frames travel over: one write-serialized sender and one read pump
// that decodes inbound frames, dropping malformed ones silently.
package transport
