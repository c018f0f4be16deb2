// ABOUTME: Line assembler turning raw stream fragments into structured events
// ABOUTME: Buffers partial lines across feeds, skips unparseable data lines

package sse

import (
	"encoding/json"
	"strings"
)

// EventType tags a decoded stream event.
type EventType string

const (
	// EventStart opens a new assistant message; MessageID carries its
	// identifier.
	EventStart EventType = "start"
	// EventTextDelta appends Delta to the message opened by the last start.
	EventTextDelta EventType = "text-delta"
	// EventFinish marks the logical end of the streamed message.
	EventFinish EventType = "finish"
)

// Event is one decoded unit of a streamed exchange. Raw retains the
// undecoded payload for opaque passthrough of unrecognized tags.
type Event struct {
	Type      EventType       `json:"type"`
	MessageID string          `json:"messageId,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// Known reports whether the event tag is one the engine acts on.
func (e Event) Known() bool {
	switch e.Type {
	case EventStart, EventTextDelta, EventFinish:
		return true
	default:
		return false
	}
}

const dataPrefix = "data:"

// Assembler accumulates raw text fragments and yields events for each
// complete data line. Not safe for concurrent use; each exchange owns one.
type Assembler struct {
	buf strings.Builder
}

// New returns an empty assembler.
func New() *Assembler {
	return &Assembler{}
}

// Feed appends a fragment and returns the events completed by it. A
// fragment may complete zero, one, or many lines; the trailing partial
// line is held back until a later feed finishes it.
func (a *Assembler) Feed(chunk string) []Event {
	if chunk == "" {
		return nil
	}
	a.buf.WriteString(chunk)

	data := a.buf.String()
	var events []Event
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(data[:idx], "\r")
		data = data[idx+1:]
		if ev, ok := parseLine(line); ok {
			events = append(events, ev)
		}
	}

	a.buf.Reset()
	a.buf.WriteString(data)
	return events
}

// Rest returns the undecoded partial line still buffered. At end-of-data
// the owner discards it; nothing partial is ever surfaced as an event.
func (a *Assembler) Rest() string {
	return a.buf.String()
}

// parseLine decodes one complete line. Only data lines yield events;
// comments, event names, and blank separators carry nothing we need.
func parseLine(line string) (Event, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		// Unparseable payloads (incl. sentinel markers like [DONE]) are
		// skipped, not fatal.
		return Event{}, false
	}
	if ev.Type == "" {
		return Event{}, false
	}
	ev.Raw = json.RawMessage(payload)
	return ev, true
}
