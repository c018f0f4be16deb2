// ABOUTME: Ordered conversation log with id-keyed merge and streamed text accumulation
// ABOUTME: Single authority for local message state; publishes every mutation

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389/coven-chat/internal/wire"
)

// Log holds the ordered message list. All mutations go through its
// methods; callers never hold references into its internal state. Safe
// for concurrent use.
type Log struct {
	mu       sync.RWMutex
	messages []wire.Message
	index    map[string]int // message id -> position in messages

	notifier *Notifier
	logger   *slog.Logger
}

// NewLog creates an empty log with its own notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		index:    make(map[string]int),
		notifier: NewNotifier(logger),
		logger:   logger.With("component", "conversation"),
	}
}

// Subscribe follows the log's mutations. The subscription ends when ctx
// is cancelled.
func (l *Log) Subscribe(ctx context.Context) (<-chan Update, string) {
	return l.notifier.Subscribe(ctx)
}

// Unsubscribe ends a subscription early.
func (l *Log) Unsubscribe(subID string) {
	l.notifier.Unsubscribe(subID)
}

// Reset clears the list to empty.
func (l *Log) Reset() {
	l.mu.Lock()
	l.messages = nil
	l.index = make(map[string]int)
	l.mu.Unlock()

	l.notifier.Publish(Update{Kind: UpdateReset})
}

// ReplaceAll installs an authoritative snapshot. Entries are matched by id
// against the current list so an id that survives the replacement keeps
// its identity; content and order always follow the input. Duplicate ids
// in the input keep their first occurrence.
func (l *Log) ReplaceAll(in []wire.Message) {
	l.mu.Lock()
	next := make([]wire.Message, 0, len(in))
	nextIndex := make(map[string]int, len(in))
	for _, m := range in {
		if _, dup := nextIndex[m.ID]; dup {
			l.logger.Debug("duplicate id in snapshot", "message_id", m.ID)
			continue
		}
		nextIndex[m.ID] = len(next)
		next = append(next, m.Clone())
	}
	l.messages = next
	l.index = nextIndex
	l.mu.Unlock()

	l.notifier.Publish(Update{Kind: UpdateReplace})
}

// Append adds a complete message to the end of the list. No-op if the id
// is already present.
func (l *Log) Append(m wire.Message) bool {
	l.mu.Lock()
	if _, ok := l.index[m.ID]; ok {
		l.mu.Unlock()
		return false
	}
	l.index[m.ID] = len(l.messages)
	l.messages = append(l.messages, m.Clone())
	l.mu.Unlock()

	l.notifier.Publish(Update{Kind: UpdateAppend, MessageID: m.ID})
	return true
}

// ApplyStart appends a new empty assistant message for a streamed
// exchange. No-op if a message with that id already exists; the stream
// then continues into the existing message.
func (l *Log) ApplyStart(messageID string) bool {
	l.mu.Lock()
	if _, ok := l.index[messageID]; ok {
		l.mu.Unlock()
		return false
	}
	l.index[messageID] = len(l.messages)
	l.messages = append(l.messages, wire.Message{
		ID:    messageID,
		Role:  wire.RoleAssistant,
		Parts: []wire.Part{{Type: wire.PartTypeText}},
	})
	l.mu.Unlock()

	l.notifier.Publish(Update{Kind: UpdateStart, MessageID: messageID})
	return true
}

// ApplyTextDelta appends a fragment to the message's text, collapsing the
// part list to a single text part holding the full accumulated text.
// Deltas for unknown ids are dropped; the start event may have been
// missed and inventing a message here would reorder the transcript.
func (l *Log) ApplyTextDelta(messageID, delta string) bool {
	l.mu.Lock()
	i, ok := l.index[messageID]
	if !ok {
		l.mu.Unlock()
		l.logger.Debug("delta for unknown message dropped", "message_id", messageID)
		return false
	}
	full := l.messages[i].Text() + delta
	l.messages[i].Parts = []wire.Part{{Type: wire.PartTypeText, Text: full}}
	l.mu.Unlock()

	l.notifier.Publish(Update{Kind: UpdateDelta, MessageID: messageID, Delta: delta})
	return true
}

// Finish marks the streamed message complete. Content is untouched; this
// exists so observers can stop treating the message as in progress.
func (l *Log) Finish(messageID string) {
	l.notifier.Publish(Update{Kind: UpdateFinish, MessageID: messageID})
}

// Messages returns a deep copy of the current list in order.
func (l *Log) Messages() []wire.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return wire.CloneMessages(l.messages)
}

// Get returns a copy of one message by id.
func (l *Log) Get(messageID string) (wire.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[messageID]
	if !ok {
		return wire.Message{}, false
	}
	return l.messages[i].Clone(), true
}

// Len is the number of messages in the list.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Close shuts down the notifier; the log itself needs no teardown.
func (l *Log) Close() {
	l.notifier.Close()
}
