// ABOUTME: In-memory fan-out of conversation updates to local subscribers
// ABOUTME: Non-blocking publish; slow subscribers drop instead of stalling

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// UpdateKind enumerates the mutations the Log can report.
type UpdateKind int

const (
	UpdateReset UpdateKind = iota
	UpdateReplace
	UpdateAppend
	UpdateStart
	UpdateDelta
	UpdateFinish
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateReset:
		return "reset"
	case UpdateReplace:
		return "replace"
	case UpdateAppend:
		return "append"
	case UpdateStart:
		return "start"
	case UpdateDelta:
		return "delta"
	case UpdateFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Update describes one Log mutation. MessageID and Delta are set for the
// kinds that concern a single message; Reset and Replace cover the whole
// list and carry neither.
type Update struct {
	Kind      UpdateKind
	MessageID string
	Delta     string
}

// Notifier provides in-memory pub/sub for Log updates. Subscribers follow
// the conversation as it changes; this is how renderers avoid polling.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]chan Update // subID -> ch
	logger      *slog.Logger
}

// NewNotifier creates a notifier. Pass nil logger for default.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subscribers: make(map[string]chan Update),
		logger:      logger.With("component", "notifier"),
	}
}

// Subscribe registers a subscriber. Returns a channel that receives
// updates and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	n.mu.Lock()
	n.subscribers[subID] = ch
	n.mu.Unlock()

	n.logger.Debug("subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		n.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends an update to all subscribers. Non-blocking: updates are
// dropped for subscribers whose channels are full.
func (n *Notifier) Publish(u Update) {
	n.mu.RLock()
	if len(n.subscribers) == 0 {
		n.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding it during sends
	targets := make([]chan Update, 0, len(n.subscribers))
	for _, ch := range n.subscribers {
		targets = append(targets, ch)
	}
	n.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- u:
			// Sent
		default:
			// Subscriber channel full
			n.logger.Debug("dropped update for slow subscriber",
				"kind", u.Kind.String(),
				"message_id", u.MessageID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (n *Notifier) Unsubscribe(subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch, ok := n.subscribers[subID]
	if !ok {
		return
	}

	delete(n.subscribers, subID)
	close(ch)

	n.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the notifier and closes all subscriber channels.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for subID, ch := range n.subscribers {
		close(ch)
		delete(n.subscribers, subID)
	}

	n.logger.Debug("notifier closed")
}
