// ABOUTME: Request multiplexer correlating chat-request frames with streamed responses
// ABOUTME: Owns the per-exchange listener registry on the shared connection

package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-chat/internal/exchange"
	"github.com/2389/coven-chat/internal/wire"
)

// ErrExchangeFailed wraps the server-provided failure message of an
// exchange that ended with an error frame.
var ErrExchangeFailed = errors.New("exchange failed")

// FrameSender puts one frame on the shared connection.
type FrameSender interface {
	Send(f *wire.Frame) error
}

// eventBufferSize bounds how far a producer can run ahead of a slow
// consumer before chunks are dropped.
const eventBufferSize = 16

// Multiplexer routes chat-response frames to the exchanges that issued
// the matching requests. Safe for concurrent use.
type Multiplexer struct {
	sender FrameSender
	table  *exchange.Table
	logger *slog.Logger

	mu      sync.RWMutex
	pending map[string]*Exchange
}

// New creates a multiplexer over the given sender and correlation table.
func New(sender FrameSender, table *exchange.Table, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		sender:  sender,
		table:   table,
		logger:  logger.With("component", "mux"),
		pending: make(map[string]*Exchange),
	}
}

// Issue opens a new exchange: allocates an identifier, installs its
// listener, and sends the chat-request frame. Cancelling ctx cancels the
// exchange. On a send failure the identifier and listener are torn down
// before the error returns.
func (m *Multiplexer) Issue(ctx context.Context, url string, init *wire.RequestInit) (*Exchange, error) {
	id := m.table.Allocate()
	if err := m.table.Register(id, exchange.KindLocal); err != nil {
		return nil, fmt.Errorf("registering exchange %s: %w", id, err)
	}

	ex := &Exchange{
		id:     id,
		m:      m,
		events: make(chan string, eventBufferSize),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.pending[id] = ex
	m.mu.Unlock()

	if err := m.sender.Send(wire.NewChatRequest(id, url, init)); err != nil {
		m.removeListener(id)
		m.table.Release(id, exchange.StatusErrored)
		return nil, fmt.Errorf("sending chat-request %s: %w", id, err)
	}

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				ex.Cancel()
			case <-ex.done:
			}
		}()
	}

	m.logger.Debug("exchange issued", "id", id, "url", url)
	return ex, nil
}

// HandleFrame routes one inbound frame. Reports false when the frame is
// not a chat-response or no local listener is registered for its
// identifier; the caller owns the policy for those.
func (m *Multiplexer) HandleFrame(f *wire.Frame) bool {
	if f.Type != wire.TypeChatResponse {
		return false
	}

	m.mu.RLock()
	ex, ok := m.pending[f.ID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	if f.Error {
		ex.fail(f.Body)
		return true
	}
	if f.Body != "" {
		m.table.MarkStreaming(f.ID)
		if !ex.deliver(f.Body) {
			m.logger.Warn("chunk dropped", "id", f.ID)
		}
	}
	if f.Done {
		ex.finish()
	}
	return true
}

// Len is the number of exchanges with a live listener.
func (m *Multiplexer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// CloseAll fails every pending exchange with err. Called when the
// underlying connection is gone and no further frames can arrive.
func (m *Multiplexer) CloseAll(err error) {
	m.mu.RLock()
	pending := make([]*Exchange, 0, len(m.pending))
	for _, ex := range m.pending {
		pending = append(pending, ex)
	}
	m.mu.RUnlock()

	for _, ex := range pending {
		ex.abort(err)
	}
	if len(pending) > 0 {
		m.logger.Debug("closed all exchanges", "count", len(pending))
	}
}

func (m *Multiplexer) removeListener(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Exchange is one in-flight request and its finite response stream.
type Exchange struct {
	id string
	m  *Multiplexer

	mu        sync.RWMutex
	events    chan string
	done      chan struct{}
	closed    bool
	cancelled bool
	err       error
}

// ID returns the exchange's correlation identifier.
func (e *Exchange) ID() string {
	return e.id
}

// Events is the stream of raw body fragments. It closes when the exchange
// ends for any reason; it is never reopened.
func (e *Exchange) Events() <-chan string {
	return e.events
}

// Done closes when the exchange ends.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Err reports how the exchange ended: nil for natural completion or
// cancellation, otherwise the server-provided failure wrapped in
// ErrExchangeFailed. Meaningful once Events has closed.
func (e *Exchange) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Cancelled reports whether Cancel ended the exchange.
func (e *Exchange) Cancelled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cancelled
}

// Cancel ends the exchange locally and tells the peer to stop producing.
// Local delivery halts before the cancel frame is sent; late frames find
// the identifier released and are ignored. Safe to call any number of
// times, including after natural completion.
func (e *Exchange) Cancel() {
	if !e.close(nil, true) {
		return
	}
	e.m.table.Release(e.id, exchange.StatusCancelled)
	if err := e.m.sender.Send(wire.NewCancel(e.id)); err != nil {
		e.m.logger.Debug("cancel frame not sent", "id", e.id, "error", err)
	}
	e.m.logger.Debug("exchange cancelled", "id", e.id)
}

// deliver hands one fragment to the consumer. Holding the read lock while
// sending prevents a close between the check and the send. Reports false
// when the buffer is full or the exchange is closed.
func (e *Exchange) deliver(body string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.events <- body:
		return true
	default:
		return false
	}
}

func (e *Exchange) finish() {
	if !e.close(nil, false) {
		return
	}
	e.m.table.Release(e.id, exchange.StatusDone)
}

func (e *Exchange) fail(message string) {
	if message == "" {
		message = "unknown error"
	}
	e.abort(fmt.Errorf("%w: %s", ErrExchangeFailed, message))
}

// abort ends the exchange with an already-built error.
func (e *Exchange) abort(err error) {
	if !e.close(err, false) {
		return
	}
	e.m.table.Release(e.id, exchange.StatusErrored)
}

// close transitions to the terminal state once. Reports whether this call
// performed the transition.
func (e *Exchange) close(err error, cancelled bool) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.closed = true
	e.cancelled = cancelled
	e.err = err
	close(e.events)
	close(e.done)
	e.mu.Unlock()

	e.m.removeListener(e.id)
	return true
}
