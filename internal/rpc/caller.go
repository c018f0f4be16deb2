// ABOUTME: Correlated rpc caller with an explicit reserved-name table
// ABOUTME: Concatenates streamed result fragments until the terminal frame

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/coven-chat/internal/exchange"
	"github.com/2389/coven-chat/internal/wire"
)

var (
	// ErrReservedMethod rejects method names the wire contract keeps for
	// itself. Checked before any frame is sent.
	ErrReservedMethod = errors.New("rpc: reserved method name")
	// ErrCallFailed wraps the server-provided failure message of a call.
	ErrCallFailed = errors.New("rpc: call failed")
)

// reservedMethods can never be remote calls; the browser client reaches
// the same gateway through a property proxy and these names belong to its
// object protocol.
var reservedMethods = map[string]bool{
	"then":        true,
	"catch":       true,
	"finally":     true,
	"constructor": true,
	"toJSON":      true,
}

// Reserved reports whether a method name is refused client-side.
func Reserved(method string) bool {
	return reservedMethods[method]
}

// FrameSender puts one frame on the shared connection.
type FrameSender interface {
	Send(f *wire.Frame) error
}

type call struct {
	done   chan struct{}
	buf    strings.Builder
	result json.RawMessage
	err    error
}

// Caller issues rpc frames and matches responses by identifier. Safe for
// concurrent use.
type Caller struct {
	sender FrameSender
	table  *exchange.Table
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*call
}

// New creates a caller over the given sender and correlation table.
func New(sender FrameSender, table *exchange.Table, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		sender:  sender,
		table:   table,
		logger:  logger.With("component", "rpc"),
		pending: make(map[string]*call),
	}
}

// Call invokes a remote method and blocks for its result. Arguments are
// JSON-encoded in order. Cancelling ctx abandons the call locally; the
// identifier is released so a late response is ignored.
func (c *Caller) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	if Reserved(method) {
		return nil, fmt.Errorf("%w: %s", ErrReservedMethod, method)
	}

	encoded := make([]json.RawMessage, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encoding argument %d of %s: %w", i, method, err)
		}
		encoded[i] = data
	}

	id := c.table.Allocate()
	if err := c.table.Register(id, exchange.KindLocal); err != nil {
		return nil, fmt.Errorf("registering call %s: %w", id, err)
	}

	cl := &call{done: make(chan struct{})}
	c.mu.Lock()
	c.pending[id] = cl
	c.mu.Unlock()

	if err := c.sender.Send(wire.NewRPCRequest(id, method, encoded)); err != nil {
		c.abandon(id, exchange.StatusErrored)
		return nil, fmt.Errorf("sending rpc %s: %w", method, err)
	}

	c.logger.Debug("call issued", "id", id, "method", method)

	select {
	case <-cl.done:
		return cl.result, cl.err
	case <-ctx.Done():
		c.abandon(id, exchange.StatusCancelled)
		return nil, ctx.Err()
	}
}

// HandleFrame routes one inbound frame. Reports false when the frame is
// not an rpc response or references no pending call here.
func (c *Caller) HandleFrame(f *wire.Frame) bool {
	if f.Type != wire.TypeRPC {
		return false
	}

	c.mu.Lock()
	cl, ok := c.pending[f.ID]
	if !ok {
		c.mu.Unlock()
		return false
	}

	if f.Error {
		message := f.Body
		if message == "" {
			message = "unknown error"
		}
		cl.err = fmt.Errorf("%w: %s", ErrCallFailed, message)
		c.finishLocked(f.ID, cl, exchange.StatusErrored)
		c.mu.Unlock()
		return true
	}

	if f.Body != "" {
		cl.buf.WriteString(f.Body)
	}
	if f.Done {
		payload := cl.buf.String()
		if payload != "" && !json.Valid([]byte(payload)) {
			cl.err = fmt.Errorf("%w: invalid result payload", ErrCallFailed)
		} else if payload != "" {
			cl.result = json.RawMessage(payload)
		}
		status := exchange.StatusDone
		if cl.err != nil {
			status = exchange.StatusErrored
		}
		c.finishLocked(f.ID, cl, status)
	}
	c.mu.Unlock()
	return true
}

// Len is the number of calls awaiting a response.
func (c *Caller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// FailAll completes every pending call with err. Called when the
// underlying connection is gone and no response can arrive.
func (c *Caller) FailAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cl := range c.pending {
		cl.err = err
		delete(c.pending, id)
		c.table.Release(id, exchange.StatusErrored)
		close(cl.done)
	}
}

// finishLocked completes a call. Caller holds c.mu.
func (c *Caller) finishLocked(id string, cl *call, status exchange.Status) {
	delete(c.pending, id)
	c.table.Release(id, status)
	close(cl.done)
}

// abandon drops a call that will never be waited on again.
func (c *Caller) abandon(id string, status exchange.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return
	}
	delete(c.pending, id)
	c.table.Release(id, status)
	c.logger.Debug("call abandoned", "id", id, "status", status.String())
}
