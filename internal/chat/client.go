// ABOUTME: Client facade composing transport, multiplexer, assembler, and log
// ABOUTME: Owns the read loop, status tracking, and the remote-exchange policy

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/exchange"
	"github.com/2389/coven-chat/internal/mux"
	"github.com/2389/coven-chat/internal/rpc"
	"github.com/2389/coven-chat/internal/sse"
	"github.com/2389/coven-chat/internal/wire"
)

// ErrConnectionLost ends every in-flight exchange when the transport dies.
var ErrConnectionLost = errors.New("chat: connection lost")

// defaultRequestURL is the resource path carried in chat-request frames.
const defaultRequestURL = "/api/chat"

// archiveTimeout bounds the best-effort transcript save after a stream.
const archiveTimeout = 5 * time.Second

// Status is the engine's user-visible state.
type Status int

const (
	StatusReady Status = iota
	StatusStreaming
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusStreaming:
		return "streaming"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Transport is the connection the Client drives. transport.Conn satisfies
// it; tests substitute their own.
type Transport interface {
	Send(f *wire.Frame) error
	Frames() <-chan *wire.Frame
	Err() error
	BaseURL() string
	Close() error
}

// Archive persists finished transcripts. Optional.
type Archive interface {
	SaveSnapshot(ctx context.Context, conversation string, msgs []wire.Message) error
}

// Options configure a Client. Transport is required.
type Options struct {
	Transport Transport
	// RequestURL is the path sent in chat-request frames. Defaults to
	// /api/chat.
	RequestURL string
	// Conversation keys archived transcripts. Defaults to "default".
	Conversation string
	Logger       *slog.Logger
	// Archive, when set, receives the transcript after each completed
	// exchange.
	Archive Archive
	// HTTPClient performs the history bootstrap fetch. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	// DisableBootstrap skips the history fetch on start.
	DisableBootstrap bool
}

// Client is the chat engine over one connection. All methods are safe for
// concurrent use.
type Client struct {
	transport Transport
	table     *exchange.Table
	mux       *mux.Multiplexer
	rpc       *rpc.Caller
	log       *conversation.Log
	logger    *slog.Logger

	requestURL   string
	conversation string
	archive      Archive
	httpClient   *http.Client
	bootstrap    bool

	mu      sync.RWMutex
	status  Status
	lastErr error
	active  *mux.Exchange
	streams int

	// remotes is touched only from the read loop goroutine.
	remotes map[string]*remoteStream

	runCancel context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// remoteStream assembles one adopted exchange from another client.
type remoteStream struct {
	asm      *sse.Assembler
	open     string // message id opened by this stream
	finished bool   // finish event already published for open
}

// New builds a Client over an established transport. Call Start to begin
// routing frames.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	requestURL := opts.RequestURL
	if requestURL == "" {
		requestURL = defaultRequestURL
	}
	conv := opts.Conversation
	if conv == "" {
		conv = "default"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	table := exchange.New(logger)
	return &Client{
		transport:    opts.Transport,
		table:        table,
		mux:          mux.New(opts.Transport, table, logger),
		rpc:          rpc.New(opts.Transport, table, logger),
		log:          conversation.NewLog(logger),
		logger:       logger.With("component", "chat"),
		requestURL:   requestURL,
		conversation: conv,
		archive:      opts.Archive,
		httpClient:   httpClient,
		bootstrap:    !opts.DisableBootstrap,
		remotes:      make(map[string]*remoteStream),
		done:         make(chan struct{}),
	}
}

// Start bootstraps history and begins routing inbound frames. Cancelling
// ctx stops the read loop; Close is still required for full teardown.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.runCancel = cancel
		go c.run(runCtx)
	})
}

// Close tears the engine down: the transport, every in-flight exchange,
// and the notifier. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.Close()
		if c.runCancel != nil {
			c.runCancel()
			select {
			case <-c.done:
			case <-time.After(2 * time.Second):
				c.logger.Warn("read loop did not stop in time")
			}
		}
		c.mux.CloseAll(ErrConnectionLost)
		c.rpc.FailAll(ErrConnectionLost)
		c.table.Close()
		c.log.Close()
	})
	return err
}

// SendMessage appends a message with the given role and parts, then opens
// an exchange whose reply streams into the log. Returns once the request
// frame is sent; progress is visible through Status and Subscribe.
func (c *Client) SendMessage(ctx context.Context, role wire.Role, parts []wire.Part) error {
	msg := wire.Message{ID: uuid.New().String(), Role: role, Parts: parts}
	c.log.Append(msg)

	payload, err := json.Marshal(struct {
		Messages []wire.Message `json:"messages"`
	}{Messages: c.log.Messages()})
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	init := &wire.RequestInit{
		Method:  http.MethodPost,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    string(payload),
	}

	ex, err := c.mux.Issue(ctx, c.requestURL, init)
	if err != nil {
		c.mu.Lock()
		c.status = StatusError
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.active = ex
	c.streams++
	c.status = StatusStreaming
	c.lastErr = nil
	c.mu.Unlock()

	go c.consume(ex)
	return nil
}

// SendText is SendMessage with a single user text part.
func (c *Client) SendText(ctx context.Context, text string) error {
	return c.SendMessage(ctx, wire.RoleUser, []wire.Part{{Type: wire.PartTypeText, Text: text}})
}

// SetMessages replaces the conversation locally and pushes the snapshot
// to the gateway.
func (c *Client) SetMessages(msgs []wire.Message) error {
	c.log.ReplaceAll(msgs)
	if err := c.transport.Send(wire.NewSnapshot(c.log.Messages())); err != nil {
		return fmt.Errorf("pushing snapshot: %w", err)
	}
	return nil
}

// UpdateMessages applies fn to a copy of the current list and installs
// the result like SetMessages.
func (c *Client) UpdateMessages(fn func([]wire.Message) []wire.Message) error {
	return c.SetMessages(fn(c.log.Messages()))
}

// ClearHistory empties the conversation locally and tells the gateway to
// do the same.
func (c *Client) ClearHistory() error {
	c.log.Reset()
	if err := c.transport.Send(wire.NewClear()); err != nil {
		return fmt.Errorf("sending clear: %w", err)
	}
	return nil
}

// CancelActive cancels the most recently issued exchange. No-op when
// nothing is streaming.
func (c *Client) CancelActive() {
	c.mu.RLock()
	ex := c.active
	c.mu.RUnlock()
	if ex != nil {
		ex.Cancel()
	}
}

// Call invokes a gateway rpc method through the shared connection.
func (c *Client) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	return c.rpc.Call(ctx, method, args...)
}

// Messages returns a copy of the conversation in order.
func (c *Client) Messages() []wire.Message {
	return c.log.Messages()
}

// Status reports the engine state: ready, streaming, or error.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// LastError returns the most recent exchange failure, nil if none.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Subscribe follows conversation updates until ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context) (<-chan conversation.Update, string) {
	return c.log.Subscribe(ctx)
}

// run is the read loop: bootstrap, then route frames until the transport
// closes or ctx ends.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	if c.bootstrap {
		c.bootstrapHistory(ctx)
	}

	for {
		select {
		case f, ok := <-c.transport.Frames():
			if !ok {
				c.handleDisconnect()
				return
			}
			c.route(f)
		case <-ctx.Done():
			return
		}
	}
}

// handleDisconnect fails everything still in flight. A transport error
// surfaces as the engine's error; a clean close does not.
func (c *Client) handleDisconnect() {
	err := c.transport.Err()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionLost, err)
		c.mu.Lock()
		c.status = StatusError
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("connection lost", "error", err)
	} else {
		err = ErrConnectionLost
	}
	c.mux.CloseAll(err)
	c.rpc.FailAll(err)
}

// route dispatches one inbound frame. Runs only on the read loop.
func (c *Client) route(f *wire.Frame) {
	switch f.Type {
	case wire.TypeChatClear:
		c.log.Reset()
	case wire.TypeChatMessages:
		c.log.ReplaceAll(f.Messages)
	case wire.TypeChatResponse:
		if c.mux.HandleFrame(f) {
			return
		}
		c.routeRemote(f)
	case wire.TypeRPC:
		if !c.rpc.HandleFrame(f) {
			c.logger.Debug("rpc frame for no pending call", "id", f.ID)
		}
	default:
		// chat-request and chat-request-cancel are peer-bound; seeing one
		// here means the gateway echoed it. Nothing to do.
		c.logger.Debug("ignoring peer-bound frame", "type", string(f.Type))
	}
}

// routeRemote applies the adopted-exchange policy to a chat-response
// nobody local is waiting for. Runs only on the read loop.
func (c *Client) routeRemote(f *wire.Frame) {
	id := f.ID
	if id == "" {
		return
	}
	if c.table.WasReleased(id) {
		c.logger.Debug("frame for released exchange dropped", "id", id)
		return
	}
	if c.table.IsLocallyOwned(id) {
		// Mid-teardown race: the local listener is already gone.
		return
	}

	rs, ok := c.remotes[id]
	if !ok {
		// A terminal frame with no payload is not worth adopting.
		if f.Error || (f.Done && f.Body == "") {
			return
		}
		if err := c.table.Register(id, exchange.KindRemote); err != nil {
			c.logger.Debug("remote exchange not adopted", "id", id, "error", err)
			return
		}
		rs = &remoteStream{asm: sse.New()}
		c.remotes[id] = rs
		c.logger.Debug("remote exchange adopted", "id", id)
	}

	if f.Error {
		c.endRemote(id, rs, exchange.StatusErrored)
		return
	}
	if f.Body != "" {
		c.table.MarkStreaming(id)
		for _, ev := range rs.asm.Feed(f.Body) {
			c.applyRemoteEvent(rs, ev)
		}
	}
	if f.Done {
		c.endRemote(id, rs, exchange.StatusDone)
	}
}

func (c *Client) applyRemoteEvent(rs *remoteStream, ev sse.Event) {
	switch ev.Type {
	case sse.EventStart:
		rs.open = ev.MessageID
		rs.finished = false
		c.log.ApplyStart(ev.MessageID)
	case sse.EventTextDelta:
		if rs.open == "" {
			return
		}
		c.log.ApplyTextDelta(rs.open, ev.Delta)
	case sse.EventFinish:
		if rs.open != "" && !rs.finished {
			rs.finished = true
			c.log.Finish(rs.open)
		}
	}
}

func (c *Client) endRemote(id string, rs *remoteStream, status exchange.Status) {
	if rs.open != "" && !rs.finished {
		// The stream ended without a finish event; close the message out
		// so observers stop treating it as in progress.
		c.log.Finish(rs.open)
	}
	delete(c.remotes, id)
	c.table.Release(id, status)
	if rest := rs.asm.Rest(); rest != "" {
		c.logger.Debug("discarding remote stream remainder", "id", id, "bytes", len(rest))
	}
}

// consume drains one local exchange into the log.
func (c *Client) consume(ex *mux.Exchange) {
	asm := sse.New()
	var open string
	finished := false

	for body := range ex.Events() {
		for _, ev := range asm.Feed(body) {
			switch ev.Type {
			case sse.EventStart:
				open = ev.MessageID
				finished = false
				c.log.ApplyStart(ev.MessageID)
			case sse.EventTextDelta:
				if open == "" {
					c.logger.Debug("delta before start dropped", "id", ex.ID())
					continue
				}
				c.log.ApplyTextDelta(open, ev.Delta)
			case sse.EventFinish:
				if open != "" && !finished {
					finished = true
					c.log.Finish(open)
				}
			}
		}
	}

	if rest := asm.Rest(); rest != "" {
		c.logger.Debug("discarding stream remainder", "id", ex.ID(), "bytes", len(rest))
	}

	if open != "" && !finished {
		// Stream ended without a finish event; close the message out so
		// observers stop treating it as in progress.
		c.log.Finish(open)
	}
	c.settle(ex, ex.Err())
}

// settle records an exchange's outcome and archives the transcript after
// a successful stream.
func (c *Client) settle(ex *mux.Exchange, err error) {
	c.mu.Lock()
	c.streams--
	if c.active == ex {
		c.active = nil
	}
	switch {
	case err != nil:
		c.status = StatusError
		c.lastErr = err
	case c.streams > 0:
		c.status = StatusStreaming
	default:
		c.status = StatusReady
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("exchange failed", "id", ex.ID(), "error", err)
		return
	}
	if ex.Cancelled() || c.archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if aerr := c.archive.SaveSnapshot(ctx, c.conversation, c.log.Messages()); aerr != nil {
		c.logger.Warn("transcript archive failed", "error", aerr)
	}
}
