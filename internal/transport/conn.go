// ABOUTME: Websocket connection carrying wire frames to and from the gateway
// ABOUTME: Read pump decodes inbound frames; writes are serialized by a mutex

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-chat/internal/wire"
)

// ErrClosed reports a send on a connection that has been closed locally.
var ErrClosed = errors.New("transport: connection closed")

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	// frameBufferSize absorbs read bursts while the router catches up.
	frameBufferSize = 64
)

// Options tune the dial. The zero value works.
type Options struct {
	// Header is sent with the websocket handshake; carry the bearer token
	// here.
	Header http.Header
	// HandshakeTimeout bounds the dial. Defaults to ten seconds.
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Conn is one live connection to the gateway. Safe for concurrent use.
type Conn struct {
	ws      *websocket.Conn
	baseURL string
	logger  *slog.Logger

	writeMu sync.Mutex

	frames chan *wire.Frame

	mu        sync.Mutex
	closed    bool
	readErr   error
	closeOnce sync.Once
}

// Dial connects to the gateway's chat endpoint. http(s) schemes are
// accepted and rewritten to ws(s) so callers can pass the address they
// would use in a browser.
func Dial(ctx context.Context, rawURL string, opts Options) (*Conn, error) {
	wsURL, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	ws, resp, err := dialer.DialContext(ctx, wsURL, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	c := &Conn{
		ws:      ws,
		baseURL: wsURL,
		logger:  logger.With("component", "transport"),
		frames:  make(chan *wire.Frame, frameBufferSize),
	}
	go c.readPump()

	c.logger.Debug("connected", "url", wsURL)
	return c, nil
}

// normalizeURL validates the scheme and rewrites http(s) to ws(s).
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, rawURL)
	}
	return u.String(), nil
}

// BaseURL is the normalized ws(s) address this connection dialed.
func (c *Conn) BaseURL() string {
	return c.baseURL
}

// Send encodes and writes one frame. Writes are serialized; the peer sees
// frames in call order per sender.
func (c *Conn) Send(f *wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Type, err)
	}
	return nil
}

// Frames is the inbound frame stream. It closes when the connection ends;
// Err then reports why.
func (c *Conn) Frames() <-chan *wire.Frame {
	return c.frames
}

// Err reports the read failure that ended the connection, nil for a clean
// local close or a normal close from the peer.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close performs the websocket close handshake and tears the socket down.
// Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()

		err = c.ws.Close()
		c.logger.Debug("connection closed")
	})
	return err
}

// readPump decodes inbound frames until the socket dies. Malformed JSON
// and unknown frame types are dropped without surfacing anywhere; that is
// the wire contract, not leniency.
func (c *Conn) readPump() {
	defer close(c.frames)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed && !isNormalClose(err) {
				c.readErr = err
			}
			c.mu.Unlock()
			return
		}

		f, err := wire.Decode(data)
		if err != nil {
			c.logger.Debug("dropping malformed frame", "error", err, "bytes", len(data))
			continue
		}
		c.frames <- f
	}
}

func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	// Local Close tears the socket down under the reader
	return strings.Contains(err.Error(), "use of closed network connection")
}
