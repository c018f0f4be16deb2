// ABOUTME: History bootstrap via the gateway's sibling HTTP endpoint
// ABOUTME: Failures are logged and ignored; the engine starts empty instead

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/coven-chat/internal/wire"
)

// bootstrapTimeout bounds the initial history fetch.
const bootstrapTimeout = 10 * time.Second

// bootstrapHistory seeds the log from the gateway's get-messages endpoint.
// Any failure leaves the conversation empty; a live snapshot frame will
// correct it later.
func (c *Client) bootstrapHistory(ctx context.Context) {
	target, err := historyURL(c.transport.BaseURL())
	if err != nil {
		c.logger.Debug("history bootstrap skipped", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.logger.Debug("history bootstrap skipped", "error", err)
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("history bootstrap failed", "url", target, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("history bootstrap failed", "url", target, "status", resp.StatusCode)
		return
	}

	var msgs []wire.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		c.logger.Debug("history bootstrap failed", "url", target, "error", err)
		return
	}

	c.log.ReplaceAll(msgs)
	c.logger.Debug("history bootstrapped", "messages", len(msgs))
}

// historyURL turns the websocket endpoint into its sibling get-messages
// HTTP URL: ws://host/chat becomes http://host/chat/get-messages.
func historyURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/get-messages"
	return u.String(), nil
}
