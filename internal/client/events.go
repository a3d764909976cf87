package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/websocket"
)

// Subscribe streams realtime events to fn until ctx is done or the
// connection drops. A dial failure is reported as backend unavailability.
func (c *Client) Subscribe(ctx context.Context, fn func(websocket.Message)) error {
	u := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	conn, _, err := ws.Dial(ctx, u, &ws.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial events: %w: %w", points.ErrBackendUnavailable, err)
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(ws.StatusNormalClosure, "")
				return ctx.Err()
			}
			return fmt.Errorf("read events: %w: %w", points.ErrBackendUnavailable, err)
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("undecodable event", "error", err)
			continue
		}
		fn(msg)
	}
}
