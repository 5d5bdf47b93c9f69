package envlink

import (
	"fmt"

	"github.com/atelier-rl/paintpool/core"
	"github.com/gorilla/websocket"
)

type request struct {
	Type   string `json:"type"`
	Action []int  `json:"action,omitempty"`
}

const (
	typeReset = "reset"
	typeStep  = "step"
)

// Client is a per-actor environment link over a websocket connection. Not
// safe for concurrent use; each actor owns its own connection.
type Client struct {
	conn *websocket.Conn
}

var _ core.Environment = &Client{}

// Dial connects to an environment server address, e.g.
// ws://127.0.0.1:7861/env/0.
func Dial(address string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Reset() (core.EnvOutput, error) {
	return c.roundTrip(request{Type: typeReset})
}

func (c *Client) Step(action []int) (core.EnvOutput, error) {
	return c.roundTrip(request{Type: typeStep, Action: action})
}

func (c *Client) roundTrip(req request) (core.EnvOutput, error) {
	if err := c.conn.WriteJSON(req); err != nil {
		return core.EnvOutput{}, fmt.Errorf("writing %s: %w", req.Type, err)
	}
	var out core.EnvOutput
	if err := c.conn.ReadJSON(&out); err != nil {
		return core.EnvOutput{}, fmt.Errorf("reading %s reply: %w", req.Type, err)
	}
	return out, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
