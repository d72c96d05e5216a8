// Package ws provides a WebSocket client for the studio gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/studio/internal/gateway/ws"
)

// Client is a WebSocket client for the studio gateway.
//
// Call and ReadFrame must not be used concurrently.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc

	// event frames read while waiting for a response
	pending []wsprotocol.Frame
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Call sends a request and waits for its response. Events received in the
// meantime are kept for ReadFrame.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	seq := atomic.AddUint64(&c.reqSeq, 1)
	id := fmt.Sprintf("req-%d", seq)

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = data
	}

	data, err := wsprotocol.MarshalFrame(wsprotocol.Frame{
		Type:   wsprotocol.FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	})
	if err != nil {
		return nil, err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	for {
		frame, err := c.read()
		if err != nil {
			return nil, err
		}
		switch {
		case frame.Type == wsprotocol.FrameTypeEvent:
			c.pending = append(c.pending, frame)
		case frame.Type == wsprotocol.FrameTypeResponse && frame.ID == id:
			if frame.OK == nil || !*frame.OK {
				return nil, errors.New(frame.Error)
			}
			return frame.Payload, nil
		}
	}
}

// Subscribe restricts the event feed to one related entity.
// An empty id restores the full feed.
func (c *Client) Subscribe(relatedID string) error {
	_, err := c.Call(wsprotocol.MethodSubscribe, wsprotocol.SubscribeParams{RelatedID: relatedID})
	return err
}

// ReadFrame returns the next frame, starting with events buffered by Call.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	if len(c.pending) > 0 {
		frame := c.pending[0]
		c.pending = c.pending[1:]
		return frame, nil
	}
	return c.read()
}

func (c *Client) read() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
