package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/studio/internal/events"
)

// ErrUnknownMethod is returned by a Handler for methods it does not serve.
var ErrUnknownMethod = errors.New("unknown method")

// Handler serves request frames other than subscribe.
type Handler interface {
	HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// Client is one websocket connection.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu        sync.Mutex
	relatedID string
}

func (c *Client) wants(relatedID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relatedID == "" || c.relatedID == relatedID
}

// Hub fans bus events out to websocket clients and dispatches their requests.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	handler     Handler
	unsubscribe func()
}

func NewHub(bus *events.Bus, handler Handler) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		handler: handler,
	}
	if bus != nil {
		h.unsubscribe = bus.Subscribe(h.forward)
	}
	return h
}

func (h *Hub) forward(e events.Event) {
	frame, err := NewEventFrame(string(e.Type), e.RelatedID, e)
	if err != nil {
		slog.Error("marshal event frame", "error", err)
		return
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		slog.Error("marshal frame", "error", err)
		return
	}
	h.broadcast(e.RelatedID, data)
}

// broadcast queues data for every interested client. Slow clients miss frames.
func (h *Hub) broadcast(relatedID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(relatedID) {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				slog.Debug("ws read closed", "status", status)
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Warn("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type != FrameTypeRequest {
			slog.Debug("ws ignoring frame", "type", frame.Type)
			continue
		}
		c.handleRequest(ctx, frame)
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	if frame.Method == MethodSubscribe {
		var params SubscribeParams
		if len(frame.Params) > 0 {
			if err := json.Unmarshal(frame.Params, &params); err != nil {
				c.respond(frame.ID, nil, errors.New("invalid params"))
				return
			}
		}
		c.mu.Lock()
		c.relatedID = params.RelatedID
		c.mu.Unlock()
		c.respond(frame.ID, params, nil)
		return
	}

	if c.hub.handler == nil {
		c.respond(frame.ID, nil, ErrUnknownMethod)
		return
	}
	result, err := c.hub.handler.HandleRequest(ctx, frame.Method, frame.Params)
	c.respond(frame.ID, result, err)
}

func (c *Client) respond(id string, payload any, err error) {
	var (
		f    Frame
		merr error
	)
	if err != nil {
		f, merr = NewResponseFrame(id, false, nil, err.Error())
	} else {
		f, merr = NewResponseFrame(id, true, payload, "")
	}
	if merr != nil {
		slog.Error("marshal ws response", "error", merr)
		return
	}
	data, merr := MarshalFrame(f)
	if merr != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close detaches from the bus and closes every connection.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}
