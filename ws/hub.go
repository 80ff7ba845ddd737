package ws

import (
	"context"
	"encoding/json"
	"github.com/lefinal/gacha-arena/errors"
	"go.uber.org/zap"
)

// MessageType is the type of Message.
type MessageType string

// Message is the envelope for everything sent to spectators.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub holds all connected spectators and broadcasts messages to them.
type Hub struct {
	logger *zap.Logger
	// clients holds all online clients. Only accessed in Run.
	clients map[*Client]struct{}
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
	// broadcast receives encoded messages to send to all clients.
	broadcast chan []byte
	// clientCount is used for ClientCount requests.
	clientCount chan chan int
}

// NewHub creates a new Hub. Start it with Hub.Run.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:      logger,
		clients:     make(map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan []byte, sendBufferSize),
		clientCount: make(chan chan int),
	}
}

// Run the Hub until the given context.Context is done. All clients are
// disconnected afterwards.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		for c := range h.clients {
			h.removeClient(c)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("client connected", zap.String("client_id", c.ID.String()))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.removeClient(c)
				h.logger.Debug("client disconnected", zap.String("client_id", c.ID.String()))
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					h.removeClient(c)
					h.logger.Warn("dropped slow client", zap.String("client_id", c.ID.String()))
				}
			}
		case res := <-h.clientCount:
			res <- len(h.clients)
		}
	}
}

// removeClient removes the Client and closes its send-channel which leads to
// stopping the write-pump.
func (h *Hub) removeClient(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// Broadcast the given Message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, message Message) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "marshal message", errors.Details{"message_type": message.Type})
	}
	select {
	case <-ctx.Done():
		return errors.NewContextAbortedError("broadcast message")
	case h.broadcast <- raw:
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount(ctx context.Context) (int, error) {
	res := make(chan int)
	select {
	case <-ctx.Done():
		return 0, errors.NewContextAbortedError("request client count")
	case h.clientCount <- res:
	}
	return <-res, nil
}
