package ws

import (
	"context"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/gacha-arena/errors"
	"go.uber.org/zap"
	"time"
)

const (
	writeTimeout = 10 * time.Second
	// pongTimeout is how long a spectator may stay silent before the connection
	// is considered dead.
	pongTimeout = 60 * time.Second
	// pingInterval must stay below pongTimeout.
	pingInterval = pongTimeout * 9 / 10
	// maxMessageSize limits inbound frames. Spectators only send control frames.
	maxMessageSize = 16384
	// sendBufferSize is the number of updates queued per spectator. A spectator
	// with a full buffer is dropped by the Hub.
	sendBufferSize = 256
)

// Client is a connected spectator.
type Client struct {
	ID         uuid.UUID
	logger     *zap.Logger
	hub        *Hub
	connection *websocket.Conn
	// send holds encoded updates. The Hub closes it when removing the Client.
	send chan []byte
}

func (c *Client) closeConnection() {
	if err := c.connection.Close(); err != nil {
		c.logger.Debug("close connection", zap.Error(err))
	}
}

// write writes a single frame with the write deadline applied.
func (c *Client) write(messageType int, data []byte) error {
	_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.connection.WriteMessage(messageType, data)
}

// readPump keeps the read deadline fresh on pongs and discards anything else
// the spectator sends. Once reading fails, the Client is unregistered.
func (c *Client) readPump(ctx context.Context) {
	defer c.closeConnection()
	defer func() {
		select {
		case <-ctx.Done():
		case c.hub.unregister <- c:
		}
	}()
	c.connection.SetReadLimit(maxMessageSize)
	extendDeadline := func(string) error {
		return c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	}
	_ = extendDeadline("")
	c.connection.SetPongHandler(extendDeadline)
	for {
		_, message, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("spectator left unexpectedly", zap.Error(err))
			}
			return
		}
		c.logger.Debug("ignoring message from spectator", zap.Int("size", len(message)))
	}
}

// writePump writes queued updates and periodic pings until send is closed or a
// write fails.
func (c *Client) writePump() {
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()
	defer c.closeConnection()
	for {
		select {
		case <-pings.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("write ping", zap.Error(err))
				return
			}
		case update, open := <-c.send:
			if !open {
				if err := c.write(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("write close message", zap.Error(err))
				}
				return
			}
			if err := c.write(websocket.TextMessage, update); err != nil {
				errors.Log(c.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Err:     err,
					Message: "write update",
					Details: errors.Details{"client_id": c.ID.String()},
				})
				return
			}
		}
	}
}
