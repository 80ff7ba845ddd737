// Package ws provides a websocket feed for spectators.
package ws

import (
	"context"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/gacha-arena/errors"
	"go.uber.org/zap"
	"net/http"
)

// HandleWS upgrades spectator requests and registers them at the Hub. Read
// pumps stop when ctx is done.
func HandleWS(ctx context.Context, hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Spectator pages are served from other origins.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errors.Log(hub.logger, errors.FromErr("upgrade spectator connection", errors.ErrProtocolViolation, err,
				errors.Details{"remote_addr": r.RemoteAddr}))
			return
		}
		client := &Client{
			ID:         uuid.New(),
			hub:        hub,
			connection: conn,
			send:       make(chan []byte, sendBufferSize),
		}
		client.logger = hub.logger.Named("spectator").With(zap.Stringer("client_id", client.ID))
		select {
		case <-ctx.Done():
			client.closeConnection()
			return
		case hub.register <- client:
		}
		go client.writePump()
		go client.readPump(ctx)
	}
}
