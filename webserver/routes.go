package webserver

import (
	"context"
	"github.com/lefinal/gacha-arena/ws"
	"net/http"
)

// PopulateRoutes populates the WebServer with the routes. The passed
// context.Context is used for stopping websocket connections.
func (server *WebServer) PopulateRoutes(wsCtx context.Context, hub *ws.Hub, arena Arena, leaderboard Leaderboard) {
	// Websocket stuff.
	server.router.HandleFunc("/ws", ws.HandleWS(wsCtx, hub))
	// API stuff.
	apiRouter := server.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(noCacheMiddleware)
	api := &apiHandlers{
		logger:      server.logger.Named("api"),
		arena:       arena,
		leaderboard: leaderboard,
	}
	apiRouter.HandleFunc("/matches", api.handleMatches).Methods(http.MethodGet)
	apiRouter.HandleFunc("/players/{userID}/match", api.handlePlayerMatch).Methods(http.MethodGet)
	apiRouter.HandleFunc("/queue", api.handleQueue).Methods(http.MethodGet)
	apiRouter.HandleFunc("/leaderboard", api.handleLeaderboard).Methods(http.MethodGet)
}
