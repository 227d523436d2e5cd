// Package server wires the HTTP surface: one websocket endpoint per
// registered plugin plus a small REST surface for health, stats and
// room discovery.
package server

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"arcade/core"
	"arcade/platform"
	"arcade/transport"
)

type Server struct {
	engine     *gin.Engine
	registry   *core.Registry
	manager    *core.Manager
	dispatcher *core.Dispatcher
	friends    *platform.FriendsClient
	log        zerolog.Logger
}

func New(registry *core.Registry, manager *core.Manager, dispatcher *core.Dispatcher, friends *platform.FriendsClient, allowedOrigins []string, log zerolog.Logger) *Server {
	s := &Server{
		engine:     newEngine(allowedOrigins),
		registry:   registry,
		manager:    manager,
		dispatcher: dispatcher,
		friends:    friends,
		log:        log.With().Str("component", "server").Logger(),
	}
	s.routes(allowedOrigins)
	return s
}

func newEngine(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}
	if len(allowedOrigins) == 0 {
		// no origin allowlist configured; open up for local development
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	return r
}

func (s *Server) routes(allowedOrigins []string) {
	s.engine.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })
	s.engine.GET("/stats", s.statsHandler)
	s.engine.GET("/rooms", s.roomsHandler)
	s.engine.GET("/friends/:playerID", s.friendsHandler)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, origin)
		},
	}

	for _, d := range s.registry.All() {
		s.engine.GET(d.BasePath, s.wsHandler(d.ID, upgrader))
	}
}

// wsHandler upgrades the connection and runs its read loop until the
// client goes away, at which point the player's grace window starts.
func (s *Server) wsHandler(pluginID string, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ws, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			s.log.Warn().Err(err).Str("plugin", pluginID).Msg("websocket upgrade failed")
			return
		}

		conn := transport.NewConn(ws, pluginID, s.log)
		s.manager.Attach(conn)
		go conn.WritePump()

		conn.ReadPump(func(event string, raw json.RawMessage) {
			s.dispatcher.Dispatch(conn, event, raw)
		})

		s.manager.HandleDisconnect(conn.ID())
	}
}

func (s *Server) statsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.manager.Stats())
}

func (s *Server) roomsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"rooms": s.manager.ListRooms()})
}

func (s *Server) friendsHandler(ctx *gin.Context) {
	playerID := ctx.Param("playerID")
	if playerID == "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing-player-id"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"friends": s.friends.Friends(ctx.Request.Context(), playerID)})
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}
