package relay

import (
	"context"
	"net/http"

	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func newUpgrader(allowedOrigin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := req.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
}

// RegisterWS mounts GET /ws. The caller authenticates with a JWT in
// "Authorization: Bearer" or ?token=.
func RegisterWS(rg gin.IRoutes, r *Relay, jwtSecret, allowedOrigin string) {
	upgrader := newUpgrader(allowedOrigin)

	rg.GET("/ws", func(c *gin.Context) {
		token := auth.BearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseToken(jwtSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("relay: upgrade failed")
			return
		}

		conn := newConn(ws, claims.UserID)
		r.Registry.Attach(conn)
		log.Info().Str("connID", conn.ID()).Str("userID", claims.UserID).Msg("relay: client connected")

		// the request context ends when the handler returns
		ctx := context.WithoutCancel(c.Request.Context())
		go conn.writePump()
		go conn.readPump(ctx, r)
	})
}
