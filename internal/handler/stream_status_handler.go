package handler

import (
	"ai-appgen-be/internal/pkg/serverutils"
	ws "ai-appgen-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// StreamStatusHandler exposes the websocket endpoint the UI uses to follow
// per-session stream liveness.
type StreamStatusHandler struct {
	hub *ws.Hub
}

func NewStreamStatusHandler(hub *ws.Hub) *StreamStatusHandler {
	return &StreamStatusHandler{
		hub: hub,
	}
}

func (h *StreamStatusHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/stream-status/v1")

	g.Use("/ws", serverutils.JwtMiddleware, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	g.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		userIdStr, _ := conn.Locals("user_id").(string)
		userId, err := uuid.Parse(userIdStr)
		if err != nil {
			conn.Close()
			return
		}
		ws.ServeWs(h.hub, conn, userId)
	}))
}
