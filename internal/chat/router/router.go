package router

import (
	"marketplace_chat_service/internal/chat/app"
	"marketplace_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册 chat 相关的路由
// @title Marketplace Chat Service API
// @version 1.0
// @description Real-time booking chat. The websocket endpoint is /ws/chat/{room_name}?token=<jwt>.
// @host localhost:8083
// @BasePath /
func RegisterRoutes(r *fiber.App, ws *app.ChatWebsocketHandler, rest *app.ChatHandler, tokens middlewares.TokenValidator) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)

	// handshake 在 upgrade 前完成, 拒絕時 client 只會看到 403
	r.Get("/ws/chat/:room_name", ws.Handshake, websocket.New(ws.HandleConnection))

	chatRoutes := r.Group("/chat", middlewares.JWTMiddleware(tokens, fiber.StatusNotFound))
	chatRoutes.Get("/rooms/:room_name/unread", rest.UnreadCount)
}
