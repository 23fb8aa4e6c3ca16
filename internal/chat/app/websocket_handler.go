package app

import (
	"marketplace_chat_service/pkg/logger"
	"marketplace_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// LocalsSession handshake 成功後 session 存放在 c.Locals
const LocalsSession = "chat_session"

// ChatWebsocketHandler websocket 入口
type ChatWebsocketHandler struct {
	svc *ChatService
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(svc *ChatService) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{svc: svc}
}

// Handshake upgrade 前完成驗證與授權; 被拒絕的連線不會 upgrade, 原因不回傳給 client
func (h *ChatWebsocketHandler) Handshake(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	roomName := c.Params("room_name")
	s, err := h.svc.Connect(c.UserContext(), c.Query(middlewares.QueryToken), roomName)
	if err != nil {
		logger.Log.Info("connection refused",
			zap.String("session_id", s.ID()),
			zap.String("room", roomName),
			zap.String("ip", c.IP()),
			zap.Error(err),
		)
		return fiber.ErrForbidden
	}

	c.Locals(LocalsSession, s)
	return c.Next()
}

// HandleConnection 是 WebSocket 連線的進入點, 回傳時連線已關閉
func (h *ChatWebsocketHandler) HandleConnection(conn *websocket.Conn) {
	s, ok := conn.Locals(LocalsSession).(*Session)
	if !ok {
		logger.Log.Error("websocket without session", zap.String("ip", conn.RemoteAddr().String()))
		_ = conn.Close()
		return
	}

	//client發出ping, fiber會自動回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("Received PONG", zap.String("session_id", s.ID()))
		return nil
	})

	s.Serve(conn)
}
