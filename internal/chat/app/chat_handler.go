package app

import (
	"fmt"
	"strconv"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/logger"
	"marketplace_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UnreadResponse unread count of a room
type UnreadResponse struct {
	RoomName    string `json:"room_name"`
	UnreadCount int64  `json:"unread_count"`
}

// ErrorResponse -
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatHandler chat REST API
type ChatHandler struct {
	authn    Authenticator
	authz    RoomAuthorizer
	messages MessageGateway
}

// NewChatHandler create ChatHandler
func NewChatHandler(authn Authenticator, authz RoomAuthorizer, messages MessageGateway) *ChatHandler {
	return &ChatHandler{authn: authn, authz: authz, messages: messages}
}

// UnreadCount unread messages in a room sent by others
// @Summary Unread message count
// @Description Count unread messages in a room not sent by the caller. Refusal is always 404.
// @Tags Chat
// @Produce json
// @Param room_name path string true "Room name (booking_<id> or chat_user_<a>_user_<b>)"
// @Param token query string false "Access token (or Authorization: Bearer)"
// @Success 200 {object} UnreadResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /chat/rooms/{room_name}/unread [get]
func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	userID, ok := middlewares.UserID(c)
	if !ok {
		return notFound(c)
	}

	ctx := c.UserContext()
	p, err := h.authn.ResolveUser(ctx, userID)
	if err != nil {
		return notFound(c)
	}

	room := domain.ParseRoom(c.Params("room_name"))
	if err := h.authz.Check(ctx, p, room); err != nil {
		logger.Log.Debug("unread refused", zap.String("room", room.Name), zap.Int64("user_id", userID), zap.Error(err))
		return notFound(c)
	}

	id, _ := p.Identity()
	n, err := h.messages.UnreadCount(ctx, room.Name, id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
	return c.JSON(UnreadResponse{RoomName: room.Name, UnreadCount: n})
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "not found"})
}

// ConnectCheck check service start
// @Summary Check chat service status
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}
