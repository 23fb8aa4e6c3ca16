package middlewares

import (
	"marketplace_chat_service/pkg/logger"
	t_token "marketplace_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	//QueryToken token in query name
	QueryToken = "token"

	//TokenUserID get user id form token, set c.locals name
	TokenUserID = "UserID"
)

// TokenValidator *token.Manager
type TokenValidator interface {
	Validate(tokenStr string) (int64, error)
}

// ExtractToken query ?token= 優先, 其次 Authorization: Bearer
func ExtractToken(c *fiber.Ctx) string {
	if tokenStr := c.Query(QueryToken); tokenStr != "" {
		return tokenStr
	}
	return t_token.FromAuthorizationHeader(c.Get(fiber.HeaderAuthorization))
}

// JWTMiddleware validates JWT, 失敗時回傳 failStatus (不說明原因)
func JWTMiddleware(v TokenValidator, failStatus int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := ExtractToken(c)
		if tokenStr == "" {
			return c.SendStatus(failStatus)
		}

		userID, err := v.Validate(tokenStr)
		if err != nil {
			logger.Log.Debug("token rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.SendStatus(failStatus)
		}

		c.Locals(TokenUserID, userID)
		return c.Next()
	}
}

// UserID read user id set by JWTMiddleware
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(TokenUserID).(int64)
	return id, ok
}
