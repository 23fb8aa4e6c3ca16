package main

import (
	"marketplace_chat_service/internal/chat/router"

	"github.com/gofiber/fiber/v2"
)

// 此程式只用於 init swagger, 服務入口在 cmd/chat_service
// swag init -g main.go --output ./cmd/chat_service/docs
func main() {
	app := fiber.New()

	// 注册路由
	router.RegisterRoutes(app, nil, nil, nil)
}
