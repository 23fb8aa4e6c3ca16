package app

import (
	"context"
	"time"

	"marketplace_chat_service/pkg/config"
)

const (
	defaultHistoryLimit = 50
	defaultSendBuffer   = 64
	defaultPingInterval = 10 * time.Minute
	defaultWriteTimeout = 10 * time.Second
)

// ChatService 建立 session 需要的依賴, process 啟動時建立一次
type ChatService struct {
	authn    Authenticator
	authz    RoomAuthorizer
	messages MessageGateway
	hub      Broadcaster
	cfg      SessionConfig
}

// NewChatService create ChatService
func NewChatService(authn Authenticator, authz RoomAuthorizer, messages MessageGateway, hub Broadcaster, cfg SessionConfig) *ChatService {
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &ChatService{
		authn:    authn,
		authz:    authz,
		messages: messages,
		hub:      hub,
		cfg:      cfg,
	}
}

// SessionConfigFrom yaml session 設定
func SessionConfigFrom(c config.SessionConfig) SessionConfig {
	return SessionConfig{
		HistoryLimit: c.HistoryLimit,
		SendBuffer:   c.SendBuffer,
		PingInterval: c.PingInterval,
		WriteTimeout: c.WriteTimeout,
	}
}

// NewSession 新連線, 狀態為 Connecting
func (svc *ChatService) NewSession() *Session {
	return newSession(svc)
}

// Connect 完成 handshake 階段 (authenticate + authorize), 失敗時 session 已 Closed
func (svc *ChatService) Connect(ctx context.Context, token, roomName string) (*Session, error) {
	s := svc.NewSession()
	if err := s.Authenticate(ctx, token); err != nil {
		return s, err
	}
	if err := s.Authorize(ctx, roomName); err != nil {
		return s, err
	}
	return s, nil
}
