package app

import (
	"context"
	"fmt"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/middlewares"
)

// Authenticator token -> principal
type Authenticator interface {
	Resolve(ctx context.Context, token string) (domain.Principal, error)
	ResolveUser(ctx context.Context, userID int64) (domain.Principal, error)
}

// TokenAuthenticator 驗證 token 後載入 user
type TokenAuthenticator struct {
	validator middlewares.TokenValidator
	users     repository.UserRepository
}

// NewTokenAuthenticator create TokenAuthenticator
func NewTokenAuthenticator(v middlewares.TokenValidator, users repository.UserRepository) *TokenAuthenticator {
	return &TokenAuthenticator{validator: v, users: users}
}

// Resolve 任何失敗都回傳 Anonymous, error 只用來記錄原因 (domain.ErrAuthentication)
func (a *TokenAuthenticator) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Anonymous(), fmt.Errorf("%w: missing credential", domain.ErrAuthentication)
	}

	userID, err := a.validator.Validate(token)
	if err != nil {
		return domain.Anonymous(), fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	return a.ResolveUser(ctx, userID)
}

// ResolveUser 已驗證過的 subject 載入 identity
func (a *TokenAuthenticator) ResolveUser(ctx context.Context, userID int64) (domain.Principal, error) {
	id, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return domain.Anonymous(), fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	return domain.Authenticated(id), nil
}
