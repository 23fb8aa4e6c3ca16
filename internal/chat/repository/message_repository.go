package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"marketplace_chat_service/internal/chat/domain"

	"gorm.io/gorm"
)

// MessageRepository definition chat message store
type MessageRepository interface {
	// Create 寫入一筆訊息, 由 store 指定 id, timestamp 為寫入時間
	Create(ctx context.Context, msg *domain.ChatMessage) error
	// FindRecent 取最近 limit 筆, 舊的在前
	FindRecent(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error)
	// MarkRead 將 room 內非 reader 發送的訊息標為已讀, 回傳更新筆數
	MarkRead(ctx context.Context, room string, readerID int64) (int64, error)
	// CountUnread room 內非 reader 發送且未讀的數量
	CountUnread(ctx context.Context, room string, readerID int64) (int64, error)
}

type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository create a gorm MessageRepository (postgres, sqlite in tests)
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// AutoMigrate 建立 api_chatmessage
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.ChatMessage{})
}

func (r *gormMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *gormMessageRepository) FindRecent(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}

	var msgs []domain.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_identifier = ?", room).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("find recent messages: %w", err)
	}

	// 查詢是新到舊, 回傳要舊到新
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *gormMessageRepository) MarkRead(ctx context.Context, room string, readerID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("room_identifier = ? AND sender_id <> ? AND is_read = ?", room, readerID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark messages read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *gormMessageRepository) CountUnread(ctx context.Context, room string, readerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("room_identifier = ? AND sender_id <> ? AND is_read = ?", room, readerID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}
