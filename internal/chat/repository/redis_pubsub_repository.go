package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"marketplace_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisPubSub definition redis pub/sub, 一個 room 對應一個 channel
type RedisPubSub struct {
	client *redis.Client
	prefix string
}

// NewRedisPubSub create RedisPubSub, channel = prefix + room
func NewRedisPubSub(client *redis.Client, prefix string) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		prefix: prefix,
	}
}

// Channel room 對應的 channel 名稱
func (r *RedisPubSub) Channel(room string) string {
	return r.prefix + room
}

// Publish 將 message 序列化後，發布到 room 的 channel
func (r *RedisPubSub) Publish(ctx context.Context, room string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.Channel(room), data).Err()
}

// Subscribe 用 pattern 訂閱所有 room, 確認訂閱成功後才返回; ctx 取消時關閉訂閱
func (r *RedisPubSub) Subscribe(ctx context.Context, handler func(room string, payload []byte)) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("psubscribe %s*: %w", r.prefix, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				room := strings.TrimPrefix(m.Channel, r.prefix)
				handler(room, []byte(m.Payload))
			case <-ctx.Done():
				logger.Log.Info("room subscription closed", zap.String("pattern", r.prefix+"*"))
				return
			}
		}
	}()
	return nil
}
