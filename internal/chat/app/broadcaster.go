package app

import (
	"context"
	"encoding/json"
	"sync"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// Subscriber room 成員, Deliver 不可阻塞
type Subscriber interface {
	ID() string
	Deliver(b domain.Broadcast)
}

// Broadcaster room fan-out
type Broadcaster interface {
	Join(room string, s Subscriber)
	Leave(room string, s Subscriber)
	Publish(ctx context.Context, room string, b domain.Broadcast) error
}

// RoomHub in-process membership, room -> session id -> subscriber
type RoomHub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber
}

// NewRoomHub create RoomHub
func NewRoomHub() *RoomHub {
	return &RoomHub{rooms: make(map[string]map[string]Subscriber)}
}

// Join 同一 subscriber 重複 join 只會登記一次
func (h *RoomHub) Join(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Subscriber)
		h.rooms[room] = members
	}
	members[s.ID()] = s
}

// Leave -
func (h *RoomHub) Leave(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s.ID())
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Publish 本機直接送出
func (h *RoomHub) Publish(_ context.Context, room string, b domain.Broadcast) error {
	h.Deliver(room, b)
	return nil
}

// Deliver 先複製成員再送, 送出時不持有鎖
func (h *RoomHub) Deliver(room string, b domain.Broadcast) {
	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		s.Deliver(b)
	}
}

// Members room 目前人數
func (h *RoomHub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// RoomPubSub repository.RedisPubSub
type RoomPubSub interface {
	Publish(ctx context.Context, room string, message interface{}) error
	Subscribe(ctx context.Context, handler func(room string, payload []byte)) error
}

// RedisBroadcaster 多個 process 之間透過 redis 轉發, 本機成員仍由 RoomHub 管理
type RedisBroadcaster struct {
	*RoomHub
	pubsub RoomPubSub
}

// NewRedisBroadcaster create RedisBroadcaster, 需要呼叫 Start
func NewRedisBroadcaster(hub *RoomHub, pubsub RoomPubSub) *RedisBroadcaster {
	return &RedisBroadcaster{RoomHub: hub, pubsub: pubsub}
}

// Start 訂閱所有 room, ctx 取消時停止
func (b *RedisBroadcaster) Start(ctx context.Context) error {
	return b.pubsub.Subscribe(ctx, func(room string, payload []byte) {
		var msg domain.Broadcast
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Log.Error("invalid broadcast payload", zap.String("room", room), zap.Error(err))
			return
		}
		b.RoomHub.Deliver(room, msg)
	})
}

// Publish 經由 redis 送出 (包含自己這個 process); redis 失敗時至少送給本機成員
func (b *RedisBroadcaster) Publish(ctx context.Context, room string, msg domain.Broadcast) error {
	if err := b.pubsub.Publish(ctx, room, msg); err != nil {
		logger.Log.Warn("redis publish failed, delivering locally", zap.String("room", room), zap.Error(err))
		b.RoomHub.Deliver(room, msg)
		return err
	}
	return nil
}
